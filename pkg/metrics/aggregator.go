package metrics

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kevindweb/loadgen/pkg/workload"
)

type series struct {
	latencies []time.Duration
	failures  int
	errors    map[string]int
}

// Aggregator collects results from concurrent workers. Summarize can be
// called while results are still arriving; Finalize seals the aggregator.
type Aggregator struct {
	mu        sync.Mutex
	runID     string
	started   time.Time
	now       func() time.Time
	series    map[workload.Kind]*series
	count     int
	dropped   int
	version   uint64
	cached    *Report
	cachedAt  uint64
	final     *Report
	collector *Collector
}

type Option func(*Aggregator)

func WithCollector(c *Collector) Option {
	return func(a *Aggregator) {
		a.collector = c
	}
}

func WithRunID(id string) Option {
	return func(a *Aggregator) {
		a.runID = id
	}
}

func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		a.now = now
	}
}

func NewAggregator(opts ...Option) *Aggregator {
	a := &Aggregator{
		now:    time.Now,
		series: map[workload.Kind]*series{},
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.runID == "" {
		a.runID = uuid.NewString()
	}
	a.started = a.now()
	return a
}

func (a *Aggregator) Record(r Result) {
	a.mu.Lock()
	if a.final != nil {
		a.dropped++
		a.mu.Unlock()
		return
	}

	s, ok := a.series[r.Kind]
	if !ok {
		s = &series{errors: map[string]int{}}
		a.series[r.Kind] = s
	}

	if r.Success() {
		s.latencies = append(s.latencies, r.Duration)
	} else {
		s.failures++
		s.errors[r.Reason()]++
	}
	a.count++
	a.version++
	a.mu.Unlock()

	if a.collector != nil {
		a.collector.Observe(r)
	}
}

func (a *Aggregator) Count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.count
}

// Summarize returns the report for the results recorded so far. Calls with
// no Record in between return the same report.
func (a *Aggregator) Summarize() Report {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.final != nil {
		return a.sealed()
	}

	if a.cached == nil || a.cachedAt != a.version {
		report := a.summarize(a.now())
		a.cached = &report
		a.cachedAt = a.version
	}
	return copyReport(*a.cached)
}

// Finalize seals the aggregator and returns the final report. Later calls
// return the same report and later records are counted as dropped.
func (a *Aggregator) Finalize() Report {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.final == nil {
		report := a.summarize(a.now())
		if a.cached != nil && a.cachedAt == a.version {
			report = *a.cached
		}
		a.final = &report
	}

	return a.sealed()
}

func (a *Aggregator) sealed() Report {
	report := copyReport(*a.final)
	report.Dropped = a.dropped
	return report
}

func (a *Aggregator) summarize(finished time.Time) Report {
	elapsed := finished.Sub(a.started)
	report := Report{
		RunID:    a.runID,
		Started:  a.started,
		Finished: finished,
		Elapsed:  elapsed,
		Executed: a.count,
		Kinds:    make([]KindStats, 0, len(a.series)),
	}

	var (
		all      []time.Duration
		failures int
		errors   = map[string]int{}
	)
	for _, k := range workload.Kinds() {
		s, ok := a.series[k]
		if !ok {
			continue
		}
		report.Kinds = append(report.Kinds, computeStats(k, s.latencies, s.failures, s.errors, elapsed))
		all = append(all, s.latencies...)
		failures += s.failures
		for reason, n := range s.errors {
			errors[reason] += n
		}
	}

	report.Total = computeStats(KindTotal, all, failures, errors, elapsed)
	return report
}

func computeStats(
	k workload.Kind,
	latencies []time.Duration,
	failures int,
	errors map[string]int,
	elapsed time.Duration,
) KindStats {
	stats := KindStats{
		Kind:      k,
		Name:      kindName(k),
		Successes: len(latencies),
		Failures:  failures,
		Count:     len(latencies) + failures,
	}

	if len(errors) > 0 {
		stats.Errors = make(map[string]int, len(errors))
		for reason, n := range errors {
			stats.Errors[reason] = n
		}
	}

	if stats.Count > 0 {
		stats.ErrorRate = float64(failures) / float64(stats.Count)
	}

	if elapsed > 0 {
		stats.Throughput = float64(stats.Count) / elapsed.Seconds()
	}

	if len(latencies) == 0 {
		return stats
	}

	sorted := append([]time.Duration(nil), latencies...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}

	stats.Min = sorted[0]
	stats.Max = sorted[len(sorted)-1]
	stats.Mean = sum / time.Duration(len(sorted))
	stats.P50 = Percentile(sorted, 50)
	stats.P95 = Percentile(sorted, 95)
	stats.P99 = Percentile(sorted, 99)
	return stats
}

// Percentile returns the nearest-rank percentile of an ascending slice.
func Percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}

	rank := int(math.Ceil(p / 100 * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	return sorted[rank-1]
}

func copyReport(r Report) Report {
	kinds := make([]KindStats, len(r.Kinds))
	for i, stats := range r.Kinds {
		kinds[i] = copyStats(stats)
	}
	r.Kinds = kinds
	r.Total = copyStats(r.Total)
	return r
}

func copyStats(s KindStats) KindStats {
	if s.Errors != nil {
		errors := make(map[string]int, len(s.Errors))
		for reason, n := range s.Errors {
			errors[reason] = n
		}
		s.Errors = errors
	}
	return s
}
