package metrics

import (
	"time"

	"github.com/kevindweb/loadgen/pkg/workload"
)

// KindTotal labels the row aggregating every kind.
const KindTotal workload.Kind = -1

func kindName(k workload.Kind) string {
	if k == KindTotal {
		return "TOTAL"
	}
	return k.String()
}

type KindStats struct {
	Kind       workload.Kind  `json:"-"`
	Name       string         `json:"kind"`
	Count      int            `json:"count"`
	Successes  int            `json:"successes"`
	Failures   int            `json:"failures"`
	ErrorRate  float64        `json:"error_rate"`
	Min        time.Duration  `json:"min_ns"`
	Max        time.Duration  `json:"max_ns"`
	Mean       time.Duration  `json:"mean_ns"`
	P50        time.Duration  `json:"p50_ns"`
	P95        time.Duration  `json:"p95_ns"`
	P99        time.Duration  `json:"p99_ns"`
	Throughput float64        `json:"ops_per_sec"`
	Errors     map[string]int `json:"errors,omitempty"`
}

type Report struct {
	RunID          string        `json:"run_id"`
	Started        time.Time     `json:"started"`
	Finished       time.Time     `json:"finished"`
	Elapsed        time.Duration `json:"elapsed_ns"`
	Planned        int           `json:"planned"`
	Executed       int           `json:"executed"`
	Dropped        int           `json:"dropped,omitempty"`
	Degraded       bool          `json:"degraded"`
	DegradedReason string        `json:"degraded_reason,omitempty"`
	Kinds          []KindStats   `json:"kinds"`
	Total          KindStats     `json:"total"`
}

// Stats returns the row for kind k.
func (r Report) Stats(k workload.Kind) (KindStats, bool) {
	for _, stats := range r.Kinds {
		if stats.Kind == k {
			return stats, true
		}
	}
	return KindStats{Kind: k}, false
}

func (r Report) Count(k workload.Kind) int {
	stats, _ := r.Stats(k)
	return stats.Count
}

func (r Report) ErrorRate(k workload.Kind) float64 {
	stats, _ := r.Stats(k)
	return stats.ErrorRate
}
