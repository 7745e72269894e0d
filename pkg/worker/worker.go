package worker

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/kevindweb/loadgen/internal/constants"
	"github.com/kevindweb/loadgen/pkg/metrics"
	"github.com/kevindweb/loadgen/pkg/pool"
	"github.com/kevindweb/loadgen/pkg/workload"
)

// Task is the ordered batch of operations one worker executes.
type Task struct {
	Worker int
	Ops    []workload.Operation
}

// Leaser hands out exclusive connection leases.
type Leaser interface {
	Acquire(ctx context.Context) (*pool.Handle, error)
	Release(h *pool.Handle)
}

type Options struct {
	Concurrency      int
	OperationTimeout time.Duration
	// RateLimit caps each worker at this many operations per second. Zero
	// means unlimited.
	RateLimit float64
	Logger    zerolog.Logger
}

func fillDefaultOptions(opts *Options) Options {
	if opts == nil {
		opts = &Options{}
	}

	if opts.Concurrency <= 0 {
		opts.Concurrency = runtime.NumCPU()
	}

	if opts.OperationTimeout == 0 {
		opts.OperationTimeout = constants.OperationTimeout
	}

	return *opts
}

// Pool runs tasks with at most Concurrency of them in flight. A failure in
// one task is recorded against the failing operation and never stops the
// other tasks.
type Pool struct {
	conns Leaser
	opts  Options
}

func New(conns Leaser, opts Options) *Pool {
	return &Pool{
		conns: conns,
		opts:  fillDefaultOptions(&opts),
	}
}

func (p *Pool) Concurrency() int {
	return p.opts.Concurrency
}

// Run executes tasks and returns every result in task order, streaming each
// one to sink as it completes. Once ctx is done no task is started and no
// further operation is dispatched; operations already in flight finish or
// time out.
func (p *Pool) Run(ctx context.Context, tasks []Task, sink metrics.Recorder) []metrics.Result {
	var (
		g       errgroup.Group
		results = make([][]metrics.Result, len(tasks))
	)
	g.SetLimit(p.opts.Concurrency)

	for i := range tasks {
		if ctx.Err() != nil {
			p.opts.Logger.Info().Int("skipped_tasks", len(tasks)-i).Msg("run canceled, not dispatching remaining tasks")
			break
		}

		i := i
		g.Go(func() error {
			results[i] = p.runTask(ctx, tasks[i], sink)
			return nil
		})
	}
	_ = g.Wait()

	total := 0
	for _, taskResults := range results {
		total += len(taskResults)
	}
	flat := make([]metrics.Result, 0, total)
	for _, taskResults := range results {
		flat = append(flat, taskResults...)
	}
	return flat
}

type taskRun struct {
	pool    *Pool
	task    Task
	sink    metrics.Recorder
	handle  *pool.Handle
	limiter *rate.Limiter
	results []metrics.Result
}

func (p *Pool) runTask(ctx context.Context, task Task, sink metrics.Recorder) []metrics.Result {
	run := &taskRun{
		pool:    p,
		task:    task,
		sink:    sink,
		results: make([]metrics.Result, 0, len(task.Ops)),
	}
	if p.opts.RateLimit > 0 {
		run.limiter = rate.NewLimiter(rate.Limit(p.opts.RateLimit), 1)
	}
	defer run.releaseHandle()

	logger := p.opts.Logger.With().Int("worker", task.Worker).Logger()
	for i, op := range task.Ops {
		if ctx.Err() != nil {
			logger.Debug().Int("remaining", len(task.Ops)-i).Msg("task canceled")
			break
		}

		if run.limiter != nil {
			if err := run.limiter.Wait(ctx); err != nil {
				break
			}
		}

		run.execute(ctx, i, op)
	}

	return run.results
}

func (r *taskRun) execute(ctx context.Context, index int, op workload.Operation) {
	result := metrics.Result{
		Worker: r.task.Worker,
		Index:  index,
		Kind:   op.Kind,
	}

	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			r.pool.opts.Logger.Error().
				Int("worker", r.task.Worker).
				Interface("panic", rec).
				Msg("operation panicked")
			if r.handle != nil {
				r.handle.MarkBroken()
				r.releaseHandle()
			}
			result.Err = fmt.Errorf("%w: %v", metrics.ErrPanic, rec)
		}
		result.Duration = time.Since(start)
		r.record(result)
	}()

	if r.handle == nil {
		handle, err := r.pool.conns.Acquire(ctx)
		if err != nil {
			result.Err = err
			return
		}
		r.handle = handle
		start = time.Now()
	}

	opCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.pool.opts.OperationTimeout)
	defer cancel()

	result.Err = r.handle.Do(opCtx, op)
	if r.handle.Broken() {
		r.releaseHandle()
	}
}

func (r *taskRun) record(result metrics.Result) {
	r.results = append(r.results, result)
	if r.sink != nil {
		r.sink.Record(result)
	}
}

func (r *taskRun) releaseHandle() {
	if r.handle == nil {
		return
	}
	r.pool.conns.Release(r.handle)
	r.handle = nil
}
