package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kevindweb/loadgen/pkg/bencherr"
	"github.com/kevindweb/loadgen/pkg/metrics"
	"github.com/kevindweb/loadgen/pkg/pool"
	"github.com/kevindweb/loadgen/pkg/store/storetest"
	"github.com/kevindweb/loadgen/pkg/workload"
)

func newConns(t *testing.T, dialer *storetest.Dialer, size int) *pool.Pool {
	t.Helper()
	p, err := pool.New(dialer, pool.Options{MaxSize: size, AcquireTimeout: 2 * time.Second})
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, p.Close())
	})
	return p
}

func makeTasks(workers, count int) []Task {
	tasks := make([]Task, workers)
	for w := range tasks {
		ops := make([]workload.Operation, count)
		for i := range ops {
			ops[i] = workload.NewSet(fmt.Sprintf("w%d", w), fmt.Sprintf("%d", i))
		}
		tasks[w] = Task{Worker: w, Ops: ops}
	}
	return tasks
}

func countByWorker(results []metrics.Result) map[int]int {
	counts := map[int]int{}
	for _, r := range results {
		counts[r.Worker]++
	}
	return counts
}

func TestRunAllOperations(t *testing.T) {
	t.Parallel()
	dialer := storetest.New()
	wp := New(newConns(t, dialer, 4), Options{Concurrency: 4})

	agg := metrics.NewAggregator()
	results := wp.Run(context.Background(), makeTasks(10, 25), agg)
	require.Len(t, results, 250)
	require.Equal(t, 250, agg.Count())
	for _, r := range results {
		require.NoError(t, r.Err)
	}
	require.Len(t, dialer.Operations(), 250)
}

func TestRunPreservesOrderWithinTask(t *testing.T) {
	t.Parallel()
	wp := New(newConns(t, storetest.New(), 3), Options{Concurrency: 3})
	results := wp.Run(context.Background(), makeTasks(6, 50), nil)

	next := map[int]int{}
	for _, r := range results {
		require.Equal(t, next[r.Worker], r.Index, "worker %d out of order", r.Worker)
		next[r.Worker]++
	}
}

func TestRunRespectsConcurrencyLimit(t *testing.T) {
	t.Parallel()
	dialer := &storetest.Dialer{Latency: 2 * time.Millisecond}
	wp := New(newConns(t, dialer, 10), Options{Concurrency: 3})
	wp.Run(context.Background(), makeTasks(12, 5), nil)
	require.LessOrEqual(t, dialer.MaxConcurrent(), int64(3))
	require.LessOrEqual(t, dialer.Opened(), int64(3))
}

func TestFailureIsolation(t *testing.T) {
	t.Parallel()
	dialer := storetest.New()
	dialer.Fail = func(op workload.Operation) error {
		if op.Key == "w3" {
			return errors.New("ERR injected")
		}
		return nil
	}
	wp := New(newConns(t, dialer, 5), Options{Concurrency: 5})
	results := wp.Run(context.Background(), makeTasks(5, 40), nil)

	counts := countByWorker(results)
	for w := 0; w < 5; w++ {
		require.Equal(t, 40, counts[w], "worker %d lost results", w)
	}
	for _, r := range results {
		if r.Worker == 3 {
			require.Error(t, r.Err)
			require.Equal(t, metrics.ReasonCommand, r.Reason())
		} else {
			require.NoError(t, r.Err)
		}
	}
}

func TestBrokenConnectionIsReplacedMidTask(t *testing.T) {
	t.Parallel()
	var calls atomic.Int64
	dialer := storetest.New()
	dialer.Fail = func(workload.Operation) error {
		if calls.Add(1)%5 == 0 {
			return fmt.Errorf("%w: reset", bencherr.ErrConnectionLost)
		}
		return nil
	}
	conns := newConns(t, dialer, 1)
	wp := New(conns, Options{Concurrency: 1})
	results := wp.Run(context.Background(), makeTasks(1, 20), nil)

	require.Len(t, results, 20)
	failures := 0
	for _, r := range results {
		if r.Err != nil {
			failures++
			require.Equal(t, metrics.ReasonConnectionLost, r.Reason())
		}
	}
	require.Equal(t, 4, failures)
	require.Equal(t, 4, conns.Stats().Discarded)
	require.Equal(t, int64(4), dialer.Opened())
}

func TestLeaseFailuresAreRecorded(t *testing.T) {
	t.Parallel()
	dialer := &storetest.Dialer{FailDials: -1}
	conns, err := pool.New(dialer, pool.Options{MaxSize: 2, MaxRetries: 1, RetryWait: time.Millisecond})
	require.NoError(t, err)
	defer conns.Close()

	wp := New(conns, Options{Concurrency: 2})
	results := wp.Run(context.Background(), makeTasks(2, 3), nil)
	require.Len(t, results, 6)
	for _, r := range results {
		require.ErrorIs(t, r.Err, bencherr.ErrConnectionUnavailable)
		require.Equal(t, metrics.ReasonConnectionUnavailable, r.Reason())
	}
	require.Equal(t, int64(12), dialer.Dials())
}

func TestOperationTimeout(t *testing.T) {
	t.Parallel()
	dialer := &storetest.Dialer{Latency: time.Second}
	wp := New(newConns(t, dialer, 1), Options{Concurrency: 1, OperationTimeout: 20 * time.Millisecond})

	start := time.Now()
	results := wp.Run(context.Background(), makeTasks(1, 3), nil)
	require.Less(t, time.Since(start), time.Second)
	require.Len(t, results, 3)
	for _, r := range results {
		require.ErrorIs(t, r.Err, bencherr.ErrOperationTimeout)
		require.Equal(t, metrics.ReasonTimeout, r.Reason())
	}
}

func TestCancellationStopsDispatch(t *testing.T) {
	t.Parallel()
	dialer := &storetest.Dialer{Latency: 5 * time.Millisecond}
	wp := New(newConns(t, dialer, 2), Options{Concurrency: 2})

	ctx, cancel := context.WithCancel(context.Background())
	var recorded atomic.Int64
	sink := metrics.RecorderFunc(func(metrics.Result) {
		if recorded.Add(1) == 10 {
			cancel()
		}
	})

	results := wp.Run(ctx, makeTasks(20, 50), sink)
	require.GreaterOrEqual(t, len(results), 10)
	require.Less(t, len(results), 1000)
	require.Equal(t, int64(len(results)), recorded.Load())
	for _, r := range results {
		require.NoError(t, r.Err, "in-flight operations are allowed to finish")
	}
}

func TestRateLimit(t *testing.T) {
	t.Parallel()
	wp := New(newConns(t, storetest.New(), 1), Options{Concurrency: 1, RateLimit: 100})
	start := time.Now()
	results := wp.Run(context.Background(), makeTasks(1, 11), nil)
	require.Len(t, results, 11)
	require.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

type panicLeaser struct {
	*pool.Pool
	once sync.Once
}

func (l *panicLeaser) Acquire(ctx context.Context) (*pool.Handle, error) {
	var shouldPanic bool
	l.once.Do(func() { shouldPanic = true })
	if shouldPanic {
		panic("lease exploded")
	}
	return l.Pool.Acquire(ctx)
}

func TestPanicIsRecordedAsFailure(t *testing.T) {
	t.Parallel()
	leaser := &panicLeaser{Pool: newConns(t, storetest.New(), 2)}
	wp := New(leaser, Options{Concurrency: 1})
	results := wp.Run(context.Background(), makeTasks(2, 5), nil)

	require.Len(t, results, 10)
	require.Equal(t, metrics.ReasonPanic, results[0].Reason())
	for _, r := range results[1:] {
		require.NoError(t, r.Err)
	}
}
