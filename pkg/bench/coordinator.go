package bench

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/kevindweb/loadgen/internal/constants"
	"github.com/kevindweb/loadgen/pkg/bencherr"
	"github.com/kevindweb/loadgen/pkg/metrics"
	"github.com/kevindweb/loadgen/pkg/pool"
	"github.com/kevindweb/loadgen/pkg/store"
	"github.com/kevindweb/loadgen/pkg/worker"
	"github.com/kevindweb/loadgen/pkg/workload"
)

// Coordinator drives one benchmark run through
// Idle -> Generating -> Executing -> Aggregating -> Done, or Idle -> Failed
// when no connection can be established.
type Coordinator struct {
	cfg       Config
	dialer    store.Dialer
	logger    zerolog.Logger
	collector *metrics.Collector

	mu      sync.Mutex
	state   State
	history []State
	started bool
}

type Option func(*Coordinator)

// WithDialer replaces the driver selected by Config.Store.
func WithDialer(d store.Dialer) Option {
	return func(c *Coordinator) {
		c.dialer = d
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

func WithCollector(collector *metrics.Collector) Option {
	return func(c *Coordinator) {
		c.collector = collector
	}
}

func New(cfg Config, opts ...Option) (*Coordinator, error) {
	cfg = fillDefaultConfig(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Coordinator{
		cfg:     cfg,
		logger:  zerolog.Nop(),
		state:   StateIdle,
		history: []State{StateIdle},
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.dialer == nil {
		dialer, err := store.NewDialer(cfg.Store)
		if err != nil {
			return nil, err
		}
		c.dialer = dialer
	}

	return c, nil
}

// Run is the one-shot form of New followed by Coordinator.Run.
func Run(ctx context.Context, cfg Config, opts ...Option) (metrics.Report, error) {
	c, err := New(cfg, opts...)
	if err != nil {
		return metrics.Report{}, err
	}
	return c.Run(ctx)
}

func (c *Coordinator) Config() Config {
	return c.cfg
}

func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// History lists every state the coordinator has been in, in order.
func (c *Coordinator) History() []State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]State(nil), c.history...)
}

// Run executes the benchmark. Operation failures and cancellation still
// produce a report; only setup failures return an error.
func (c *Coordinator) Run(ctx context.Context) (metrics.Report, error) {
	if err := c.begin(); err != nil {
		return metrics.Report{}, err
	}

	logger := c.logger.With().Str("driver", c.cfg.Store.Driver).Str("addr", c.cfg.Store.Addr()).Logger()

	conns, err := pool.New(c.dialer, pool.Options{
		MaxSize:        c.cfg.PoolSize,
		AcquireTimeout: c.cfg.AcquireTimeout,
		MaxRetries:     c.cfg.MaxRetries,
		Logger:         logger,
	})
	if err != nil {
		c.moveTo(StateFailed)
		return metrics.Report{}, err
	}
	defer func() {
		if err := conns.Close(); err != nil {
			logger.Warn().Err(err).Msg("closing connection pool")
		}
	}()

	if err := conns.With(ctx, func(*pool.Handle) error { return nil }); err != nil {
		c.moveTo(StateFailed)
		logger.Error().Err(err).Msg("no connection to the store")
		return metrics.Report{}, &bencherr.SetupError{Err: err}
	}

	c.moveTo(StateGenerating)
	tasks, err := c.generate()
	if err != nil {
		c.moveTo(StateFailed)
		return metrics.Report{}, err
	}
	logger.Info().
		Int("workers", len(tasks)).
		Int("count", c.cfg.Count).
		Int("concurrency", c.cfg.Concurrency).
		Str("mix", c.cfg.Mix.String()).
		Msg("starting benchmark")

	c.moveTo(StateExecuting)
	agg := metrics.NewAggregator(metrics.WithCollector(c.collector))
	workers := worker.New(conns, worker.Options{
		Concurrency:      c.cfg.Concurrency,
		OperationTimeout: c.cfg.Store.OperationTimeout,
		RateLimit:        c.cfg.RateLimit,
		Logger:           logger,
	})
	workers.Run(ctx, tasks, agg)

	c.moveTo(StateAggregating)
	report := agg.Finalize()
	report.Planned = c.cfg.Workers * c.cfg.Count
	markDegraded(ctx, &report)

	c.moveTo(StateDone)
	event := logger.Info()
	if report.Degraded {
		event = logger.Warn().Str("degraded", report.DegradedReason)
	}
	event.
		Int("executed", report.Executed).
		Int("failures", report.Total.Failures).
		Dur("elapsed", report.Elapsed).
		Msg("benchmark finished")

	return report, nil
}

func (c *Coordinator) generate() ([]worker.Task, error) {
	gen, err := workload.NewGenerator(c.cfg.generatorOptions())
	if err != nil {
		return nil, err
	}

	tasks := make([]worker.Task, c.cfg.Workers)
	for w := range tasks {
		ops, err := gen.Generate(w, c.cfg.Count)
		if err != nil {
			return nil, fmt.Errorf("generating worker %d: %w", w, err)
		}
		tasks[w] = worker.Task{Worker: w, Ops: ops}
	}
	return tasks, nil
}

func markDegraded(ctx context.Context, report *metrics.Report) {
	switch {
	case report.Executed < report.Planned:
		reason := "incomplete"
		if err := ctx.Err(); errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			reason = err.Error()
		}
		report.Degraded = true
		report.DegradedReason = fmt.Sprintf(
			"%s: executed %d of %d operations", reason, report.Executed, report.Planned,
		)
	case report.Executed > 0 && report.Total.Successes == 0:
		report.Degraded = true
		report.DegradedReason = "every operation failed"
	}
}

func (c *Coordinator) begin() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started || c.state != StateIdle {
		return fmt.Errorf(constants.AlreadyRunErr, c.state)
	}
	c.started = true
	return nil
}

func (c *Coordinator) moveTo(to State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.state.canMoveTo(to) {
		panic(fmt.Sprintf("bench: invalid transition %s -> %s", c.state, to))
	}
	c.state = to
	c.history = append(c.history, to)
	c.logger.Debug().Stringer("state", to).Msg("state changed")
}
