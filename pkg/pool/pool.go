package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kevindweb/loadgen/internal/constants"
	"github.com/kevindweb/loadgen/pkg/bencherr"
	"github.com/kevindweb/loadgen/pkg/store"
	"github.com/kevindweb/loadgen/pkg/workload"
)

type Options struct {
	MaxSize        int
	AcquireTimeout time.Duration
	// MaxRetries is the number of extra dial attempts before Acquire gives
	// up with bencherr.ErrConnectionUnavailable.
	MaxRetries int
	RetryWait  time.Duration
	Logger     zerolog.Logger
}

func fillDefaultOptions(opts *Options) Options {
	if opts == nil {
		opts = &Options{Logger: zerolog.Nop()}
	}

	if opts.MaxSize == 0 {
		opts.MaxSize = constants.DefaultConcurrency
	}

	if opts.AcquireTimeout == 0 {
		opts.AcquireTimeout = constants.AcquireTimeout
	}

	if opts.RetryWait == 0 {
		opts.RetryWait = constants.ConnRetryWait
	}

	return *opts
}

type Stats struct {
	MaxSize     int
	Idle        int
	Outstanding int
	Dialed      int
	DialErrors  int
	Discarded   int
}

// Pool leases store connections to one goroutine at a time. At most MaxSize
// handles are outstanding; connections that fail are discarded on release
// and replaced by a fresh dial on a later Acquire.
type Pool struct {
	dialer store.Dialer
	opts   Options
	slots  chan struct{}

	mu     sync.Mutex
	idle   []store.Conn
	closed bool
	stats  Stats
}

func New(dialer store.Dialer, opts Options) (*Pool, error) {
	opts = fillDefaultOptions(&opts)
	if opts.MaxSize < 0 {
		return nil, bencherr.NewConfigError("pool_size", constants.NonPositiveErr, opts.MaxSize)
	}

	if opts.MaxRetries < 0 {
		return nil, bencherr.NewConfigError("max_retries", constants.NegativeErr, opts.MaxRetries)
	}

	if opts.AcquireTimeout < 0 {
		return nil, bencherr.NewConfigError("acquire_timeout", constants.NegativeTimeoutErr, opts.AcquireTimeout)
	}

	return &Pool{
		dialer: dialer,
		opts:   opts,
		slots:  make(chan struct{}, opts.MaxSize),
		idle:   make([]store.Conn, 0, opts.MaxSize),
		stats:  Stats{MaxSize: opts.MaxSize},
	}, nil
}

// Acquire leases a connection, waiting up to AcquireTimeout for a free slot.
func (p *Pool) Acquire(ctx context.Context) (*Handle, error) {
	if p.isClosed() {
		return nil, bencherr.ErrPoolClosed
	}

	if err := p.reserve(ctx); err != nil {
		return nil, err
	}

	conn, err := p.connection(ctx)
	if err != nil {
		<-p.slots
		return nil, err
	}

	p.mu.Lock()
	p.stats.Outstanding++
	p.mu.Unlock()

	return &Handle{pool: p, conn: conn}, nil
}

func (p *Pool) reserve(ctx context.Context) error {
	select {
	case p.slots <- struct{}{}:
		return nil
	default:
	}

	timer := time.NewTimer(p.opts.AcquireTimeout)
	defer timer.Stop()

	select {
	case p.slots <- struct{}{}:
		return nil
	case <-timer.C:
		return fmt.Errorf(
			"%w: %d of %d connections leased after %s",
			bencherr.ErrPoolExhausted, p.opts.MaxSize, p.opts.MaxSize, p.opts.AcquireTimeout,
		)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) connection(ctx context.Context) (store.Conn, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, bencherr.ErrPoolClosed
	}
	if n := len(p.idle); n > 0 {
		conn := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.mu.Unlock()
		return conn, nil
	}
	p.mu.Unlock()

	return p.dial(ctx)
}

func (p *Pool) dial(ctx context.Context) (store.Conn, error) {
	var lastErr error
	for attempt := 0; attempt <= p.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(p.opts.RetryWait):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		conn, err := p.dialer.Dial(ctx)
		if err == nil {
			p.mu.Lock()
			p.stats.Dialed++
			p.mu.Unlock()
			return conn, nil
		}

		lastErr = err
		p.mu.Lock()
		p.stats.DialErrors++
		p.mu.Unlock()
		p.opts.Logger.Debug().Err(err).Int("attempt", attempt+1).Msg("dial failed")

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf(
		"%w after %d attempts: %v", bencherr.ErrConnectionUnavailable, p.opts.MaxRetries+1, lastErr,
	)
}

// Release returns the handle's connection to the idle set, or closes it if
// the handle is broken or the pool is closed. Releasing twice is a no-op.
func (p *Pool) Release(h *Handle) {
	if h == nil || h.pool != p || !h.release() {
		return
	}

	broken := h.Broken()
	p.mu.Lock()
	p.stats.Outstanding--
	discard := broken || p.closed
	if broken {
		p.stats.Discarded++
	}
	if !discard {
		p.idle = append(p.idle, h.conn)
	}
	p.mu.Unlock()

	if discard {
		if err := h.conn.Close(); err != nil {
			p.opts.Logger.Debug().Err(err).Msg("closing discarded connection")
		}
	}

	<-p.slots
}

// With leases a handle for the duration of fn and always releases it.
func (p *Pool) With(ctx context.Context, fn func(*Handle) error) error {
	h, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer p.Release(h)
	return fn(h)
}

// Close closes idle connections. Outstanding connections are closed when
// they are released.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()

	var firstErr error
	for _, conn := range idle {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	stats := p.stats
	stats.Idle = len(p.idle)
	return stats
}

func (p *Pool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Handle is an exclusive lease on one connection.
type Handle struct {
	pool     *Pool
	conn     store.Conn
	mu       sync.Mutex
	broken   bool
	released bool
}

func (h *Handle) Do(ctx context.Context, op workload.Operation) error {
	err := h.conn.Do(ctx, op)
	if store.Broken(err) {
		h.MarkBroken()
	}
	return err
}

func (h *Handle) MarkBroken() {
	h.mu.Lock()
	h.broken = true
	h.mu.Unlock()
}

func (h *Handle) Broken() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.broken
}

func (h *Handle) release() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return false
	}
	h.released = true
	return true
}
