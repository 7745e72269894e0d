// Package storetest provides an in-memory store.Dialer for tests.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kevindweb/loadgen/pkg/bencherr"
	"github.com/kevindweb/loadgen/pkg/store"
	"github.com/kevindweb/loadgen/pkg/workload"
)

var ErrDial = errors.New("storetest: dial refused")

// Dialer hands out fake connections. The hooks are read on every call and
// may be replaced between runs, not during one.
type Dialer struct {
	// FailDials makes this many dials fail before dials start succeeding.
	// A negative value fails every dial.
	FailDials int64
	// Fail, if set, decides the result of every operation.
	Fail func(op workload.Operation) error
	// Latency is added to every operation.
	Latency time.Duration

	dials   atomic.Int64
	opened  atomic.Int64
	closed  atomic.Int64
	active  atomic.Int64
	maxSeen atomic.Int64

	mu  sync.Mutex
	ops []workload.Operation
}

var _ store.Dialer = (*Dialer)(nil)

func New() *Dialer {
	return &Dialer{}
}

func (d *Dialer) Dial(ctx context.Context) (store.Conn, error) {
	n := d.dials.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if d.FailDials < 0 || n <= d.FailDials {
		return nil, fmt.Errorf("%w (attempt %d)", ErrDial, n)
	}

	d.opened.Add(1)
	return &Conn{dialer: d}, nil
}

func (d *Dialer) Dials() int64 {
	return d.dials.Load()
}

func (d *Dialer) Opened() int64 {
	return d.opened.Load()
}

func (d *Dialer) Closed() int64 {
	return d.closed.Load()
}

// MaxConcurrent is the largest number of operations seen in flight at once.
func (d *Dialer) MaxConcurrent() int64 {
	return d.maxSeen.Load()
}

func (d *Dialer) Operations() []workload.Operation {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]workload.Operation(nil), d.ops...)
}

type Conn struct {
	dialer *Dialer
	inUse  atomic.Bool
	closed atomic.Bool
}

func (c *Conn) Do(ctx context.Context, op workload.Operation) error {
	if c.closed.Load() {
		return fmt.Errorf("%w: use of closed connection", bencherr.ErrConnectionLost)
	}

	if !c.inUse.CompareAndSwap(false, true) {
		panic("storetest: connection used concurrently")
	}
	defer c.inUse.Store(false)

	d := c.dialer
	active := d.active.Add(1)
	defer d.active.Add(-1)
	for {
		seen := d.maxSeen.Load()
		if active <= seen || d.maxSeen.CompareAndSwap(seen, active) {
			break
		}
	}

	if d.Latency > 0 {
		select {
		case <-time.After(d.Latency):
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", bencherr.ErrOperationTimeout, ctx.Err())
		}
	}

	d.mu.Lock()
	d.ops = append(d.ops, op)
	d.mu.Unlock()

	if d.Fail != nil {
		return d.Fail(op)
	}
	return nil
}

func (c *Conn) Close() error {
	if c.closed.CompareAndSwap(false, true) {
		c.dialer.closed.Add(1)
	}
	return nil
}
