package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/kevindweb/loadgen/pkg/bencherr"
	"github.com/kevindweb/loadgen/pkg/workload"
)

const (
	ReasonTimeout               = "timeout"
	ReasonPoolExhausted         = "pool_exhausted"
	ReasonConnectionUnavailable = "connection_unavailable"
	ReasonConnectionLost        = "connection_lost"
	ReasonCanceled              = "canceled"
	ReasonPanic                 = "panic"
	ReasonCommand               = "command"
)

var ErrPanic = errors.New("worker panicked")

// Result is the outcome of one operation. A nil Err is a success.
type Result struct {
	Worker   int
	Index    int
	Kind     workload.Kind
	Duration time.Duration
	Err      error
}

func (r Result) Success() bool {
	return r.Err == nil
}

func (r Result) Reason() string {
	return Reason(r.Err)
}

// Reason names the failure class of err, or "" for nil.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, bencherr.ErrOperationTimeout), errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	case errors.Is(err, bencherr.ErrPoolExhausted):
		return ReasonPoolExhausted
	case errors.Is(err, bencherr.ErrConnectionUnavailable), errors.Is(err, bencherr.ErrPoolClosed):
		return ReasonConnectionUnavailable
	case errors.Is(err, bencherr.ErrConnectionLost):
		return ReasonConnectionLost
	case errors.Is(err, context.Canceled):
		return ReasonCanceled
	case errors.Is(err, ErrPanic):
		return ReasonPanic
	default:
		return ReasonCommand
	}
}

type Recorder interface {
	Record(Result)
}

type RecorderFunc func(Result)

func (f RecorderFunc) Record(r Result) {
	f(r)
}
