// Package store connects the harness to the target key-value store.
//
// A Dialer opens Conns; a Conn executes one workload.Operation at a time.
// Driver errors are translated so callers can tell transport failures
// (bencherr.ErrConnectionLost), deadline expiry
// (bencherr.ErrOperationTimeout) and error replies from the store apart.
package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"syscall"
	"time"

	"github.com/kevindweb/loadgen/internal/constants"
	"github.com/kevindweb/loadgen/internal/util"
	"github.com/kevindweb/loadgen/pkg/bencherr"
	"github.com/kevindweb/loadgen/pkg/workload"
)

const (
	DriverGoRedis = "goredis"
	DriverRedigo  = "redigo"
)

type Conn interface {
	Do(ctx context.Context, op workload.Operation) error
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

type DialerFunc func(ctx context.Context) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context) (Conn, error) {
	return f(ctx)
}

type Options struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	Network          string        `yaml:"network"`
	Driver           string        `yaml:"driver"`
	DB               int           `yaml:"db"`
	Password         string        `yaml:"password"`
	DialTimeout      time.Duration `yaml:"dial_timeout"`
	OperationTimeout time.Duration `yaml:"operation_timeout"`
}

func fillDefaultOptions(opts *Options) Options {
	if opts == nil {
		opts = &Options{}
	}

	if opts.Host == "" {
		opts.Host = constants.DefaultHost
	}

	if opts.Port == 0 {
		opts.Port = constants.DefaultPort
	}

	if opts.Network == "" {
		opts.Network = constants.DefaultNetwork
	}

	if opts.Driver == "" {
		opts.Driver = constants.DefaultDriver
	}

	if opts.DialTimeout == 0 {
		opts.DialTimeout = constants.DialTimeout
	}

	if opts.OperationTimeout == 0 {
		opts.OperationTimeout = constants.OperationTimeout
	}

	return *opts
}

func (o Options) Addr() string {
	return net.JoinHostPort(o.Host, strconv.Itoa(o.Port))
}

func (o Options) Validate() error {
	if o.Port < 0 || o.Port > 65535 {
		return bencherr.NewConfigError("port", constants.InvalidPortErr, o.Port)
	}

	switch o.Driver {
	case "", DriverGoRedis, DriverRedigo:
	default:
		return bencherr.NewConfigError("driver", constants.UnknownDriverErr, o.Driver)
	}

	if o.DialTimeout < 0 {
		return bencherr.NewConfigError("dial_timeout", constants.NegativeTimeoutErr, o.DialTimeout)
	}

	if o.OperationTimeout < 0 {
		return bencherr.NewConfigError("operation_timeout", constants.NegativeTimeoutErr, o.OperationTimeout)
	}

	return nil
}

// NewDialer returns a Dialer for the driver named in opts.
func NewDialer(opts Options) (Dialer, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	opts = fillDefaultOptions(&opts)
	switch opts.Driver {
	case DriverGoRedis:
		return &goRedisDialer{opts: opts}, nil
	case DriverRedigo:
		return &redigoDialer{opts: opts}, nil
	default:
		return nil, bencherr.NewConfigError("driver", constants.UnknownDriverErr, opts.Driver)
	}
}

func isConnectionError(err error) bool {
	if errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// classify maps a driver error onto the harness taxonomy. Replies the store
// sent back as errors are returned unchanged.
func classify(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}

	switch {
	case util.IsTimeout(err), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", bencherr.ErrOperationTimeout, err)
	case errors.Is(err, context.Canceled):
		return err
	case isConnectionError(err):
		return fmt.Errorf("%w: %v", bencherr.ErrConnectionLost, err)
	case ctx.Err() != nil:
		return fmt.Errorf("%w: %v", bencherr.ErrOperationTimeout, err)
	default:
		return err
	}
}

// Broken reports whether err leaves the connection unusable for further
// requests.
func Broken(err error) bool {
	return errors.Is(err, bencherr.ErrConnectionLost) ||
		errors.Is(err, bencherr.ErrOperationTimeout)
}

func dialError(opts Options, err error) error {
	if util.IsTimeout(err) {
		return fmt.Errorf(constants.ClientInitTimeoutErr+": %w", opts.Addr(), opts.DialTimeout, err)
	}
	return fmt.Errorf("dialing %s: %w", opts.Addr(), err)
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
