// Package server is an in-memory store speaking the Redis protocol. It is
// the benchmark's default target in tests and behind `loadgen serve`.
package server

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/evio"

	"github.com/kevindweb/loadgen/internal/constants"
	"github.com/kevindweb/loadgen/internal/resp"
	"github.com/kevindweb/loadgen/internal/storage"
)

var ErrNotStarted = errors.New("server: not started")

type Options struct {
	Host    string
	Port    int
	Network string
	// Loops is the number of evio event loops.
	Loops  int
	Logger zerolog.Logger
}

// Fault changes how the server answers. Unless Commands is set it applies
// to every command but PING, so clients can still connect.
type Fault struct {
	// Err is sent as an error reply instead of running the command.
	Err string
	// Delay holds the reply back.
	Delay time.Duration
	// Disconnect closes the connection without replying.
	Disconnect bool
	Commands   []string
}

func (f Fault) applies(command string) bool {
	if len(f.Commands) == 0 {
		return command != constants.PING
	}
	for _, c := range f.Commands {
		if strings.EqualFold(c, command) {
			return true
		}
	}
	return false
}

func (f Fault) IsZero() bool {
	return f.Err == "" && f.Delay == 0 && !f.Disconnect
}

type Stats struct {
	Connections int64
	Commands    int64
	Errors      int64
	Faults      int64
}

type Server struct {
	address string
	loops   int
	logger  zerolog.Logger

	mu    sync.Mutex
	kv    storage.KeyValue
	fault Fault

	connections atomic.Int64
	commands    atomic.Int64
	errors      atomic.Int64
	faults      atomic.Int64

	started  atomic.Bool
	shutdown atomic.Bool
	addr     atomic.Value
	ready    chan struct{}
	done     chan struct{}
	serveErr error
}

type conn struct {
	is  evio.InputStream
	out []byte
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

	if opts.Loops == 0 {
		opts.Loops = 1
	}

	return *opts
}

func New(opts Options) (*Server, error) {
	opts = fillDefaultOptions(&opts)
	if opts.Port < 0 || opts.Port > 65535 {
		return nil, fmt.Errorf(constants.InvalidPortErr, opts.Port)
	}

	return &Server{
		address: fmt.Sprintf("%s://%s:%d", opts.Network, opts.Host, opts.Port),
		loops:   opts.Loops,
		logger:  opts.Logger,
		kv:      storage.NewCacheMap(),
		ready:   make(chan struct{}),
		done:    make(chan struct{}),
	}, nil
}

func StartDefault() (*Server, error) {
	return StartOptions(Options{})
}

// StartOptions serves in the background and returns once the listener is
// bound, or with the error that kept it from binding.
func StartOptions(opts Options) (*Server, error) {
	s, err := New(opts)
	if err != nil {
		return nil, err
	}

	go func() {
		if err := s.Start(); err != nil {
			s.logger.Error().Err(err).Str("addr", s.address).Msg("mock store stopped")
		}
	}()

	select {
	case <-s.ready:
		return s, nil
	case <-s.done:
		return nil, s.serveErr
	}
}

// Start serves until Stop is called.
func (s *Server) Start() error {
	if !s.started.CompareAndSwap(false, true) {
		return fmt.Errorf("server: %s already started", s.address)
	}
	defer close(s.done)

	events := evio.Events{
		NumLoops: s.loops,
		Serving:  s.serving,
		Opened:   s.opened,
		Closed:   s.closed,
		Data:     s.eventHandler,
		Tick:     s.tick,
	}
	s.serveErr = evio.Serve(events, s.address)
	return s.serveErr
}

// Stop shuts the event loops down and waits for them to exit.
func (s *Server) Stop() error {
	if !s.started.Load() {
		return ErrNotStarted
	}

	s.shutdown.Store(true)
	select {
	case <-s.done:
		return nil
	case <-time.After(constants.ShutdownTimeout):
		return fmt.Errorf("server: %s did not shut down within %s", s.address, constants.ShutdownTimeout)
	}
}

// Addr is the bound host:port, which differs from the configured one when
// the kernel picked the port.
func (s *Server) Addr() string {
	if addr, ok := s.addr.Load().(string); ok {
		return addr
	}
	return strings.TrimPrefix(s.address, constants.DefaultNetwork+"://")
}

func (s *Server) SetFault(f Fault) {
	s.mu.Lock()
	s.fault = f
	s.mu.Unlock()
}

func (s *Server) ClearFault() {
	s.SetFault(Fault{})
}

func (s *Server) Stats() Stats {
	return Stats{
		Connections: s.connections.Load(),
		Commands:    s.commands.Load(),
		Errors:      s.errors.Load(),
		Faults:      s.faults.Load(),
	}
}

// Len is the number of keys held.
func (s *Server) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kv.Len()
}

func (s *Server) serving(srv evio.Server) evio.Action {
	if len(srv.Addrs) > 0 {
		s.addr.Store(srv.Addrs[0].String())
	}
	s.logger.Info().Str("addr", s.Addr()).Int("loops", srv.NumLoops).Msg("mock store listening")
	close(s.ready)
	return evio.None
}

func (s *Server) opened(c evio.Conn) ([]byte, evio.Options, evio.Action) {
	s.connections.Add(1)
	c.SetContext(&conn{})
	return nil, evio.Options{}, evio.None
}

func (s *Server) closed(c evio.Conn, err error) evio.Action {
	if err != nil {
		s.logger.Debug().Err(err).Msg("connection closed")
	}
	return evio.None
}

func (s *Server) tick() (time.Duration, evio.Action) {
	if s.shutdown.Load() {
		return 0, evio.Shutdown
	}
	return constants.TickInterval, evio.None
}

func (s *Server) eventHandler(c evio.Conn, in []byte) (out []byte, action evio.Action) {
	if s.shutdown.Load() {
		action = evio.Shutdown
		return
	}

	cc, ok := c.Context().(*conn)
	if !ok {
		cc = &conn{}
		c.SetContext(cc)
	}

	data := cc.is.Begin(in)
	cc.out = cc.out[:0]
	for len(data) > 0 {
		args, n, err := resp.ParseCommand(data)
		if err != nil {
			s.errors.Add(1)
			cc.out = resp.AppendError(cc.out, "ERR Protocol error: "+err.Error())
			data = nil
			action = evio.Close
			break
		}

		if n == 0 {
			break
		}
		data = data[n:]

		if len(args) == 0 {
			continue
		}

		var disconnect bool
		cc.out, disconnect = s.process(cc.out, args)
		if disconnect {
			cc.is.End(nil)
			return nil, evio.Close
		}
	}
	cc.is.End(data)

	out = cc.out
	return
}

func (s *Server) process(out []byte, args []string) ([]byte, bool) {
	s.commands.Add(1)
	command := strings.ToLower(args[0])

	s.mu.Lock()
	fault := s.fault
	s.mu.Unlock()

	if !fault.IsZero() && fault.applies(command) {
		s.faults.Add(1)
		if fault.Delay > 0 {
			time.Sleep(fault.Delay)
		}
		if fault.Disconnect {
			return out, true
		}
		if fault.Err != "" {
			return resp.AppendError(out, fault.Err), false
		}
	}

	start := len(out)
	out = s.execute(out, command, args)
	if len(out) > start && out[start] == constants.Error {
		s.errors.Add(1)
	}
	return out, false
}
