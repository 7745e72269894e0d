package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/kevindweb/loadgen/internal/config"
	"github.com/kevindweb/loadgen/internal/constants"
	"github.com/kevindweb/loadgen/pkg/bench"
	"github.com/kevindweb/loadgen/pkg/metrics"
	"github.com/kevindweb/loadgen/pkg/report"
	"github.com/kevindweb/loadgen/pkg/workload"
)

type runFlags struct {
	host     string
	port     int
	driver   string
	db       int
	password string

	concurrency int
	workers     int
	count       int
	mix         string
	seed        int64
	keyPrefix   string
	keySpace    int
	sharedKeys  bool
	valueSize   int
	memberSpace int
	trimKeep    int

	poolSize       int
	acquireTimeout time.Duration
	opTimeout      time.Duration
	dialTimeout    time.Duration
	retries        int
	rate           float64

	configPath  string
	format      string
	output      string
	metricsAddr string
	logLevel    string
	noColor     bool
}

// outputSettings are the parts of a run that shape what gets printed rather
// than what gets executed.
type outputSettings struct {
	format      string
	path        string
	metricsAddr string
	logLevel    string
	noColor     bool
}

func newRunCommand(stdout, stderr io.Writer) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a benchmark against a store",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return f.run(cmd.Context(), cmd.Flags(), stdout, stderr)
		},
	}

	defaults := bench.DefaultConfig()
	flags := cmd.Flags()
	flags.StringVar(&f.host, "host", defaults.Store.Host, "store host")
	flags.IntVar(&f.port, "port", defaults.Store.Port, "store port")
	flags.StringVar(&f.driver, "driver", defaults.Store.Driver, "client driver: goredis or redigo")
	flags.IntVar(&f.db, "db", defaults.Store.DB, "database index")
	flags.StringVar(&f.password, "password", "", "store password")

	flags.IntVarP(&f.concurrency, "concurrency", "c", defaults.Concurrency, "workers running at once")
	flags.IntVarP(&f.workers, "workers", "w", 0, "number of worker tasks (default: concurrency)")
	flags.IntVarP(&f.count, "count", "n", defaults.Count, "operations per worker")
	flags.StringVar(&f.mix, "mix", defaults.Mix.String(), "operation mix, e.g. set=0.8,zadd=0.1,zremrangebyrank=0.1")
	flags.Int64Var(&f.seed, "seed", defaults.Seed, "workload seed")
	flags.StringVar(&f.keyPrefix, "key-prefix", defaults.KeyPrefix, "key prefix")
	flags.IntVar(&f.keySpace, "key-space", defaults.KeySpace, "distinct keys per worker and kind")
	flags.BoolVar(&f.sharedKeys, "shared-keys", defaults.SharedKeys, "all workers write the same keys")
	flags.IntVar(&f.valueSize, "value-size", defaults.ValueSize, "SET value size in bytes")
	flags.IntVar(&f.memberSpace, "member-space", defaults.MemberSpace, "distinct sorted set members")
	flags.IntVar(&f.trimKeep, "trim-keep", defaults.TrimKeep, "members kept by ZREMRANGEBYRANK")

	flags.IntVar(&f.poolSize, "pool-size", 0, "connection pool size (default: concurrency)")
	flags.DurationVar(&f.acquireTimeout, "acquire-timeout", defaults.AcquireTimeout, "connection lease timeout")
	flags.DurationVar(&f.opTimeout, "op-timeout", defaults.Store.OperationTimeout, "per-operation timeout")
	flags.DurationVar(&f.dialTimeout, "dial-timeout", defaults.Store.DialTimeout, "connection dial timeout")
	flags.IntVar(&f.retries, "retries", defaults.MaxRetries, "dial retries per connection")
	flags.Float64Var(&f.rate, "rate", 0, "operations per second per worker (0: unlimited)")

	flags.StringVar(&f.configPath, "config", "", "YAML config file; explicit flags override it")
	flags.StringVar(&f.format, "format", string(report.FormatTable), "report format: table, json or csv")
	flags.StringVarP(&f.output, "output", "o", "", "write the report to this file instead of stdout")
	flags.StringVar(&f.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	flags.StringVar(&f.logLevel, "log-level", zerolog.InfoLevel.String(), "log level")
	flags.BoolVar(&f.noColor, "no-color", false, "disable colored output")

	return cmd
}

func (f *runFlags) run(ctx context.Context, flags *pflag.FlagSet, stdout, stderr io.Writer) error {
	cfg, out, err := f.resolve(flags)
	if err != nil {
		return err
	}

	format, err := report.ParseFormat(out.format)
	if err != nil {
		return err
	}

	logger, err := newLogger(stderr, out.logLevel, out.noColor)
	if err != nil {
		return err
	}

	opts := []bench.Option{bench.WithLogger(logger)}
	if out.metricsAddr != "" {
		collector := metrics.NewCollector()
		shutdown, err := serveMetrics(out.metricsAddr, collector, logger)
		if err != nil {
			return err
		}
		defer shutdown()
		opts = append(opts, bench.WithCollector(collector))
	}

	coordinator, err := bench.New(cfg, opts...)
	if err != nil {
		return err
	}

	result, err := coordinator.Run(ctx)
	if err != nil {
		return err
	}

	w := stdout
	if out.path != "" {
		file, err := os.Create(out.path)
		if err != nil {
			return fmt.Errorf("creating report file: %w", err)
		}
		defer file.Close()
		w = file
	}

	if err := report.Write(w, format, result, report.Options{NoColor: out.noColor}); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}

// resolve layers defaults, the config file, then explicitly set flags.
func (f *runFlags) resolve(flags *pflag.FlagSet) (bench.Config, outputSettings, error) {
	cfg := bench.DefaultConfig()
	out := outputSettings{
		format:      f.format,
		path:        f.output,
		metricsAddr: f.metricsAddr,
		logLevel:    f.logLevel,
		noColor:     f.noColor,
	}

	if f.configPath != "" {
		fc, err := config.LoadFile(f.configPath)
		if err != nil {
			return cfg, out, err
		}
		if err := fc.Apply(&cfg); err != nil {
			return cfg, out, err
		}
		applyOutput(&out, fc.Output, flags)
	}

	if err := f.overlay(flags, &cfg); err != nil {
		return cfg, out, err
	}
	return cfg, out, nil
}

func applyOutput(out *outputSettings, file config.OutputConfig, flags *pflag.FlagSet) {
	if file.Format != "" && !flags.Changed("format") {
		out.format = file.Format
	}
	if file.Path != "" && !flags.Changed("output") {
		out.path = file.Path
	}
	if file.MetricsAddr != "" && !flags.Changed("metrics-addr") {
		out.metricsAddr = file.MetricsAddr
	}
	if file.LogLevel != "" && !flags.Changed("log-level") {
		out.logLevel = file.LogLevel
	}
	if file.NoColor && !flags.Changed("no-color") {
		out.noColor = true
	}
}

func (f *runFlags) overlay(flags *pflag.FlagSet, cfg *bench.Config) error {
	setters := map[string]func() error{
		"host":            func() error { cfg.Store.Host = f.host; return nil },
		"port":            func() error { cfg.Store.Port = f.port; return nil },
		"driver":          func() error { cfg.Store.Driver = f.driver; return nil },
		"db":              func() error { cfg.Store.DB = f.db; return nil },
		"password":        func() error { cfg.Store.Password = f.password; return nil },
		"concurrency":     func() error { cfg.Concurrency = f.concurrency; return nil },
		"workers":         func() error { cfg.Workers = f.workers; return nil },
		"count":           func() error { cfg.Count = f.count; return nil },
		"seed":            func() error { cfg.Seed = f.seed; return nil },
		"key-prefix":      func() error { cfg.KeyPrefix = f.keyPrefix; return nil },
		"key-space":       func() error { cfg.KeySpace = f.keySpace; return nil },
		"shared-keys":     func() error { cfg.SharedKeys = f.sharedKeys; return nil },
		"value-size":      func() error { cfg.ValueSize = f.valueSize; return nil },
		"member-space":    func() error { cfg.MemberSpace = f.memberSpace; return nil },
		"trim-keep":       func() error { cfg.TrimKeep = f.trimKeep; return nil },
		"pool-size":       func() error { cfg.PoolSize = f.poolSize; return nil },
		"acquire-timeout": func() error { cfg.AcquireTimeout = f.acquireTimeout; return nil },
		"op-timeout":      func() error { cfg.Store.OperationTimeout = f.opTimeout; return nil },
		"dial-timeout":    func() error { cfg.Store.DialTimeout = f.dialTimeout; return nil },
		"retries":         func() error { cfg.MaxRetries = f.retries; return nil },
		"rate":            func() error { cfg.RateLimit = f.rate; return nil },
		"mix": func() error {
			mix, err := workload.ParseMix(f.mix)
			if err != nil {
				return err
			}
			cfg.Mix = mix
			return nil
		},
	}

	var err error
	flags.Visit(func(flag *pflag.Flag) {
		if err != nil {
			return
		}
		if set, ok := setters[flag.Name]; ok {
			err = set()
		}
	})
	return err
}

// serveMetrics exposes the collector on addr until the returned func runs.
func serveMetrics(addr string, collector *metrics.Collector, logger zerolog.Logger) (func(), error) {
	reg := prometheus.NewRegistry()
	if err := collector.Register(reg); err != nil {
		return nil, err
	}

	listener, err := net.Listen(constants.DefaultNetwork, addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server stopped")
		}
	}()
	logger.Info().Str("addr", listener.Addr().String()).Msg("serving metrics")

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
