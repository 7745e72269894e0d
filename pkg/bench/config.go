package bench

import (
	"time"

	"github.com/kevindweb/loadgen/internal/constants"
	"github.com/kevindweb/loadgen/pkg/bencherr"
	"github.com/kevindweb/loadgen/pkg/store"
	"github.com/kevindweb/loadgen/pkg/workload"
)

type Config struct {
	Store store.Options

	Concurrency int
	// Workers is the number of tasks; it defaults to Concurrency.
	Workers int
	// Count is the number of operations each worker issues.
	Count int
	Mix   workload.Mix
	Seed  int64

	KeyPrefix   string
	KeySpace    int
	SharedKeys  bool
	ValueSize   int
	MemberSpace int
	TrimKeep    int

	PoolSize       int
	AcquireTimeout time.Duration
	MaxRetries     int
	RateLimit      float64
}

func DefaultConfig() Config {
	return Config{
		Store: store.Options{
			Host:             constants.DefaultHost,
			Port:             constants.DefaultPort,
			Network:          constants.DefaultNetwork,
			Driver:           constants.DefaultDriver,
			DialTimeout:      constants.DialTimeout,
			OperationTimeout: constants.OperationTimeout,
		},
		Concurrency:    constants.DefaultConcurrency,
		Count:          constants.DefaultOpsPerWorker,
		Mix:            workload.DefaultMix(),
		KeyPrefix:      constants.DefaultKeyPrefix,
		KeySpace:       constants.DefaultKeySpace,
		ValueSize:      constants.DefaultValueSize,
		MemberSpace:    constants.DefaultMemberSpace,
		TrimKeep:       constants.DefaultTrimKeep,
		AcquireTimeout: constants.AcquireTimeout,
		MaxRetries:     constants.DefaultMaxRetries,
	}
}

func fillDefaultConfig(cfg *Config) Config {
	if cfg.Workers == 0 {
		cfg.Workers = cfg.Concurrency
	}

	if cfg.PoolSize == 0 {
		cfg.PoolSize = cfg.Concurrency
	}

	if cfg.AcquireTimeout == 0 {
		cfg.AcquireTimeout = constants.AcquireTimeout
	}

	if cfg.Store.OperationTimeout == 0 {
		cfg.Store.OperationTimeout = constants.OperationTimeout
	}

	return *cfg
}

func (c Config) Validate() error {
	positive := []struct {
		field string
		value int
	}{
		{"concurrency", c.Concurrency},
		{"count", c.Count},
	}
	for _, check := range positive {
		if check.value <= 0 {
			return bencherr.NewConfigError(check.field, constants.NonPositiveErr, check.value)
		}
	}

	nonNegative := []struct {
		field string
		value int
	}{
		{"workers", c.Workers},
		{"pool_size", c.PoolSize},
		{"max_retries", c.MaxRetries},
		{"key_space", c.KeySpace},
		{"value_size", c.ValueSize},
		{"member_space", c.MemberSpace},
		{"trim_keep", c.TrimKeep},
	}
	for _, check := range nonNegative {
		if check.value < 0 {
			return bencherr.NewConfigError(check.field, constants.NegativeErr, check.value)
		}
	}

	if c.RateLimit < 0 {
		return bencherr.NewConfigError("rate", constants.NegativeRateErr, c.RateLimit)
	}

	if c.AcquireTimeout < 0 {
		return bencherr.NewConfigError("acquire_timeout", constants.NegativeTimeoutErr, c.AcquireTimeout)
	}

	if err := c.Mix.Validate(); err != nil {
		return err
	}

	return c.Store.Validate()
}

func (c Config) generatorOptions() workload.Options {
	return workload.Options{
		Seed:        c.Seed,
		Mix:         c.Mix,
		KeyPrefix:   c.KeyPrefix,
		KeySpace:    c.KeySpace,
		SharedKeys:  c.SharedKeys,
		ValueSize:   c.ValueSize,
		MemberSpace: c.MemberSpace,
		TrimKeep:    c.TrimKeep,
	}
}
