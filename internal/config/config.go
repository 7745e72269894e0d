// Package config loads benchmark settings from a YAML file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kevindweb/loadgen/pkg/bench"
	"github.com/kevindweb/loadgen/pkg/bencherr"
	"github.com/kevindweb/loadgen/pkg/workload"
)

type FileConfig struct {
	Store  StoreConfig  `yaml:"store"`
	Run    RunConfig    `yaml:"run"`
	Output OutputConfig `yaml:"output"`
}

type StoreConfig struct {
	Host             string `yaml:"host"`
	Port             int    `yaml:"port"`
	Driver           string `yaml:"driver"`
	DB               int    `yaml:"db"`
	Password         string `yaml:"password"`
	DialTimeout      string `yaml:"dial_timeout"`
	OperationTimeout string `yaml:"operation_timeout"`
}

type RunConfig struct {
	Concurrency    int     `yaml:"concurrency"`
	Workers        int     `yaml:"workers"`
	Count          int     `yaml:"count"`
	Mix            *Mix    `yaml:"mix"`
	Seed           *int64  `yaml:"seed"`
	KeyPrefix      string  `yaml:"key_prefix"`
	KeySpace       int     `yaml:"key_space"`
	SharedKeys     *bool   `yaml:"shared_keys"`
	ValueSize      int     `yaml:"value_size"`
	MemberSpace    int     `yaml:"member_space"`
	TrimKeep       int     `yaml:"trim_keep"`
	PoolSize       int     `yaml:"pool_size"`
	AcquireTimeout string  `yaml:"acquire_timeout"`
	MaxRetries     *int    `yaml:"max_retries"`
	Rate           float64 `yaml:"rate"`
}

type OutputConfig struct {
	Format      string `yaml:"format"`
	Path        string `yaml:"path"`
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
	NoColor     bool   `yaml:"no_color"`
}

// Mix accepts either the "set=0.8,zadd=0.2" form or a mapping of kind to
// ratio.
type Mix struct {
	workload.Mix
}

func (m *Mix) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		mix, err := workload.ParseMix(node.Value)
		if err != nil {
			return err
		}
		m.Mix = mix
		return nil
	}

	var mix workload.Mix
	if err := node.Decode(&mix); err != nil {
		return err
	}
	if err := mix.Validate(); err != nil {
		return err
	}
	m.Mix = mix
	return nil
}

func LoadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, bencherr.NewConfigError("config", "failed to read config file: %v", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes a YAML document. Unknown keys are rejected.
func Parse(data []byte) (*FileConfig, error) {
	var cfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		if bencherr.IsConfigError(err) {
			return nil, err
		}
		return nil, bencherr.NewConfigError("config", "failed to parse YAML: %v", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (f *FileConfig) Validate() error {
	nonNegative := []struct {
		field string
		value int
	}{
		{"store.port", f.Store.Port},
		{"store.db", f.Store.DB},
		{"run.concurrency", f.Run.Concurrency},
		{"run.workers", f.Run.Workers},
		{"run.count", f.Run.Count},
		{"run.key_space", f.Run.KeySpace},
		{"run.value_size", f.Run.ValueSize},
		{"run.member_space", f.Run.MemberSpace},
		{"run.trim_keep", f.Run.TrimKeep},
		{"run.pool_size", f.Run.PoolSize},
	}
	for _, check := range nonNegative {
		if check.value < 0 {
			return bencherr.NewConfigError(check.field, "must be non-negative, got %d", check.value)
		}
	}

	if f.Run.MaxRetries != nil && *f.Run.MaxRetries < 0 {
		return bencherr.NewConfigError("run.max_retries", "must be non-negative, got %d", *f.Run.MaxRetries)
	}

	if f.Run.Rate < 0 {
		return bencherr.NewConfigError("run.rate", "must be non-negative, got %g", f.Run.Rate)
	}

	durations := map[string]string{
		"store.dial_timeout":      f.Store.DialTimeout,
		"store.operation_timeout": f.Store.OperationTimeout,
		"run.acquire_timeout":     f.Run.AcquireTimeout,
	}
	for field, value := range durations {
		if _, err := parseDuration(field, value); err != nil {
			return err
		}
	}

	return nil
}

func parseDuration(field, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}

	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, bencherr.NewConfigError(field, "invalid duration: %v", err)
	}
	if d < 0 {
		return 0, bencherr.NewConfigError(field, "must be non-negative, got %s", d)
	}
	return d, nil
}

// Apply overlays every setting present in the file onto cfg.
func (f *FileConfig) Apply(cfg *bench.Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil bench config")
	}

	s := f.Store
	setString(&cfg.Store.Host, s.Host)
	setInt(&cfg.Store.Port, s.Port)
	setString(&cfg.Store.Driver, s.Driver)
	setInt(&cfg.Store.DB, s.DB)
	setString(&cfg.Store.Password, s.Password)

	r := f.Run
	setInt(&cfg.Concurrency, r.Concurrency)
	setInt(&cfg.Workers, r.Workers)
	setInt(&cfg.Count, r.Count)
	if r.Mix != nil {
		cfg.Mix = r.Mix.Mix
	}
	if r.Seed != nil {
		cfg.Seed = *r.Seed
	}
	setString(&cfg.KeyPrefix, r.KeyPrefix)
	setInt(&cfg.KeySpace, r.KeySpace)
	if r.SharedKeys != nil {
		cfg.SharedKeys = *r.SharedKeys
	}
	setInt(&cfg.ValueSize, r.ValueSize)
	setInt(&cfg.MemberSpace, r.MemberSpace)
	setInt(&cfg.TrimKeep, r.TrimKeep)
	setInt(&cfg.PoolSize, r.PoolSize)
	if r.MaxRetries != nil {
		cfg.MaxRetries = *r.MaxRetries
	}
	if r.Rate > 0 {
		cfg.RateLimit = r.Rate
	}

	timeouts := []struct {
		field string
		value string
		dst   *time.Duration
	}{
		{"store.dial_timeout", s.DialTimeout, &cfg.Store.DialTimeout},
		{"store.operation_timeout", s.OperationTimeout, &cfg.Store.OperationTimeout},
		{"run.acquire_timeout", r.AcquireTimeout, &cfg.AcquireTimeout},
	}
	for _, t := range timeouts {
		d, err := parseDuration(t.field, t.value)
		if err != nil {
			return err
		}
		if d > 0 {
			*t.dst = d
		}
	}

	return nil
}

func setString(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}

func setInt(dst *int, value int) {
	if value > 0 {
		*dst = value
	}
}
