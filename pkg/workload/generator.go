package workload

import (
	"math/rand"
	"strconv"

	"github.com/kevindweb/loadgen/internal/constants"
	"github.com/kevindweb/loadgen/pkg/bencherr"
)

const characters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

type Options struct {
	Seed        int64
	Mix         Mix
	KeyPrefix   string
	KeySpace    int
	SharedKeys  bool
	ValueSize   int
	MemberSpace int
	TrimKeep    int
}

func fillDefaultOptions(opts *Options) Options {
	if opts == nil {
		opts = &Options{}
	}

	if opts.KeyPrefix == "" {
		opts.KeyPrefix = constants.DefaultKeyPrefix
	}

	if opts.KeySpace == 0 {
		opts.KeySpace = constants.DefaultKeySpace
	}

	if opts.ValueSize == 0 {
		opts.ValueSize = constants.DefaultValueSize
	}

	if opts.MemberSpace == 0 {
		opts.MemberSpace = constants.DefaultMemberSpace
	}

	if opts.TrimKeep == 0 {
		opts.TrimKeep = constants.DefaultTrimKeep
	}

	return *opts
}

// Generator produces reproducible operation streams. A stream depends only
// on the options, the worker id and the count, so a Generator is safe for
// concurrent use.
type Generator struct {
	opts Options
}

func NewGenerator(opts Options) (*Generator, error) {
	opts = fillDefaultOptions(&opts)
	if err := opts.Mix.Validate(); err != nil {
		return nil, err
	}

	checks := []struct {
		field string
		value int
	}{
		{"key_space", opts.KeySpace},
		{"value_size", opts.ValueSize},
		{"member_space", opts.MemberSpace},
		{"trim_keep", opts.TrimKeep},
	}
	for _, check := range checks {
		if check.value < 0 {
			return nil, bencherr.NewConfigError(check.field, constants.NegativeErr, check.value)
		}
	}

	return &Generator{opts: opts}, nil
}

func (g *Generator) Options() Options {
	return g.opts
}

func (g *Generator) Generate(workerID, count int) ([]Operation, error) {
	if count <= 0 {
		return nil, bencherr.NewConfigError("count", constants.NonPositiveErr, count)
	}

	if workerID < 0 {
		return nil, bencherr.NewConfigError("worker", constants.NegativeErr, workerID)
	}

	var (
		rng      = rand.New(rand.NewSource(taskSeed(g.opts.Seed, workerID)))
		ops      = make([]Operation, 0, count)
		lastZKey string
	)

	for i := 0; i < count; i++ {
		var op Operation
		switch g.opts.Mix.pick(rng.Float64()) {
		case KindSet:
			op = NewSet(g.key(workerID, "str", rng), g.value(rng))
		case KindZAdd:
			lastZKey = g.key(workerID, "zset", rng)
			member := "m:" + strconv.Itoa(rng.Intn(g.opts.MemberSpace))
			op = NewZAdd(lastZKey, member, rng.Float64()*constants.MaxScore)
		case KindZRemRangeByRank:
			key := lastZKey
			if key == "" {
				key = g.key(workerID, "zset", rng)
			}
			op = NewZRemRangeByRank(key, 0, -int64(g.opts.TrimKeep)-1)
		}

		if err := op.Validate(); err != nil {
			return nil, bencherr.NewConfigError("operation", "%s: %v", op.Kind, err)
		}
		ops = append(ops, op)
	}

	return ops, nil
}

func (g *Generator) key(workerID int, kind string, rng *rand.Rand) string {
	n := strconv.Itoa(rng.Intn(g.opts.KeySpace))
	if g.opts.SharedKeys {
		return g.opts.KeyPrefix + ":" + kind + ":" + n
	}
	return g.opts.KeyPrefix + ":" + strconv.Itoa(workerID) + ":" + kind + ":" + n
}

func (g *Generator) value(rng *rand.Rand) string {
	value := make([]byte, g.opts.ValueSize)
	for i := range value {
		value[i] = characters[rng.Intn(len(characters))]
	}
	return string(value)
}

// taskSeed spreads (seed, worker) pairs with a splitmix64 finalizer so that
// neighbouring seeds do not produce shifted copies of each other's streams.
func taskSeed(seed int64, workerID int) int64 {
	z := uint64(seed) ^ mix64(uint64(workerID)+0x9e3779b97f4a7c15)
	return int64(mix64(z))
}

func mix64(z uint64) uint64 {
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}
