package workload

import (
	"math"
	"strconv"
	"strings"

	"github.com/kevindweb/loadgen/internal/constants"
	"github.com/kevindweb/loadgen/pkg/bencherr"
)

// Mix holds the fraction of generated operations of each kind.
type Mix struct {
	Set             float64 `yaml:"set" json:"set"`
	ZAdd            float64 `yaml:"zadd" json:"zadd"`
	ZRemRangeByRank float64 `yaml:"zremrangebyrank" json:"zremrangebyrank"`
}

func DefaultMix() Mix {
	return Mix{Set: 1.0}
}

func (m Mix) Ratio(k Kind) float64 {
	switch k {
	case KindSet:
		return m.Set
	case KindZAdd:
		return m.ZAdd
	case KindZRemRangeByRank:
		return m.ZRemRangeByRank
	default:
		return 0
	}
}

func (m *Mix) set(k Kind, ratio float64) {
	switch k {
	case KindSet:
		m.Set = ratio
	case KindZAdd:
		m.ZAdd = ratio
	case KindZRemRangeByRank:
		m.ZRemRangeByRank = ratio
	}
}

func (m Mix) IsZero() bool {
	return m == Mix{}
}

func (m Mix) Validate() error {
	var sum float64
	for _, k := range Kinds() {
		ratio := m.Ratio(k)
		if ratio < 0 || math.IsNaN(ratio) {
			return bencherr.NewConfigError("mix", constants.MixNegativeErr, k, ratio)
		}
		sum += ratio
	}

	if math.Abs(sum-1.0) > constants.MixTolerance {
		return bencherr.NewConfigError("mix", constants.MixSumErr, sum)
	}

	return nil
}

// ParseMix reads the "set=0.8,zadd=0.1,zremrangebyrank=0.1" form. Kinds that
// are not named get a ratio of zero.
func ParseMix(s string) (Mix, error) {
	var m Mix
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		name, value, ok := strings.Cut(part, "=")
		if !ok {
			return Mix{}, bencherr.NewConfigError("mix", constants.MixSyntaxErr, part)
		}

		k, err := ParseKind(name)
		if err != nil {
			return Mix{}, bencherr.NewConfigError("mix", "%v", err)
		}

		ratio, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return Mix{}, bencherr.NewConfigError("mix", "ratio for %s: %v", k, err)
		}
		m.set(k, ratio)
	}

	if err := m.Validate(); err != nil {
		return Mix{}, err
	}

	return m, nil
}

func (m Mix) String() string {
	parts := make([]string, 0, len(Kinds()))
	for _, k := range Kinds() {
		if ratio := m.Ratio(k); ratio != 0 {
			parts = append(parts, strings.ToLower(k.String())+"="+strconv.FormatFloat(ratio, 'g', -1, 64))
		}
	}
	return strings.Join(parts, ",")
}

func (m Mix) pick(r float64) Kind {
	var (
		cumulative float64
		last       = KindSet
	)
	for _, k := range Kinds() {
		ratio := m.Ratio(k)
		if ratio == 0 {
			continue
		}
		last = k
		cumulative += ratio
		if r < cumulative {
			return k
		}
	}
	return last
}
