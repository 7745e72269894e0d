package workload

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/kevindweb/loadgen/internal/constants"
)

type Kind int

const (
	KindSet Kind = iota
	KindZAdd
	KindZRemRangeByRank
)

func Kinds() []Kind {
	return []Kind{KindSet, KindZAdd, KindZRemRangeByRank}
}

func (k Kind) String() string {
	switch k {
	case KindSet:
		return "SET"
	case KindZAdd:
		return "ZADD"
	case KindZRemRangeByRank:
		return "ZREMRANGEBYRANK"
	default:
		return strconv.Itoa(int(k))
	}
}

func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case constants.SET:
		return KindSet, nil
	case constants.ZADD:
		return KindZAdd, nil
	case constants.ZREMRANGEBYRANK:
		return KindZRemRangeByRank, nil
	default:
		return 0, fmt.Errorf(constants.UnknownKindErr, s)
	}
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Operation is one command sent to the store. Only the fields belonging to
// Kind are meaningful.
type Operation struct {
	Kind   Kind
	Key    string
	Value  string
	Member string
	Score  float64
	Start  int64
	Stop   int64
}

func NewSet(key, value string) Operation {
	return Operation{Kind: KindSet, Key: key, Value: value}
}

func NewZAdd(key, member string, score float64) Operation {
	return Operation{Kind: KindZAdd, Key: key, Member: member, Score: score}
}

func NewZRemRangeByRank(key string, start, stop int64) Operation {
	return Operation{Kind: KindZRemRangeByRank, Key: key, Start: start, Stop: stop}
}

func (op Operation) Validate() error {
	if op.Key == "" {
		return errors.New(constants.EmptyParamErr)
	}

	switch op.Kind {
	case KindSet, KindZRemRangeByRank:
		return nil
	case KindZAdd:
		if op.Member == "" {
			return errors.New(constants.EmptyParamErr)
		}
		if math.IsNaN(op.Score) || math.IsInf(op.Score, 0) {
			return fmt.Errorf("score for %s must be finite, got %g", op.Key, op.Score)
		}
		return nil
	default:
		return fmt.Errorf(constants.UndefinedOpErr, op.Kind)
	}
}

// Args returns the command as it is written on the wire.
func (op Operation) Args() []string {
	switch op.Kind {
	case KindSet:
		return []string{op.Kind.String(), op.Key, op.Value}
	case KindZAdd:
		return []string{
			op.Kind.String(), op.Key, strconv.FormatFloat(op.Score, 'f', -1, 64), op.Member,
		}
	case KindZRemRangeByRank:
		return []string{
			op.Kind.String(), op.Key,
			strconv.FormatInt(op.Start, 10), strconv.FormatInt(op.Stop, 10),
		}
	default:
		return nil
	}
}

func (op Operation) String() string {
	return strings.Join(op.Args(), " ")
}
