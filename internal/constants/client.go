package constants

import "time"

const (
	DialTimeout      = time.Second * 2
	ConnRetryWait    = time.Millisecond * 10
	AcquireTimeout   = time.Second * 1
	OperationTimeout = time.Second * 1
	ShutdownTimeout  = time.Millisecond * 500
	TickInterval     = time.Millisecond * 20

	DefaultNetwork = "tcp"
	DefaultHost    = "localhost"
	DefaultPort    = 6379
	DefaultDriver  = "goredis"

	DefaultConcurrency  = 50
	DefaultOpsPerWorker = 100
	DefaultMaxRetries   = 3

	DefaultKeyPrefix   = "loadgen"
	DefaultKeySpace    = 1
	DefaultValueSize   = 16
	DefaultMemberSpace = 1000
	DefaultTrimKeep    = 100
	MaxScore           = 1000.0
	MixTolerance       = 1e-9

	InvalidAddrErr = "address host:port are invalid"
	InvalidPortErr = "invalid configured port %d"
	EmptyParamErr  = "parameters cannot be empty on request"

	UnknownDriverErr   = "unknown store driver %q"
	UnknownKindErr     = "unknown operation kind %q"
	UndefinedOpErr     = "undefined operation: %s"
	MixSumErr          = "ratios must sum to 1.0, got %g"
	MixNegativeErr     = "ratio for %s must be non-negative, got %g"
	MixSyntaxErr       = "expected kind=ratio, got %q"
	NonPositiveErr     = "must be > 0, got %d"
	NegativeErr        = "must be >= 0, got %d"
	NegativeRateErr    = "must be >= 0, got %g"
	NegativeTimeoutErr = "must be >= 0, got %s"

	ClientInitTimeoutErr = "timed out dialing %s for %s"
	AlreadyRunErr        = "benchmark already ran (state %s)"
	UnknownFormatErr     = "unknown report format %q"
)
