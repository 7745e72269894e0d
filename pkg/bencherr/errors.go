// Package bencherr defines the errors shared by the benchmark harness.
//
// Configuration and setup errors abort a run. Every other error is recorded
// against the operation that hit it and never aborts sibling work.
package bencherr

import (
	"errors"
	"fmt"
)

var (
	ErrPoolExhausted         = errors.New("connection pool exhausted")
	ErrConnectionUnavailable = errors.New("connection unavailable")
	ErrConnectionLost        = errors.New("connection lost")
	ErrOperationTimeout      = errors.New("operation timed out")
	ErrPoolClosed            = errors.New("connection pool closed")
)

type ConfigError struct {
	Field  string
	Reason string
}

func NewConfigError(field, format string, args ...interface{}) *ConfigError {
	return &ConfigError{
		Field:  field,
		Reason: fmt.Sprintf(format, args...),
	}
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return "invalid config: " + e.Reason
	}
	return fmt.Sprintf("invalid config %s: %s", e.Field, e.Reason)
}

type SetupError struct {
	Err error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("benchmark setup failed: %v", e.Err)
}

func (e *SetupError) Unwrap() error {
	return e.Err
}

func IsConfigError(err error) bool {
	var target *ConfigError
	return errors.As(err, &target)
}

func IsSetupError(err error) bool {
	var target *SetupError
	return errors.As(err, &target)
}

// Fatal reports whether err should abort a run rather than be recorded
// against a single operation.
func Fatal(err error) bool {
	return IsConfigError(err) || IsSetupError(err)
}
