package vector

import (
	"errors"
	"fmt"
)

var (
	// ErrStorage is the root of every error produced by a driver.
	ErrStorage = errors.New("vector storage error")

	// ErrInvalidConfiguration is returned for bad driver configuration,
	// unknown or duplicate registry names and schema conflicts.
	ErrInvalidConfiguration = &storageError{msg: "invalid configuration"}

	// ErrBackendClosed is returned by operations issued after Close.
	ErrBackendClosed = &storageError{msg: "backend closed"}

	// ErrDimensionMismatch is returned when an embedding length disagrees
	// with the driver dimension.
	ErrDimensionMismatch = &storageError{msg: "dimension mismatch"}

	// ErrQuery is returned for search-time failures, including transport
	// and backend-native errors.
	ErrQuery = &storageError{msg: "query failed"}

	// ErrInsertion is returned for write-time failures, including rolled
	// back batches.
	ErrInsertion = &storageError{msg: "insertion failed"}
)

// storageError is a sentinel that also matches ErrStorage.
type storageError struct {
	msg string
}

func (e *storageError) Error() string { return e.msg }

func (e *storageError) Is(target error) bool { return target == ErrStorage }

// DimensionError carries the expected and actual embedding lengths.
type DimensionError struct {
	Expected uint32
	Actual   int
}

// NewDimensionError returns a DimensionError matching ErrDimensionMismatch.
func NewDimensionError(expected uint32, actual int) *DimensionError {
	return &DimensionError{Expected: expected, Actual: actual}
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

func (e *DimensionError) Unwrap() error { return ErrDimensionMismatch }

// ConfigError describes which configuration field was rejected and why.
type ConfigError struct {
	Field  string
	Reason string
}

// NewConfigError returns a ConfigError matching ErrInvalidConfiguration.
func NewConfigError(field, reason string) *ConfigError {
	return &ConfigError{Field: field, Reason: reason}
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return "invalid configuration: " + e.Reason
	}
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrInvalidConfiguration }

// QueryError wraps err so that it matches both ErrQuery and err.
func QueryError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrQuery, op, err)
}

// InsertionError wraps err so that it matches both ErrInsertion and err.
func InsertionError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrInsertion, op, err)
}

// InvalidConfigurationError wraps err so that it matches both
// ErrInvalidConfiguration and err.
func InvalidConfigurationError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrInvalidConfiguration, op, err)
}
