package smartermodel

import (
	"errors"
	"fmt"

	"github.com/adrianmcphee/smartermodel/query"
)

// Sentinel errors for common conditions
var (
	// Data errors
	ErrNotFound    = errors.New("model not found")
	ErrInvalidData = errors.New("invalid data format")
	ErrMissingID   = errors.New("model has no id")

	// Backend errors
	ErrBackendUnavailable = errors.New("backend unavailable")
	ErrUnauthorized       = errors.New("unauthorized access")
	ErrTimeout            = errors.New("operation timed out")
	ErrQueryFailed        = errors.New("query failed")

	// Configuration errors
	ErrInvalidConfig    = errors.New("invalid configuration")
	ErrDriverNotFound   = errors.New("driver not found")
	ErrNoCapableBackend = errors.New("no configured backend supports the operation")
)

// ErrorWithContext adds additional context to errors for better debugging and logging
type ErrorWithContext struct {
	Err     error
	Context map[string]interface{}
}

func (e *ErrorWithContext) Error() string {
	if len(e.Context) == 0 {
		return e.Err.Error()
	}
	return fmt.Sprintf("%v (context: %+v)", e.Err, e.Context)
}

func (e *ErrorWithContext) Unwrap() error {
	return e.Err
}

// WithContext adds context to an error
func WithContext(err error, context map[string]interface{}) error {
	if err == nil {
		return nil
	}
	return &ErrorWithContext{
		Err:     err,
		Context: context,
	}
}

// IsNotFound checks if an error is a "not found" error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConfigError checks if an error comes from model or driver configuration
func IsConfigError(err error) bool {
	return errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrDriverNotFound) ||
		errors.Is(err, ErrNoCapableBackend)
}

// IsValidationError checks if an error comes from a malformed query
func IsValidationError(err error) bool {
	return query.IsValidationError(err)
}

// IsRetryable checks if an error is safe to retry
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrBackendUnavailable)
}

// IsPermanent checks if an error is permanent (not retryable)
func IsPermanent(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrInvalidData) ||
		errors.Is(err, ErrMissingID) ||
		IsConfigError(err) ||
		IsValidationError(err)
}
