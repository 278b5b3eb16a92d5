package estimator

import (
	"errors"
	"fmt"
)

var (
	// ErrNotReady is returned when Estimate is called before the model
	// has loaded.
	ErrNotReady = errors.New("estimator: model not ready")

	// ErrNoEstimators is returned when a chain is built with nothing in it.
	ErrNoEstimators = errors.New("estimator: no estimators configured")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("estimator: closed")
)

// EstimationError wraps a hard failure from a named backend.
type EstimationError struct {
	Backend string

	// StatusCode is set for HTTP backends.
	StatusCode int

	Err error
}

// Error implements the error interface.
func (e *EstimationError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("estimator [%s]: status %d: %v", e.Backend, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("estimator [%s]: %v", e.Backend, e.Err)
}

// Unwrap returns the underlying error.
func (e *EstimationError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether the backend signalled a transient failure.
func (e *EstimationError) IsRetryable() bool {
	return e.StatusCode == 429 || (e.StatusCode >= 500 && e.StatusCode < 600)
}

// Wrap tags err with a backend name. A nil err stays nil.
func Wrap(backend string, err error) error {
	if err == nil {
		return nil
	}
	return &EstimationError{Backend: backend, Err: err}
}

// ChainError aggregates the failures of every estimator in a chain.
type ChainError struct {
	Errors []error
}

// Error implements the error interface.
func (e *ChainError) Error() string {
	switch len(e.Errors) {
	case 0:
		return "estimator chain: no errors recorded"
	case 1:
		return fmt.Sprintf("estimator chain: %v", e.Errors[0])
	}
	return fmt.Sprintf("estimator chain: all %d estimators failed, last error: %v",
		len(e.Errors), e.Errors[len(e.Errors)-1])
}

// Unwrap exposes every collected error to errors.Is and errors.As.
func (e *ChainError) Unwrap() []error {
	return e.Errors
}
