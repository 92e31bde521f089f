package core

import (
	"errors"
	"fmt"
)

// ===== SENTINEL ERRORS =====

// ErrBadRequest is returned for missing or invalid fields at the service boundary
var ErrBadRequest = errors.New("bad request")

// ErrUnsupportedType is returned for MIME types outside the parser's table
var ErrUnsupportedType = errors.New("unsupported document type")

// ErrEmptyContent is returned when parsing yields no text or chunking yields zero fragments
var ErrEmptyContent = errors.New("empty document content")

// ErrUpstreamUnavailable is returned when the fetcher, embedder, or vector store fails
var ErrUpstreamUnavailable = errors.New("upstream unavailable")

// ErrTimeout is returned when a processing or request timeout fires
var ErrTimeout = errors.New("operation timeout")

// ErrShutdown is returned for submissions during graceful shutdown
var ErrShutdown = errors.New("service shutting down")

// ErrInternal is returned for uncategorised defects
var ErrInternal = errors.New("internal error")

// ===== JOB / STORE ERRORS =====

// ErrJobNotFound is returned when a job ID matches nothing in the indexer
var ErrJobNotFound = errors.New("job not found")

// ErrTenantRequired is returned when a store call omits the tenant predicate
var ErrTenantRequired = errors.New("tenant predicate is required")

// ErrDimensionMismatch is returned when a vector's length differs from the store's dimension
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// ErrRetriesExhausted is returned when a transient failure outlives its retry budget
var ErrRetriesExhausted = errors.New("retry limit exhausted")

// ===== TYPED ERRORS =====

// ValidationError describes a rejected input field.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("validation failed for field '%s' (value: %v): %s", e.Field, e.Value, e.Message)
	}
	return fmt.Sprintf("validation failed for field '%s': %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrBadRequest }

// NewValidationError creates a new validation error
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Message: message}
}

// ServiceError describes a failure in a named sub-component with optional
// structured context.
type ServiceError struct {
	Component string
	Operation string
	Err       error
	Context   map[string]interface{}
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s.%s failed: %v", e.Component, e.Operation, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// NewServiceError creates a new service error
func NewServiceError(component, operation string, err error) *ServiceError {
	return &ServiceError{Component: component, Operation: operation, Err: err}
}

// WithContext attaches a context value and returns the error for chaining
func (e *ServiceError) WithContext(key string, value interface{}) *ServiceError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// TimeoutError carries the operation name and its deadline budget.
type TimeoutError struct {
	Operation string
	Seconds   float64
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %.1fs", e.Operation, e.Seconds)
}

func (e *TimeoutError) Unwrap() error { return ErrTimeout }

// NewTimeoutError creates a new timeout error
func NewTimeoutError(operation string, seconds float64) *TimeoutError {
	return &TimeoutError{Operation: operation, Seconds: seconds}
}

// ===== WRAPPING HELPERS =====

// WrapError wraps err under a sentinel with a message
func WrapError(sentinel, err error, message string) error {
	if err == nil {
		return fmt.Errorf("%w: %s", sentinel, message)
	}
	return fmt.Errorf("%w: %s: %v", sentinel, message, err)
}

// WrapErrorWithContext wraps err under a sentinel with formatted context
func WrapErrorWithContext(sentinel, err error, format string, args ...interface{}) error {
	return WrapError(sentinel, err, fmt.Sprintf(format, args...))
}

// ===== CLASSIFICATION =====

// IsFatal reports whether err must fail the job immediately with no retry.
func IsFatal(err error) bool {
	return errors.Is(err, ErrUnsupportedType) ||
		errors.Is(err, ErrEmptyContent) ||
		errors.Is(err, ErrBadRequest) ||
		errors.Is(err, ErrInternal)
}

// IsTransient reports whether err may succeed on retry. Fatal kinds always
// win when an error chain carries both.
func IsTransient(err error) bool {
	if err == nil || IsFatal(err) {
		return false
	}
	return errors.Is(err, ErrUpstreamUnavailable) || errors.Is(err, ErrTimeout)
}

// IsValidationError checks whether err is a ValidationError
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsTimeoutError checks whether err carries a timeout
func IsTimeoutError(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsShutdownError checks whether err was caused by graceful shutdown
func IsShutdownError(err error) bool {
	return errors.Is(err, ErrShutdown)
}
