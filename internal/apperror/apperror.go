package apperror

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by every layer. Services and repositories tag
// failures with exactly one of these so callers can branch with errors.Is
// without knowing which store backend produced the failure.
var (
	ErrNotFound    = errors.New("not found")
	ErrValidation  = errors.New("validation failed")
	ErrDuplicate   = errors.New("duplicate")
	ErrPersistence = errors.New("persistence failed")
	ErrAggregation = errors.New("aggregation failed")
)

type AppError struct {
	Err     error  // sentinel identifying the error class
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, ref string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found: %s", resource, ref),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// Duplicate reports that a write collided with a uniqueness rule, such as
// two users claiming the same provider identity or access token.
func Duplicate(resource, message string) *AppError {
	return &AppError{
		Err:     ErrDuplicate,
		Message: fmt.Sprintf("duplicate %s: %s", resource, message),
	}
}

// Persistence wraps a store failure that is neither a miss nor a duplicate.
// The underlying cause is folded into the message; op names the write that
// failed so logs stay readable without stack traces.
func Persistence(op string, cause error) *AppError {
	return &AppError{
		Err:     ErrPersistence,
		Message: fmt.Sprintf("%s: %v", op, cause),
	}
}

// Aggregation wraps a counting or grouping failure. Reporting operations
// abort with this instead of returning partial results.
func Aggregation(op string, cause error) *AppError {
	return &AppError{
		Err:     ErrAggregation,
		Message: fmt.Sprintf("%s: %v", op, cause),
	}
}
