package core

import "fmt"

// ValidationError is a caller mistake: an unknown ID, a backup that is not
// completed, a mistyped confirmation. It is reported in a Result, never
// raised past the service boundary.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func invalid(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// Result is either a value or the reason the operation was refused.
type Result[T any] struct {
	OK  T
	Err *ValidationError
}

// Ok wraps a successful value.
func Ok[T any](v T) Result[T] {
	return Result[T]{OK: v}
}

// Fail builds a failed result with a formatted message.
func Fail[T any](format string, args ...any) Result[T] {
	return Result[T]{Err: invalid(format, args...)}
}

// IsOK reports whether the operation succeeded.
func (r Result[T]) IsOK() bool {
	return r.Err == nil
}

// Error returns the failure message, or "" on success.
func (r Result[T]) Error() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Message
}
