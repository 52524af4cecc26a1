package errors

import (
	"context"
	"errors"
	"fmt"
)

// Wrap wraps an error with additional context while preserving the error chain.
// If err is nil, Wrap returns nil.
// If err is already an EngineError, it wraps it with the new message.
// Otherwise, it creates a new Internal error wrapping the original.
func Wrap(err error, message string, opts ...Option) *Error {
	if err == nil {
		return nil
	}

	// If it's already an EngineError, preserve its properties
	var engErr *Error
	if errors.As(err, &engErr) {
		wrapped := &Error{
			code:       engErr.code,
			category:   engErr.category,
			message:    message,
			cause:      err,
			metadata:   engErr.Metadata(),
			retryable:  engErr.retryable,
			statusCode: engErr.statusCode,
			taskID:     engErr.taskID,
			tool:       engErr.tool,
		}
		for _, opt := range opts {
			opt(wrapped)
		}
		return wrapped
	}

	// Check for context errors
	if errors.Is(err, context.DeadlineExceeded) {
		return New(ErrCodeTimeout, message, append(opts, WithCause(err))...)
	}
	if errors.Is(err, context.Canceled) {
		return New(ErrCodeCanceled, message, append(opts, WithCause(err))...)
	}

	// Default to internal error for unknown errors
	return New(ErrCodeInternal, message, append(opts, WithCause(err))...)
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, format string, args ...interface{}) *Error {
	return Wrap(err, fmt.Sprintf(format, args...))
}

// WrapWithCode wraps an error with a specific error code.
func WrapWithCode(err error, code ErrorCode, message string, opts ...Option) *Error {
	if err == nil {
		return nil
	}
	opts = append(opts, WithCause(err))
	return New(code, message, opts...)
}

// AsEngineError attempts to extract an EngineError from an error chain.
// Returns nil if no EngineError is found.
func AsEngineError(err error) EngineError {
	var engErr *Error
	if errors.As(err, &engErr) {
		return engErr
	}
	return nil
}

// Is checks if any error in the chain has the given error code.
func Is(err error, code ErrorCode) bool {
	var engErr *Error
	if errors.As(err, &engErr) {
		return engErr.code == code
	}
	return false
}

// IsCategory checks if any error in the chain has the given category.
func IsCategory(err error, category ErrorCategory) bool {
	var engErr *Error
	if errors.As(err, &engErr) {
		return engErr.category == category
	}
	return false
}

// IsRetryable checks if the error is retryable.
func IsRetryable(err error) bool {
	var engErr *Error
	if errors.As(err, &engErr) {
		return engErr.Retryable()
	}
	// Default to not retryable for non-EngineErrors
	return false
}

// StatusCodeOf returns the HTTP-style status code carried by the error,
// or 0 if the error carries none.
func StatusCodeOf(err error) int {
	var engErr *Error
	if errors.As(err, &engErr) {
		return engErr.statusCode
	}
	return 0
}
