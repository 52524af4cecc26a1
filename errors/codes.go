package errors

// ErrorCategory classifies errors by their nature and retry semantics.
type ErrorCategory string

// Error categories define how errors should be handled.
const (
	// CategoryTransient indicates temporary failures where retry may succeed.
	// Examples: network timeouts, temporary tool unavailability.
	CategoryTransient ErrorCategory = "transient"

	// CategoryPermanent indicates failures where retry will not help.
	// Examples: invalid input, illegal state transition, bad dependency.
	CategoryPermanent ErrorCategory = "permanent"

	// CategoryResource indicates resource exhaustion or quota issues.
	// Examples: rate limiting, tool capacity exceeded.
	CategoryResource ErrorCategory = "resource"

	// CategoryInternal indicates unexpected errors, bugs, or system failures.
	// Examples: corrupted checkpoints, recovered panics.
	CategoryInternal ErrorCategory = "internal"
)

// String returns the string representation of the category.
func (c ErrorCategory) String() string {
	return string(c)
}

// IsRetryable returns true if errors in this category may succeed on retry.
func (c ErrorCategory) IsRetryable() bool {
	switch c {
	case CategoryTransient, CategoryResource:
		return true
	default:
		return false
	}
}

// ErrorCode identifies specific error types within categories.
type ErrorCode string

// Error codes for common failure scenarios.
const (
	// Transient errors
	ErrCodeTimeout     ErrorCode = "TIMEOUT"     // Operation timed out
	ErrCodeUnavailable ErrorCode = "UNAVAILABLE" // Tool or service temporarily unavailable
	ErrCodeNetworkErr  ErrorCode = "NETWORK_ERR" // Network connectivity issue
	ErrCodeRetryLater  ErrorCode = "RETRY_LATER" // Remote side requested retry

	// Permanent errors
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"     // Resource does not exist
	ErrCodeConflict     ErrorCode = "CONFLICT"      // Conflicting operation or state
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT" // Malformed or invalid input
	ErrCodePrecondition ErrorCode = "PRECONDITION"  // Precondition not met
	ErrCodeUnsupported  ErrorCode = "UNSUPPORTED"   // Operation not supported
	ErrCodeCanceled     ErrorCode = "CANCELED"      // Operation was canceled

	// Resource errors
	ErrCodeRateLimit     ErrorCode = "RATE_LIMITED"   // Rate limit exceeded
	ErrCodeQuotaExceeded ErrorCode = "QUOTA_EXCEEDED" // Resource quota exhausted
	ErrCodeResourceBusy  ErrorCode = "RESOURCE_BUSY"  // Resource is busy/locked
	ErrCodeCapacity      ErrorCode = "CAPACITY"       // System at capacity

	// Internal errors
	ErrCodeInternal   ErrorCode = "INTERNAL"   // Unexpected internal error
	ErrCodeCorruption ErrorCode = "CORRUPTION" // Data corruption detected
	ErrCodePanic      ErrorCode = "PANIC"      // Recovered from panic

	// Engine-specific errors
	ErrCodeInvalidTransition ErrorCode = "INVALID_TRANSITION" // Illegal task lifecycle transition
	ErrCodeDependency        ErrorCode = "DEPENDENCY"         // Invalid dependency reference
	ErrCodeToolFailed        ErrorCode = "TOOL_FAILED"        // Tool invocation failed
	ErrCodeCheckpointIO      ErrorCode = "CHECKPOINT_IO"      // Checkpoint read/write failure
)

// String returns the string representation of the error code.
func (c ErrorCode) String() string {
	return string(c)
}

// DefaultCategory returns the default category for an error code.
func (c ErrorCode) DefaultCategory() ErrorCategory {
	switch c {
	// Transient
	case ErrCodeTimeout, ErrCodeUnavailable, ErrCodeNetworkErr, ErrCodeRetryLater:
		return CategoryTransient

	// Permanent
	case ErrCodeNotFound, ErrCodeConflict, ErrCodeInvalidInput, ErrCodePrecondition,
		ErrCodeUnsupported, ErrCodeCanceled,
		ErrCodeInvalidTransition, ErrCodeDependency, ErrCodeToolFailed:
		return CategoryPermanent

	// Resource
	case ErrCodeRateLimit, ErrCodeQuotaExceeded, ErrCodeResourceBusy, ErrCodeCapacity:
		return CategoryResource

	// Internal
	case ErrCodeInternal, ErrCodeCorruption, ErrCodePanic, ErrCodeCheckpointIO:
		return CategoryInternal

	default:
		return CategoryInternal
	}
}

// DefaultRetryable returns whether this error code is typically retryable.
func (c ErrorCode) DefaultRetryable() bool {
	return c.DefaultCategory().IsRetryable()
}

// codeDescriptions provides human-readable descriptions for error codes.
var codeDescriptions = map[ErrorCode]string{
	ErrCodeTimeout:           "operation timed out",
	ErrCodeUnavailable:       "tool temporarily unavailable",
	ErrCodeNetworkErr:        "network connectivity error",
	ErrCodeRetryLater:        "remote side requested retry later",
	ErrCodeNotFound:          "resource not found",
	ErrCodeConflict:          "conflicting operation",
	ErrCodeInvalidInput:      "invalid input provided",
	ErrCodePrecondition:      "precondition failed",
	ErrCodeUnsupported:       "operation not supported",
	ErrCodeCanceled:          "operation canceled",
	ErrCodeRateLimit:         "rate limit exceeded",
	ErrCodeQuotaExceeded:     "quota exceeded",
	ErrCodeResourceBusy:      "resource is busy",
	ErrCodeCapacity:          "system at capacity",
	ErrCodeInternal:          "internal error",
	ErrCodeCorruption:        "data corruption detected",
	ErrCodePanic:             "recovered from panic",
	ErrCodeInvalidTransition: "illegal task state transition",
	ErrCodeDependency:        "invalid dependency reference",
	ErrCodeToolFailed:        "tool invocation failed",
	ErrCodeCheckpointIO:      "checkpoint I/O failure",
}

// Description returns a human-readable description for the error code.
func (c ErrorCode) Description() string {
	if desc, ok := codeDescriptions[c]; ok {
		return desc
	}
	return "unknown error"
}
