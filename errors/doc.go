// Package errors provides the structured error taxonomy for the agentplan
// execution engine. It defines error codes and categories that let the
// scheduler and the resilient executor make consistent retry and
// propagation decisions.
//
// # Error Categories
//
// Errors are classified into four categories:
//
//   - Transient: Temporary failures where retry may succeed (network issues, etc.)
//   - Permanent: Failures where retry will not help (invalid input, illegal transition, etc.)
//   - Resource: Resource exhaustion issues (rate limits, quotas, etc.)
//   - Internal: Unexpected errors indicating bugs or system failures
//
// # Engine Codes
//
// Beyond the common codes, the engine defines:
//
//   - INVALID_TRANSITION: an illegal task lifecycle move; always surfaced to the caller
//   - DEPENDENCY: an out-of-range dependency reference; fatal, never retried
//   - TOOL_FAILED: a tool invocation failed with a non-retryable error
//   - CHECKPOINT_IO: a best-effort checkpoint write or read failed
//
// # Usage
//
// Create a new error:
//
//	err := errors.New(errors.ErrCodeTimeout, "operation timed out")
//
// Wrap an existing error with context:
//
//	wrapped := errors.Wrap(err, "saving checkpoint")
//
// Check if an error is retryable:
//
//	if errors.IsRetryable(err) {
//	    // retry logic
//	}
//
// # JSON Serialization
//
// All errors support JSON serialization so tool-call outcomes can be
// persisted into checkpoints and the idempotency store:
//
//	data, err := json.Marshal(engErr)
package errors
