// Package executor runs tool calls with retry, backoff and idempotency
// caching.
//
// Every call is fingerprinted from its tool name and arguments. A store
// remembers finished outcomes, so re-running a plan after a crash skips
// calls that already ran, whether they succeeded or failed. Only the
// outcome is cached, never the result payload. A call that never ran to
// a verdict, because the limiter refused it, the context was cancelled
// during backoff, or it had no invoke function, is not cached: its key
// stays live for the next run.
//
// # Basic Usage
//
//	store, _ := executor.OpenIdempotencyStore(".agentplan/idempotency.json")
//	exec := executor.New(
//		executor.WithStore(store),
//		executor.WithRetryConfig(executor.RetryConfig{
//			MaxAttempts: 5,
//			Policy:      executor.BackoffExponential,
//			BaseDelay:   200 * time.Millisecond,
//			Jitter:      executor.JitterEqual,
//		}),
//	)
//
//	result := exec.Execute(ctx, executor.Call{
//		Tool: "apply_patch",
//		Args: map[string]interface{}{"file": "main.go"},
//		Invoke: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
//			return applyPatch(ctx, args)
//		},
//	})
//	if !result.Success {
//		// exhausted retries; result.Error holds the last failure
//	}
//
// Retry classification follows the errors package: transient and
// resource errors are retried, permanent ones are not. RetryableCodes
// and RetryableStatus narrow or extend that default.
package executor
