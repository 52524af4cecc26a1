// Package ratelimit provides token-bucket rate limiting for tool
// invocations.
//
// Capacities are configured per tool. Tools without a configured bucket
// are unlimited: the engine only throttles what the operator asked it
// to throttle.
package ratelimit

import (
	"context"
	"errors"
	"time"
)

// Common errors.
var (
	ErrClosed      = errors.New("limiter closed")
	ErrToolUnknown = errors.New("unknown tool")
)

// Limiter coordinates rate limits for tools.
type Limiter interface {
	// Acquire blocks until a token is available for the tool.
	// Returns context.Canceled or context.DeadlineExceeded if the
	// context ends, and ErrToolUnknown if no capacity is configured.
	Acquire(ctx context.Context, tool string) error

	// TryAcquire attempts to acquire a token without blocking.
	TryAcquire(tool string) bool

	// Release returns a token to the tool's bucket, for semaphore-style
	// limiting of in-flight calls.
	Release(tool string)

	// Done marks an acquired call finished without returning its token.
	// Tokens come back through time-based refill only, so per-window
	// rate limits hold; Done keeps the in-flight gauge accurate.
	Done(tool string)

	// SetCapacity configures the rate limit for a tool: capacity tokens
	// per window. A non-positive capacity or window removes the limit.
	SetCapacity(tool string, capacity int, window time.Duration)

	// ReduceCapacity shrinks a tool's capacity after throttling signals
	// such as a 429 response.
	ReduceCapacity(tool string, reason string)

	// GetCapacity returns the current capacity info for a tool, or nil
	// if the tool has no configured limit.
	GetCapacity(tool string) *Capacity

	// Close shuts down the limiter and wakes all waiters.
	Close() error
}

// Capacity describes the rate limit state for a tool.
type Capacity struct {
	// Tool is the rate-limited tool name.
	Tool string

	// Available is the current number of available tokens.
	Available int

	// Total is the maximum capacity (tokens per window).
	Total int

	// Window is the refill period.
	Window time.Duration

	// InFlight tracks calls currently in progress (if Release is used).
	InFlight int
}
