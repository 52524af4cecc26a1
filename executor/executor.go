package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/praxislabs/agentplan/errors"
	"github.com/praxislabs/agentplan/logging"
	"github.com/praxislabs/agentplan/telemetry"
)

// InvokeFunc performs the actual tool invocation.
type InvokeFunc func(ctx context.Context, args map[string]interface{}) (interface{}, error)

// Call describes a single tool invocation.
type Call struct {
	// Tool is the tool name, used for fingerprinting, logging and spans.
	Tool string

	// Args are the invocation arguments, part of the fingerprint.
	Args map[string]interface{}

	// Invoke performs the call.
	Invoke InvokeFunc
}

// ToolCallResult is the outcome of an Execute call. Exhausted retries
// produce a failed result, not an error: the caller decides whether a
// failed tool call fails the task.
type ToolCallResult struct {
	Success        bool              `json:"success"`
	Result         interface{}       `json:"result,omitempty"`
	Error          string            `json:"error,omitempty"`
	Attempts       int               `json:"attempts"`
	Elapsed        time.Duration     `json:"elapsed"`
	IdempotencyKey string            `json:"idempotency_key"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// completed reports whether the call ran to a verdict: at least one
// attempt, not cut short by cancellation or a limiter refusal. Only
// completed calls may enter the idempotency cache.
func (r ToolCallResult) completed() bool {
	return r.Attempts > 0 &&
		r.Metadata["canceled"] != "true" &&
		r.Metadata["limited"] != "true"
}

// Limiter gates tool invocations. The ratelimit package provides the
// standard implementation. Done is called once per attempt after the
// tool returns, so the limiter's in-flight gauge stays accurate.
type Limiter interface {
	Wait(ctx context.Context, tool string) error
	Done(tool string)
}

// Executor runs tool calls with retry, backoff and idempotency caching.
// It is safe for concurrent use.
type Executor struct {
	retry     RetryConfig
	store     *IdempotencyStore
	logger    *logging.Logger
	limiter   Limiter
	exporter  telemetry.Exporter
	sessionID string

	rngMu sync.Mutex
	rng   *rand.Rand
}

// Option configures an Executor.
type Option func(*Executor)

// WithRetryConfig sets the retry behavior.
func WithRetryConfig(cfg RetryConfig) Option {
	return func(e *Executor) {
		e.retry = cfg
	}
}

// WithStore sets the idempotency store. Without one, every call runs.
func WithStore(store *IdempotencyStore) Option {
	return func(e *Executor) {
		e.store = store
	}
}

// WithLogger sets the logger for retry and cache-hit events.
func WithLogger(logger *logging.Logger) Option {
	return func(e *Executor) {
		e.logger = logger
	}
}

// WithLimiter sets a rate limiter consulted before every attempt.
func WithLimiter(limiter Limiter) Option {
	return func(e *Executor) {
		e.limiter = limiter
	}
}

// WithExporter sets a telemetry exporter that receives a record for
// every finished Execute call, cache hits included.
func WithExporter(exp telemetry.Exporter) Option {
	return func(e *Executor) {
		e.exporter = exp
	}
}

// WithSessionID stamps emitted telemetry records with a session id.
func WithSessionID(id string) Option {
	return func(e *Executor) {
		e.sessionID = id
	}
}

// WithRandSource sets the randomness source used for jitter. Tests use
// this for deterministic delays.
func WithRandSource(src rand.Source) Option {
	return func(e *Executor) {
		e.rng = rand.New(src)
	}
}

// New creates an Executor.
func New(opts ...Option) *Executor {
	e := &Executor{
		retry: DefaultRetryConfig(),
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logging.New().WithComponent("executor")
	}
	return e
}

// CallOption configures a single Execute call.
type CallOption func(*callSettings)

type callSettings struct {
	key    string
	retry  *RetryConfig
	taskID int
}

// WithIdempotencyKey overrides the fingerprint-derived cache key.
func WithIdempotencyKey(key string) CallOption {
	return func(s *callSettings) {
		s.key = key
	}
}

// WithCallRetry overrides the executor's retry settings for one call.
func WithCallRetry(cfg RetryConfig) CallOption {
	return func(s *callSettings) {
		s.retry = &cfg
	}
}

// WithTaskID attributes the call to a plan task in telemetry records.
func WithTaskID(id int) CallOption {
	return func(s *callSettings) {
		s.taskID = id
	}
}

// Fingerprint computes the default idempotency key for a call: an xxhash
// of the tool name and the canonical JSON encoding of its arguments.
// Go's JSON encoder writes map keys in sorted order, so equal argument
// maps always hash equally.
func Fingerprint(call Call) string {
	h := xxhash.New()
	h.WriteString(call.Tool)
	h.WriteString("\x00")
	if len(call.Args) > 0 {
		if data, err := json.Marshal(call.Args); err == nil {
			h.Write(data)
		}
	}
	return fmt.Sprintf("%s:%016x", call.Tool, h.Sum64())
}

// Execute runs the call. A cached outcome for the same key, success or
// failure, short-circuits without invoking the tool. Otherwise the call
// is attempted up to MaxAttempts times with backoff between attempts;
// exhausted retries yield a failed ToolCallResult, never an error.
func (e *Executor) Execute(ctx context.Context, call Call, opts ...CallOption) ToolCallResult {
	settings := callSettings{taskID: -1}
	for _, opt := range opts {
		opt(&settings)
	}

	key := settings.key
	if key == "" {
		key = Fingerprint(call)
	}
	retry := e.retry
	if settings.retry != nil {
		retry = *settings.retry
	}
	retry = retry.normalized()

	if e.store != nil {
		if cached, ok := e.store.Get(key); ok {
			e.logger.IdempotentHit(key, cached.Success)
			result := ToolCallResult{
				Success:        cached.Success,
				Error:          cached.Error,
				Attempts:       cached.Attempts,
				Elapsed:        time.Duration(cached.TotalTimeMS) * time.Millisecond,
				IdempotencyKey: key,
				Metadata:       map[string]string{"idempotent_hit": "true"},
			}
			e.emit(call.Tool, settings.taskID, result, true)
			return result
		}
	}

	tracer := telemetry.GetTracer()
	ctx, span := tracer.StartToolSpan(ctx, call.Tool)

	result := e.run(ctx, call, key, retry)

	var spanErr error
	if !result.Success {
		spanErr = errors.ToolFailed(call.Tool, result.Error)
	}
	tracer.EndToolSpan(span, telemetry.ToolSpanOptions{
		Tool:           call.Tool,
		Args:           call.Args,
		Attempts:       result.Attempts,
		IdempotencyKey: key,
	}, spanErr)

	// A call the limiter refused or a cancelled backoff never exhausted
	// its retry budget, so its key must stay live for the next run.
	if e.store != nil && result.completed() {
		if err := e.store.Record(key, result.Success, result.Error, result.Attempts, result.Elapsed); err != nil {
			e.logger.Warn("idempotency_record_failed", map[string]interface{}{
				"key":   key,
				"error": err.Error(),
			})
		}
	}
	e.emit(call.Tool, settings.taskID, result, false)
	return result
}

// emit sends a telemetry record for a finished call.
func (e *Executor) emit(tool string, taskID int, result ToolCallResult, cacheHit bool) {
	if e.exporter == nil {
		return
	}
	e.exporter.LogToolCall(telemetry.ToolCallRecord{
		SessionID:      e.sessionID,
		TaskID:         taskID,
		Tool:           tool,
		Success:        result.Success,
		Error:          result.Error,
		Attempts:       result.Attempts,
		IdempotentHit:  cacheHit,
		IdempotencyKey: result.IdempotencyKey,
		Latency:        result.Elapsed,
	})
}

// run drives the attempt loop.
func (e *Executor) run(ctx context.Context, call Call, key string, retry RetryConfig) ToolCallResult {
	start := time.Now()

	if call.Invoke == nil {
		return ToolCallResult{
			Error:          "call has no invoke function",
			Attempts:       0,
			IdempotencyKey: key,
		}
	}

	var lastErr error
	var prevSleep time.Duration
	attempts := 0

	for attempt := 1; attempt <= retry.MaxAttempts; attempt++ {
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx, call.Tool); err != nil {
				return ToolCallResult{
					Error:          err.Error(),
					Attempts:       attempt - 1,
					Elapsed:        time.Since(start),
					IdempotencyKey: key,
					Metadata:       map[string]string{"limited": "true"},
				}
			}
		}

		attempts = attempt
		output, err := call.Invoke(ctx, call.Args)
		if e.limiter != nil {
			e.limiter.Done(call.Tool)
		}
		if err == nil {
			return ToolCallResult{
				Success:        true,
				Result:         output,
				Attempts:       attempt,
				Elapsed:        time.Since(start),
				IdempotencyKey: key,
			}
		}
		lastErr = err

		if !retry.shouldRetry(err) || attempt == retry.MaxAttempts {
			break
		}

		delay := e.sleepDelay(retry, attempt, prevSleep)
		prevSleep = delay
		e.logger.RetryAttempt(call.Tool, attempt, delay, err.Error())

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			// A cancelled backoff reports the last failure, not the
			// cancellation.
			return ToolCallResult{
				Error:          lastErr.Error(),
				Attempts:       attempt,
				Elapsed:        time.Since(start),
				IdempotencyKey: key,
				Metadata:       map[string]string{"canceled": "true"},
			}
		case <-timer.C:
		}
	}

	errMsg := "tool failed"
	if lastErr != nil {
		errMsg = lastErr.Error()
	}
	return ToolCallResult{
		Error:          errMsg,
		Attempts:       attempts,
		Elapsed:        time.Since(start),
		IdempotencyKey: key,
	}
}

// sleepDelay computes the jittered delay for an attempt under the rng lock.
func (e *Executor) sleepDelay(retry RetryConfig, attempt int, prev time.Duration) time.Duration {
	base := retry.Backoff(attempt)
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	return retry.jittered(base, prev, e.rng)
}

// CheckpointFunc receives the result of a successful call so the caller
// can persist progress before the next call runs.
type CheckpointFunc func(ToolCallResult)

// ExecuteWithResume runs the call and, on success, invokes checkpointFn
// with the result. A cached hit also triggers the checkpoint so resumed
// runs converge on the same persisted state.
func (e *Executor) ExecuteWithResume(ctx context.Context, call Call, checkpointFn CheckpointFunc, opts ...CallOption) ToolCallResult {
	result := e.Execute(ctx, call, opts...)
	if result.Success && checkpointFn != nil {
		checkpointFn(result)
	}
	return result
}
