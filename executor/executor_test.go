package executor

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/praxislabs/agentplan/errors"
	"github.com/praxislabs/agentplan/logging"
	"github.com/praxislabs/agentplan/telemetry"
)

func quietLogger() *logging.Logger {
	l := logging.New()
	l.SetLevel(logging.LevelError)
	l.SetOutput(io.Discard)
	return l
}

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts: attempts,
		Policy:      BackoffFixed,
		BaseDelay:   time.Millisecond,
		MaxDelay:    10 * time.Millisecond,
	}
}

func newTestExecutor(opts ...Option) *Executor {
	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	return New(opts...)
}

func TestExecuteSuccessFirstAttempt(t *testing.T) {
	exec := newTestExecutor()
	calls := 0

	result := exec.Execute(context.Background(), Call{
		Tool: "echo",
		Invoke: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			calls++
			return "ok", nil
		},
	})

	if !result.Success {
		t.Fatalf("result = %+v, want success", result)
	}
	if result.Attempts != 1 || calls != 1 {
		t.Errorf("attempts = %d, calls = %d, want 1", result.Attempts, calls)
	}
	if result.Result != "ok" {
		t.Errorf("payload = %v, want ok", result.Result)
	}
	if result.IdempotencyKey == "" {
		t.Error("result should carry the idempotency key")
	}
}

func TestExecuteRetriesTransientThenSucceeds(t *testing.T) {
	exec := newTestExecutor(WithRetryConfig(fastRetry(5)))
	calls := 0

	result := exec.Execute(context.Background(), Call{
		Tool: "flaky",
		Invoke: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			calls++
			if calls < 3 {
				return nil, errors.Timeout("transient glitch")
			}
			return 42, nil
		},
	})

	if !result.Success {
		t.Fatalf("result = %+v, want success after retries", result)
	}
	if result.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", result.Attempts)
	}
}

func TestExecutePermanentErrorNotRetried(t *testing.T) {
	exec := newTestExecutor(WithRetryConfig(fastRetry(5)))
	calls := 0

	result := exec.Execute(context.Background(), Call{
		Tool: "strict",
		Invoke: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			calls++
			return nil, errors.InvalidInput("bad arguments")
		},
	})

	if result.Success {
		t.Fatal("permanent error should fail the call")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry on permanent)", calls)
	}
}

func TestExecuteExhaustedRetriesReturnsFailedResult(t *testing.T) {
	exec := newTestExecutor(WithRetryConfig(fastRetry(3)))
	calls := 0

	result := exec.Execute(context.Background(), Call{
		Tool: "down",
		Invoke: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			calls++
			return nil, errors.Timeout("still down")
		},
	})

	if result.Success {
		t.Fatal("exhausted retries should produce a failed result")
	}
	if result.Attempts != 3 || calls != 3 {
		t.Errorf("attempts = %d, calls = %d, want 3", result.Attempts, calls)
	}
	if result.Error == "" {
		t.Error("failed result should carry the last error text")
	}
}

func TestExecuteRetryableCodesNarrowClassification(t *testing.T) {
	cfg := fastRetry(4)
	cfg.RetryableCodes = []errors.ErrorCode{errors.ErrCodeRateLimit}
	exec := newTestExecutor(WithRetryConfig(cfg))

	// A timeout is retryable by default but not in the explicit set.
	calls := 0
	result := exec.Execute(context.Background(), Call{
		Tool: "timeout",
		Invoke: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			calls++
			return nil, errors.Timeout("slow")
		},
	})
	if result.Success || calls != 1 {
		t.Errorf("timeout outside RetryableCodes: calls = %d, want 1", calls)
	}

	// Rate limits retry up to the attempt cap.
	calls = 0
	exec.Execute(context.Background(), Call{
		Tool: "limited",
		Invoke: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			calls++
			return nil, errors.RateLimited("slow down")
		},
	})
	if calls != 4 {
		t.Errorf("rate limit in RetryableCodes: calls = %d, want 4", calls)
	}
}

func TestExecuteRetryableStatusOverridesPermanent(t *testing.T) {
	cfg := fastRetry(3)
	cfg.RetryableStatus = []int{503}
	exec := newTestExecutor(WithRetryConfig(cfg))

	calls := 0
	exec.Execute(context.Background(), Call{
		Tool: "proxy",
		Invoke: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			calls++
			return nil, errors.InvalidInput("upstream rejected", errors.WithStatusCode(503))
		},
	})
	if calls != 3 {
		t.Errorf("calls = %d, want 3 (status 503 forces retry)", calls)
	}
}

func TestExecuteIdempotencyShortCircuit(t *testing.T) {
	store := NewIdempotencyStore()
	exec := newTestExecutor(WithStore(store))
	calls := 0
	call := Call{
		Tool: "write_file",
		Args: map[string]interface{}{"path": "a.go"},
		Invoke: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			calls++
			return "written", nil
		},
	}

	first := exec.Execute(context.Background(), call)
	second := exec.Execute(context.Background(), call)

	if calls != 1 {
		t.Errorf("calls = %d, want 1 (second run short-circuits)", calls)
	}
	if !second.Success {
		t.Error("cached success should report success")
	}
	if second.Metadata["idempotent_hit"] != "true" {
		t.Errorf("metadata = %v, want idempotent_hit", second.Metadata)
	}
	if second.IdempotencyKey != first.IdempotencyKey {
		t.Error("both runs should share the fingerprint key")
	}
	// Outcome only: the cached result carries no payload.
	if second.Result != nil {
		t.Errorf("cached result payload = %v, want nil", second.Result)
	}
}

func TestExecuteCachesFailuresToo(t *testing.T) {
	store := NewIdempotencyStore()
	exec := newTestExecutor(WithStore(store), WithRetryConfig(fastRetry(2)))
	calls := 0
	call := Call{
		Tool: "doomed",
		Invoke: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			calls++
			return nil, errors.Timeout("down")
		},
	}

	exec.Execute(context.Background(), call)
	cached := exec.Execute(context.Background(), call)

	if calls != 2 {
		t.Errorf("calls = %d, want 2 (one run of two attempts)", calls)
	}
	if cached.Success {
		t.Error("cached failure should report failure")
	}
	if cached.Metadata["idempotent_hit"] != "true" {
		t.Error("second run should be a cache hit")
	}
}

func TestExecuteContextCanceledDuringBackoff(t *testing.T) {
	cfg := RetryConfig{
		MaxAttempts: 3,
		Policy:      BackoffFixed,
		BaseDelay:   time.Minute, // never actually slept
		MaxDelay:    time.Minute,
	}
	exec := newTestExecutor(WithRetryConfig(cfg))

	ctx, cancel := context.WithCancel(context.Background())
	result := exec.Execute(ctx, Call{
		Tool: "slow",
		Invoke: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			cancel()
			return nil, errors.Timeout("first failure")
		},
	})

	if result.Success {
		t.Fatal("canceled backoff should not succeed")
	}
	if result.Error != "first failure" {
		t.Errorf("error = %q, want the last tool failure", result.Error)
	}
	if result.Metadata["canceled"] != "true" {
		t.Errorf("metadata = %v, want canceled marker", result.Metadata)
	}
}

func TestExecuteWithResumeInvokesCheckpoint(t *testing.T) {
	exec := newTestExecutor(WithRetryConfig(fastRetry(2)))

	saved := 0
	result := exec.ExecuteWithResume(context.Background(), Call{
		Tool: "build",
		Invoke: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			return "done", nil
		},
	}, func(r ToolCallResult) {
		saved++
		if !r.Success {
			t.Error("checkpoint func should only see successes")
		}
	})
	if !result.Success || saved != 1 {
		t.Errorf("saved = %d, want 1", saved)
	}

	exec.ExecuteWithResume(context.Background(), Call{
		Tool: "break",
		Invoke: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			return nil, errors.InvalidInput("nope")
		},
	}, func(r ToolCallResult) {
		saved++
	})
	if saved != 1 {
		t.Error("failed call should not checkpoint")
	}
}

func TestFingerprintStableAndDistinct(t *testing.T) {
	a := Call{Tool: "shell", Args: map[string]interface{}{"cmd": "ls", "dir": "/tmp"}}
	b := Call{Tool: "shell", Args: map[string]interface{}{"dir": "/tmp", "cmd": "ls"}}
	c := Call{Tool: "shell", Args: map[string]interface{}{"cmd": "ls", "dir": "/var"}}

	if Fingerprint(a) != Fingerprint(b) {
		t.Error("key order should not change the fingerprint")
	}
	if Fingerprint(a) == Fingerprint(c) {
		t.Error("different args should change the fingerprint")
	}
	if Fingerprint(a) == Fingerprint(Call{Tool: "exec", Args: a.Args}) {
		t.Error("different tools should change the fingerprint")
	}
}

func TestStoreDiskMirror(t *testing.T) {
	path := filepath.Join(t.TempDir(), "idempotency.json")

	store, err := OpenIdempotencyStore(path)
	if err != nil {
		t.Fatalf("OpenIdempotencyStore failed: %v", err)
	}
	if err := store.Record("shell:abc", true, "", 2, 1500*time.Millisecond); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	// Disk format: {key: {success, error, attempts, total_time_ms}}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	var raw map[string]map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("mirror is not valid JSON: %v", err)
	}
	entry := raw["shell:abc"]
	if entry == nil {
		t.Fatalf("mirror = %v, want shell:abc entry", raw)
	}
	if entry["success"] != true {
		t.Errorf("success = %v, want true", entry["success"])
	}
	if entry["total_time_ms"].(float64) != 1500 {
		t.Errorf("total_time_ms = %v, want 1500", entry["total_time_ms"])
	}
	if _, hasPayload := entry["result"]; hasPayload {
		t.Error("mirror must not persist result payloads")
	}

	// A reopened store sees the prior outcome.
	reopened, err := OpenIdempotencyStore(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	outcome, ok := reopened.Get("shell:abc")
	if !ok || !outcome.Success || outcome.Attempts != 2 {
		t.Errorf("reopened outcome = %+v, ok = %v", outcome, ok)
	}
}

func TestStoreCorruptMirrorRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "idempotency.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := OpenIdempotencyStore(path); !errors.Is(err, errors.ErrCodeCorruption) {
		t.Errorf("err = %v, want CORRUPTION", err)
	}
}

func TestExecuteNoInvokeFunc(t *testing.T) {
	exec := newTestExecutor()
	result := exec.Execute(context.Background(), Call{Tool: "ghost"})
	if result.Success || result.Error == "" {
		t.Errorf("result = %+v, want failure with message", result)
	}
}

func TestExecuteLimiterFailureStopsCall(t *testing.T) {
	exec := newTestExecutor(WithLimiter(stubLimiter{err: errors.RateLimited("bucket empty", errors.WithRetryable(false))}))
	calls := 0
	result := exec.Execute(context.Background(), Call{
		Tool: "gated",
		Invoke: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			calls++
			return "ok", nil
		},
	})
	if result.Success || calls != 0 {
		t.Errorf("result = %+v, calls = %d, want blocked call", result, calls)
	}
}

func TestLimiterRefusalNotCached(t *testing.T) {
	store := NewIdempotencyStore()
	limiter := &countingLimiter{refusals: 1}
	exec := newTestExecutor(WithStore(store), WithLimiter(limiter))
	calls := 0
	call := Call{
		Tool: "gated",
		Invoke: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			calls++
			return "ok", nil
		},
	}

	first := exec.Execute(context.Background(), call)
	if first.Success || first.Attempts != 0 || calls != 0 {
		t.Fatalf("first = %+v, calls = %d, want refused before any attempt", first, calls)
	}

	// The refusal must not poison the key: the next run gets through.
	second := exec.Execute(context.Background(), call)
	if !second.Success || calls != 1 {
		t.Errorf("second = %+v, calls = %d, want the tool to run", second, calls)
	}
	if second.Metadata["idempotent_hit"] == "true" {
		t.Error("refused call must not be served from the cache")
	}
}

func TestCanceledBackoffNotCached(t *testing.T) {
	store := NewIdempotencyStore()
	cfg := RetryConfig{
		MaxAttempts: 3,
		Policy:      BackoffFixed,
		BaseDelay:   time.Minute,
		MaxDelay:    time.Minute,
	}
	exec := newTestExecutor(WithStore(store), WithRetryConfig(cfg))

	calls := 0
	ctx, cancel := context.WithCancel(context.Background())
	call := Call{
		Tool: "slow",
		Invoke: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			calls++
			if calls == 1 {
				cancel()
				return nil, errors.Timeout("first failure")
			}
			return "ok", nil
		},
	}
	exec.Execute(ctx, call)

	// A fresh run still has its full retry budget.
	second := exec.Execute(context.Background(), call)
	if !second.Success || calls != 2 {
		t.Errorf("second = %+v, calls = %d, want a real retry", second, calls)
	}
}

func TestNoInvokeFuncNotCached(t *testing.T) {
	store := NewIdempotencyStore()
	exec := newTestExecutor(WithStore(store))

	exec.Execute(context.Background(), Call{Tool: "ghost"}, WithIdempotencyKey("ghost-key"))
	if _, ok := store.Get("ghost-key"); ok {
		t.Error("a call that never ran must not enter the cache")
	}
}

func TestLimiterDoneCalledPerAttempt(t *testing.T) {
	limiter := &countingLimiter{}
	exec := newTestExecutor(WithLimiter(limiter), WithRetryConfig(fastRetry(5)))

	calls := 0
	exec.Execute(context.Background(), Call{
		Tool: "flaky",
		Invoke: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			calls++
			if calls < 3 {
				return nil, errors.Timeout("transient")
			}
			return "ok", nil
		},
	})

	if limiter.waits != 3 || limiter.dones != 3 {
		t.Errorf("waits = %d, dones = %d, want 3 each", limiter.waits, limiter.dones)
	}
}

func TestExecuteEmitsTelemetryRecords(t *testing.T) {
	store := NewIdempotencyStore()
	rec := &recordingExporter{}
	exec := newTestExecutor(
		WithStore(store),
		WithExporter(rec),
		WithSessionID("sess-1"),
	)
	call := Call{
		Tool: "shell",
		Invoke: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			return "ok", nil
		},
	}

	exec.Execute(context.Background(), call, WithTaskID(7))
	exec.Execute(context.Background(), call, WithTaskID(7))

	if len(rec.records) != 2 {
		t.Fatalf("records = %d, want 2", len(rec.records))
	}
	first, second := rec.records[0], rec.records[1]
	if !first.Success || first.Tool != "shell" || first.TaskID != 7 || first.SessionID != "sess-1" {
		t.Errorf("first record = %+v", first)
	}
	if first.IdempotentHit || !second.IdempotentHit {
		t.Errorf("idempotent_hit: first = %v, second = %v", first.IdempotentHit, second.IdempotentHit)
	}
}

type stubLimiter struct{ err error }

func (s stubLimiter) Wait(ctx context.Context, tool string) error { return s.err }
func (s stubLimiter) Done(tool string)                            {}

// countingLimiter refuses the first `refusals` waits, then admits and
// counts every Wait/Done pair.
type countingLimiter struct {
	refusals int
	waits    int
	dones    int
}

func (c *countingLimiter) Wait(ctx context.Context, tool string) error {
	if c.refusals > 0 {
		c.refusals--
		return errors.RateLimited("bucket empty", errors.WithRetryable(false))
	}
	c.waits++
	return nil
}

func (c *countingLimiter) Done(tool string) { c.dones++ }

type recordingExporter struct {
	records []telemetry.ToolCallRecord
}

func (r *recordingExporter) LogEvent(name string, data map[string]interface{}) {}
func (r *recordingExporter) LogToolCall(rec telemetry.ToolCallRecord) {
	r.records = append(r.records, rec)
}
func (r *recordingExporter) Flush() error { return nil }
func (r *recordingExporter) Close() error { return nil }
