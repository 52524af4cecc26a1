// OpenTelemetry tracing support for engine observability.
package telemetry

import (
	"context"
	"encoding/json"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Tracer wraps OpenTelemetry tracing with engine-specific helpers.
type Tracer struct {
	tracer trace.Tracer
	debug  bool // When true, include tool results in span attributes
}

var (
	globalTracer *Tracer
	tracerMu     sync.RWMutex
)

// SetGlobalTracer sets the global tracer instance.
func SetGlobalTracer(t *Tracer) {
	tracerMu.Lock()
	defer tracerMu.Unlock()
	globalTracer = t
}

// GetTracer returns the global tracer, or a no-op tracer if not set.
func GetTracer() *Tracer {
	tracerMu.RLock()
	defer tracerMu.RUnlock()
	if globalTracer == nil {
		return &Tracer{tracer: noop.NewTracerProvider().Tracer("")}
	}
	return globalTracer
}

// NewTracer creates a new tracer with the given name.
func NewTracer(name string, debug bool) *Tracer {
	return &Tracer{
		tracer: otel.Tracer(name),
		debug:  debug,
	}
}

// SetDebug enables or disables debug mode (results in spans).
func (t *Tracer) SetDebug(debug bool) {
	t.debug = debug
}

// Debug returns whether debug mode is enabled.
func (t *Tracer) Debug() bool {
	return t.debug
}

// StartSpan starts a new span with the given name.
func (t *Tracer) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, opts...)
}

// --- Tool Spans ---

// ToolSpanOptions contains options for tool invocation spans.
type ToolSpanOptions struct {
	Tool           string
	Args           map[string]interface{}
	Attempts       int
	IdempotentHit  bool
	IdempotencyKey string
	Result         string // Only included if debug=true
}

// StartToolSpan starts a span for a tool invocation.
func (t *Tracer) StartToolSpan(ctx context.Context, toolName string) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, "tool."+toolName, trace.WithSpanKind(trace.SpanKindInternal))
	span.SetAttributes(attribute.String("tool.name", toolName))
	return ctx, span
}

// EndToolSpan ends a tool span with attributes.
func (t *Tracer) EndToolSpan(span trace.Span, opts ToolSpanOptions, err error) {
	attrs := []attribute.KeyValue{
		attribute.Int("tool.attempts", opts.Attempts),
		attribute.Bool("tool.idempotent_hit", opts.IdempotentHit),
	}
	if opts.IdempotencyKey != "" {
		attrs = append(attrs, attribute.String("tool.idempotency_key", opts.IdempotencyKey))
	}

	// Args are always logged (engine-controlled, not user data)
	for k, v := range opts.Args {
		attrs = append(attrs, attribute.String("tool.arg."+k, truncateAny(v, 500)))
	}

	// Result only in debug mode (may contain user data)
	if t.debug && opts.Result != "" {
		attrs = append(attrs, attribute.String("tool.result", truncate(opts.Result, 4000)))
	}

	span.SetAttributes(attrs...)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	span.End()
}

// --- Checkpoint Spans ---

// CheckpointSpanOptions contains options for checkpoint spans.
type CheckpointSpanOptions struct {
	SessionID string
	Number    int
	Reason    string
	Path      string
	Forced    bool
}

// StartCheckpointSpan starts a span for a checkpoint write.
func (t *Tracer) StartCheckpointSpan(ctx context.Context, reason string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "checkpoint."+reason, trace.WithSpanKind(trace.SpanKindInternal))
}

// EndCheckpointSpan ends a checkpoint span with attributes.
func (t *Tracer) EndCheckpointSpan(span trace.Span, opts CheckpointSpanOptions, err error) {
	span.SetAttributes(
		attribute.String("checkpoint.session", opts.SessionID),
		attribute.Int("checkpoint.number", opts.Number),
		attribute.String("checkpoint.reason", opts.Reason),
		attribute.Bool("checkpoint.forced", opts.Forced),
		attribute.String("checkpoint.path", opts.Path),
	)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	span.End()
}

// --- Plan Spans ---

// PlanSpanOptions contains options for scheduling pass spans.
type PlanSpanOptions struct {
	TaskCount      int
	ReadyCount     int
	CompletedCount int
}

// StartPlanSpan starts a span for a scheduling pass.
func (t *Tracer) StartPlanSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "plan."+name, trace.WithSpanKind(trace.SpanKindInternal))
}

// EndPlanSpan ends a scheduling span with attributes.
func (t *Tracer) EndPlanSpan(span trace.Span, opts PlanSpanOptions, err error) {
	span.SetAttributes(
		attribute.Int("plan.tasks", opts.TaskCount),
		attribute.Int("plan.ready", opts.ReadyCount),
		attribute.Int("plan.completed", opts.CompletedCount),
	)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	span.End()
}

// --- Helpers ---

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

func truncateAny(v interface{}, maxLen int) string {
	switch val := v.(type) {
	case string:
		return truncate(val, maxLen)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return "<unserializable>"
		}
		return truncate(string(data), maxLen)
	}
}
