package ratelimit

import (
	"context"
	"errors"
)

// ToolGate adapts a Limiter to the executor's pre-call hook. Tools
// without a configured bucket pass through unthrottled.
type ToolGate struct {
	limiter Limiter
}

// NewToolGate wraps a limiter for use as an executor gate.
func NewToolGate(l Limiter) *ToolGate {
	return &ToolGate{limiter: l}
}

// Wait blocks until the tool may run.
func (g *ToolGate) Wait(ctx context.Context, tool string) error {
	err := g.limiter.Acquire(ctx, tool)
	if errors.Is(err, ErrToolUnknown) {
		return nil
	}
	return err
}

// Done marks the tool's call finished. The consumed token is not
// returned: the per-window rate limit still applies to later calls.
func (g *ToolGate) Done(tool string) {
	g.limiter.Done(tool)
}
