package ratelimit

import (
	"context"
	"sync"
	"time"
)

// reduceFactor is applied to a bucket's capacity on each throttle signal.
const reduceFactor = 0.75

// bucket implements a token bucket.
type bucket struct {
	capacity   int           // maximum tokens
	available  int           // current tokens
	window     time.Duration // refill window
	lastRefill time.Time
	inFlight   int
	cond       *sync.Cond
}

// refill adds tokens based on elapsed time since last refill.
func (b *bucket) refill(now time.Time) {
	if b.window == 0 || b.capacity == 0 {
		return
	}

	elapsed := now.Sub(b.lastRefill)
	if elapsed <= 0 {
		return
	}

	// rate = capacity / window
	tokensToAdd := int(float64(b.capacity) * float64(elapsed) / float64(b.window))
	if tokensToAdd > 0 {
		b.available += tokensToAdd
		if b.available > b.capacity {
			b.available = b.capacity
		}
		b.lastRefill = now
	}
}

// MemoryLimiter provides local rate limiting using token buckets.
// It is safe for concurrent use.
type MemoryLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	closed  bool
	nowFunc func() time.Time
}

// MemoryOption configures a MemoryLimiter.
type MemoryOption func(*MemoryLimiter)

// WithClock overrides the time source, used by tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *MemoryLimiter) {
		m.nowFunc = now
	}
}

// NewMemoryLimiter creates a new in-memory rate limiter.
func NewMemoryLimiter(opts ...MemoryOption) *MemoryLimiter {
	m := &MemoryLimiter{
		buckets: make(map[string]*bucket),
		nowFunc: time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetCapacity configures the rate limit for a tool.
func (m *MemoryLimiter) SetCapacity(tool string, capacity int, window time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}

	if capacity <= 0 || window <= 0 {
		delete(m.buckets, tool)
		return
	}

	if b, exists := m.buckets[tool]; exists {
		b.capacity = capacity
		b.window = window
		if b.available > capacity {
			b.available = capacity
		}
	} else {
		m.buckets[tool] = &bucket{
			capacity:   capacity,
			available:  capacity, // start full
			window:     window,
			lastRefill: m.nowFunc(),
		}
	}
}

// GetCapacity returns the current capacity info for a tool.
func (m *MemoryLimiter) GetCapacity(tool string) *Capacity {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, exists := m.buckets[tool]
	if !exists {
		return nil
	}

	b.refill(m.nowFunc())

	return &Capacity{
		Tool:      tool,
		Available: b.available,
		Total:     b.capacity,
		Window:    b.window,
		InFlight:  b.inFlight,
	}
}

// Acquire blocks until a token is available for the tool.
func (m *MemoryLimiter) Acquire(ctx context.Context, tool string) error {
	// Fast path
	if m.TryAcquire(tool) {
		return nil
	}

	// Wake waiters when the context ends
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			m.mu.Lock()
			if b, exists := m.buckets[tool]; exists && b.cond != nil {
				b.cond.Broadcast()
			}
			m.mu.Unlock()
		case <-done:
		}
	}()
	defer close(done)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	b, exists := m.buckets[tool]
	if !exists {
		return ErrToolUnknown
	}

	if b.cond == nil {
		b.cond = sync.NewCond(&m.mu)
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if m.closed {
			return ErrClosed
		}
		b, exists = m.buckets[tool]
		if !exists {
			return ErrToolUnknown
		}

		b.refill(m.nowFunc())
		if b.available > 0 {
			b.available--
			b.inFlight++
			return nil
		}

		// Periodic wakeup so refills and context checks happen even
		// without Release calls.
		go func() {
			time.Sleep(50 * time.Millisecond)
			m.mu.Lock()
			if b.cond != nil {
				b.cond.Broadcast()
			}
			m.mu.Unlock()
		}()
		b.cond.Wait()
	}
}

// TryAcquire attempts to acquire a token without blocking.
func (m *MemoryLimiter) TryAcquire(tool string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false
	}

	b, exists := m.buckets[tool]
	if !exists {
		return false
	}

	b.refill(m.nowFunc())

	if b.available > 0 {
		b.available--
		b.inFlight++
		return true
	}
	return false
}

// Release returns a token to the tool's bucket.
func (m *MemoryLimiter) Release(tool string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}

	b, exists := m.buckets[tool]
	if !exists {
		return
	}

	if b.inFlight > 0 {
		b.inFlight--
	}
	if b.available < b.capacity {
		b.available++
	}
	if b.cond != nil {
		b.cond.Signal()
	}
}

// Done marks an acquired call finished. Unlike Release it does not
// return the token, so the per-window rate still holds.
func (m *MemoryLimiter) Done(tool string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}

	b, exists := m.buckets[tool]
	if !exists {
		return
	}

	if b.inFlight > 0 {
		b.inFlight--
	}
	if b.cond != nil {
		b.cond.Signal()
	}
}

// ReduceCapacity shrinks a tool's capacity after a throttling signal.
func (m *MemoryLimiter) ReduceCapacity(tool string, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, exists := m.buckets[tool]
	if !exists {
		return
	}

	newCapacity := int(float64(b.capacity) * reduceFactor)
	if newCapacity < 1 {
		newCapacity = 1
	}
	b.capacity = newCapacity
	if b.available > newCapacity {
		b.available = newCapacity
	}
}

// Close shuts down the limiter.
func (m *MemoryLimiter) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	m.closed = true

	for _, b := range m.buckets {
		if b.cond != nil {
			b.cond.Broadcast()
		}
	}
	return nil
}

// Ensure MemoryLimiter implements Limiter.
var _ Limiter = (*MemoryLimiter)(nil)
