package executor

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/praxislabs/agentplan/errors"
)

// CachedOutcome is the persisted record of a completed tool call. Only the
// outcome is kept: success flag, error text, attempt count and total time.
// Result payloads are deliberately not stored, so a cache hit certifies
// that the call already ran, not what it returned.
type CachedOutcome struct {
	Success     bool   `json:"success"`
	Error       string `json:"error,omitempty"`
	Attempts    int    `json:"attempts"`
	TotalTimeMS int64  `json:"total_time_ms"`
}

// IdempotencyStore records completed tool-call outcomes keyed by call
// fingerprint. It is safe for concurrent use. When a path is given the
// store mirrors its contents to a JSON file: the file is read once at
// construction and rewritten after every update.
type IdempotencyStore struct {
	mu      sync.Mutex
	entries map[string]CachedOutcome
	path    string
}

// NewIdempotencyStore creates an in-memory store.
func NewIdempotencyStore() *IdempotencyStore {
	return &IdempotencyStore{entries: make(map[string]CachedOutcome)}
}

// OpenIdempotencyStore creates a store mirrored to the given file. A
// missing file starts the store empty; an unreadable one is an error.
func OpenIdempotencyStore(path string) (*IdempotencyStore, error) {
	s := &IdempotencyStore{
		entries: make(map[string]CachedOutcome),
		path:    path,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, errors.WrapWithCode(err, errors.ErrCodeCheckpointIO,
			"read idempotency store")
	}
	if err := json.Unmarshal(data, &s.entries); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrCodeCorruption,
			"parse idempotency store")
	}
	return s, nil
}

// Get returns the cached outcome for key, if any.
func (s *IdempotencyStore) Get(key string) (CachedOutcome, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	outcome, ok := s.entries[key]
	return outcome, ok
}

// Put records the outcome for key and rewrites the disk mirror if one is
// configured.
func (s *IdempotencyStore) Put(key string, outcome CachedOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = outcome
	return s.flushLocked()
}

// Record stores the outcome of a finished call.
func (s *IdempotencyStore) Record(key string, success bool, errMsg string, attempts int, total time.Duration) error {
	return s.Put(key, CachedOutcome{
		Success:     success,
		Error:       errMsg,
		Attempts:    attempts,
		TotalTimeMS: total.Milliseconds(),
	})
}

// Delete removes a cached outcome, forcing the next call with this key to
// run again.
func (s *IdempotencyStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return s.flushLocked()
}

// Len returns the number of cached outcomes.
func (s *IdempotencyStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Clear removes all cached outcomes.
func (s *IdempotencyStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]CachedOutcome)
	return s.flushLocked()
}

// flushLocked rewrites the disk mirror. Callers must hold the mutex.
func (s *IdempotencyStore) flushLocked() error {
	if s.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrCodeInternal,
			"marshal idempotency store")
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.WrapWithCode(err, errors.ErrCodeCheckpointIO,
				"create idempotency store directory")
		}
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return errors.WrapWithCode(err, errors.ErrCodeCheckpointIO,
			"write idempotency store")
	}
	return nil
}
