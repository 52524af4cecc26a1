// Package lifecycle enforces the legal state machine of a single task.
//
// Tasks move through the following states:
//
//	PENDING → IN_PROGRESS → COMPLETED (terminal)
//	   ↕            ↓
//	STOPPED ←── FAILED → IN_PROGRESS (retry)
//
// The full transition table:
//
//	PENDING     → IN_PROGRESS, STOPPED
//	IN_PROGRESS → COMPLETED, FAILED, STOPPED
//	FAILED      → IN_PROGRESS
//	STOPPED     → PENDING
//	COMPLETED   → (none)
//
// COMPLETED is terminal. FAILED and STOPPED are recoverable: a failed task
// can be retried and a stopped task can be re-queued, which is what makes
// resume-after-interruption work without a separate resume code path.
//
// # Usage
//
//	m := lifecycle.NewMachine()
//	err := m.Transition(lifecycle.StatusInProgress, "dispatched", nil)
//	if err != nil {
//	    // illegal move; err names the currently valid targets
//	}
//
// Every applied change is appended to an immutable history, which is
// serialized into checkpoints and used for per-state duration accounting.
//
// # Thread Safety
//
// A Machine holds no lock. It is exclusively owned by one task and all
// mutation goes through the owning plan's mutex.
package lifecycle
