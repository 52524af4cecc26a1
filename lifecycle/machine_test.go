package lifecycle

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/praxislabs/agentplan/errors"
)

func TestLegalTransitions(t *testing.T) {
	legal := []struct {
		from, to Status
	}{
		{StatusPending, StatusInProgress},
		{StatusPending, StatusStopped},
		{StatusInProgress, StatusCompleted},
		{StatusInProgress, StatusFailed},
		{StatusInProgress, StatusStopped},
		{StatusFailed, StatusInProgress},
		{StatusStopped, StatusPending},
	}

	for _, tc := range legal {
		if !CanTransition(tc.from, tc.to) {
			t.Errorf("expected %s -> %s to be legal", tc.from, tc.to)
		}
	}
}

func TestIllegalTransitionsLeaveStateUnchanged(t *testing.T) {
	all := []Status{StatusPending, StatusInProgress, StatusCompleted, StatusFailed, StatusStopped}

	for _, from := range all {
		for _, to := range all {
			if CanTransition(from, to) {
				continue
			}

			m := machineIn(t, from)
			err := m.Transition(to, "should fail", nil)
			if err == nil {
				t.Errorf("%s -> %s: expected error", from, to)
				continue
			}
			if !errors.Is(err, errors.ErrCodeInvalidTransition) {
				t.Errorf("%s -> %s: expected INVALID_TRANSITION, got %v", from, to, err)
			}
			if m.Current() != from {
				t.Errorf("%s -> %s: state changed to %s on failed transition", from, to, m.Current())
			}
		}
	}
}

// machineIn builds a machine and walks it to the given state via legal moves.
func machineIn(t *testing.T, s Status) *Machine {
	t.Helper()
	m := NewMachine()
	switch s {
	case StatusPending:
	case StatusInProgress:
		mustTransition(t, m, StatusInProgress)
	case StatusCompleted:
		mustTransition(t, m, StatusInProgress, StatusCompleted)
	case StatusFailed:
		mustTransition(t, m, StatusInProgress, StatusFailed)
	case StatusStopped:
		mustTransition(t, m, StatusStopped)
	}
	return m
}

func mustTransition(t *testing.T, m *Machine, states ...Status) {
	t.Helper()
	for _, s := range states {
		if err := m.Transition(s, "test", nil); err != nil {
			t.Fatalf("setup transition to %s failed: %v", s, err)
		}
	}
}

func TestCompletedIsTerminal(t *testing.T) {
	m := machineIn(t, StatusCompleted)
	if !m.IsTerminal() {
		t.Error("completed machine should be terminal")
	}
	if len(m.ValidTransitions()) != 0 {
		t.Errorf("completed should have no valid transitions, got %v", m.ValidTransitions())
	}
}

func TestRecoverableStates(t *testing.T) {
	if !IsRecoverable(StatusFailed) || !IsRecoverable(StatusStopped) {
		t.Error("failed and stopped should be recoverable")
	}
	if IsRecoverable(StatusCompleted) || IsRecoverable(StatusPending) {
		t.Error("completed and pending are not recoverable")
	}
}

func TestErrorNamesValidTargets(t *testing.T) {
	m := NewMachine()
	err := m.Transition(StatusCompleted, "skip ahead", nil)
	if err == nil {
		t.Fatal("expected error")
	}
	msg := err.Error()
	if !strings.Contains(msg, "in_progress") || !strings.Contains(msg, "stopped") {
		t.Errorf("error should list valid targets, got: %s", msg)
	}
}

func TestHistoryAppended(t *testing.T) {
	m := NewMachine()
	mustTransition(t, m, StatusInProgress, StatusFailed, StatusInProgress, StatusCompleted)

	h := m.History()
	if len(h) != 5 { // created + 4 moves
		t.Fatalf("expected 5 history entries, got %d", len(h))
	}
	if h[0].From != nil {
		t.Error("initial entry should have nil From")
	}
	if h[0].To != StatusPending {
		t.Errorf("initial entry To = %s, want pending", h[0].To)
	}
	if *h[4].From != StatusInProgress || h[4].To != StatusCompleted {
		t.Errorf("last entry = %v -> %s", h[4].From, h[4].To)
	}
}

func TestStateDuration(t *testing.T) {
	clock := time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC)
	now := func() time.Time { return clock }

	m := NewMachine(WithClock(now))

	clock = clock.Add(10 * time.Second)
	mustTransition(t, m, StatusInProgress)

	clock = clock.Add(30 * time.Second)
	mustTransition(t, m, StatusFailed)

	clock = clock.Add(5 * time.Second)
	mustTransition(t, m, StatusInProgress)

	clock = clock.Add(20 * time.Second)

	if d := m.StateDuration(StatusPending); d != 10*time.Second {
		t.Errorf("pending duration = %v, want 10s", d)
	}
	// 30s closed interval plus 20s open-ended current interval
	if d := m.StateDuration(StatusInProgress); d != 50*time.Second {
		t.Errorf("in_progress duration = %v, want 50s", d)
	}
	if d := m.StateDuration(StatusFailed); d != 5*time.Second {
		t.Errorf("failed duration = %v, want 5s", d)
	}
}

func TestForceRecordsBypass(t *testing.T) {
	m := machineIn(t, StatusCompleted)
	m.Force(StatusPending, "legacy reset")

	if m.Current() != StatusPending {
		t.Errorf("current = %s, want pending", m.Current())
	}
	h := m.History()
	last := h[len(h)-1]
	if !last.Forced {
		t.Error("forced entry should be marked Forced")
	}
}

func TestMachineJSONRoundTrip(t *testing.T) {
	m := NewMachine()
	mustTransition(t, m, StatusInProgress, StatusFailed)

	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	// Serialized block carries the derived fields
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Unmarshal raw failed: %v", err)
	}
	if raw["current_state"] != "failed" {
		t.Errorf("current_state = %v, want failed", raw["current_state"])
	}
	if raw["is_recoverable"] != true {
		t.Error("is_recoverable should be true for failed")
	}
	if raw["transition_count"] != float64(3) {
		t.Errorf("transition_count = %v, want 3", raw["transition_count"])
	}

	var decoded Machine
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if decoded.Current() != StatusFailed {
		t.Errorf("decoded current = %s, want failed", decoded.Current())
	}
	if decoded.TransitionCount() != 3 {
		t.Errorf("decoded transition count = %d, want 3", decoded.TransitionCount())
	}
	// Decoded machine must still enforce the table
	if err := decoded.Transition(StatusCompleted, "bad", nil); err == nil {
		t.Error("decoded machine should reject failed -> completed")
	}
	if err := decoded.Transition(StatusInProgress, "retry", nil); err != nil {
		t.Errorf("decoded machine should allow failed -> in_progress: %v", err)
	}
}
