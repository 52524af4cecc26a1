package lifecycle

import (
	"encoding/json"
	"time"

	"github.com/praxislabs/agentplan/errors"
)

// Machine enforces the legal lifecycle of a single task and records its
// transition history. A Machine is exclusively owned by one task; the
// owning plan's mutex serializes all mutation, so Machine itself holds
// no lock.
type Machine struct {
	current Status
	history []Transition
	nowFunc func() time.Time // for testing
}

// MachineOption configures a Machine.
type MachineOption func(*Machine)

// WithClock sets a custom clock, used by tests to make durations deterministic.
func WithClock(now func() time.Time) MachineOption {
	return func(m *Machine) {
		m.nowFunc = now
	}
}

// NewMachine creates a machine in PENDING with an initial history entry.
func NewMachine(opts ...MachineOption) *Machine {
	m := &Machine{
		current: StatusPending,
		nowFunc: time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.history = append(m.history, Transition{
		From:      nil,
		To:        StatusPending,
		Timestamp: m.nowFunc(),
		Reason:    "created",
	})
	return m
}

// Current returns the current status.
func (m *Machine) Current() Status {
	return m.current
}

// CanTransition reports whether moving to the given status is legal now.
func (m *Machine) CanTransition(to Status) bool {
	return CanTransition(m.current, to)
}

// ValidTransitions returns the legal target states from the current status.
func (m *Machine) ValidTransitions() []Status {
	return ValidTransitions(m.current)
}

// IsTerminal reports whether the machine can never move again.
func (m *Machine) IsTerminal() bool {
	return IsTerminal(m.current)
}

// IsRecoverable reports whether the machine is halted but can be revived.
func (m *Machine) IsRecoverable() bool {
	return IsRecoverable(m.current)
}

// Transition applies a state change and appends it to the history.
// An illegal move returns an INVALID_TRANSITION error naming the currently
// valid targets; the current state is left unchanged.
func (m *Machine) Transition(to Status, reason string, metadata map[string]string) error {
	if !m.CanTransition(to) {
		valid := make([]string, 0, len(transitionTable[m.current]))
		for _, s := range transitionTable[m.current] {
			valid = append(valid, s.String())
		}
		return errors.InvalidTransition(m.current.String(), to.String(), valid)
	}

	from := m.current
	m.history = append(m.history, Transition{
		From:      &from,
		To:        to,
		Timestamp: m.nowFunc(),
		Reason:    reason,
		Metadata:  copyMetadata(metadata),
	})
	m.current = to
	return nil
}

// Force sets the state without consulting the transition table. The entry
// is recorded with Forced=true so the bypass is visible in the history.
// Callers must log forced moves; the primary path is Transition.
func (m *Machine) Force(to Status, reason string) {
	from := m.current
	m.history = append(m.history, Transition{
		From:      &from,
		To:        to,
		Timestamp: m.nowFunc(),
		Reason:    reason,
		Forced:    true,
	})
	m.current = to
}

// StateDuration sums the intervals during which the machine resided in the
// given state, including an open-ended interval if it is the current state.
func (m *Machine) StateDuration(s Status) time.Duration {
	var total time.Duration
	for i, tr := range m.history {
		if tr.To != s {
			continue
		}
		end := m.nowFunc()
		if i+1 < len(m.history) {
			end = m.history[i+1].Timestamp
		}
		total += end.Sub(tr.Timestamp)
	}
	return total
}

// Clone returns an independent copy of the machine and its history.
func (m *Machine) Clone() *Machine {
	history := make([]Transition, len(m.history))
	copy(history, m.history)
	return &Machine{
		current: m.current,
		history: history,
		nowFunc: m.nowFunc,
	}
}

// History returns a copy of the transition log.
func (m *Machine) History() []Transition {
	out := make([]Transition, len(m.history))
	copy(out, m.history)
	return out
}

// TransitionCount returns the number of recorded transitions, including
// the initial creation entry.
func (m *Machine) TransitionCount() int {
	return len(m.history)
}

// machineJSON is the serialized form embedded in checkpoints.
type machineJSON struct {
	CurrentState    Status       `json:"current_state"`
	IsTerminal      bool         `json:"is_terminal"`
	IsRecoverable   bool         `json:"is_recoverable"`
	TransitionCount int          `json:"transition_count"`
	Transitions     []Transition `json:"transitions"`
}

// MarshalJSON implements json.Marshaler.
func (m *Machine) MarshalJSON() ([]byte, error) {
	return json.Marshal(machineJSON{
		CurrentState:    m.current,
		IsTerminal:      m.IsTerminal(),
		IsRecoverable:   m.IsRecoverable(),
		TransitionCount: len(m.history),
		Transitions:     m.history,
	})
}

// UnmarshalJSON implements json.Unmarshaler. The derived fields in the
// serialized form are ignored; state is rebuilt from the transition log.
func (m *Machine) UnmarshalJSON(data []byte) error {
	var j machineJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	m.current = j.CurrentState
	m.history = j.Transitions
	m.nowFunc = time.Now
	return nil
}

func copyMetadata(metadata map[string]string) map[string]string {
	if metadata == nil {
		return nil
	}
	out := make(map[string]string, len(metadata))
	for k, v := range metadata {
		out[k] = v
	}
	return out
}
