package lifecycle

import (
	"time"
)

// Status represents the lifecycle state of a task.
type Status string

const (
	// StatusPending indicates the task is waiting to be scheduled.
	StatusPending Status = "pending"

	// StatusInProgress indicates the task is being executed by an agent.
	StatusInProgress Status = "in_progress"

	// StatusCompleted indicates the task finished successfully. Terminal.
	StatusCompleted Status = "completed"

	// StatusFailed indicates the task failed. Recoverable via IN_PROGRESS.
	StatusFailed Status = "failed"

	// StatusStopped indicates the task was halted. Recoverable via PENDING.
	StatusStopped Status = "stopped"
)

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// transitionTable defines every legal lifecycle move.
// COMPLETED has no outgoing edges.
var transitionTable = map[Status][]Status{
	StatusPending:    {StatusInProgress, StatusStopped},
	StatusInProgress: {StatusCompleted, StatusFailed, StatusStopped},
	StatusFailed:     {StatusInProgress},
	StatusStopped:    {StatusPending},
	StatusCompleted:  {},
}

// TerminalStatuses are states with no outgoing transitions.
var TerminalStatuses = []Status{StatusCompleted}

// RecoverableStatuses are states a task can leave again after halting.
var RecoverableStatuses = []Status{StatusFailed, StatusStopped}

// CanTransition reports whether moving from one status to another is legal.
// It is the instance-free variant of Machine.CanTransition, usable for
// validation without constructing a machine.
func CanTransition(from, to Status) bool {
	for _, target := range transitionTable[from] {
		if target == to {
			return true
		}
	}
	return false
}

// ValidTransitions returns the legal target states from the given status.
func ValidTransitions(from Status) []Status {
	targets := transitionTable[from]
	out := make([]Status, len(targets))
	copy(out, targets)
	return out
}

// IsTerminal reports whether the status has no outgoing transitions.
func IsTerminal(s Status) bool {
	for _, t := range TerminalStatuses {
		if t == s {
			return true
		}
	}
	return false
}

// IsRecoverable reports whether the status can be left again after halting.
func IsRecoverable(s Status) bool {
	for _, r := range RecoverableStatuses {
		if r == s {
			return true
		}
	}
	return false
}

// IsSettled reports whether a task in this status needs no further
// scheduling. A plan is complete once every task is settled.
func IsSettled(s Status) bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusStopped:
		return true
	default:
		return false
	}
}

// Transition is an immutable log entry recording one state change.
// From is nil for the initial entry written at machine creation.
type Transition struct {
	From      *Status           `json:"from"`
	To        Status            `json:"to"`
	Timestamp time.Time         `json:"timestamp"`
	Reason    string            `json:"reason,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Forced    bool              `json:"forced,omitempty"`
}
