package plan

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/praxislabs/agentplan/errors"
	"github.com/praxislabs/agentplan/lifecycle"
)

// taskAlias avoids recursive MarshalJSON on Task.
type taskAlias Task

type taskJSON struct {
	*taskAlias
	StateMachine *lifecycle.Machine `json:"state_machine"`
}

// MarshalJSON implements json.Marshaler, nesting the state-machine block.
func (t *Task) MarshalJSON() ([]byte, error) {
	return json.Marshal(taskJSON{(*taskAlias)(t), t.machine})
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Task) UnmarshalJSON(data []byte) error {
	j := taskJSON{taskAlias: (*taskAlias)(t)}
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	t.machine = j.StateMachine
	if t.machine == nil {
		t.machine = lifecycle.NewMachine()
	}
	return nil
}

// Snapshot is the full-fidelity serialized form of a plan.
type Snapshot struct {
	Tasks        []*Task                `json:"tasks"`
	CurrentIndex int                    `json:"current_index"`
	Summary      string                 `json:"summary"`
	Goals        map[string]interface{} `json:"goals,omitempty"`
}

// Stats summarizes plan progress, used to derive checkpoint resume info.
type Stats struct {
	// Total is the number of tasks in the plan.
	Total int `json:"total"`

	// ByStatus counts tasks per lifecycle status.
	ByStatus map[string]int `json:"by_status"`

	// NextTaskID is the best-guess next task: the first STOPPED task,
	// else the first PENDING task, else -1.
	NextTaskID int `json:"next_task_id"`

	// PercentComplete is the completed share of all tasks, 0..100.
	PercentComplete float64 `json:"percent_complete"`
}

// Snapshot captures the plan's current state for checkpointing.
func (p *Plan) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	tasks := make([]*Task, len(p.tasks))
	for i, t := range p.tasks {
		tasks[i] = t.Clone()
	}
	return Snapshot{
		Tasks:        tasks,
		CurrentIndex: p.cursor,
		Summary:      p.summaryLocked(),
		Goals:        p.goals,
	}
}

// FromSnapshot reconstructs a plan from a snapshot. Task ids are
// renumbered to their positions, restoring the id == position invariant
// even if the snapshot was edited by hand.
func FromSnapshot(snap Snapshot, opts ...Option) *Plan {
	p := New(opts...)
	p.tasks = make([]*Task, len(snap.Tasks))
	for i, t := range snap.Tasks {
		if t.machine == nil {
			t.machine = lifecycle.NewMachine()
		}
		p.tasks[i] = t
	}
	p.renumber()
	p.cursor = snap.CurrentIndex
	if snap.Goals != nil {
		p.goals = snap.Goals
	}
	return p
}

// Stats computes plan progress counts.
func (p *Plan) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.statsLocked()
}

func (p *Plan) statsLocked() Stats {
	return taskStats(p.tasks)
}

// Stats computes progress counts from the snapshot's tasks. Checkpoints
// derive their resume info this way so the counts always agree with the
// serialized tasks, even when the live plan has moved on.
func (s Snapshot) Stats() Stats {
	return taskStats(s.Tasks)
}

func taskStats(tasks []*Task) Stats {
	stats := Stats{
		Total:      len(tasks),
		ByStatus:   make(map[string]int),
		NextTaskID: -1,
	}

	completed := 0
	firstStopped, firstPending := -1, -1
	for _, t := range tasks {
		status := t.machine.Current()
		stats.ByStatus[status.String()]++
		switch status {
		case lifecycle.StatusCompleted:
			completed++
		case lifecycle.StatusStopped:
			if firstStopped < 0 {
				firstStopped = t.ID
			}
		case lifecycle.StatusPending:
			if firstPending < 0 {
				firstPending = t.ID
			}
		}
	}

	if firstStopped >= 0 {
		stats.NextTaskID = firstStopped
	} else if firstPending >= 0 {
		stats.NextTaskID = firstPending
	}
	if stats.Total > 0 {
		stats.PercentComplete = float64(completed) / float64(stats.Total) * 100
	}
	return stats
}

// Summary returns a one-line human-readable progress summary.
func (p *Plan) Summary() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.summaryLocked()
}

func (p *Plan) summaryLocked() string {
	s := p.statsLocked()
	return fmt.Sprintf("%d tasks: %d completed, %d failed, %d stopped, %d in progress, %d pending",
		s.Total,
		s.ByStatus[lifecycle.StatusCompleted.String()],
		s.ByStatus[lifecycle.StatusFailed.String()],
		s.ByStatus[lifecycle.StatusStopped.String()],
		s.ByStatus[lifecycle.StatusInProgress.String()],
		s.ByStatus[lifecycle.StatusPending.String()])
}

// SaveFile writes the plan snapshot as JSON to the given path.
// For session-managed checkpoints with resume info, use the checkpoint
// package; SaveFile is the bare serialization primitive.
func (p *Plan) SaveFile(path string) error {
	data, err := json.MarshalIndent(p.Snapshot(), "", "  ")
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrCodeCheckpointIO, "marshaling plan")
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.WrapWithCode(err, errors.ErrCodeCheckpointIO, "writing plan file")
	}
	return nil
}

// LoadFile reads a plan snapshot from the given path.
func LoadFile(path string, opts ...Option) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrCodeCheckpointIO, "reading plan file")
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrCodeCorruption, "decoding plan file")
	}
	return FromSnapshot(snap, opts...), nil
}
