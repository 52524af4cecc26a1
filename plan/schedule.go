package plan

import (
	"sort"

	"github.com/praxislabs/agentplan/errors"
	"github.com/praxislabs/agentplan/lifecycle"
)

// ExecutableTasks returns detached copies of the tasks that can run now:
// status PENDING or STOPPED with every dependency COMPLETED. Including
// STOPPED tasks is what makes resume-after-interruption work without a
// separate resume code path.
//
// Before selecting, every dependency index in the plan is validated;
// an out-of-range reference is a fatal DEPENDENCY error. Results are
// ordered by priority descending then id ascending, truncated to max
// (max <= 0 returns all). The order is deterministic for a given plan
// state.
func (p *Plan) ExecutableTasks(max int) ([]*Task, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.validateDependencies(); err != nil {
		return nil, err
	}

	var runnable []*Task
	for _, t := range p.tasks {
		status := t.machine.Current()
		if status != lifecycle.StatusPending && status != lifecycle.StatusStopped {
			continue
		}
		if !p.dependenciesCompleted(t) {
			continue
		}
		runnable = append(runnable, t)
	}

	sort.SliceStable(runnable, func(i, j int) bool {
		if runnable[i].Priority != runnable[j].Priority {
			return runnable[i].Priority > runnable[j].Priority
		}
		return runnable[i].ID < runnable[j].ID
	})

	if max > 0 && len(runnable) > max {
		runnable = runnable[:max]
	}

	out := make([]*Task, len(runnable))
	for i, t := range runnable {
		out[i] = t.Clone()
	}
	return out, nil
}

// validateDependencies checks every dependency index in the plan is in
// range. Scheduling-integrity failures are fatal and bubble up to the
// orchestrator; they are never retried.
func (p *Plan) validateDependencies() error {
	for _, t := range p.tasks {
		for _, dep := range t.Dependencies {
			if dep < 0 || dep >= len(p.tasks) {
				return errors.DependencyViolation(t.ID, dep)
			}
		}
	}
	return nil
}

// dependenciesCompleted reports whether every dependency of t is COMPLETED.
func (p *Plan) dependenciesCompleted(t *Task) bool {
	for _, dep := range t.Dependencies {
		if p.tasks[dep].machine.Current() != lifecycle.StatusCompleted {
			return false
		}
	}
	return true
}
