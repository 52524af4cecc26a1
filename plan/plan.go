package plan

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/praxislabs/agentplan/errors"
	"github.com/praxislabs/agentplan/lifecycle"
	"github.com/praxislabs/agentplan/logging"
	"github.com/praxislabs/agentplan/project"
)

// Plan is the scheduler. It owns an ordered sequence of tasks where a
// task's id always equals its position, maintains the dependency graph,
// and serializes every mutation behind one mutex.
type Plan struct {
	mu     sync.Mutex
	tasks  []*Task
	cursor int // legacy sequential cursor

	// goals is an optional goal hierarchy carried through serialization.
	goals map[string]interface{}

	logger   *logging.Logger
	detector project.Detector
	nowFunc  func() time.Time
}

// Option configures a Plan.
type Option func(*Plan)

// WithLogger sets the logger used for plan events.
func WithLogger(l *logging.Logger) Option {
	return func(p *Plan) {
		p.logger = l.WithComponent("plan")
	}
}

// WithDetector sets the project detector consulted when generating
// validation steps.
func WithDetector(d project.Detector) Option {
	return func(p *Plan) {
		p.detector = d
	}
}

// WithGoals attaches a goal hierarchy, carried opaquely through checkpoints.
func WithGoals(goals map[string]interface{}) Option {
	return func(p *Plan) {
		p.goals = goals
	}
}

// New creates an empty plan.
func New(opts ...Option) *Plan {
	p := &Plan{
		logger:   logging.New().WithComponent("plan"),
		detector: project.NewDetector(),
		nowFunc:  time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Len returns the number of tasks in the plan.
func (p *Plan) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.tasks)
}

// AddTask appends a new PENDING task with id equal to the new length.
// Returns the new task's id.
func (p *Plan) AddTask(spec Spec) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	t := newTask(len(p.tasks), spec)
	p.tasks = append(p.tasks, t)
	p.logger.PlanMutated("add_task", len(p.tasks))
	return t.ID
}

// Task returns a detached copy of the task with the given id.
func (p *Plan) Task(id int) (*Task, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, err := p.taskAt(id)
	if err != nil {
		return nil, err
	}
	return t.Clone(), nil
}

// Tasks returns detached copies of every task in order.
func (p *Plan) Tasks() []*Task {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]*Task, len(p.tasks))
	for i, t := range p.tasks {
		out[i] = t.Clone()
	}
	return out
}

// InsertSubtasksAfter inserts a batch of tasks immediately following the
// parent, each depending on the parent. Afterward every task's id is
// renumbered to its new position and every dependency index greater than
// the insertion point is shifted by the batch size, so old references
// still point at the same logical task. The parent's subtask-id list is
// set to the new children's ids.
func (p *Plan) InsertSubtasksAfter(parentID int, specs []Spec) ([]int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	parent, err := p.taskAt(parentID)
	if err != nil {
		return nil, err
	}
	if len(specs) == 0 {
		return nil, nil
	}

	batch := len(specs)
	children := make([]*Task, batch)
	for i, spec := range specs {
		t := newTask(0, spec) // ids assigned by renumber below
		t.Dependencies = append(t.Dependencies, parentID)
		children[i] = t
	}

	// Splice the batch in right after the parent.
	insertAt := parentID + 1
	expanded := make([]*Task, 0, len(p.tasks)+batch)
	expanded = append(expanded, p.tasks[:insertAt]...)
	expanded = append(expanded, children...)
	expanded = append(expanded, p.tasks[insertAt:]...)
	p.tasks = expanded

	// Shift dependency and subtask references past the insertion point.
	// The new children are skipped: their parent reference is already
	// in final coordinates.
	for i, t := range p.tasks {
		isChild := i >= insertAt && i < insertAt+batch
		if isChild {
			continue
		}
		for j, dep := range t.Dependencies {
			if dep > parentID {
				t.Dependencies[j] = dep + batch
			}
		}
		for j, sub := range t.SubtaskIDs {
			if sub > parentID {
				t.SubtaskIDs[j] = sub + batch
			}
		}
	}

	p.renumber()

	childIDs := make([]int, batch)
	for i, c := range children {
		childIDs[i] = c.ID
	}
	parent.SubtaskIDs = childIDs

	p.logger.PlanMutated("insert_subtasks", len(p.tasks))
	return childIDs, nil
}

// AddSubtasksToPending appends new tasks at the end of the plan. If
// afterTaskID is non-negative, the batch is chained into a sequential
// dependency run starting from that task; otherwise each appended task
// keeps only the dependencies in its spec.
func (p *Plan) AddSubtasksToPending(specs []Spec, afterTaskID int) ([]int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if afterTaskID >= 0 {
		if _, err := p.taskAt(afterTaskID); err != nil {
			return nil, err
		}
	}

	ids := make([]int, 0, len(specs))
	prev := afterTaskID
	for _, spec := range specs {
		t := newTask(len(p.tasks), spec)
		if prev >= 0 {
			t.Dependencies = append(t.Dependencies, prev)
		}
		p.tasks = append(p.tasks, t)
		ids = append(ids, t.ID)
		if afterTaskID >= 0 {
			prev = t.ID
		}
	}

	p.logger.PlanMutated("add_subtasks", len(p.tasks))
	return ids, nil
}

// MarkInProgress transitions a task to IN_PROGRESS.
func (p *Plan) MarkInProgress(id int, reason string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, err := p.taskAt(id)
	if err != nil {
		return err
	}
	if err := t.machine.Transition(lifecycle.StatusInProgress, reason, nil); err != nil {
		return err
	}
	p.logger.TaskStarted(id, t.Description)
	return nil
}

// MarkCompleted transitions a task to COMPLETED and records its result.
func (p *Plan) MarkCompleted(id int, result string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, err := p.taskAt(id)
	if err != nil {
		return err
	}
	if err := t.machine.Transition(lifecycle.StatusCompleted, "completed", nil); err != nil {
		return err
	}
	t.Result = result
	t.Error = ""
	p.logger.TaskCompleted(id, t.machine.StateDuration(lifecycle.StatusInProgress))
	return nil
}

// MarkFailed transitions a task to FAILED and records the error.
func (p *Plan) MarkFailed(id int, errMsg string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, err := p.taskAt(id)
	if err != nil {
		return err
	}
	if err := t.machine.Transition(lifecycle.StatusFailed, "failed", map[string]string{"error": errMsg}); err != nil {
		return err
	}
	t.Error = errMsg
	p.logger.TaskFailed(id, errMsg)
	return nil
}

// MarkStopped transitions a task to STOPPED. If the legacy sequential
// cursor points at the stopped task it is advanced past it, so a
// sequential consumer does not retry the same stopped task forever.
func (p *Plan) MarkStopped(id int, reason string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, err := p.taskAt(id)
	if err != nil {
		return err
	}
	if err := t.machine.Transition(lifecycle.StatusStopped, reason, nil); err != nil {
		return err
	}
	if p.cursor == id {
		p.cursor++
	}
	p.logger.TaskStopped(id, reason)
	return nil
}

// MarkPending returns a STOPPED task to PENDING so the scheduler can
// pick it up again after a resume.
func (p *Plan) MarkPending(id int, reason string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, err := p.taskAt(id)
	if err != nil {
		return err
	}
	if err := t.machine.Transition(lifecycle.StatusPending, reason, nil); err != nil {
		return err
	}
	if p.cursor > id {
		p.cursor = id
	}
	return nil
}

// RecordToolCall appends a tool-call event to a task's record. A missing
// event id or timestamp is filled in.
func (p *Plan) RecordToolCall(id int, event ToolCallEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, err := p.taskAt(id)
	if err != nil {
		return err
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = p.nowFunc()
	}
	t.ToolCalls = append(t.ToolCalls, event)
	return nil
}

// ForceStatus sets a task's status without consulting the transition
// table. The bypass is recorded in the task history and logged; callers
// that want fail-closed semantics use the Mark* methods instead.
func (p *Plan) ForceStatus(id int, status lifecycle.Status, reason string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, err := p.taskAt(id)
	if err != nil {
		return err
	}
	from := t.machine.Current()
	t.machine.Force(status, reason)
	p.logger.ForcedTransition(id, from.String(), status.String())
	return nil
}

// --- Legacy sequential interface ---
// Kept for callers that have not adopted dependency-aware scheduling.
// The cursor walks the sequence in order.

// CurrentIndex returns the legacy cursor position.
func (p *Plan) CurrentIndex() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cursor
}

// CurrentTask returns a copy of the task at the cursor, or nil when the
// cursor has moved past the end of the plan.
func (p *Plan) CurrentTask() *Task {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cursor < 0 || p.cursor >= len(p.tasks) {
		return nil
	}
	return p.tasks[p.cursor].Clone()
}

// CompleteCurrent marks the task at the cursor COMPLETED, implicitly
// passing through IN_PROGRESS if needed, then advances the cursor.
func (p *Plan) CompleteCurrent(result string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.finishCurrent(lifecycle.StatusCompleted, result)
}

// FailCurrent marks the task at the cursor FAILED, implicitly passing
// through IN_PROGRESS if needed, then advances the cursor.
func (p *Plan) FailCurrent(errMsg string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.finishCurrent(lifecycle.StatusFailed, errMsg)
}

func (p *Plan) finishCurrent(status lifecycle.Status, payload string) error {
	if p.cursor < 0 || p.cursor >= len(p.tasks) {
		return errors.NotFound(fmt.Sprintf("no task at cursor %d", p.cursor))
	}
	t := p.tasks[p.cursor]

	if t.machine.Current() == lifecycle.StatusPending {
		if err := t.machine.Transition(lifecycle.StatusInProgress, "legacy sequential", nil); err != nil {
			return err
		}
	}
	if err := t.machine.Transition(status, "legacy sequential", nil); err != nil {
		return err
	}
	switch status {
	case lifecycle.StatusCompleted:
		t.Result = payload
		p.logger.TaskCompleted(t.ID, t.machine.StateDuration(lifecycle.StatusInProgress))
	case lifecycle.StatusFailed:
		t.Error = payload
		p.logger.TaskFailed(t.ID, payload)
	}
	p.cursor++
	return nil
}

// --- Aggregate status ---

// IsComplete reports whether every task is settled (COMPLETED, FAILED or
// STOPPED). An empty plan is complete. There is no plan-level status
// field; the plan's state is always derived from its tasks.
func (p *Plan) IsComplete() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, t := range p.tasks {
		if !lifecycle.IsSettled(t.machine.Current()) {
			return false
		}
	}
	return true
}

// HasPendingTasks reports whether any task still needs scheduling or is
// currently running. The plan is "active" while this is true.
func (p *Plan) HasPendingTasks() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, t := range p.tasks {
		if !lifecycle.IsSettled(t.machine.Current()) {
			return true
		}
	}
	return false
}

// --- internal helpers (callers hold p.mu) ---

func (p *Plan) taskAt(id int) (*Task, error) {
	if id < 0 || id >= len(p.tasks) {
		return nil, errors.NotFound(fmt.Sprintf("task %d does not exist", id))
	}
	return p.tasks[id], nil
}

// renumber restores the invariant that every task's id equals its position.
func (p *Plan) renumber() {
	for i, t := range p.tasks {
		t.ID = i
	}
}
