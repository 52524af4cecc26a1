package plan

import (
	"strings"
	"time"

	"github.com/praxislabs/agentplan/lifecycle"
)

// ActionKind is the closed set of operations a task can perform. The
// original free-form action text is retained on the task as auxiliary,
// non-authoritative data; all risk and rollback strategy keys off the kind.
type ActionKind string

const (
	ActionAdd      ActionKind = "add"
	ActionEdit     ActionKind = "edit"
	ActionDelete   ActionKind = "delete"
	ActionMove     ActionKind = "move"
	ActionRefactor ActionKind = "refactor"
	ActionTest     ActionKind = "test"
	ActionReview   ActionKind = "review"
	ActionUnknown  ActionKind = "unknown"
)

// actionAliases maps free-form action words to their kind.
var actionAliases = map[string]ActionKind{
	"add":      ActionAdd,
	"create":   ActionAdd,
	"new":      ActionAdd,
	"edit":     ActionEdit,
	"modify":   ActionEdit,
	"update":   ActionEdit,
	"change":   ActionEdit,
	"fix":      ActionEdit,
	"delete":   ActionDelete,
	"remove":   ActionDelete,
	"drop":     ActionDelete,
	"move":     ActionMove,
	"rename":   ActionMove,
	"refactor": ActionRefactor,
	"test":     ActionTest,
	"verify":   ActionTest,
	"review":   ActionReview,
	"inspect":  ActionReview,
}

// ParseAction maps free-form action text to an ActionKind.
func ParseAction(text string) ActionKind {
	lowered := strings.ToLower(strings.TrimSpace(text))
	if kind, ok := actionAliases[lowered]; ok {
		return kind
	}
	// Fall back to a word scan for phrases like "delete old config"
	for _, word := range strings.Fields(lowered) {
		if kind, ok := actionAliases[word]; ok {
			return kind
		}
	}
	return ActionUnknown
}

// RiskLevel classifies a task's blast radius.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// RiskAssessment is the scored outcome of evaluating a task's risk.
// Reasons are recorded alongside the score for explainability.
type RiskAssessment struct {
	Level   RiskLevel `json:"level"`
	Score   int       `json:"score"`
	Reasons []string  `json:"reasons,omitempty"`
}

// ToolCallEvent records one tool invocation made on behalf of a task.
type ToolCallEvent struct {
	ID        string        `json:"id"`
	Tool      string        `json:"tool"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
	Attempts  int           `json:"attempts"`
	Elapsed   time.Duration `json:"elapsed_ns"`
	Timestamp time.Time     `json:"timestamp"`
}

// Task is a schedulable unit of agent work. A task exclusively owns its
// lifecycle machine; all mutation goes through the owning plan's mutex.
type Task struct {
	// ID always equals the task's current position in the plan sequence.
	ID int `json:"id"`

	// Description is the natural-language work statement.
	Description string `json:"description"`

	// Action is the authoritative operation kind.
	Action ActionKind `json:"action"`

	// ActionText is the original free-form action string, kept for
	// display only.
	ActionText string `json:"action_text,omitempty"`

	// Dependencies are indices of tasks that must be COMPLETED first.
	Dependencies []int `json:"dependencies"`

	// Risk is the last computed risk assessment.
	Risk RiskAssessment `json:"risk"`

	// ImpactScope describes what the task touches (file, module, repo).
	ImpactScope string `json:"impact_scope,omitempty"`

	// EstimatedSize is the expected change size (small, medium, large).
	EstimatedSize string `json:"estimated_size,omitempty"`

	// Breaking marks a change expected to break consumers.
	Breaking bool `json:"breaking,omitempty"`

	// RollbackPlan is the generated procedural rollback text.
	RollbackPlan string `json:"rollback_plan,omitempty"`

	// ValidationSteps are the generated verification steps.
	ValidationSteps []string `json:"validation_steps,omitempty"`

	// Complexity is a free-form complexity tag (trivial, simple, complex).
	Complexity string `json:"complexity,omitempty"`

	// SubtaskIDs are ids of tasks inserted as children of this one.
	SubtaskIDs []int `json:"subtask_ids,omitempty"`

	// Priority orders scheduling; higher runs first.
	Priority int `json:"priority"`

	// ToolCalls records tool invocations made for this task.
	ToolCalls []ToolCallEvent `json:"tool_calls,omitempty"`

	// Result holds the task outcome on success.
	Result string `json:"result,omitempty"`

	// Error holds the failure message on failure.
	Error string `json:"error,omitempty"`

	machine *lifecycle.Machine
}

// Spec describes a task to be added to a plan.
type Spec struct {
	Description   string
	Action        string // free-form; parsed into an ActionKind
	Dependencies  []int
	Priority      int
	ImpactScope   string
	EstimatedSize string
	Breaking      bool
	Complexity    string
}

// newTask builds a PENDING task from a spec. The id is assigned by the plan.
func newTask(id int, spec Spec) *Task {
	deps := make([]int, len(spec.Dependencies))
	copy(deps, spec.Dependencies)
	return &Task{
		ID:            id,
		Description:   spec.Description,
		Action:        ParseAction(spec.Action),
		ActionText:    spec.Action,
		Dependencies:  deps,
		Priority:      spec.Priority,
		ImpactScope:   spec.ImpactScope,
		EstimatedSize: spec.EstimatedSize,
		Breaking:      spec.Breaking,
		Complexity:    spec.Complexity,
		machine:       lifecycle.NewMachine(),
	}
}

// Status returns the task's current lifecycle status.
func (t *Task) Status() lifecycle.Status {
	return t.machine.Current()
}

// Machine exposes the task's state machine for read-only inspection.
func (t *Task) Machine() *lifecycle.Machine {
	return t.machine
}

// Clone returns a deep copy of the task, detached from the plan.
func (t *Task) Clone() *Task {
	clone := *t
	clone.Dependencies = append([]int(nil), t.Dependencies...)
	clone.SubtaskIDs = append([]int(nil), t.SubtaskIDs...)
	clone.ValidationSteps = append([]string(nil), t.ValidationSteps...)
	clone.ToolCalls = append([]ToolCallEvent(nil), t.ToolCalls...)
	clone.Risk.Reasons = append([]string(nil), t.Risk.Reasons...)
	clone.machine = t.machine.Clone()
	return &clone
}
