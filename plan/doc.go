// Package plan is the scheduler of the agentplan engine. A Plan owns an
// ordered sequence of tasks, maintains the dependency graph between them,
// selects which tasks can run next and drives each task's lifecycle
// machine under a single mutex.
//
// The engine never executes tasks itself: an external orchestrator asks
// the plan for executable tasks, dispatches them through the executor
// package, and reports outcomes back via the Mark* methods.
//
// # Basic Usage
//
//	p := plan.New()
//	a := p.AddTask(plan.Spec{Description: "add parser", Action: "add"})
//	b := p.AddTask(plan.Spec{Description: "test parser", Action: "test", Dependencies: []int{a}})
//
//	ready, err := p.ExecutableTasks(4)
//	// ready contains only task a until it completes
//
//	_ = p.MarkInProgress(a, "dispatched")
//	_ = p.MarkCompleted(a, "parser added")
//
//	ready, _ = p.ExecutableTasks(4)
//	// now contains task b
//	_ = b
//
// # Invariants
//
// A task's id always equals its position in the sequence; structural
// edits renumber every task and shift stored dependency indices so old
// references keep pointing at the same logical task. Dependency indices
// are validated on every scheduling pass; an out-of-range reference is a
// fatal error, never retried.
//
// # Thread Safety
//
// All Plan methods are safe for concurrent use. Mutation is fully
// serialized by the plan's mutex; returned tasks are detached copies.
package plan
