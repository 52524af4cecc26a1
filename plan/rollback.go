package plan

import "fmt"

// rollbackStrategies maps each action kind to its procedural rollback text.
var rollbackStrategies = map[ActionKind]string{
	ActionAdd:      "Delete the newly added files and revert any registration of them (git clean -fd for untracked files, git checkout -- . for tracked edits).",
	ActionEdit:     "Revert the modified files to their previous revision (git checkout HEAD -- <paths>), then re-run the validation steps.",
	ActionRefactor: "Revert the refactored files to their previous revision (git checkout HEAD -- <paths>), then re-run the validation steps.",
	ActionDelete:   "Restore the deleted files from version control (git checkout HEAD~1 -- <paths>) and re-run the test suite to confirm behavior is back.",
	ActionMove:     "Move the files back to their original locations and restore any updated import paths (git checkout HEAD -- <paths>).",
	ActionTest:     "No rollback needed: test-only changes do not alter production behavior. Delete the added tests if they are unwanted.",
	ActionReview:   "No rollback needed: review tasks make no changes.",
	ActionUnknown:  "Revert the working tree to the last known-good commit (git reset --hard <commit>) and re-apply unrelated work.",
}

// CreateRollbackPlan generates deterministic, action-specific rollback
// text for the task and stores it.
func (p *Plan) CreateRollbackPlan(id int) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, err := p.taskAt(id)
	if err != nil {
		return "", err
	}

	text := rollbackStrategies[t.Action]
	if t.Breaking {
		text += " This change was flagged as breaking: notify dependent consumers before and after rollback."
	}
	t.RollbackPlan = text
	return text, nil
}

// GenerateValidationSteps produces the verification steps for a task,
// consulting the project detector for the repository's test command.
// The steps are stored on the task and returned.
func (p *Plan) GenerateValidationSteps(id int, root string) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, err := p.taskAt(id)
	if err != nil {
		return nil, err
	}

	info, derr := p.detector.Detect(root)
	testCmd := info.TestCommand
	if derr != nil || testCmd == "" {
		testCmd = "make test"
	}

	var steps []string
	switch t.Action {
	case ActionAdd:
		steps = append(steps,
			fmt.Sprintf("Run the test suite: %s", testCmd),
			"Confirm the new files are referenced where intended (no orphan artifacts).")
	case ActionEdit, ActionRefactor:
		steps = append(steps,
			fmt.Sprintf("Run the test suite: %s", testCmd),
			"Diff the modified files and confirm only the intended hunks changed.")
	case ActionDelete:
		steps = append(steps,
			"Search the repository for remaining references to the deleted symbols.",
			fmt.Sprintf("Run the test suite: %s", testCmd))
	case ActionMove:
		steps = append(steps,
			"Confirm all imports and references resolve at the new locations.",
			fmt.Sprintf("Run the test suite: %s", testCmd))
	case ActionTest:
		steps = append(steps,
			fmt.Sprintf("Run the new tests and confirm they fail without the change they guard: %s", testCmd))
	case ActionReview:
		steps = append(steps, "Record review findings on the task result.")
	default:
		steps = append(steps, fmt.Sprintf("Run the test suite: %s", testCmd))
	}

	if info.BuildCommand != "" {
		steps = append(steps, fmt.Sprintf("Build the project: %s", info.BuildCommand))
	}
	if t.Breaking {
		steps = append(steps, "Verify dependent consumers against the new interface before merging.")
	}

	t.ValidationSteps = steps
	return append([]string(nil), steps...), nil
}
