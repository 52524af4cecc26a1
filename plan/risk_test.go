package plan

import (
	"strings"
	"testing"

	"github.com/praxislabs/agentplan/project"
)

func TestEvaluateRiskLevels(t *testing.T) {
	p := quietPlan()

	review := p.AddTask(Spec{Description: "review the diff", Action: "review"})
	add := p.AddTask(Spec{Description: "add a helper", Action: "add"})
	edit := p.AddTask(Spec{Description: "edit the formatter", Action: "edit"})
	danger := p.AddTask(Spec{Description: "delete all production database credentials", Action: "delete"})

	cases := []struct {
		id   int
		want RiskLevel
	}{
		{review, RiskLow},      // score 0
		{add, RiskMedium},      // score 1
		{edit, RiskMedium},     // score 2
		{danger, RiskCritical}, // delete(3) + sensitive(2) + wide scope(1)
	}

	for _, tc := range cases {
		got, err := p.EvaluateRisk(tc.id)
		if err != nil {
			t.Fatalf("EvaluateRisk(%d) failed: %v", tc.id, err)
		}
		if got.Level != tc.want {
			t.Errorf("task %d level = %s (score %d), want %s", tc.id, got.Level, got.Score, tc.want)
		}
	}
}

func TestEvaluateRiskReasonsRecorded(t *testing.T) {
	p := quietPlan()
	id := p.AddTask(Spec{Description: "delete the auth schema", Action: "delete"})

	got, err := p.EvaluateRisk(id)
	if err != nil {
		t.Fatalf("EvaluateRisk failed: %v", err)
	}
	if len(got.Reasons) < 2 {
		t.Fatalf("reasons = %v, want action + sensitive entries", got.Reasons)
	}
	joined := strings.Join(got.Reasons, "; ")
	if !strings.Contains(joined, "delete") {
		t.Errorf("reasons should mention the action: %v", got.Reasons)
	}
	if !strings.Contains(joined, "auth") {
		t.Errorf("reasons should name the sensitive keyword: %v", got.Reasons)
	}

	// Assessment stored on the task
	task, _ := p.Task(id)
	if task.Risk.Level != got.Level {
		t.Error("assessment should be stored on the task")
	}
}

func TestEvaluateRiskBreakingAndFanIn(t *testing.T) {
	p := quietPlan()
	hub := p.AddTask(Spec{Description: "edit shared types", Action: "edit", Breaking: true})
	for i := 0; i < 3; i++ {
		p.AddTask(Spec{Description: "dependent", Action: "edit", Dependencies: []int{hub}})
	}

	got, err := p.EvaluateRisk(hub)
	if err != nil {
		t.Fatalf("EvaluateRisk failed: %v", err)
	}
	// edit(2) + breaking(2) + fan-in(1) = 5
	if got.Level != RiskCritical {
		t.Errorf("level = %s (score %d), want critical", got.Level, got.Score)
	}
}

func TestCreateRollbackPlanPerAction(t *testing.T) {
	p := quietPlan()
	del := p.AddTask(Spec{Description: "delete legacy module", Action: "delete"})
	test := p.AddTask(Spec{Description: "add regression test", Action: "test"})

	text, err := p.CreateRollbackPlan(del)
	if err != nil {
		t.Fatalf("CreateRollbackPlan failed: %v", err)
	}
	if !strings.Contains(text, "Restore") {
		t.Errorf("delete rollback should restore files: %q", text)
	}

	text, err = p.CreateRollbackPlan(test)
	if err != nil {
		t.Fatalf("CreateRollbackPlan failed: %v", err)
	}
	if !strings.Contains(text, "No rollback needed") {
		t.Errorf("test rollback = %q", text)
	}

	task, _ := p.Task(del)
	if task.RollbackPlan == "" {
		t.Error("rollback plan should be stored on the task")
	}
}

func TestGenerateValidationStepsUsesDetector(t *testing.T) {
	detector := &project.StaticDetector{Info: project.Info{
		Type:         project.TypeGo,
		TestCommand:  "go test ./...",
		BuildCommand: "go build ./...",
	}}
	p := quietPlan(WithDetector(detector))
	id := p.AddTask(Spec{Description: "edit scheduler", Action: "edit"})

	steps, err := p.GenerateValidationSteps(id, ".")
	if err != nil {
		t.Fatalf("GenerateValidationSteps failed: %v", err)
	}
	joined := strings.Join(steps, "; ")
	if !strings.Contains(joined, "go test ./...") {
		t.Errorf("steps should use the detected test command: %v", steps)
	}
	if !strings.Contains(joined, "go build ./...") {
		t.Errorf("steps should include the build command: %v", steps)
	}

	task, _ := p.Task(id)
	if len(task.ValidationSteps) == 0 {
		t.Error("steps should be stored on the task")
	}
}

func TestParseAction(t *testing.T) {
	cases := map[string]ActionKind{
		"add":                 ActionAdd,
		"Create":              ActionAdd,
		"delete old config":   ActionDelete,
		"rename":              ActionMove,
		"refactor the parser": ActionRefactor,
		"verify":              ActionTest,
		"ponder deeply":       ActionUnknown,
		"":                    ActionUnknown,
	}
	for text, want := range cases {
		if got := ParseAction(text); got != want {
			t.Errorf("ParseAction(%q) = %s, want %s", text, got, want)
		}
	}
}
