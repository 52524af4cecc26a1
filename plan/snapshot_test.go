package plan

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/praxislabs/agentplan/lifecycle"
)

func buildSamplePlan(t *testing.T) *Plan {
	t.Helper()
	p := quietPlan()
	a := p.AddTask(Spec{Description: "add parser", Action: "add", Priority: 3})
	b := p.AddTask(Spec{Description: "edit auth config", Action: "edit", Dependencies: []int{a}, Priority: 5})
	p.AddTask(Spec{Description: "test parser", Action: "test", Dependencies: []int{a, b}})

	mustMark(t, p.MarkInProgress(a, "dispatched"))
	mustMark(t, p.MarkCompleted(a, "parser in place"))
	mustMark(t, p.MarkInProgress(b, "dispatched"))
	mustMark(t, p.MarkFailed(b, "validation failed"))
	return p
}

func TestSnapshotRoundTrip(t *testing.T) {
	p := buildSamplePlan(t)

	data, err := json.Marshal(p.Snapshot())
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	restored := FromSnapshot(snap)

	orig := p.Tasks()
	got := restored.Tasks()
	if len(got) != len(orig) {
		t.Fatalf("len = %d, want %d", len(got), len(orig))
	}
	for i := range orig {
		if got[i].Status() != orig[i].Status() {
			t.Errorf("task %d status = %s, want %s", i, got[i].Status(), orig[i].Status())
		}
		if got[i].Priority != orig[i].Priority {
			t.Errorf("task %d priority = %d, want %d", i, got[i].Priority, orig[i].Priority)
		}
		if len(got[i].Dependencies) != len(orig[i].Dependencies) {
			t.Errorf("task %d deps = %v, want %v", i, got[i].Dependencies, orig[i].Dependencies)
			continue
		}
		for j, dep := range orig[i].Dependencies {
			if got[i].Dependencies[j] != dep {
				t.Errorf("task %d deps = %v, want %v", i, got[i].Dependencies, orig[i].Dependencies)
			}
		}
	}

	// Restored machines still enforce the table
	if err := restored.MarkCompleted(2, "x"); err == nil {
		t.Error("restored pending task should reject direct completion")
	}
	if err := restored.MarkInProgress(1, "retry"); err != nil {
		t.Errorf("restored failed task should allow retry: %v", err)
	}
}

func TestSnapshotCarriesHistory(t *testing.T) {
	p := buildSamplePlan(t)

	snap := p.Snapshot()
	data, _ := json.Marshal(snap.Tasks[1])

	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	sm, ok := raw["state_machine"].(map[string]interface{})
	if !ok {
		t.Fatal("serialized task should carry a state_machine block")
	}
	if sm["current_state"] != "failed" {
		t.Errorf("current_state = %v, want failed", sm["current_state"])
	}
	if sm["transition_count"].(float64) < 3 {
		t.Errorf("transition_count = %v, want >= 3", sm["transition_count"])
	}
}

func TestStatsNextTask(t *testing.T) {
	p := quietPlan()
	a := p.AddTask(Spec{Description: "a", Action: "edit"})
	b := p.AddTask(Spec{Description: "b", Action: "edit"})
	c := p.AddTask(Spec{Description: "c", Action: "edit"})

	mustMark(t, p.MarkInProgress(a, ""))
	mustMark(t, p.MarkCompleted(a, ""))

	// First pending when nothing is stopped
	stats := p.Stats()
	if stats.NextTaskID != b {
		t.Errorf("next = %d, want %d", stats.NextTaskID, b)
	}

	// First stopped wins over first pending
	mustMark(t, p.MarkStopped(c, "halt"))
	stats = p.Stats()
	if stats.NextTaskID != c {
		t.Errorf("next = %d, want stopped task %d", stats.NextTaskID, c)
	}

	if stats.ByStatus[lifecycle.StatusCompleted.String()] != 1 {
		t.Errorf("completed count = %d, want 1", stats.ByStatus["completed"])
	}
	wantPct := 100.0 / 3.0
	if diff := stats.PercentComplete - wantPct; diff > 0.01 || diff < -0.01 {
		t.Errorf("percent = %f, want %f", stats.PercentComplete, wantPct)
	}
}

func TestSaveLoadFile(t *testing.T) {
	p := buildSamplePlan(t)
	path := filepath.Join(t.TempDir(), "plan.json")

	if err := p.SaveFile(path); err != nil {
		t.Fatalf("SaveFile failed: %v", err)
	}
	restored, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if restored.Len() != p.Len() {
		t.Errorf("len = %d, want %d", restored.Len(), p.Len())
	}
	if restored.CurrentIndex() != p.CurrentIndex() {
		t.Errorf("cursor = %d, want %d", restored.CurrentIndex(), p.CurrentIndex())
	}
}

func TestLoadFileMissing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestSnapshotStatsFrozenAtCapture(t *testing.T) {
	p := buildSamplePlan(t)
	snap := p.Snapshot()
	before := snap.Stats()

	// The live plan moves on; the snapshot's counts must not.
	mustMark(t, p.MarkInProgress(2, "dispatched"))
	mustMark(t, p.MarkCompleted(2, "done"))

	after := snap.Stats()
	if after.ByStatus["completed"] != before.ByStatus["completed"] {
		t.Errorf("snapshot completed count moved: %d -> %d",
			before.ByStatus["completed"], after.ByStatus["completed"])
	}
	if after.NextTaskID != before.NextTaskID {
		t.Errorf("snapshot next task moved: %d -> %d", before.NextTaskID, after.NextTaskID)
	}

	// Snapshot and live stats agree at capture time.
	fresh := p.Snapshot()
	if got, want := fresh.Stats().ByStatus["completed"], p.Stats().ByStatus["completed"]; got != want {
		t.Errorf("snapshot completed = %d, plan says %d", got, want)
	}
}
