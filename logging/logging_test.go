package logging

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := New()
	logger.SetOutput(&buf)
	logger.SetLevel(LevelInfo)

	// Debug should be filtered
	logger.Debug("debug message")
	if buf.Len() > 0 {
		t.Error("debug message should be filtered at INFO level")
	}

	// Info should pass
	logger.Info("info message")
	if buf.Len() == 0 {
		t.Error("info message should be logged")
	}

	output := buf.String()
	if !strings.Contains(output, "INFO") {
		t.Error("log should contain INFO level")
	}
	if !strings.Contains(output, "info message") {
		t.Error("log should contain the message")
	}
}

func TestLogger_WithComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := New().WithComponent("executor")
	logger.SetOutput(&buf)

	logger.Info("test message")

	output := buf.String()
	if !strings.Contains(output, "[executor]") {
		t.Errorf("expected component 'executor' in log, got: %s", output)
	}
}

func TestLogger_Fields(t *testing.T) {
	var buf bytes.Buffer
	logger := New()
	logger.SetOutput(&buf)

	logger.Info("tool call", map[string]interface{}{
		"tool": "bash",
	})

	output := buf.String()
	if !strings.Contains(output, "tool=bash") {
		t.Errorf("expected field 'tool=bash' in log, got: %s", output)
	}
}

func TestLogger_TaskEvents(t *testing.T) {
	var buf bytes.Buffer
	logger := New()
	logger.SetOutput(&buf)

	logger.TaskStarted(3, "refactor parser")
	logger.TaskCompleted(3, 42*time.Millisecond)
	logger.TaskFailed(4, "tests did not pass")

	output := buf.String()
	if !strings.Contains(output, "task_started") {
		t.Error("expected task_started log")
	}
	if !strings.Contains(output, "task=3") {
		t.Errorf("expected task=3, got: %s", output)
	}
	if !strings.Contains(output, "task_completed") {
		t.Error("expected task_completed log")
	}
	if !strings.Contains(output, "duration=") {
		t.Error("expected duration in log")
	}
	if !strings.Contains(output, "ERROR") {
		t.Error("task failure should be ERROR level")
	}
}

func TestLogger_ForcedTransition(t *testing.T) {
	var buf bytes.Buffer
	logger := New()
	logger.SetOutput(&buf)

	logger.ForcedTransition(1, "completed", "pending")

	output := buf.String()
	if !strings.Contains(output, "WARN") {
		t.Error("forced transition should be WARN level")
	}
	if !strings.Contains(output, "forced_transition") {
		t.Error("expected forced_transition log")
	}
	if !strings.Contains(output, "from=completed") {
		t.Errorf("expected from=completed, got: %s", output)
	}
}

func TestLogger_RetryAttempt(t *testing.T) {
	var buf bytes.Buffer
	logger := New()
	logger.SetOutput(&buf)
	logger.SetLevel(LevelDebug) // RetryAttempt logs at Debug level

	logger.RetryAttempt("web_fetch", 2, 200*time.Millisecond, "connection reset")

	output := buf.String()
	if !strings.Contains(output, "tool=web_fetch") {
		t.Errorf("retry log should include tool name, got: %s", output)
	}
	if !strings.Contains(output, "attempt=2") {
		t.Errorf("retry log should include attempt, got: %s", output)
	}
}

func TestLogger_CheckpointFailed(t *testing.T) {
	var buf bytes.Buffer
	logger := New()
	logger.SetOutput(&buf)

	logger.CheckpointFailed("auto_save", bytes.ErrTooLarge)

	output := buf.String()
	if !strings.Contains(output, "WARN") {
		t.Error("checkpoint failure should be WARN level, run continues")
	}
	if !strings.Contains(output, "checkpoint_failed") {
		t.Error("expected checkpoint_failed log")
	}
}

func TestLogger_Format(t *testing.T) {
	var buf bytes.Buffer
	logger := New().WithComponent("test")
	logger.SetOutput(&buf)

	logger.Info("hello world", map[string]interface{}{"key": "value"})

	output := buf.String()
	// Format: LEVEL TIMESTAMP [component] message key=value
	// Example: INFO  2026-02-05T04:00:00.000Z [test] hello world key=value
	if !strings.HasPrefix(output, "INFO ") {
		t.Errorf("expected line to start with 'INFO ', got: %s", output)
	}
	if !strings.Contains(output, "[test]") {
		t.Errorf("expected component [test], got: %s", output)
	}
	if !strings.Contains(output, "hello world") {
		t.Errorf("expected message, got: %s", output)
	}
	if !strings.Contains(output, "key=value") {
		t.Errorf("expected key=value, got: %s", output)
	}
}
