// Package logging provides real-time log output for engine events.
// The checkpoint JSON is THE durable record of a run. This package provides
// optional console output for monitoring, derived from scheduler, executor
// and checkpoint events.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level represents log severity.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Logger provides structured logging to stdout.
// This is for real-time monitoring only - forensic analysis uses checkpoints.
type Logger struct {
	mu        sync.Mutex
	output    io.Writer
	minLevel  Level
	component string
	sessionID string
}

// levelPriority maps levels to numeric priority for filtering.
var levelPriority = map[Level]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// New creates a new Logger.
func New() *Logger {
	return &Logger{
		output:   os.Stdout,
		minLevel: LevelInfo,
	}
}

// WithComponent returns a new logger with the given component name.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		output:    l.output,
		minLevel:  l.minLevel,
		component: component,
		sessionID: l.sessionID,
	}
}

// WithSessionID returns a new logger with the given session ID.
func (l *Logger) WithSessionID(sessionID string) *Logger {
	return &Logger{
		output:    l.output,
		minLevel:  l.minLevel,
		component: l.component,
		sessionID: sessionID,
	}
}

// SetLevel sets the minimum log level.
func (l *Logger) SetLevel(level Level) {
	l.minLevel = level
}

// SetOutput sets the output writer (default: stdout).
func (l *Logger) SetOutput(w io.Writer) {
	l.output = w
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, fields ...map[string]interface{}) {
	l.log(LevelDebug, msg, fields...)
}

// Info logs an info message.
func (l *Logger) Info(msg string, fields ...map[string]interface{}) {
	l.log(LevelInfo, msg, fields...)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, fields ...map[string]interface{}) {
	l.log(LevelWarn, msg, fields...)
}

// Error logs an error message.
func (l *Logger) Error(msg string, fields ...map[string]interface{}) {
	l.log(LevelError, msg, fields...)
}

// formatFields formats a map of fields as key=value pairs.
func formatFields(fields map[string]interface{}) string {
	if len(fields) == 0 {
		return ""
	}
	var parts []string
	for k, v := range fields {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	return " " + strings.Join(parts, " ")
}

// log writes a log entry in traditional format: LEVEL TIMESTAMP [component] message key=value ...
func (l *Logger) log(level Level, msg string, fields ...map[string]interface{}) {
	if levelPriority[level] < levelPriority[l.minLevel] {
		return
	}

	timestamp := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")

	var fieldStr string
	if len(fields) > 0 && fields[0] != nil {
		fieldStr = formatFields(fields[0])
	}

	var line string
	if l.component != "" {
		line = fmt.Sprintf("%-5s %s [%s] %s%s\n", level, timestamp, l.component, msg, fieldStr)
	} else {
		line = fmt.Sprintf("%-5s %s %s%s\n", level, timestamp, msg, fieldStr)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.output.Write([]byte(line))
}

// --- Engine event methods ---
// These are called by the scheduler, executor and checkpoint manager.
// They provide real-time console output without duplicating checkpoint data.

// TaskStarted logs a task entering IN_PROGRESS.
func (l *Logger) TaskStarted(taskID int, description string) {
	l.Info("task_started", map[string]interface{}{
		"task": taskID,
		"desc": description,
	})
}

// TaskCompleted logs a task completion.
func (l *Logger) TaskCompleted(taskID int, duration time.Duration) {
	l.Info("task_completed", map[string]interface{}{
		"task":     taskID,
		"duration": duration.String(),
	})
}

// TaskFailed logs a task failure.
func (l *Logger) TaskFailed(taskID int, errMsg string) {
	l.Error("task_failed", map[string]interface{}{
		"task":  taskID,
		"error": errMsg,
	})
}

// TaskStopped logs a task being stopped.
func (l *Logger) TaskStopped(taskID int, reason string) {
	l.Info("task_stopped", map[string]interface{}{
		"task":   taskID,
		"reason": reason,
	})
}

// ForcedTransition logs a bypass of the lifecycle transition table.
// These are always surfaced at WARN so forced moves stand out in the record.
func (l *Logger) ForcedTransition(taskID int, from, to string) {
	l.Warn("forced_transition", map[string]interface{}{
		"task": taskID,
		"from": from,
		"to":   to,
	})
}

// RetryAttempt logs a retry of a tool invocation.
func (l *Logger) RetryAttempt(tool string, attempt int, backoff time.Duration, errMsg string) {
	l.Debug("retry_attempt", map[string]interface{}{
		"tool":    tool,
		"attempt": attempt,
		"backoff": backoff.String(),
		"error":   errMsg,
	})
}

// IdempotentHit logs a short-circuit on a cached tool-call outcome.
func (l *Logger) IdempotentHit(key string, success bool) {
	l.Debug("idempotent_hit", map[string]interface{}{
		"key":     key,
		"success": success,
	})
}

// CheckpointSaved logs a successful checkpoint write.
func (l *Logger) CheckpointSaved(number int, reason, path string) {
	l.Info("checkpoint_saved", map[string]interface{}{
		"n":      number,
		"reason": reason,
		"path":   path,
	})
}

// CheckpointFailed logs a best-effort checkpoint write failure.
// The run continues; the operator gets a warning.
func (l *Logger) CheckpointFailed(reason string, err error) {
	l.Warn("checkpoint_failed", map[string]interface{}{
		"reason": reason,
		"error":  err.Error(),
	})
}

// PlanMutated logs a structural plan edit.
func (l *Logger) PlanMutated(op string, taskCount int) {
	l.Debug("plan_mutated", map[string]interface{}{
		"op":    op,
		"tasks": taskCount,
	})
}
