package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/praxislabs/agentplan/errors"
	"github.com/praxislabs/agentplan/logging"
	"github.com/praxislabs/agentplan/plan"
	"github.com/praxislabs/agentplan/telemetry"
)

// Version is the checkpoint format version. Bump on incompatible changes.
const Version = "1"

// filePrefix and fileExt frame every checkpoint file name:
// checkpoint_<session>_<number>_<timestamp>.json
const (
	filePrefix = "checkpoint_"
	fileExt    = ".json"
	tsFormat   = "20060102T150405Z"
)

// EngineInfo records which engine produced a run. Hints only: resume
// uses them to rebuild the command line. Credentials are never written.
type EngineInfo struct {
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`
}

// TokenUsage carries optional token counters for the resume banner.
type TokenUsage struct {
	Input  int `json:"input"`
	Output int `json:"output"`
}

// ResumeInfo summarizes run progress so a resume can start without
// replaying the whole plan.
type ResumeInfo struct {
	ByStatus        map[string]int `json:"by_status"`
	NextTaskID      int            `json:"next_task_id"`
	PercentComplete float64        `json:"percent_complete"`
}

// Checkpoint is the durable record of a run at one point in time.
type Checkpoint struct {
	Version   string        `json:"version"`
	SessionID string        `json:"session_id"`
	Number    int           `json:"number"`
	Timestamp time.Time     `json:"timestamp"`
	Reason    string        `json:"reason"`
	Engine    EngineInfo    `json:"engine,omitempty"`
	Plan      plan.Snapshot `json:"plan"`
	Resume    ResumeInfo    `json:"resume"`
}

// Indexer receives saved checkpoints for search indexing. The catalog
// package provides the standard implementation.
type Indexer interface {
	IndexCheckpoint(cp *Checkpoint, path string) error
}

// Manager writes session checkpoints for a plan. Checkpoint numbers are
// strictly increasing within a session. Saves are best effort: a write
// failure is logged and the run continues.
type Manager struct {
	mu        sync.Mutex
	plan      *plan.Plan
	dir       string
	sessionID string
	number    int
	autoSave  bool
	engine    EngineInfo
	indexer   Indexer
	logger    *logging.Logger
	nowFunc   func() time.Time
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithAutoSave enables saving on task completion and failure events.
func WithAutoSave(enabled bool) ManagerOption {
	return func(m *Manager) {
		m.autoSave = enabled
	}
}

// WithEngineInfo records the engine hints embedded in every checkpoint.
func WithEngineInfo(info EngineInfo) ManagerOption {
	return func(m *Manager) {
		m.engine = info
	}
}

// WithIndexer registers a search indexer notified after every save.
func WithIndexer(idx Indexer) ManagerOption {
	return func(m *Manager) {
		m.indexer = idx
	}
}

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithSessionID overrides the generated session id, used when resuming.
func WithSessionID(id string) ManagerOption {
	return func(m *Manager) {
		m.sessionID = id
	}
}

// WithClock overrides the time source, used by tests.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowFunc = now
	}
}

// NewManager creates a checkpoint manager for the given plan writing
// into dir. Auto-save is on by default.
func NewManager(p *plan.Plan, dir string, opts ...ManagerOption) *Manager {
	m := &Manager{
		plan:      p,
		dir:       dir,
		sessionID: uuid.NewString(),
		autoSave:  true,
		nowFunc:   time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = logging.New().WithComponent("checkpoint").WithSessionID(m.sessionID)
	}
	return m
}

// SessionID returns this manager's session id.
func (m *Manager) SessionID() string {
	return m.sessionID
}

// Save writes a checkpoint. Unless force is set, the save is skipped
// when auto-save is disabled. The returned path is empty when the save
// was skipped or failed; failures never stop the run.
func (m *Manager) Save(reason string, force bool) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !force && !m.autoSave {
		return ""
	}

	tracer := telemetry.GetTracer()
	_, span := tracer.StartCheckpointSpan(context.Background(), reason)

	path, err := m.saveLocked(reason)
	tracer.EndCheckpointSpan(span, telemetry.CheckpointSpanOptions{
		SessionID: m.sessionID,
		Number:    m.number,
		Reason:    reason,
		Path:      path,
		Forced:    force,
	}, err)

	if err != nil {
		m.logger.CheckpointFailed(reason, err)
		return ""
	}
	m.logger.CheckpointSaved(m.number, reason, path)
	return path
}

// saveLocked performs the write. Callers must hold the mutex.
func (m *Manager) saveLocked(reason string) (string, error) {
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return "", errors.WrapWithCode(err, errors.ErrCodeCheckpointIO,
			"creating checkpoint directory")
	}

	now := m.nowFunc().UTC()
	// One snapshot is the source of truth for both the serialized plan
	// and the resume counts, so concurrent task updates cannot make them
	// disagree.
	snap := m.plan.Snapshot()
	stats := snap.Stats()
	m.number++

	cp := &Checkpoint{
		Version:   Version,
		SessionID: m.sessionID,
		Number:    m.number,
		Timestamp: now,
		Reason:    reason,
		Engine:    m.engine,
		Plan:      snap,
		Resume: ResumeInfo{
			ByStatus:        stats.ByStatus,
			NextTaskID:      stats.NextTaskID,
			PercentComplete: stats.PercentComplete,
		},
	}

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		m.number--
		return "", errors.WrapWithCode(err, errors.ErrCodeInternal,
			"marshaling checkpoint")
	}

	name := fmt.Sprintf("%s%s_%d_%s%s",
		filePrefix, m.sessionID, m.number, now.Format(tsFormat), fileExt)
	path := filepath.Join(m.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		m.number--
		return "", errors.WrapWithCode(err, errors.ErrCodeCheckpointIO,
			"writing checkpoint")
	}

	if m.indexer != nil {
		if err := m.indexer.IndexCheckpoint(cp, path); err != nil {
			m.logger.Warn("checkpoint_index_failed", map[string]interface{}{
				"path":  path,
				"error": err.Error(),
			})
		}
	}
	return path, nil
}

// OnTaskStarted logs a task start. Starts are not save points: the task
// has produced nothing durable yet.
func (m *Manager) OnTaskStarted(taskID int, description string) {
	m.logger.TaskStarted(taskID, description)
}

// OnTaskCompleted logs a completion and auto-saves.
func (m *Manager) OnTaskCompleted(taskID int, duration time.Duration) {
	m.logger.TaskCompleted(taskID, duration)
	m.Save("task_completed", false)
}

// OnTaskFailed logs a failure and auto-saves.
func (m *Manager) OnTaskFailed(taskID int, errMsg string) {
	m.logger.TaskFailed(taskID, errMsg)
	m.Save("task_failed", false)
}

// OnInterrupt force-saves and returns the resume banner shown to the
// operator. currentTask is the id of the task that was interrupted, or
// -1 when the engine was between tasks. usage is optional.
func (m *Manager) OnInterrupt(currentTask int, usage *TokenUsage) string {
	path := m.Save("interrupt", true)
	return m.resumeBanner(path, currentTask, usage)
}

// resumeBanner formats the fixed interrupt banner.
func (m *Manager) resumeBanner(path string, currentTask int, usage *TokenUsage) string {
	var b strings.Builder
	b.WriteString("\n")
	b.WriteString("============================================================\n")
	b.WriteString("  Run interrupted\n")
	b.WriteString("============================================================\n")
	b.WriteString(fmt.Sprintf("  Session:    %s\n", m.sessionID))
	if currentTask >= 0 {
		b.WriteString(fmt.Sprintf("  Task:       %d\n", currentTask))
	}
	b.WriteString(fmt.Sprintf("  Progress:   %s\n", m.plan.Summary()))
	if usage != nil {
		b.WriteString(fmt.Sprintf("  Tokens:     %d in / %d out\n", usage.Input, usage.Output))
	}
	if path != "" {
		b.WriteString(fmt.Sprintf("  Checkpoint: %s\n", path))
		b.WriteString("\n")
		b.WriteString("  To resume this run:\n")
		b.WriteString(fmt.Sprintf("    agentplan resume --checkpoint %s\n", path))
	} else {
		b.WriteString("\n")
		b.WriteString("  WARNING: checkpoint save failed; progress since the last\n")
		b.WriteString("  successful checkpoint is lost.\n")
	}
	b.WriteString("============================================================\n")
	return b.String()
}

// List returns the checkpoint files in dir, oldest first.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.WrapWithCode(err, errors.ErrCodeCheckpointIO,
			"listing checkpoint directory")
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, filePrefix) && strings.HasSuffix(name, fileExt) {
			paths = append(paths, filepath.Join(dir, name))
		}
	}
	sort.Slice(paths, func(i, j int) bool {
		return compareFiles(paths[i], paths[j]) < 0
	})
	return paths, nil
}

// FindLatest returns the newest checkpoint file in dir, or an error when
// none exist.
func FindLatest(dir string) (string, error) {
	paths, err := List(dir)
	if err != nil {
		return "", err
	}
	if len(paths) == 0 {
		return "", errors.NotFound("no checkpoints in " + dir)
	}
	return paths[len(paths)-1], nil
}

// CleanOld removes all but the newest keep checkpoint files.
func CleanOld(dir string, keep int) (removed int, err error) {
	if keep < 0 {
		keep = 0
	}
	paths, err := List(dir)
	if err != nil {
		return 0, err
	}
	if len(paths) <= keep {
		return 0, nil
	}
	for _, path := range paths[:len(paths)-keep] {
		if rmErr := os.Remove(path); rmErr != nil {
			return removed, errors.WrapWithCode(rmErr, errors.ErrCodeCheckpointIO,
				"removing old checkpoint")
		}
		removed++
	}
	return removed, nil
}

// Load reads a checkpoint from disk.
func Load(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrCodeCheckpointIO,
			"reading checkpoint")
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrCodeCorruption,
			"decoding checkpoint")
	}
	return &cp, nil
}

// Resume loads a checkpoint and reconstructs its plan together with a
// manager that continues the same session. The next save continues the
// session's number sequence.
func Resume(path string, opts ...ManagerOption) (*plan.Plan, *Manager, error) {
	cp, err := Load(path)
	if err != nil {
		return nil, nil, err
	}
	p := plan.FromSnapshot(cp.Plan)
	opts = append([]ManagerOption{
		WithSessionID(cp.SessionID),
		WithEngineInfo(cp.Engine),
	}, opts...)
	m := NewManager(p, filepath.Dir(path), opts...)
	m.number = cp.Number
	return p, m, nil
}

// parsed file name fields: session, number, timestamp.
type fileMeta struct {
	session string
	number  int
	ts      string
}

// parseName extracts metadata from a checkpoint file name. Returns false
// for names that do not match the format.
func parseName(path string) (fileMeta, bool) {
	name := filepath.Base(path)
	if !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileExt) {
		return fileMeta{}, false
	}
	core := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileExt)
	// Session ids contain no underscores, so splitting from the right is
	// unambiguous: <session>_<number>_<timestamp>.
	lastSep := strings.LastIndex(core, "_")
	if lastSep < 0 {
		return fileMeta{}, false
	}
	ts := core[lastSep+1:]
	rest := core[:lastSep]
	numSep := strings.LastIndex(rest, "_")
	if numSep < 0 {
		return fileMeta{}, false
	}
	number, err := strconv.Atoi(rest[numSep+1:])
	if err != nil {
		return fileMeta{}, false
	}
	return fileMeta{session: rest[:numSep], number: number, ts: ts}, true
}

// compareFiles orders checkpoint files by timestamp, then number.
func compareFiles(a, b string) int {
	ma, okA := parseName(a)
	mb, okB := parseName(b)
	if !okA || !okB {
		return strings.Compare(a, b)
	}
	if ma.ts != mb.ts {
		return strings.Compare(ma.ts, mb.ts)
	}
	return ma.number - mb.number
}
