package notebook

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/deepnoodle-ai/notebook/script"
	"go.jetify.com/typeid"
)

// NewSessionID returns a new unique session identifier
func NewSessionID() string {
	id, err := typeid.WithPrefix("sess")
	if err != nil {
		panic(err)
	}
	return id.String()
}

// SessionStatus represents the session lifecycle state
type SessionStatus string

const (
	SessionStatusCreated SessionStatus = "created"
	SessionStatusIdle    SessionStatus = "idle"
	SessionStatusRunning SessionStatus = "running"
	SessionStatusStopped SessionStatus = "stopped"
)

// HistoryEntry records one block execution in a session.
type HistoryEntry struct {
	BlockID   string        `json:"block_id"`
	Status    BlockStatus   `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
	Duration  time.Duration `json:"duration"`
}

// SessionOptions configures a new session
type SessionOptions struct {
	ID           string
	ProjectID    string
	Engine       script.Engine
	Logger       *slog.Logger
	Store        SessionStore
	WorkDir      string
	BlockTimeout time.Duration
}

// Session is a stateful execution context. Variables, imports, and
// functions defined by one block persist and are visible to every block
// executed later in the same session. Executions are strictly serialized:
// a session runs one block at a time.
//
// Failures are isolated. A block that raises leaves the session state
// exactly as it was before the block started.
type Session struct {
	id           string
	projectID    string
	engine       script.Engine
	logger       *slog.Logger
	store        SessionStore
	workDir      string
	blockTimeout time.Duration

	// execMu serializes Execute and Stop
	execMu sync.Mutex

	// mutex guards all state below
	mutex          sync.RWMutex
	status         SessionStatus
	vars           map[string]any
	reprs          map[string]string
	imports        map[string]bool
	history        []HistoryEntry
	executionCount int
	createdAt      time.Time
	lastActivity   time.Time
	seenFiles      map[string]bool
}

// NewSession creates a session ready to execute blocks
func NewSession(opts SessionOptions) (*Session, error) {
	if opts.ID == "" {
		opts.ID = NewSessionID()
	}
	if opts.Engine == nil {
		opts.Engine = script.NewRisorEngine(script.RisorEngineOptions{})
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Store == nil {
		opts.Store = NewNullSessionStore()
	}
	if opts.BlockTimeout <= 0 {
		opts.BlockTimeout = 30 * time.Second
	}
	now := time.Now()
	s := &Session{
		id:           opts.ID,
		projectID:    opts.ProjectID,
		engine:       opts.Engine,
		logger:       opts.Logger.With("session_id", opts.ID),
		store:        opts.Store,
		workDir:      opts.WorkDir,
		blockTimeout: opts.BlockTimeout,
		status:       SessionStatusCreated,
		vars:         map[string]any{},
		reprs:        map[string]string{},
		imports:      map[string]bool{},
		seenFiles:    map[string]bool{},
		createdAt:    now,
		lastActivity: now,
	}
	if s.workDir != "" {
		if err := os.MkdirAll(s.workDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create session work directory: %w", err)
		}
		// Pre-existing files are not artifacts of any block.
		entries, err := os.ReadDir(s.workDir)
		if err != nil {
			return nil, fmt.Errorf("failed to read session work directory: %w", err)
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				s.seenFiles[entry.Name()] = true
			}
		}
	}
	return s, nil
}

// ID returns the session identifier
func (s *Session) ID() string {
	return s.id
}

// ProjectID returns the project this session belongs to, if any
func (s *Session) ProjectID() string {
	return s.projectID
}

// Status returns the current session status
func (s *Session) Status() SessionStatus {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.status
}

// LastActivity returns the time of the most recent execution or creation
func (s *Session) LastActivity() time.Time {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.lastActivity
}

// Execute runs one block in this session. Block failures are reported in
// the result, not as an error; a non-nil error means the session itself is
// unusable and the caller should abort the run.
func (s *Session) Execute(ctx context.Context, block *Block) (*ExecutionResult, error) {
	if !block.Executable() {
		return nil, fmt.Errorf("block %s is not executable (type %s)", block.ID, block.Type)
	}

	s.execMu.Lock()
	defer s.execMu.Unlock()

	s.mutex.Lock()
	if s.status == SessionStatusStopped {
		s.mutex.Unlock()
		return nil, NewNotebookError(ErrorTypeSessionUnavailable,
			fmt.Sprintf("session %s is stopped", s.id))
	}
	s.status = SessionStatusRunning
	s.mutex.Unlock()

	result := s.executeLocked(ctx, block)

	s.mutex.Lock()
	s.status = SessionStatusIdle
	s.lastActivity = time.Now()
	if result.Status == BlockStatusCompleted {
		s.executionCount++
	}
	s.history = append(s.history, HistoryEntry{
		BlockID:   block.ID,
		Status:    result.Status,
		Timestamp: result.StartedAt,
		Duration:  result.Duration,
	})
	s.mutex.Unlock()

	if err := s.store.SaveSnapshot(ctx, s.Snapshot()); err != nil {
		s.logger.Warn("failed to save session snapshot", "error", err)
	}
	return result, nil
}

func (s *Session) executeLocked(ctx context.Context, block *Block) *ExecutionResult {
	started := time.Now()
	result := &ExecutionResult{
		BlockID:   block.ID,
		SessionID: s.id,
		StartedAt: started,
	}
	fail := func(errorType, message string) *ExecutionResult {
		result.Status = BlockStatusFailed
		result.Error = message
		result.ErrorType = errorType
		result.Duration = time.Since(started)
		s.logger.Debug("block failed", "block_id", block.ID, "error_type", errorType, "error", message)
		return result
	}

	if block.AnalysisError != "" {
		return fail(ErrorTypeAnalysis, block.AnalysisError)
	}

	captureNames := s.captureNames(block)
	code := block.Source
	if len(captureNames) > 0 {
		code = code + "\n" + captureExpression(captureNames)
	}

	s.mutex.RLock()
	globalNames := make([]string, 0, len(s.vars))
	globals := make(map[string]any, len(s.vars))
	for name, value := range s.vars {
		globalNames = append(globalNames, name)
		globals[name] = value
	}
	s.mutex.RUnlock()

	compiled, err := s.engine.Compile(ctx, code, globalNames)
	if err != nil {
		return fail(ErrorTypeRuntime, err.Error())
	}

	execCtx, cancel := context.WithTimeout(ctx, s.blockTimeout)
	defer cancel()

	capture := script.NewPrintCapture()
	s.logger.Debug("executing block", "block_id", block.ID, "timeout", s.blockTimeout)
	value, err := compiled.Evaluate(execCtx, globals, capture)
	result.Stdout = capture.String()
	// A deadline can produce a clean return instead of an error (sleeps
	// end early on cancellation), so the context is checked either way.
	// Nothing is merged from an aborted run.
	if deadline := execCtx.Err(); err == nil && deadline != nil {
		err = deadline
	}
	if err != nil {
		if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
			return fail(ErrorTypeTimeout,
				fmt.Sprintf("block execution exceeded %s", s.blockTimeout))
		}
		return fail(ClassifyError(err).Type, err.Error())
	}

	// State merges only after a fully successful evaluation, so a failed
	// block can never leave partial bindings behind.
	if len(captureNames) > 0 {
		if bindings, ok := value.Bindings(); ok {
			s.mergeBindings(block, bindings, result)
		}
	} else {
		result.Value = value.Value()
	}

	result.Artifacts = s.collectArtifacts()
	result.Status = BlockStatusCompleted
	result.Duration = time.Since(started)
	s.logger.Debug("block completed",
		"block_id", block.ID,
		"duration", result.Duration,
		"variables", len(result.VariablesDelta))
	return result
}

// captureNames returns the session names this block may create or mutate:
// its own top-level bindings and imports, plus any existing session
// variable it references.
func (s *Session) captureNames(block *Block) []string {
	if block.Analysis == nil {
		return nil
	}
	set := map[string]bool{}
	for _, name := range block.Analysis.Defined {
		set[name] = true
	}
	for _, name := range block.Analysis.Imports {
		set[name] = true
	}
	s.mutex.RLock()
	for _, name := range block.Analysis.References {
		if _, ok := s.vars[name]; ok {
			set[name] = true
		}
	}
	s.mutex.RUnlock()
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// captureExpression builds a map literal of the given names, appended to a
// block's source as its final expression so the evaluation returns the
// block's bindings.
func captureExpression(names []string) string {
	pairs := make([]string, len(names))
	for i, name := range names {
		pairs[i] = fmt.Sprintf("%q: %s", name, name)
	}
	return "{" + strings.Join(pairs, ", ") + "}"
}

func (s *Session) mergeBindings(block *Block, bindings map[string]any, result *ExecutionResult) {
	imported := map[string]bool{}
	if block.Analysis != nil {
		for _, name := range block.Analysis.Imports {
			imported[name] = true
		}
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()
	for name, value := range bindings {
		repr := script.Repr(value)
		if previous, exists := s.reprs[name]; !exists || previous != repr {
			if imported[name] {
				result.ImportsDelta = append(result.ImportsDelta, name)
			} else {
				result.VariablesDelta = append(result.VariablesDelta, name)
			}
		}
		s.vars[name] = value
		s.reprs[name] = repr
		if imported[name] {
			s.imports[name] = true
		}
	}
	sort.Strings(result.VariablesDelta)
	sort.Strings(result.ImportsDelta)
}

// collectArtifacts returns files that appeared in the work directory since
// the last scan.
func (s *Session) collectArtifacts() []Artifact {
	if s.workDir == "" {
		return nil
	}
	entries, err := os.ReadDir(s.workDir)
	if err != nil {
		s.logger.Warn("failed to scan session work directory", "error", err)
		return nil
	}
	var artifacts []Artifact
	s.mutex.Lock()
	defer s.mutex.Unlock()
	for _, entry := range entries {
		if entry.IsDir() || s.seenFiles[entry.Name()] {
			continue
		}
		s.seenFiles[entry.Name()] = true
		var size int64
		if info, err := entry.Info(); err == nil {
			size = info.Size()
		}
		artifacts = append(artifacts, Artifact{
			Type: artifactTypeForFile(entry.Name()),
			Name: entry.Name(),
			Path: filepath.Join(s.workDir, entry.Name()),
			Size: size,
		})
	}
	return artifacts
}

// Render interpolates ${...} expressions in a markdown or text block
// against the current session variables.
func (s *Session) Render(ctx context.Context, block *Block) (string, error) {
	if block.Executable() {
		return "", fmt.Errorf("block %s is executable; Render is for display blocks", block.ID)
	}
	s.mutex.RLock()
	names := make([]string, 0, len(s.vars))
	globals := make(map[string]any, len(s.vars))
	for name, value := range s.vars {
		names = append(names, name)
		globals[name] = value
	}
	s.mutex.RUnlock()
	tmpl, err := script.NewTemplate(s.engine, block.Source, names)
	if err != nil {
		return "", err
	}
	return tmpl.Render(ctx, globals)
}

// Lookup returns the current value bound to a session variable
func (s *Session) Lookup(name string) (any, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	value, ok := s.vars[name]
	return value, ok
}

// Snapshot returns a persistable view of the session state
func (s *Session) Snapshot() *SessionSnapshot {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	snapshot := &SessionSnapshot{
		SessionID:      s.id,
		ProjectID:      s.projectID,
		Status:         s.status,
		Variables:      make(map[string]string, len(s.reprs)),
		History:        append([]HistoryEntry{}, s.history...),
		ExecutionCount: s.executionCount,
		CreatedAt:      s.createdAt,
		LastActivity:   s.lastActivity,
		SnapshotAt:     time.Now(),
	}
	for name, repr := range s.reprs {
		snapshot.Variables[name] = repr
	}
	for name := range s.imports {
		snapshot.Imports = append(snapshot.Imports, name)
	}
	sort.Strings(snapshot.Imports)
	return snapshot
}

// Stop shuts the session down. It waits for any in-flight execution to
// finish, saves a final snapshot, and rejects all future executions.
func (s *Session) Stop(ctx context.Context) error {
	s.execMu.Lock()
	defer s.execMu.Unlock()

	s.mutex.Lock()
	if s.status == SessionStatusStopped {
		s.mutex.Unlock()
		return nil
	}
	s.status = SessionStatusStopped
	s.mutex.Unlock()

	s.logger.Debug("session stopped")
	if err := s.store.SaveSnapshot(ctx, s.Snapshot()); err != nil {
		return fmt.Errorf("failed to save final session snapshot: %w", err)
	}
	return nil
}
