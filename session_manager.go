package notebook

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/deepnoodle-ai/notebook/script"
)

// SessionManagerOptions configures a SessionManager
type SessionManagerOptions struct {
	Logger *slog.Logger
	Store  SessionStore

	// Engine, when set, is shared by every session. Leave nil to give
	// each session the default Risor engine.
	Engine script.Engine

	// WorkDirRoot is the parent directory for per-session working
	// directories. Empty disables artifact collection.
	WorkDirRoot string

	// BlockTimeout bounds each block execution. Defaults to 30s.
	BlockTimeout time.Duration

	// IdleTimeout is how long a session may sit idle before the reaper
	// stops it. Defaults to 30 minutes.
	IdleTimeout time.Duration
}

// SessionManager owns the lifecycle of execution sessions: lazy creation,
// lookup, and idle reaping. Each project gets at most one live session.
type SessionManager struct {
	logger       *slog.Logger
	store        SessionStore
	engine       script.Engine
	workDirRoot  string
	blockTimeout time.Duration
	idleTimeout  time.Duration

	mutex     sync.Mutex
	sessions  map[string]*Session
	byProject map[string]string
}

// NewSessionManager creates a session manager
func NewSessionManager(opts SessionManagerOptions) *SessionManager {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Store == nil {
		opts.Store = NewNullSessionStore()
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = 30 * time.Minute
	}
	return &SessionManager{
		logger:       opts.Logger,
		store:        opts.Store,
		engine:       opts.Engine,
		workDirRoot:  opts.WorkDirRoot,
		blockTimeout: opts.BlockTimeout,
		idleTimeout:  opts.IdleTimeout,
		sessions:     map[string]*Session{},
		byProject:    map[string]string{},
	}
}

// SessionForProject returns the project's live session, creating one on
// first use.
func (m *SessionManager) SessionForProject(ctx context.Context, projectID string) (*Session, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if id, ok := m.byProject[projectID]; ok {
		if session, ok := m.sessions[id]; ok && session.Status() != SessionStatusStopped {
			return session, nil
		}
	}
	session, err := m.newSessionLocked(projectID)
	if err != nil {
		return nil, err
	}
	m.byProject[projectID] = session.ID()
	return session, nil
}

// StartSession creates a standalone session not tied to a project
func (m *SessionManager) StartSession(ctx context.Context) (*Session, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.newSessionLocked("")
}

func (m *SessionManager) newSessionLocked(projectID string) (*Session, error) {
	id := NewSessionID()
	workDir := ""
	if m.workDirRoot != "" {
		workDir = filepath.Join(m.workDirRoot, id)
	}
	session, err := NewSession(SessionOptions{
		ID:           id,
		ProjectID:    projectID,
		Engine:       m.engine,
		Logger:       m.logger,
		Store:        m.store,
		WorkDir:      workDir,
		BlockTimeout: m.blockTimeout,
	})
	if err != nil {
		return nil, NewNotebookError(ErrorTypeSessionUnavailable,
			fmt.Sprintf("failed to create session: %s", err))
	}
	m.sessions[id] = session
	m.logger.Info("session created", "session_id", id, "project_id", projectID)
	return session, nil
}

// GetSession returns a session by ID
func (m *SessionManager) GetSession(sessionID string) (*Session, bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	session, ok := m.sessions[sessionID]
	return session, ok
}

// Sessions returns all live sessions
func (m *SessionManager) Sessions() []*Session {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	result := make([]*Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		result = append(result, session)
	}
	return result
}

// StopSession stops and removes a session. Stopping waits for any
// in-flight execution to finish.
func (m *SessionManager) StopSession(ctx context.Context, sessionID string) error {
	m.mutex.Lock()
	session, ok := m.sessions[sessionID]
	if ok {
		delete(m.sessions, sessionID)
		if session.ProjectID() != "" && m.byProject[session.ProjectID()] == sessionID {
			delete(m.byProject, session.ProjectID())
		}
	}
	m.mutex.Unlock()
	if !ok {
		return fmt.Errorf("session %s not found", sessionID)
	}
	return session.Stop(ctx)
}

// StopAll stops every live session
func (m *SessionManager) StopAll(ctx context.Context) {
	for _, session := range m.Sessions() {
		if err := m.StopSession(ctx, session.ID()); err != nil {
			m.logger.Warn("failed to stop session", "session_id", session.ID(), "error", err)
		}
	}
}

// CollectIdle stops sessions that have been idle past the idle timeout.
// Running sessions are never collected. Returns the stopped session IDs.
func (m *SessionManager) CollectIdle(ctx context.Context, now time.Time) []string {
	var stopped []string
	for _, session := range m.Sessions() {
		if session.Status() == SessionStatusRunning {
			continue
		}
		if now.Sub(session.LastActivity()) < m.idleTimeout {
			continue
		}
		if err := m.StopSession(ctx, session.ID()); err != nil {
			m.logger.Warn("failed to stop idle session", "session_id", session.ID(), "error", err)
			continue
		}
		m.logger.Info("idle session collected", "session_id", session.ID())
		stopped = append(stopped, session.ID())
	}
	return stopped
}

// RunReaper collects idle sessions on the given interval until the context
// is canceled.
func (m *SessionManager) RunReaper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.CollectIdle(ctx, now)
		}
	}
}
