package notebook

import (
	"context"
	"time"
)

// SessionSnapshot is a persisted view of a session: variable display
// strings, imports, and execution history. Variable values themselves live
// only in the running session; a restored snapshot informs the UI, it does
// not resurrect bindings.
type SessionSnapshot struct {
	SessionID      string            `json:"session_id"`
	ProjectID      string            `json:"project_id,omitempty"`
	Status         SessionStatus     `json:"status"`
	Variables      map[string]string `json:"variables"`
	Imports        []string          `json:"imports,omitempty"`
	History        []HistoryEntry    `json:"history,omitempty"`
	ExecutionCount int               `json:"execution_count"`
	CreatedAt      time.Time         `json:"created_at,omitzero"`
	LastActivity   time.Time         `json:"last_activity,omitzero"`
	SnapshotAt     time.Time         `json:"snapshot_at"`
}

// SessionStore persists session snapshots.
type SessionStore interface {
	// SaveSnapshot saves the current session state
	SaveSnapshot(ctx context.Context, snapshot *SessionSnapshot) error

	// LoadSnapshot loads the latest snapshot for a session
	LoadSnapshot(ctx context.Context, sessionID string) (*SessionSnapshot, error)

	// DeleteSnapshot removes snapshot data for a session
	DeleteSnapshot(ctx context.Context, sessionID string) error
}
