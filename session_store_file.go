package notebook

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FileSessionStore is a file-based implementation that persists session
// snapshots to disk
type FileSessionStore struct {
	dataDir string
}

// NewFileSessionStore creates a new file-based session store
func NewFileSessionStore(dataDir string) (*FileSessionStore, error) {
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		dataDir = filepath.Join(homeDir, ".deepnoodle", "notebook", "sessions")
	}

	// Ensure the data directory exists
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", dataDir, err)
	}

	return &FileSessionStore{dataDir: dataDir}, nil
}

// SaveSnapshot saves the session snapshot to disk
func (s *FileSessionStore) SaveSnapshot(ctx context.Context, snapshot *SessionSnapshot) error {
	sessionDir := filepath.Join(s.dataDir, snapshot.SessionID)
	if err := os.MkdirAll(sessionDir, 0755); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	// Save the snapshot as JSON
	snapshotPath := filepath.Join(sessionDir, fmt.Sprintf("snapshot-%06d.json", snapshot.ExecutionCount))
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	if err := os.WriteFile(snapshotPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write snapshot file: %w", err)
	}

	// Update the latest snapshot symlink
	latestPath := filepath.Join(sessionDir, "latest.json")
	if err := s.updateLatestSymlink(snapshotPath, latestPath); err != nil {
		return fmt.Errorf("failed to update latest symlink: %w", err)
	}

	return nil
}

// LoadSnapshot loads the latest snapshot for a session
func (s *FileSessionStore) LoadSnapshot(ctx context.Context, sessionID string) (*SessionSnapshot, error) {
	latestPath := filepath.Join(s.dataDir, sessionID, "latest.json")

	// Check if latest snapshot exists
	if _, err := os.Stat(latestPath); os.IsNotExist(err) {
		return nil, nil // No snapshot found
	}

	// Read the snapshot file
	data, err := os.ReadFile(latestPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot file: %w", err)
	}

	var snapshot SessionSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}

	return &snapshot, nil
}

// DeleteSnapshot removes all snapshot data for a session
func (s *FileSessionStore) DeleteSnapshot(ctx context.Context, sessionID string) error {
	sessionDir := filepath.Join(s.dataDir, sessionID)
	if err := os.RemoveAll(sessionDir); err != nil {
		return fmt.Errorf("failed to delete session directory: %w", err)
	}
	return nil
}

// ListSessions returns the latest snapshot of every stored session, newest
// activity first
func (s *FileSessionStore) ListSessions(ctx context.Context) ([]*SessionSnapshot, error) {
	entries, err := os.ReadDir(s.dataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []*SessionSnapshot{}, nil // No sessions directory yet
		}
		return nil, fmt.Errorf("failed to read sessions directory: %w", err)
	}

	var snapshots []*SessionSnapshot
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		snapshot, err := s.LoadSnapshot(ctx, entry.Name())
		if err != nil || snapshot == nil {
			// Skip sessions we can't read
			continue
		}
		snapshots = append(snapshots, snapshot)
	}

	// Sort by last activity (newest first)
	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].LastActivity.After(snapshots[j].LastActivity)
	})

	return snapshots, nil
}

// updateLatestSymlink updates the symlink to point to the latest snapshot
func (s *FileSessionStore) updateLatestSymlink(snapshotPath, latestPath string) error {
	// Remove existing symlink if it exists
	if _, err := os.Lstat(latestPath); err == nil {
		if err := os.Remove(latestPath); err != nil {
			return fmt.Errorf("failed to remove existing latest symlink: %w", err)
		}
	}

	// On Windows, copy the file instead of creating a symlink
	if strings.Contains(os.Getenv("OS"), "Windows") {
		data, err := os.ReadFile(snapshotPath)
		if err != nil {
			return fmt.Errorf("failed to read snapshot for copy: %w", err)
		}
		return os.WriteFile(latestPath, data, 0644)
	}

	// Create relative symlink
	rel, err := filepath.Rel(filepath.Dir(latestPath), snapshotPath)
	if err != nil {
		return fmt.Errorf("failed to create relative path: %w", err)
	}

	return os.Symlink(rel, latestPath)
}
