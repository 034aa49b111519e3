package notebook

import (
	"context"
	"time"
)

// ExecutionLogEntry represents a single block execution log entry
type ExecutionLogEntry struct {
	RunID          string      `json:"run_id"`
	ProjectID      string      `json:"project_id,omitempty"`
	SessionID      string      `json:"session_id"`
	BlockID        string      `json:"block_id"`
	Status         BlockStatus `json:"status"`
	Stdout         string      `json:"stdout,omitempty"`
	Error          string      `json:"error,omitempty"`
	ErrorType      string      `json:"error_type,omitempty"`
	SkippedBecause string      `json:"skipped_because,omitempty"`
	StartTime      time.Time   `json:"start_time"`
	Duration       float64     `json:"duration"`
}

// ExecutionLogger defines simple block execution logging interface
type ExecutionLogger interface {
	// LogExecution logs a completed block execution
	LogExecution(ctx context.Context, entry *ExecutionLogEntry) error

	// GetExecutionHistory retrieves the execution log for a run
	GetExecutionHistory(ctx context.Context, runID string) ([]*ExecutionLogEntry, error)
}
