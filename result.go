package notebook

import (
	"path/filepath"
	"strings"
	"time"
)

// ArtifactType classifies an output artifact produced by a block.
type ArtifactType string

const (
	ArtifactTypeStream  ArtifactType = "stream"
	ArtifactTypeDisplay ArtifactType = "display"
	ArtifactTypeHTML    ArtifactType = "html"
	ArtifactTypePNG     ArtifactType = "png"
	ArtifactTypeTable   ArtifactType = "table"
	ArtifactTypeError   ArtifactType = "error"
)

// Artifact is a file a block wrote into the session working directory
// during execution.
type Artifact struct {
	Type ArtifactType `json:"type"`
	Name string       `json:"name"`
	Path string       `json:"path"`
	Size int64        `json:"size"`
}

// artifactTypeForFile maps a filename to an artifact type by extension.
func artifactTypeForFile(name string) ArtifactType {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png":
		return ArtifactTypePNG
	case ".html":
		return ArtifactTypeHTML
	case ".csv", ".json":
		return ArtifactTypeTable
	default:
		return ArtifactTypeDisplay
	}
}

// ExecutionResult captures everything one block execution produced.
type ExecutionResult struct {
	BlockID   string      `json:"block_id"`
	SessionID string      `json:"session_id"`
	Status    BlockStatus `json:"status"`

	// Stdout holds everything the block printed.
	Stdout string `json:"stdout,omitempty"`

	// Value is the Go representation of the block's final expression,
	// when it has one.
	Value any `json:"value,omitempty"`

	// Error and ErrorType are set when Status is failed or skipped.
	Error     string `json:"error,omitempty"`
	ErrorType string `json:"error_type,omitempty"`

	// SkippedBecause names the failed upstream block when Status is
	// skipped.
	SkippedBecause string `json:"skipped_because,omitempty"`

	// VariablesDelta and ImportsDelta list session names this execution
	// added or changed.
	VariablesDelta []string `json:"variables_delta,omitempty"`
	ImportsDelta   []string `json:"imports_delta,omitempty"`

	Artifacts []Artifact `json:"artifacts,omitempty"`

	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// Failed reports whether the execution ended in failure.
func (r *ExecutionResult) Failed() bool {
	return r.Status == BlockStatusFailed
}
