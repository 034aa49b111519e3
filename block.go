package notebook

import (
	"time"

	"github.com/deepnoodle-ai/notebook/analysis"
	"go.jetify.com/typeid"
)

// NewBlockID returns a new unique block identifier
func NewBlockID() string {
	id, err := typeid.WithPrefix("block")
	if err != nil {
		panic(err)
	}
	return id.String()
}

// BlockType identifies what kind of content a block holds.
type BlockType string

const (
	BlockTypeCode     BlockType = "code"
	BlockTypeMarkdown BlockType = "markdown"
	BlockTypeSQL      BlockType = "sql"
	BlockTypeText     BlockType = "text"
)

// Language maps the block type to the analyzer's language tag.
func (t BlockType) Language() analysis.Language {
	switch t {
	case BlockTypeCode:
		return analysis.LanguageCode
	case BlockTypeMarkdown:
		return analysis.LanguageMarkdown
	case BlockTypeSQL:
		return analysis.LanguageSQL
	default:
		return analysis.LanguageText
	}
}

// BlockStatus is the lifecycle state of a block.
type BlockStatus string

const (
	// BlockStatusIdle means the block has never run, or ran before any
	// upstream edit invalidated it.
	BlockStatusIdle BlockStatus = "idle"

	// BlockStatusRunning means the block is currently executing.
	BlockStatusRunning BlockStatus = "running"

	// BlockStatusCompleted means the last execution succeeded.
	BlockStatusCompleted BlockStatus = "completed"

	// BlockStatusFailed means the last execution raised an error.
	BlockStatusFailed BlockStatus = "failed"

	// BlockStatusStale means the block or one of its dependencies was
	// edited after its last successful run.
	BlockStatusStale BlockStatus = "stale"

	// BlockStatusSkipped means the block was not run because an upstream
	// dependency failed.
	BlockStatusSkipped BlockStatus = "skipped"
)

// Block is one cell of a project: a unit of source code plus the execution
// and analysis state that hangs off it. The analysis fields are derived
// from Source and must be refreshed on every edit.
type Block struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	Name      string    `json:"name,omitempty"`
	Type      BlockType `json:"type"`

	// Ordinal is the block's position in the notebook. It breaks ties in
	// execution ordering and anchors fallback edges.
	Ordinal int `json:"ordinal"`

	Source string      `json:"source"`
	Status BlockStatus `json:"status"`

	// ExplicitDeps lists block IDs this block depends on by user
	// declaration, independent of anything the analyzer infers.
	ExplicitDeps []string `json:"explicit_deps,omitempty"`

	// Analysis is nil when the source failed to parse; AnalysisError
	// holds the parser message in that case.
	Analysis      *analysis.Record `json:"analysis,omitempty"`
	AnalysisError string           `json:"analysis_error,omitempty"`

	LastOutput     string        `json:"last_output,omitempty"`
	LastError      string        `json:"last_error,omitempty"`
	LastDuration   time.Duration `json:"last_duration,omitempty"`
	ExecutionCount int           `json:"execution_count"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Executable reports whether the block participates in execution. Markdown,
// SQL, and text blocks render but never run.
func (b *Block) Executable() bool {
	return b.Type == BlockTypeCode
}

// Copy returns a deep copy of the block.
func (b *Block) Copy() *Block {
	dup := *b
	if b.ExplicitDeps != nil {
		dup.ExplicitDeps = append([]string{}, b.ExplicitDeps...)
	}
	if b.Analysis != nil {
		record := *b.Analysis
		record.Imports = append([]string{}, b.Analysis.Imports...)
		record.Defined = append([]string{}, b.Analysis.Defined...)
		record.Functions = append([]string{}, b.Analysis.Functions...)
		record.References = append([]string{}, b.Analysis.References...)
		dup.Analysis = &record
	}
	return &dup
}
