// Package postgres provides PostgreSQL persistence for notebook blocks.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/deepnoodle-ai/notebook"
	"github.com/deepnoodle-ai/notebook/analysis"
	"github.com/deepnoodle-ai/notebook/retry"
	_ "github.com/lib/pq"
)

// Repository implements notebook.BlockRepository on PostgreSQL.
type Repository struct {
	db     *sql.DB
	logger *slog.Logger
}

// New connects to PostgreSQL, runs migrations, and returns a repository.
// The initial ping is retried with backoff so a database that is still
// starting up does not fail the caller.
func New(ctx context.Context, logger *slog.Logger, databaseURL string) (*Repository, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = retry.Do(ctx, func() error {
		return db.PingContext(ctx)
	}, retry.WithMaxRetries(5), retry.WithBaseWait(200*time.Millisecond))
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	manager := newMigrationManager(logger, db, migrations())
	if err := manager.RunMigrations(ctx); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Repository{db: db, logger: logger}, nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		if err := r.db.Close(); err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}
	return nil
}

// HealthCheck verifies the database connection is healthy.
func (r *Repository) HealthCheck(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}

const blockColumns = `id, project_id, name, type, ordinal, source, status,
	explicit_deps, analysis, analysis_error, last_output, last_error,
	last_duration_ms, execution_count, created_at, updated_at`

// GetBlock returns a block by ID.
func (r *Repository) GetBlock(ctx context.Context, id string) (*notebook.Block, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+blockColumns+` FROM blocks WHERE id = $1`, id)
	block, err := scanBlock(row)
	if err == sql.ErrNoRows {
		return nil, notebook.ErrBlockNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query block: %w", err)
	}
	return block, nil
}

// PutBlock inserts or replaces a block.
func (r *Repository) PutBlock(ctx context.Context, block *notebook.Block) error {
	explicitDeps, err := json.Marshal(block.ExplicitDeps)
	if err != nil {
		return fmt.Errorf("failed to marshal explicit deps: %w", err)
	}
	var analysisJSON []byte
	if block.Analysis != nil {
		analysisJSON, err = json.Marshal(block.Analysis)
		if err != nil {
			return fmt.Errorf("failed to marshal analysis: %w", err)
		}
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO blocks (`+blockColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (id) DO UPDATE SET
			project_id = EXCLUDED.project_id,
			name = EXCLUDED.name,
			type = EXCLUDED.type,
			ordinal = EXCLUDED.ordinal,
			source = EXCLUDED.source,
			status = EXCLUDED.status,
			explicit_deps = EXCLUDED.explicit_deps,
			analysis = EXCLUDED.analysis,
			analysis_error = EXCLUDED.analysis_error,
			last_output = EXCLUDED.last_output,
			last_error = EXCLUDED.last_error,
			last_duration_ms = EXCLUDED.last_duration_ms,
			execution_count = EXCLUDED.execution_count,
			updated_at = EXCLUDED.updated_at`,
		block.ID,
		block.ProjectID,
		block.Name,
		string(block.Type),
		block.Ordinal,
		block.Source,
		string(block.Status),
		explicitDeps,
		nullBytes(analysisJSON),
		block.AnalysisError,
		block.LastOutput,
		block.LastError,
		block.LastDuration.Milliseconds(),
		block.ExecutionCount,
		block.CreatedAt,
		block.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to store block: %w", err)
	}
	return nil
}

// DeleteBlock removes a block.
func (r *Repository) DeleteBlock(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM blocks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete block: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return notebook.ErrBlockNotFound
	}
	return nil
}

// ListBlocks returns all blocks in a project ordered by ordinal.
func (r *Repository) ListBlocks(ctx context.Context, projectID string) ([]*notebook.Block, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+blockColumns+` FROM blocks WHERE project_id = $1 ORDER BY ordinal, id`,
		projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query blocks: %w", err)
	}
	defer rows.Close()

	var blocks []*notebook.Block
	for rows.Next() {
		block, err := scanBlock(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan block: %w", err)
		}
		blocks = append(blocks, block)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate blocks: %w", err)
	}
	return blocks, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBlock(row rowScanner) (*notebook.Block, error) {
	var (
		block        notebook.Block
		blockType    string
		status       string
		explicitDeps []byte
		analysisJSON []byte
		durationMS   int64
	)
	err := row.Scan(
		&block.ID,
		&block.ProjectID,
		&block.Name,
		&blockType,
		&block.Ordinal,
		&block.Source,
		&status,
		&explicitDeps,
		&analysisJSON,
		&block.AnalysisError,
		&block.LastOutput,
		&block.LastError,
		&durationMS,
		&block.ExecutionCount,
		&block.CreatedAt,
		&block.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	block.Type = notebook.BlockType(blockType)
	block.Status = notebook.BlockStatus(status)
	block.LastDuration = time.Duration(durationMS) * time.Millisecond
	if len(explicitDeps) > 0 {
		if err := json.Unmarshal(explicitDeps, &block.ExplicitDeps); err != nil {
			return nil, fmt.Errorf("failed to unmarshal explicit deps: %w", err)
		}
	}
	if len(analysisJSON) > 0 {
		var record analysis.Record
		if err := json.Unmarshal(analysisJSON, &record); err != nil {
			return nil, fmt.Errorf("failed to unmarshal analysis: %w", err)
		}
		block.Analysis = &record
	}
	return &block, nil
}

func nullBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
