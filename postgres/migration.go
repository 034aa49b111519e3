package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
)

// migrations returns the versioned schema migrations for the blocks store.
func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE IF NOT EXISTS blocks (
				id TEXT PRIMARY KEY,
				project_id TEXT NOT NULL,
				name TEXT NOT NULL DEFAULT '',
				type TEXT NOT NULL,
				ordinal INTEGER NOT NULL,
				source TEXT NOT NULL DEFAULT '',
				status TEXT NOT NULL,
				explicit_deps JSONB NOT NULL DEFAULT '[]',
				analysis JSONB,
				analysis_error TEXT NOT NULL DEFAULT '',
				last_output TEXT NOT NULL DEFAULT '',
				last_error TEXT NOT NULL DEFAULT '',
				last_duration_ms BIGINT NOT NULL DEFAULT 0,
				execution_count INTEGER NOT NULL DEFAULT 0,
				created_at TIMESTAMPTZ NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL
			)`,
		2: `CREATE INDEX IF NOT EXISTS idx_blocks_project_ordinal
				ON blocks (project_id, ordinal)`,
	}
}

// migrationManager applies versioned schema migrations, tracking applied
// versions in a schema_migrations table.
type migrationManager struct {
	logger     *slog.Logger
	db         *sql.DB
	migrations map[int]string
}

func newMigrationManager(logger *slog.Logger, db *sql.DB, migrations map[int]string) *migrationManager {
	return &migrationManager{logger: logger, db: db, migrations: migrations}
}

// RunMigrations applies any migrations newer than the current schema version,
// each in its own transaction.
func (m *migrationManager) RunMigrations(ctx context.Context) error {
	if err := m.createMigrationsTable(ctx); err != nil {
		return err
	}
	current, err := m.currentVersion(ctx)
	if err != nil {
		return err
	}

	var versions []int
	for version := range m.migrations {
		if version > current {
			versions = append(versions, version)
		}
	}
	sort.Ints(versions)

	for _, version := range versions {
		if err := m.apply(ctx, version, m.migrations[version]); err != nil {
			return fmt.Errorf("failed to apply migration %d: %w", version, err)
		}
		m.logger.Info("applied schema migration", "version", version)
	}
	return nil
}

func (m *migrationManager) createMigrationsTable(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	if err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}
	return nil
}

func (m *migrationManager) currentVersion(ctx context.Context) (int, error) {
	var version int
	err := m.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, nil
}

func (m *migrationManager) apply(ctx context.Context, version int, statement string) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, statement); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version) VALUES ($1)`, version); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}
	return tx.Commit()
}
