package postgres_test

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	pgmodule "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/deepnoodle-ai/notebook"
	"github.com/deepnoodle-ai/notebook/analysis"
	"github.com/deepnoodle-ai/notebook/postgres"
)

var pgContainer *pgmodule.PostgresContainer

func dropTables(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	for _, table := range []string{"blocks", "schema_migrations"} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	require.NoError(t, db.Close())
}

func setupRepository(t *testing.T) (*postgres.Repository, context.Context, string) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if pgContainer == nil || !pgContainer.IsRunning() {
		var err error
		pgContainer, err = pgmodule.Run(ctx,
			"postgres:16-alpine",
			pgmodule.WithDatabase("notebook_test"),
			pgmodule.WithUsername("notebook"),
			pgmodule.WithPassword("notebook"),
			pgmodule.BasicWaitStrategies(),
		)
		if err != nil {
			cancel()
			t.Skipf("postgres container unavailable: %v", err)
		}
	}

	databaseURL, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropTables(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	repo, err := postgres.New(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		dropTables(ctx, t, databaseURL)
		require.NoError(t, repo.Close())
		cancel()
	})

	return repo, ctx, databaseURL
}

func TestNew_Migrations(t *testing.T) {
	_, ctx, databaseURL := setupRepository(t)

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)
	defer db.Close()

	var exists bool
	err = db.QueryRowContext(ctx, `SELECT EXISTS (SELECT FROM
information_schema.tables WHERE table_name = 'blocks')`).Scan(&exists)
	require.NoError(t, err)
	assert.True(t, exists, "blocks table should exist")

	var version int
	err = db.QueryRowContext(ctx,
		"SELECT MAX(version) FROM schema_migrations").Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, 2, version)
}

func TestRepository_HealthCheck(t *testing.T) {
	repo, ctx, _ := setupRepository(t)

	assert.NoError(t, repo.HealthCheck(ctx))
}

func TestRepository_PutAndGetBlock(t *testing.T) {
	repo, ctx, _ := setupRepository(t)

	now := time.Now().UTC().Truncate(time.Millisecond)
	block := &notebook.Block{
		ID:        notebook.NewBlockID(),
		ProjectID: "proj_test",
		Name:      "load",
		Type:      notebook.BlockTypeCode,
		Ordinal:   1,
		Source:    "x := 5",
		Status:    notebook.BlockStatusCompleted,
		Analysis: &analysis.Record{
			Defined:    []string{"x"},
			References: []string{},
			Imports:    []string{},
		},
		LastOutput:     "5\n",
		LastDuration:   42 * time.Millisecond,
		ExecutionCount: 3,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	require.NoError(t, repo.PutBlock(ctx, block))

	got, err := repo.GetBlock(ctx, block.ID)
	require.NoError(t, err)
	assert.Equal(t, block.ID, got.ID)
	assert.Equal(t, "proj_test", got.ProjectID)
	assert.Equal(t, notebook.BlockTypeCode, got.Type)
	assert.Equal(t, notebook.BlockStatusCompleted, got.Status)
	assert.Equal(t, "x := 5", got.Source)
	assert.Equal(t, 42*time.Millisecond, got.LastDuration)
	assert.Equal(t, 3, got.ExecutionCount)
	require.NotNil(t, got.Analysis)
	assert.Equal(t, []string{"x"}, got.Analysis.Defined)
	assert.WithinDuration(t, now, got.CreatedAt, time.Second)
}

func TestRepository_PutBlock_Upsert(t *testing.T) {
	repo, ctx, _ := setupRepository(t)

	now := time.Now().UTC()
	block := &notebook.Block{
		ID:        notebook.NewBlockID(),
		ProjectID: "proj_test",
		Type:      notebook.BlockTypeCode,
		Ordinal:   1,
		Source:    "x := 1",
		Status:    notebook.BlockStatusIdle,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, repo.PutBlock(ctx, block))

	block.Source = "x := 2"
	block.Status = notebook.BlockStatusStale
	block.ExplicitDeps = []string{"block_other"}
	require.NoError(t, repo.PutBlock(ctx, block))

	got, err := repo.GetBlock(ctx, block.ID)
	require.NoError(t, err)
	assert.Equal(t, "x := 2", got.Source)
	assert.Equal(t, notebook.BlockStatusStale, got.Status)
	assert.Equal(t, []string{"block_other"}, got.ExplicitDeps)
}

func TestRepository_GetBlock_NotFound(t *testing.T) {
	repo, ctx, _ := setupRepository(t)

	_, err := repo.GetBlock(ctx, "block_missing")
	assert.ErrorIs(t, err, notebook.ErrBlockNotFound)
}

func TestRepository_DeleteBlock(t *testing.T) {
	repo, ctx, _ := setupRepository(t)

	now := time.Now().UTC()
	block := &notebook.Block{
		ID:        notebook.NewBlockID(),
		ProjectID: "proj_test",
		Type:      notebook.BlockTypeCode,
		Ordinal:   1,
		Status:    notebook.BlockStatusIdle,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, repo.PutBlock(ctx, block))
	require.NoError(t, repo.DeleteBlock(ctx, block.ID))

	_, err := repo.GetBlock(ctx, block.ID)
	assert.ErrorIs(t, err, notebook.ErrBlockNotFound)

	err = repo.DeleteBlock(ctx, block.ID)
	assert.ErrorIs(t, err, notebook.ErrBlockNotFound)
}

func TestRepository_ListBlocks_OrderedByOrdinal(t *testing.T) {
	repo, ctx, _ := setupRepository(t)

	now := time.Now().UTC()
	for _, ord := range []int{3, 1, 2} {
		block := &notebook.Block{
			ID:        notebook.NewBlockID(),
			ProjectID: "proj_list",
			Type:      notebook.BlockTypeCode,
			Ordinal:   ord,
			Status:    notebook.BlockStatusIdle,
			CreatedAt: now,
			UpdatedAt: now,
		}
		require.NoError(t, repo.PutBlock(ctx, block))
	}

	blocks, err := repo.ListBlocks(ctx, "proj_list")
	require.NoError(t, err)
	require.Len(t, blocks, 3)
	assert.Equal(t, 1, blocks[0].Ordinal)
	assert.Equal(t, 2, blocks[1].Ordinal)
	assert.Equal(t, 3, blocks[2].Ordinal)

	empty, err := repo.ListBlocks(ctx, "proj_other")
	require.NoError(t, err)
	assert.Empty(t, empty)
}
