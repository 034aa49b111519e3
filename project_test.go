package notebook

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleProjectYAML = `
name: sales-report
description: Quarterly sales rollup
blocks:
  - name: load
    source: 'data := [1, 2, 3]'
  - name: total
    source: 'total := data[0] + data[1] + data[2]'
  - name: notes
    type: markdown
    source: 'Total: ${total}'
    depends_on:
      - total
`

func TestLoadString(t *testing.T) {
	project, err := LoadString(sampleProjectYAML)
	require.NoError(t, err)
	require.Equal(t, "sales-report", project.Name())
	require.Equal(t, "Quarterly sales rollup", project.Description())
	require.NotEmpty(t, project.ID())

	defs := project.Definitions()
	require.Len(t, defs, 3)
	require.Equal(t, "load", defs[0].Name)
	require.Equal(t, BlockTypeCode, defs[0].Type)
	require.Equal(t, BlockTypeMarkdown, defs[2].Type)
	require.Equal(t, []string{"total"}, defs[2].DependsOn)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "project.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleProjectYAML), 0644))

	project, err := LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, "sales-report", project.Name())
	require.Equal(t, path, project.Path())

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestInvalidProjects(t *testing.T) {
	t.Run("missing name", func(t *testing.T) {
		_, err := NewProject(ProjectOptions{
			Blocks: []*BlockDefinition{{Name: "a", Source: "x := 1"}},
		})
		require.Error(t, err)
		require.Contains(t, err.Error(), "project name required")
	})

	t.Run("no blocks", func(t *testing.T) {
		_, err := NewProject(ProjectOptions{Name: "empty"})
		require.Error(t, err)
		require.Contains(t, err.Error(), "blocks required")
	})

	t.Run("unnamed block", func(t *testing.T) {
		_, err := NewProject(ProjectOptions{
			Name:   "p",
			Blocks: []*BlockDefinition{{Source: "x := 1"}},
		})
		require.Error(t, err)
		require.Contains(t, err.Error(), "block name required")
	})

	t.Run("duplicate block name", func(t *testing.T) {
		_, err := NewProject(ProjectOptions{
			Name: "p",
			Blocks: []*BlockDefinition{
				{Name: "a", Source: "x := 1"},
				{Name: "a", Source: "y := 2"},
			},
		})
		require.Error(t, err)
		require.Contains(t, err.Error(), "duplicate block name")
	})

	t.Run("unknown dependency", func(t *testing.T) {
		_, err := NewProject(ProjectOptions{
			Name: "p",
			Blocks: []*BlockDefinition{
				{Name: "a", Source: "x := 1", DependsOn: []string{"ghost"}},
			},
		})
		require.Error(t, err)
		require.Contains(t, err.Error(), "unknown block")
	})
}

func TestMaterialize(t *testing.T) {
	project, err := LoadString(sampleProjectYAML)
	require.NoError(t, err)

	blocks := project.Materialize()
	require.Len(t, blocks, 3)

	idsByName := map[string]string{}
	for i, block := range blocks {
		require.NotEmpty(t, block.ID)
		require.Equal(t, project.ID(), block.ProjectID)
		require.Equal(t, i+1, block.Ordinal)
		require.Equal(t, BlockStatusIdle, block.Status)
		idsByName[block.Name] = block.ID
	}

	// depends_on names resolve to the materialized block IDs.
	require.Equal(t, []string{idsByName["total"]}, blocks[2].ExplicitDeps)

	// Each call mints fresh IDs.
	again := project.Materialize()
	require.NotEqual(t, blocks[0].ID, again[0].ID)
}
