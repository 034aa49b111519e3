package notebook

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/deepnoodle-ai/notebook/analysis"
)

// codeBlock builds an analyzed code block for graph tests.
func codeBlock(t *testing.T, id string, ordinal int, source string) *Block {
	t.Helper()
	block := &Block{
		ID:        id,
		ProjectID: "proj_test",
		Type:      BlockTypeCode,
		Ordinal:   ordinal,
		Source:    source,
	}
	record, err := analysis.Analyze(source, analysis.LanguageCode)
	if err != nil {
		block.AnalysisError = err.Error()
		return block
	}
	block.Analysis = record
	return block
}

func edgeKinds(g *Graph, from, to string) []EdgeKind {
	var kinds []EdgeKind
	for _, edge := range g.Edges() {
		if edge.From == from && edge.To == to {
			kinds = append(kinds, edge.Kind)
		}
	}
	return kinds
}

func TestBuildGraphVariableEdges(t *testing.T) {
	blocks := []*Block{
		codeBlock(t, "a", 1, "x := 5"),
		codeBlock(t, "b", 2, "y := x * 2"),
		codeBlock(t, "c", 3, "z := x + y"),
	}
	g := BuildGraph(blocks)

	require.Equal(t, []string{"a", "b", "c"}, g.Nodes())
	require.True(t, g.HasEdge("a", "b"))
	require.True(t, g.HasEdge("a", "c"))
	require.True(t, g.HasEdge("b", "c"))
	require.False(t, g.HasEdge("b", "a"))
	require.Equal(t, []EdgeKind{EdgeKindVariable}, edgeKinds(g, "a", "b"))
}

func TestBuildGraphShadowing(t *testing.T) {
	// The nearest earlier definition wins: c reads the x from b, not a.
	blocks := []*Block{
		codeBlock(t, "a", 1, "x := 1"),
		codeBlock(t, "b", 2, "x := 2"),
		codeBlock(t, "c", 3, "y := x"),
	}
	g := BuildGraph(blocks)

	require.True(t, g.HasEdge("b", "c"))
	require.False(t, g.HasEdge("a", "c"))
}

func TestBuildGraphEdgeKindPrecedence(t *testing.T) {
	t.Run("import beats variable", func(t *testing.T) {
		blocks := []*Block{
			codeBlock(t, "a", 1, "import math"),
			codeBlock(t, "b", 2, "r := math.sqrt(16)"),
		}
		g := BuildGraph(blocks)
		require.Equal(t, []EdgeKind{EdgeKindImport}, edgeKinds(g, "a", "b"))
	})

	t.Run("function beats variable", func(t *testing.T) {
		blocks := []*Block{
			codeBlock(t, "a", 1, "func double(v) { return v * 2 }"),
			codeBlock(t, "b", 2, "d := double(21)"),
		}
		g := BuildGraph(blocks)
		require.Equal(t, []EdgeKind{EdgeKindFunction}, edgeKinds(g, "a", "b"))
	})
}

func TestBuildGraphFoldsSharedNames(t *testing.T) {
	// Two names supplied by the same block fold into a single edge.
	blocks := []*Block{
		codeBlock(t, "a", 1, "x := 1\ny := 2"),
		codeBlock(t, "b", 2, "z := x + y"),
	}
	g := BuildGraph(blocks)

	edges := g.EdgesInto("b")
	require.Len(t, edges, 1)
	require.Equal(t, EdgeKindVariable, edges[0].Kind)
	require.Equal(t, "x, y", edges[0].Name)
}

func TestBuildGraphLoopReferences(t *testing.T) {
	// Names read only inside a loop body still produce edges.
	blocks := []*Block{
		codeBlock(t, "a", 1, "limit := 10"),
		codeBlock(t, "b", 2, "s := 0\nfor i := 0; i < limit; i++ { s = s + i }"),
	}
	g := BuildGraph(blocks)
	require.Equal(t, []EdgeKind{EdgeKindVariable}, edgeKinds(g, "a", "b"))
}

func TestBuildGraphExplicitEdges(t *testing.T) {
	a := codeBlock(t, "a", 1, "x := 1")
	b := codeBlock(t, "b", 2, "y := 2")
	b.ExplicitDeps = []string{"a", "missing"}
	g := BuildGraph([]*Block{a, b})

	require.Equal(t, []EdgeKind{EdgeKindExplicit}, edgeKinds(g, "a", "b"))
	// Unknown IDs are dropped rather than creating phantom nodes.
	require.False(t, g.Contains("missing"))
}

func TestBuildGraphFallbackEdges(t *testing.T) {
	t.Run("unparseable block follows its predecessor", func(t *testing.T) {
		blocks := []*Block{
			codeBlock(t, "a", 1, "x := 1"),
			codeBlock(t, "b", 2, "y := :="),
		}
		require.NotEmpty(t, blocks[1].AnalysisError)
		g := BuildGraph(blocks)
		require.Equal(t, []EdgeKind{EdgeKindFallback}, edgeKinds(g, "a", "b"))
	})

	t.Run("unconnected block follows its predecessor", func(t *testing.T) {
		blocks := []*Block{
			codeBlock(t, "a", 1, "x := 1"),
			codeBlock(t, "b", 2, "y := 2"),
		}
		g := BuildGraph(blocks)
		require.Equal(t, []EdgeKind{EdgeKindFallback}, edgeKinds(g, "a", "b"))
	})

	t.Run("first block gets no fallback", func(t *testing.T) {
		blocks := []*Block{
			codeBlock(t, "a", 1, "y := :="),
			codeBlock(t, "b", 2, "x := 1"),
		}
		g := BuildGraph(blocks)
		require.Empty(t, g.EdgesInto("a"))
	})

	t.Run("connected blocks get no fallback", func(t *testing.T) {
		blocks := []*Block{
			codeBlock(t, "a", 1, "x := 1"),
			codeBlock(t, "b", 2, "y := x"),
		}
		g := BuildGraph(blocks)
		require.Equal(t, []EdgeKind{EdgeKindVariable}, edgeKinds(g, "a", "b"))
	})
}

func TestBuildGraphDeterministic(t *testing.T) {
	build := func() *Graph {
		return BuildGraph([]*Block{
			codeBlock(t, "c", 3, "z := x + y"),
			codeBlock(t, "a", 1, "x := 5"),
			codeBlock(t, "b", 2, "y := x * 2"),
		})
	}
	first := build()
	second := build()
	require.Equal(t, first.Nodes(), second.Nodes())
	require.Equal(t, first.Edges(), second.Edges())
}

func TestGraphClosures(t *testing.T) {
	g := BuildGraph([]*Block{
		codeBlock(t, "a", 1, "x := 5"),
		codeBlock(t, "b", 2, "y := x * 2"),
		codeBlock(t, "c", 3, "z := y + 1"),
	})

	require.Equal(t, []string{"b"}, g.DirectDependents("a"))
	require.Equal(t, []string{"b", "c"}, g.Dependents("a"))
	require.Equal(t, []string{"a", "b"}, g.Dependencies("c"))
	require.Empty(t, g.Dependents("c"))
}

func TestWouldCreateCycle(t *testing.T) {
	g := BuildGraph([]*Block{
		codeBlock(t, "a", 1, "x := 5"),
		codeBlock(t, "b", 2, "y := x * 2"),
		codeBlock(t, "c", 3, "z := y + 1"),
	})

	require.True(t, g.WouldCreateCycle("c", "a"))
	require.True(t, g.WouldCreateCycle("b", "a"))
	require.True(t, g.WouldCreateCycle("a", "a"))
	require.False(t, g.WouldCreateCycle("a", "c"))
}

func TestGraphStats(t *testing.T) {
	g := BuildGraph([]*Block{
		codeBlock(t, "a", 1, "x := 5"),
		codeBlock(t, "b", 2, "y := x * 2"),
		codeBlock(t, "c", 3, "z := x + y"),
	})
	stats := g.Stats()

	require.Equal(t, 3, stats.NodeCount)
	require.Equal(t, 3, stats.EdgeCount)
	require.Equal(t, 3, stats.EdgesByKind[EdgeKindVariable])
	require.Equal(t, []string{"a"}, stats.Roots)
	require.Equal(t, []string{"c"}, stats.Leaves)
	require.Equal(t, 3, stats.MaxDepth)
}

func TestGraphStatsCyclic(t *testing.T) {
	a := codeBlock(t, "a", 1, "x := 1")
	b := codeBlock(t, "b", 2, "y := 2")
	a.ExplicitDeps = []string{"b"}
	b.ExplicitDeps = []string{"a"}
	g := BuildGraph([]*Block{a, b})

	require.Equal(t, 0, g.Stats().MaxDepth)
}
