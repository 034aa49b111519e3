package notebook

import (
	"sort"
	"strings"
)

// Graph is the dependency graph over a set of blocks. Edges point from a
// dependency to its dependents: From must execute before To. Graphs are
// immutable snapshots; rebuild after any block mutation.
type Graph struct {
	nodes    []string
	edges    []DependencyEdge
	ordinals map[string]int
	out      map[string][]string
	in       map[string][]string
}

// BuildGraph derives the dependency graph for the given blocks. Inference
// walks each block's free references and links it to the nearest earlier
// block that binds the name, so later definitions shadow earlier ones just
// as re-assignment would at runtime. Import bindings take precedence over
// function bindings, which take precedence over plain variables. Explicit
// dependencies are added verbatim. A block that analysis cannot connect to
// anything gets a fallback edge from the nearest preceding executable
// block, preserving document order.
//
// The result is deterministic: same blocks in, same nodes and edges out.
func BuildGraph(blocks []*Block) *Graph {
	ordered := make([]*Block, len(blocks))
	copy(ordered, blocks)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Ordinal != ordered[j].Ordinal {
			return ordered[i].Ordinal < ordered[j].Ordinal
		}
		return ordered[i].ID < ordered[j].ID
	})

	g := &Graph{
		ordinals: make(map[string]int, len(ordered)),
		out:      map[string][]string{},
		in:       map[string][]string{},
	}
	for i, block := range ordered {
		g.nodes = append(g.nodes, block.ID)
		g.ordinals[block.ID] = i
	}

	// At most one edge per (from, to, kind); further names that induce
	// the same edge are folded into its Name.
	type edgeKey struct {
		from, to string
		kind     EdgeKind
	}
	index := map[edgeKey]int{}
	addEdge := func(edge DependencyEdge) {
		if edge.From == edge.To {
			return
		}
		key := edgeKey{edge.From, edge.To, edge.Kind}
		if i, ok := index[key]; ok {
			if edge.Name != "" && !edgeNamed(g.edges[i].Name, edge.Name) {
				g.edges[i].Name += ", " + edge.Name
			}
			return
		}
		index[key] = len(g.edges)
		g.edges = append(g.edges, edge)
	}

	// Name-based inference between executable blocks. References that
	// collide with builtins still resolve here: an upstream import or
	// definition shadows the builtin.
	for j, block := range ordered {
		if !block.Executable() || block.Analysis == nil {
			continue
		}
		refs := block.Analysis.References
		if len(block.Analysis.BuiltinReferences) > 0 {
			refs = append(append([]string{}, refs...), block.Analysis.BuiltinReferences...)
		}
		for _, ref := range refs {
			for i := j - 1; i >= 0; i-- {
				upstream := ordered[i]
				if !upstream.Executable() || upstream.Analysis == nil {
					continue
				}
				record := upstream.Analysis
				var kind EdgeKind
				switch {
				case record.ImportsModule(ref):
					kind = EdgeKindImport
				case record.DefinesFunction(ref):
					kind = EdgeKindFunction
				case record.Defines(ref):
					kind = EdgeKindVariable
				default:
					continue
				}
				addEdge(DependencyEdge{From: upstream.ID, To: block.ID, Kind: kind, Name: ref})
				break
			}
		}
	}

	// User-declared dependencies, added verbatim.
	for _, block := range ordered {
		for _, dep := range block.ExplicitDeps {
			if _, ok := g.ordinals[dep]; !ok {
				continue
			}
			addEdge(DependencyEdge{From: dep, To: block.ID, Kind: EdgeKindExplicit})
		}
	}

	// Fallback edges keep unanalyzable and unconnected blocks in document
	// order instead of floating free.
	touched := map[string]bool{}
	for _, edge := range g.edges {
		touched[edge.From] = true
		touched[edge.To] = true
	}
	for j, block := range ordered {
		if !block.Executable() {
			continue
		}
		unparseable := block.Analysis == nil
		if !unparseable && touched[block.ID] {
			continue
		}
		for i := j - 1; i >= 0; i-- {
			if ordered[i].Executable() {
				addEdge(DependencyEdge{From: ordered[i].ID, To: block.ID, Kind: EdgeKindFallback})
				break
			}
		}
	}

	for _, edge := range g.edges {
		g.out[edge.From] = appendUnique(g.out[edge.From], edge.To)
		g.in[edge.To] = appendUnique(g.in[edge.To], edge.From)
	}
	return g
}

// Nodes returns the block IDs in document order.
func (g *Graph) Nodes() []string {
	return append([]string{}, g.nodes...)
}

// Edges returns all dependency edges.
func (g *Graph) Edges() []DependencyEdge {
	return append([]DependencyEdge{}, g.edges...)
}

// Contains reports whether the given block is a node in the graph.
func (g *Graph) Contains(id string) bool {
	_, ok := g.ordinals[id]
	return ok
}

// HasEdge reports whether an edge exists from one block to another,
// regardless of kind.
func (g *Graph) HasEdge(from, to string) bool {
	for _, succ := range g.out[from] {
		if succ == to {
			return true
		}
	}
	return false
}

// EdgesInto returns the edges whose target is the given block.
func (g *Graph) EdgesInto(id string) []DependencyEdge {
	var result []DependencyEdge
	for _, edge := range g.edges {
		if edge.To == id {
			result = append(result, edge)
		}
	}
	return result
}

// DirectDependents returns the blocks that depend on the given block
// directly, in document order.
func (g *Graph) DirectDependents(id string) []string {
	return g.sortByOrdinal(append([]string{}, g.out[id]...))
}

// DirectDependencies returns the blocks the given block depends on
// directly, in document order.
func (g *Graph) DirectDependencies(id string) []string {
	return g.sortByOrdinal(append([]string{}, g.in[id]...))
}

// Dependents returns every block downstream of the given block, directly
// or transitively, in document order. The block itself is excluded.
func (g *Graph) Dependents(id string) []string {
	return g.closure(id, g.out)
}

// Dependencies returns every block upstream of the given block, directly
// or transitively, in document order. The block itself is excluded.
func (g *Graph) Dependencies(id string) []string {
	return g.closure(id, g.in)
}

// WouldCreateCycle reports whether adding an edge from one block to
// another would make the graph cyclic.
func (g *Graph) WouldCreateCycle(from, to string) bool {
	if from == to {
		return true
	}
	// A cycle forms exactly when from is already reachable from to.
	visited := map[string]bool{}
	stack := []string{to}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if node == from {
			return true
		}
		if visited[node] {
			continue
		}
		visited[node] = true
		stack = append(stack, g.out[node]...)
	}
	return false
}

// GraphStats summarizes the shape of a graph.
type GraphStats struct {
	NodeCount   int              `json:"node_count"`
	EdgeCount   int              `json:"edge_count"`
	EdgesByKind map[EdgeKind]int `json:"edges_by_kind"`
	Roots       []string         `json:"roots"`
	Leaves      []string         `json:"leaves"`
	MaxDepth    int              `json:"max_depth"`
}

// Stats computes summary statistics for the graph. MaxDepth is the number
// of nodes on the longest dependency chain; it is zero for cyclic graphs.
func (g *Graph) Stats() GraphStats {
	stats := GraphStats{
		NodeCount:   len(g.nodes),
		EdgeCount:   len(g.edges),
		EdgesByKind: map[EdgeKind]int{},
	}
	for _, edge := range g.edges {
		stats.EdgesByKind[edge.Kind]++
	}
	for _, node := range g.nodes {
		if len(g.in[node]) == 0 {
			stats.Roots = append(stats.Roots, node)
		}
		if len(g.out[node]) == 0 {
			stats.Leaves = append(stats.Leaves, node)
		}
	}

	const cyclic = -1
	depths := map[string]int{}
	visiting := map[string]bool{}
	var depth func(node string) int
	depth = func(node string) int {
		if d, ok := depths[node]; ok {
			return d
		}
		if visiting[node] {
			return cyclic
		}
		visiting[node] = true
		defer delete(visiting, node)
		best := 0
		for _, pred := range g.in[node] {
			d := depth(pred)
			if d == cyclic {
				return cyclic
			}
			if d > best {
				best = d
			}
		}
		depths[node] = best + 1
		return best + 1
	}
	for _, node := range g.nodes {
		d := depth(node)
		if d == cyclic {
			stats.MaxDepth = 0
			return stats
		}
		if d > stats.MaxDepth {
			stats.MaxDepth = d
		}
	}
	return stats
}

func (g *Graph) closure(id string, adjacency map[string][]string) []string {
	visited := map[string]bool{}
	stack := append([]string{}, adjacency[id]...)
	var result []string
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[node] || node == id {
			continue
		}
		visited[node] = true
		result = append(result, node)
		stack = append(stack, adjacency[node]...)
	}
	return g.sortByOrdinal(result)
}

func (g *Graph) sortByOrdinal(ids []string) []string {
	sort.Slice(ids, func(i, j int) bool {
		return g.ordinals[ids[i]] < g.ordinals[ids[j]]
	})
	return ids
}

// edgeNamed reports whether a folded edge name list already contains the
// given name.
func edgeNamed(names, name string) bool {
	for _, existing := range strings.Split(names, ", ") {
		if existing == name {
			return true
		}
	}
	return false
}

func appendUnique(list []string, item string) []string {
	for _, existing := range list {
		if existing == item {
			return list
		}
	}
	return append(list, item)
}
