package notebook

import "sort"

// ExecutionPlan is the result of validating a graph: either a total
// execution order, or the reason none exists.
type ExecutionPlan struct {
	// Valid is true when the graph is acyclic and Order holds a complete
	// topological order of its nodes.
	Valid bool `json:"valid"`

	// Order lists every block exactly once, dependencies before
	// dependents. Among blocks whose dependencies are equally satisfied,
	// document order wins, so the plan is deterministic.
	Order []string `json:"order,omitempty"`

	// Reason is a human-readable explanation when Valid is false.
	Reason string `json:"reason,omitempty"`

	// CycleBlockIDs lists the blocks that could not be ordered. Every
	// block on a cycle is included; blocks that merely depend on a cycle
	// may be too.
	CycleBlockIDs []string `json:"cycle_block_ids,omitempty"`
}

// ValidatePlan computes an execution order for the graph, or reports the
// blocks involved in a cycle when no order exists.
func ValidatePlan(g *Graph) *ExecutionPlan {
	inDegree := map[string]int{}
	for _, node := range g.nodes {
		inDegree[node] = len(g.in[node])
	}

	var ready []string
	for _, node := range g.nodes {
		if inDegree[node] == 0 {
			ready = append(ready, node)
		}
	}

	order := make([]string, 0, len(g.nodes))
	for len(ready) > 0 {
		// Among ready blocks, the earliest in document order runs first.
		next := 0
		for i := 1; i < len(ready); i++ {
			if g.ordinals[ready[i]] < g.ordinals[ready[next]] {
				next = i
			}
		}
		node := ready[next]
		ready = append(ready[:next], ready[next+1:]...)
		order = append(order, node)

		for _, succ := range g.out[node] {
			inDegree[succ]--
			if inDegree[succ] == 0 {
				ready = append(ready, succ)
			}
		}
	}

	if len(order) < len(g.nodes) {
		var stuck []string
		for _, node := range g.nodes {
			if inDegree[node] > 0 {
				stuck = append(stuck, node)
			}
		}
		sort.Slice(stuck, func(i, j int) bool {
			return g.ordinals[stuck[i]] < g.ordinals[stuck[j]]
		})
		return &ExecutionPlan{
			Valid:         false,
			Reason:        "dependency cycle detected",
			CycleBlockIDs: stuck,
		}
	}

	return &ExecutionPlan{Valid: true, Order: order}
}
