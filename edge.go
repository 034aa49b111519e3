package notebook

import "fmt"

// EdgeKind classifies why one block depends on another.
type EdgeKind string

const (
	// EdgeKindVariable means the downstream block reads a variable the
	// upstream block defines.
	EdgeKindVariable EdgeKind = "variable"

	// EdgeKindImport means the downstream block uses a module the
	// upstream block imports.
	EdgeKindImport EdgeKind = "import"

	// EdgeKindFunction means the downstream block calls a function the
	// upstream block defines.
	EdgeKindFunction EdgeKind = "function"

	// EdgeKindExplicit means the user declared the dependency directly.
	EdgeKindExplicit EdgeKind = "explicit"

	// EdgeKindFallback is a document-order edge from the preceding block,
	// added when analysis can say nothing about a block's dependencies.
	EdgeKindFallback EdgeKind = "fallback"
)

// DependencyEdge is a directed edge in the block graph: To depends on From,
// so From must execute first. Name carries the variable, module, or
// function names that induced the edge, comma separated when there are
// several; it is empty for explicit and fallback edges.
type DependencyEdge struct {
	From string   `json:"from"`
	To   string   `json:"to"`
	Kind EdgeKind `json:"kind"`
	Name string   `json:"name,omitempty"`
}

func (e DependencyEdge) String() string {
	if e.Name != "" {
		return fmt.Sprintf("%s -> %s (%s %q)", e.From, e.To, e.Kind, e.Name)
	}
	return fmt.Sprintf("%s -> %s (%s)", e.From, e.To, e.Kind)
}
