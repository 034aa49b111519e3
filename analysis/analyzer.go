package analysis

import (
	"context"
	"fmt"
	"sync"

	"github.com/risor-io/risor/ast"
	"github.com/risor-io/risor/modules/all"
	"github.com/risor-io/risor/parser"
)

// Error indicates that a block's source could not be parsed. It is
// recoverable: the block is still stored, but it is excluded from
// automatic edge inference and participates in the graph only via
// explicit and order-fallback edges.
type Error struct {
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("analysis error: %s", e.Message)
}

var (
	builtinsOnce sync.Once
	builtinNames map[string]struct{}
)

// builtins returns the set of names that are globally available to every
// block (builtin functions and default modules). References to these are
// never treated as dependencies on other blocks.
func builtins() map[string]struct{} {
	builtinsOnce.Do(func() {
		builtinNames = make(map[string]struct{})
		for name := range all.Builtins() {
			builtinNames[name] = struct{}{}
		}
	})
	return builtinNames
}

// Analyze parses the given source and extracts imported modules, top-level
// bindings, free name references, and a node-count complexity estimate.
// It is a pure function: same source in, same Record out.
//
// Non-code languages return an empty Record. A syntax error returns a
// *Error carrying the parser's message.
func Analyze(source string, lang Language) (*Record, error) {
	if lang != LanguageCode {
		return &Record{}, nil
	}
	program, err := parser.Parse(context.Background(), source)
	if err != nil {
		return nil, &Error{Message: err.Error()}
	}
	w := &walker{
		imports:     map[string]struct{}{},
		defined:     map[string]struct{}{},
		functions:   map[string]struct{}{},
		references:  map[string]struct{}{},
		builtinRefs: map[string]struct{}{},
		builtins:    builtins(),
		scopes:      []map[string]struct{}{{}},
	}
	w.walk(program, true)
	return &Record{
		Imports:           sortedKeys(w.imports),
		Defined:           sortedKeys(w.defined),
		Functions:         sortedKeys(w.functions),
		References:        sortedKeys(w.references),
		BuiltinReferences: sortedKeys(w.builtinRefs),
		Complexity:        w.nodes,
	}, nil
}

// walker traverses the syntax tree keeping a lexical scope stack so that
// parameters and previously bound names are not reported as free
// references. Node types it does not recognize are skipped; the analyzer
// degrades to fewer inferred edges, never to an error.
type walker struct {
	imports     map[string]struct{}
	defined     map[string]struct{}
	functions   map[string]struct{}
	references  map[string]struct{}
	builtinRefs map[string]struct{}
	builtins    map[string]struct{}
	scopes      []map[string]struct{}
	nodes       int
}

func (w *walker) walk(node ast.Node, topLevel bool) {
	if node == nil {
		return
	}
	w.nodes++
	switch n := node.(type) {
	case *ast.Program:
		for _, stmt := range n.Statements() {
			w.walk(stmt, topLevel)
		}
	case *ast.Block:
		for _, stmt := range n.Statements() {
			w.walk(stmt, false)
		}
	case *ast.Var:
		name, value := n.Value()
		w.walk(value, false)
		w.bind(name, topLevel, isFuncValue(value))
	case *ast.Const:
		name, value := n.Value()
		w.walk(value, false)
		w.bind(name, topLevel, isFuncValue(value))
	case *ast.Assign:
		w.walk(n.Value(), false)
		if index := n.Index(); index != nil {
			// rows[0] = v mutates rows without binding a new name.
			w.walk(index, false)
		} else {
			if n.Operator() != "=" {
				// x += v reads x before writing it.
				w.reference(n.Name())
			}
			w.bind(n.Name(), topLevel, isFuncValue(n.Value()))
		}
	case *ast.MultiVar:
		names, value := n.Value()
		w.walk(value, false)
		for _, name := range names {
			w.bind(name, topLevel, false)
		}
	case *ast.Ident:
		w.reference(n.Literal())
	case *ast.Func:
		if name := n.Name(); name != nil {
			w.bind(name.Literal(), topLevel, true)
		}
		w.push()
		for _, param := range n.Parameters() {
			w.bindLocal(param.Literal())
		}
		if body := n.Body(); body != nil {
			w.walk(body, false)
		}
		w.pop()
	case *ast.Call:
		w.walk(n.Function(), false)
		for _, arg := range n.Arguments() {
			w.walk(arg, false)
		}
	case *ast.ObjectCall:
		// df.dropna(x): the receiver is a real reference, the method
		// name is not, the arguments are.
		w.walk(n.Object(), false)
		if call, ok := any(n.Call()).(*ast.Call); ok {
			for _, arg := range call.Arguments() {
				w.walk(arg, false)
			}
		}
	case *ast.GetAttr:
		w.walk(n.Object(), false)
	case *ast.Index:
		w.walk(n.Left(), false)
		w.walk(n.Index(), false)
	case *ast.Infix:
		w.walk(n.Left(), false)
		w.walk(n.Right(), false)
	case *ast.Prefix:
		w.walk(n.Right(), false)
	case *ast.If:
		w.walk(n.Condition(), false)
		if cons := n.Consequence(); cons != nil {
			w.walk(cons, false)
		}
		if alt := n.Alternative(); alt != nil {
			w.walk(alt, false)
		}
	case *ast.Ternary:
		w.walk(n.Condition(), false)
		w.walk(n.IfTrue(), false)
		w.walk(n.IfFalse(), false)
	case *ast.Switch:
		w.walk(n.Value(), false)
		for _, choice := range n.Choices() {
			for _, expr := range choice.Expressions() {
				w.walk(expr, false)
			}
			if block := choice.Block(); block != nil {
				w.walk(block, false)
			}
		}
	case *ast.For:
		// Loop variables are scoped to the loop. Iterator loops carry
		// their binding in the condition node.
		w.push()
		w.walk(n.Init(), false)
		w.walk(n.Condition(), false)
		w.walk(n.Post(), false)
		if body := n.Consequence(); body != nil {
			w.walk(body, false)
		}
		w.pop()
	case *ast.Range:
		w.walk(n.Container(), false)
	case *ast.Return:
		w.walk(n.Value(), false)
	case *ast.List:
		for _, item := range n.Items() {
			w.walk(item, false)
		}
	case *ast.Map:
		// Keys are literal; only the values can reference names.
		for _, value := range n.Items() {
			w.walk(value, false)
		}
	case *ast.Set:
		for _, item := range n.Items() {
			w.walk(item, false)
		}
	case *ast.Slice:
		w.walk(n.Left(), false)
		w.walk(n.FromIndex(), false)
		w.walk(n.ToIndex(), false)
	case *ast.Pipe:
		for _, expr := range n.Expressions() {
			w.walk(expr, false)
		}
	case *ast.In:
		w.walk(n.Left(), false)
		w.walk(n.Right(), false)
	case *ast.Postfix:
		// x++ reads and writes an existing binding.
		w.reference(n.Literal())
	case *ast.SetAttr:
		w.walk(n.Object(), false)
		w.walk(n.Value(), false)
	case *ast.Import:
		name := n.ModuleName()
		w.imports[name] = struct{}{}
		w.bindLocal(name)
	case *ast.FromImport:
		for _, imp := range n.Imports() {
			name := imp.ModuleName()
			w.imports[name] = struct{}{}
			w.bindLocal(name)
		}
	case *ast.Control:
		if value := n.Value(); value != nil {
			w.walk(value, false)
		}
	}
}

// bind records a name binding in the current scope. Top-level bindings
// additionally land in the Record's Defined (and Functions) sets.
func (w *walker) bind(name string, topLevel, isFunc bool) {
	if name == "" {
		return
	}
	w.bindLocal(name)
	if topLevel {
		w.defined[name] = struct{}{}
		if isFunc {
			w.functions[name] = struct{}{}
		}
	}
}

func (w *walker) bindLocal(name string) {
	w.scopes[len(w.scopes)-1][name] = struct{}{}
}

func (w *walker) reference(name string) {
	if name == "" {
		return
	}
	for i := len(w.scopes) - 1; i >= 0; i-- {
		if _, bound := w.scopes[i][name]; bound {
			return
		}
	}
	if _, builtin := w.builtins[name]; builtin {
		w.builtinRefs[name] = struct{}{}
		return
	}
	w.references[name] = struct{}{}
}

func (w *walker) push() {
	w.scopes = append(w.scopes, map[string]struct{}{})
}

func (w *walker) pop() {
	w.scopes = w.scopes[:len(w.scopes)-1]
}

func isFuncValue(expr ast.Expression) bool {
	_, ok := expr.(*ast.Func)
	return ok
}
