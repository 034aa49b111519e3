package script

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/risor-io/risor"
	"github.com/risor-io/risor/compiler"
	"github.com/risor-io/risor/modules/all"
	"github.com/risor-io/risor/object"
	"github.com/risor-io/risor/parser"
)

// RisorEngine compiles and evaluates Risor code. The engine carries a base
// set of globals (typically the Risor builtins) that are available to every
// script; per-evaluation globals such as session variables are layered on
// top at evaluation time.
type RisorEngine struct {
	base     map[string]any
	importer *moduleImporter
}

// RisorEngineOptions configures a RisorEngine.
type RisorEngineOptions struct {
	// Restricted limits the base globals to deterministic builtins with no
	// side effects. Filesystem and network modules are excluded.
	Restricted bool

	// ExtraGlobals are merged into the base globals after the builtins.
	ExtraGlobals map[string]any
}

// NewRisorEngine returns an engine with the full set of Risor builtins.
func NewRisorEngine(opts RisorEngineOptions) *RisorEngine {
	base := map[string]any{}
	if opts.Restricted {
		safe := SafeBuiltinNames()
		for name, value := range all.Builtins() {
			if safe[name] {
				base[name] = value
			}
		}
	} else {
		for name, value := range all.Builtins() {
			base[name] = value
		}
	}
	for name, value := range opts.ExtraGlobals {
		base[name] = value
	}
	return &RisorEngine{base: base, importer: newModuleImporter(base)}
}

// moduleImporter resolves import statements against the engine's base
// modules, so "import math" binds the same module that is already available
// as a global.
type moduleImporter struct {
	modules map[string]*object.Module
}

func newModuleImporter(globals map[string]any) *moduleImporter {
	modules := map[string]*object.Module{}
	for name, value := range globals {
		if mod, ok := value.(*object.Module); ok {
			modules[name] = mod
		}
	}
	return &moduleImporter{modules: modules}
}

func (i *moduleImporter) Import(ctx context.Context, name string) (*object.Module, error) {
	if mod, ok := i.modules[name]; ok {
		return mod, nil
	}
	return nil, fmt.Errorf("import error: module %q not found", name)
}

// Compile parses and compiles the given code. Global names that will be
// injected at evaluation time, beyond the engine's base globals, must be
// listed in globalNames or compilation fails with an undefined variable
// error.
func (e *RisorEngine) Compile(ctx context.Context, code string, globalNames []string) (Script, error) {
	ast, err := parser.Parse(ctx, code)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(e.base)+len(globalNames))
	seen := map[string]bool{}
	for name := range e.base {
		names = append(names, name)
		seen[name] = true
	}
	for _, name := range globalNames {
		if !seen[name] {
			names = append(names, name)
			seen[name] = true
		}
	}
	sort.Strings(names)

	compiledCode, err := compiler.Compile(ast, compiler.WithGlobalNames(names))
	if err != nil {
		return nil, err
	}
	return &RisorScript{engine: e, code: compiledCode}, nil
}

// RisorScript is a compiled Risor program.
type RisorScript struct {
	engine *RisorEngine
	code   *compiler.Code
}

func (s *RisorScript) Evaluate(ctx context.Context, globals map[string]any, stdout io.Writer) (Value, error) {
	combinedGlobals := make(map[string]any)
	for name, value := range s.engine.base {
		combinedGlobals[name] = value
	}
	for name, value := range globals {
		combinedGlobals[name] = value
	}
	if stdout == nil {
		stdout = io.Discard
	}
	value, err := risor.EvalCode(ctx, s.code,
		risor.WithGlobals(combinedGlobals),
		risor.WithImporter(s.engine.importer),
		risor.WithOS(newCaptureOS(ctx, stdout)))
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate script: %w", err)
	}
	return &RisorValue{obj: value}, nil
}

// RisorValue wraps a Risor object as a Value.
type RisorValue struct {
	obj object.Object
}

func (value *RisorValue) Value() any {
	return ToGo(value.obj)
}

func (value *RisorValue) Bindings() (map[string]any, bool) {
	m, ok := value.obj.(*object.Map)
	if !ok {
		return nil, false
	}
	items := m.Value()
	bindings := make(map[string]any, len(items))
	for name, obj := range items {
		bindings[name] = obj
	}
	return bindings, true
}

func (value *RisorValue) IsTruthy() bool {
	switch obj := value.obj.(type) {
	case *object.Bool:
		return obj.Value()
	case *object.Int:
		return obj.Value() != 0
	case *object.Float:
		return obj.Value() != 0.0
	case *object.List:
		return len(obj.Value()) > 0
	case *object.Map:
		return len(obj.Value()) > 0
	case *object.String:
		val := obj.Value()
		return val != "" && strings.ToLower(val) != "false"
	default:
		return obj.IsTruthy()
	}
}

func (value *RisorValue) String() string {
	var strValue string
	switch v := value.obj.(type) {
	case *object.String:
		strValue = v.Value()
	case *object.Int:
		strValue = fmt.Sprintf("%d", v.Value())
	case *object.Float:
		strValue = fmt.Sprintf("%g", v.Value())
	case *object.Bool:
		strValue = fmt.Sprintf("%t", v.Value())
	case *object.Time:
		strValue = v.Value().Format(time.RFC3339)
	case *object.NilType:
		strValue = ""
	default:
		return value.obj.Inspect()
	}
	return strValue
}
