package analysis

import "sort"

// Language identifies the kind of source a block holds. Only code blocks
// are parsed; the other kinds short-circuit to an empty Record.
type Language string

const (
	LanguageCode     Language = "code"
	LanguageMarkdown Language = "markdown"
	LanguageSQL      Language = "sql"
	LanguageText     Language = "text"
)

// Record is the result of statically analyzing one block's source. It is
// derived data: it must be recomputed whenever the source changes and is
// never persisted independently of it.
type Record struct {
	// Imports contains module names pulled in by import statements.
	Imports []string `json:"imports"`

	// Defined contains names bound at the top level of the block by
	// assignment or declaration, including function names.
	Defined []string `json:"defined"`

	// Functions contains the subset of Defined that are function
	// definitions rather than plain value bindings.
	Functions []string `json:"functions"`

	// References contains free names read by the block: identifiers that
	// are not parameters, not builtins, and not bound earlier within the
	// same block.
	References []string `json:"references"`

	// BuiltinReferences contains free names that collide with a builtin
	// function or module. Ordinary builtin use is not a dependency, but
	// an earlier block can shadow a builtin by importing or defining the
	// same name, so these are kept for edge resolution.
	BuiltinReferences []string `json:"builtin_references,omitempty"`

	// Complexity is a rough size estimate: the number of syntax nodes
	// visited during analysis. Used for UI hinting only.
	Complexity int `json:"complexity"`
}

// Defines reports whether the block binds the given name at top level.
func (r *Record) Defines(name string) bool {
	return containsString(r.Defined, name)
}

// ImportsModule reports whether the block imports the given module.
func (r *Record) ImportsModule(name string) bool {
	return containsString(r.Imports, name)
}

// DefinesFunction reports whether the given name is a top-level function
// definition in the block.
func (r *Record) DefinesFunction(name string) bool {
	return containsString(r.Functions, name)
}

// ReferencesName reports whether the block reads the given free name.
func (r *Record) ReferencesName(name string) bool {
	return containsString(r.References, name)
}

func containsString(sorted []string, name string) bool {
	i := sort.SearchStrings(sorted, name)
	return i < len(sorted) && sorted[i] == name
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
