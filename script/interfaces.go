package script

import (
	"context"
	"io"
)

// Value represents the result of evaluating a block of code.
type Value interface {

	// Value returns the Go value for this value as an any
	Value() any

	// Bindings returns the contents of a map value as name/value pairs.
	// The values are opaque and may be passed back to Evaluate as globals.
	// Returns false if the underlying value is not a map.
	Bindings() (map[string]any, bool)

	// String returns the string representation of this value
	String() string

	// IsTruthy returns true if this value is truthy
	IsTruthy() bool
}

// Script represents a compiled block of code that can be evaluated.
// Anything the code prints during evaluation is written to stdout; pass
// nil to discard it.
type Script interface {
	Evaluate(ctx context.Context, globals map[string]any, stdout io.Writer) (Value, error)
}

// Engine compiles block source code into evaluable scripts. The names of
// any globals that will be supplied at evaluation time must be declared
// at compile time.
type Engine interface {
	Compile(ctx context.Context, code string, globalNames []string) (Script, error)
}
