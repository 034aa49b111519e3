package script

import (
	"fmt"
	"strings"

	"github.com/risor-io/risor/object"
)

// ToGo converts a Risor object to a plain Go value. Values with no natural
// Go representation (functions, modules) fall back to their inspect string.
func ToGo(obj object.Object) any {
	switch o := obj.(type) {
	case *object.String:
		return o.Value()

	case *object.Int:
		return o.Value()

	case *object.Float:
		return o.Value()

	case *object.Bool:
		return o.Value()

	case *object.Time:
		return o.Value()

	case *object.NilType:
		return nil

	case *object.List:
		var result []any
		for _, item := range o.Value() {
			result = append(result, ToGo(item))
		}
		return result

	case *object.Map:
		result := make(map[string]any)
		for key, value := range o.Value() {
			result[key] = ToGo(value)
		}
		return result

	case *object.Set:
		var result []any
		for _, item := range o.Value() {
			result = append(result, ToGo(item))
		}
		return result

	default:
		return obj.Inspect()
	}
}

// Repr returns a short display string for a session variable. The value may
// be a Risor object or a plain Go value.
func Repr(value any) string {
	var s string
	if obj, ok := value.(object.Object); ok {
		s = obj.Inspect()
	} else {
		s = fmt.Sprintf("%v", value)
	}
	const maxRepr = 200
	if len(s) > maxRepr {
		s = s[:maxRepr] + "..."
	}
	return s
}

// Truthy converts any value to a boolean. It works with both Risor objects
// and plain Go values.
func Truthy(value any) bool {
	if obj, ok := value.(object.Object); ok {
		switch o := obj.(type) {
		case *object.Bool:
			return o.Value()
		case *object.Int:
			return o.Value() != 0
		case *object.Float:
			return o.Value() != 0.0
		case *object.String:
			val := o.Value()
			return val != "" && strings.ToLower(val) != "false"
		case *object.List:
			return len(o.Value()) > 0
		case *object.Map:
			return len(o.Value()) > 0
		default:
			return obj.IsTruthy()
		}
	}
	switch v := value.(type) {
	case bool:
		return v
	case int:
		return v != 0
	case int64:
		return v != 0
	case float64:
		return v != 0.0
	case string:
		return v != "" && strings.ToLower(v) != "false"
	case []any:
		return len(v) > 0
	case map[string]any:
		return len(v) > 0
	case nil:
		return false
	default:
		return value != nil
	}
}

// SafeBuiltinNames returns the Risor builtin names that are deterministic
// and free of filesystem and network side effects. Restricted sessions limit
// their globals to this set.
func SafeBuiltinNames() map[string]bool {
	return map[string]bool{
		"all":         true,
		"any":         true,
		"base64":      true,
		"bool":        true,
		"buffer":      true,
		"byte_slice":  true,
		"byte":        true,
		"bytes":       true,
		"call":        true,
		"chunk":       true,
		"coalesce":    true,
		"decode":      true,
		"encode":      true,
		"error":       true,
		"errorf":      true,
		"errors":      true,
		"filepath":    true,
		"float_slice": true,
		"float":       true,
		"fmt":         true,
		"getattr":     true,
		"int":         true,
		"is_hashable": true,
		"iter":        true,
		"json":        true,
		"keys":        true,
		"len":         true,
		"list":        true,
		"map":         true,
		"math":        true,
		"regexp":      true,
		"reversed":    true,
		"set":         true,
		"sorted":      true,
		"sprintf":     true,
		"string":      true,
		"strings":     true,
		"time":        true,
		"try":         true,
		"type":        true,
	}
}
