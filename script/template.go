package script

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// Template renders text containing ${...} expressions against a set of
// globals. Markdown and text blocks use templates to interpolate session
// variables into their rendered output.
type Template struct {
	raw    string
	parts  []string
	codes  []Script
	engine Engine
}

// NewTemplate compiles every ${...} expression in raw. The names listed in
// globalNames are the variables the expressions may reference.
func NewTemplate(engine Engine, raw string, globalNames []string) (*Template, error) {
	t := &Template{
		raw:    raw,
		engine: engine,
	}

	openCount := strings.Count(raw, "${")
	closeCount := strings.Count(raw, "}")
	if openCount > closeCount {
		return nil, fmt.Errorf("unclosed template expression in string: %q", raw)
	}

	if openCount == 0 {
		return t, nil
	}

	re := regexp.MustCompile(`\${([^}]+)}`)
	matches := re.FindAllStringSubmatchIndex(raw, -1)
	if len(matches) == 0 {
		return t, nil
	}

	var lastEnd int
	var parts []string
	var codes []Script
	for _, match := range matches {
		if match[0] > lastEnd {
			parts = append(parts, raw[lastEnd:match[0]])
		}

		expr := raw[match[2]:match[3]]
		script, err := engine.Compile(context.Background(), expr, globalNames)
		if err != nil {
			return nil, fmt.Errorf("failed to compile template expression %q: %w", expr, err)
		}

		codes = append(codes, script)
		parts = append(parts, "") // Placeholder for the evaluated result
		lastEnd = match[1]
	}

	if lastEnd < len(raw) {
		parts = append(parts, raw[lastEnd:])
	}

	return &Template{
		raw:    raw,
		parts:  parts,
		codes:  codes,
		engine: engine,
	}, nil
}

// Render evaluates the compiled expressions against globals and joins the
// result with the literal text.
func (t *Template) Render(ctx context.Context, globals map[string]any) (string, error) {
	if len(t.codes) == 0 {
		return t.raw, nil
	}

	parts := make([]string, len(t.parts))
	copy(parts, t.parts)

	next := 0
	for _, code := range t.codes {
		result, err := code.Evaluate(ctx, globals, nil)
		if err != nil {
			return "", fmt.Errorf("failed to evaluate template expression: %w", err)
		}
		for j := next; j < len(parts); j++ {
			if parts[j] == "" {
				parts[j] = result.String()
				next = j + 1
				break
			}
		}
	}

	return strings.Join(parts, ""), nil
}
