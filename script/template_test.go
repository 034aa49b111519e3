package script

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTemplate(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		globalNames []string
		globals     map[string]any
		wantErr     bool
		want        string
		errContains string
	}{
		{
			name:  "plain string without template expressions",
			input: "Hello World",
			want:  "Hello World",
		},
		{
			name:        "single variable",
			input:       "Hello ${name}",
			globalNames: []string{"name"},
			globals:     map[string]any{"name": "Alice"},
			want:        "Hello Alice",
		},
		{
			name:        "multiple expressions",
			input:       "${greeting} ${name}! The answer is ${40 + 2}",
			globalNames: []string{"greeting", "name"},
			globals: map[string]any{
				"greeting": "Hello",
				"name":     "Bob",
			},
			want: "Hello Bob! The answer is 42",
		},
		{
			name:  "nested arithmetic",
			input: "Result: ${1 + (2 * 3)}",
			want:  "Result: 7",
		},
		{
			name:        "unclosed expression",
			input:       "Hello ${name",
			globalNames: []string{"name"},
			globals:     map[string]any{"name": "Alice"},
			wantErr:     true,
			errContains: "unclosed template expression",
		},
		{
			name:        "invalid expression",
			input:       "Hello ${1 +}",
			wantErr:     true,
			errContains: "failed to compile template expression",
		},
	}

	engine := NewRisorEngine(RisorEngineOptions{})

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpl, err := NewTemplate(engine, tt.input, tt.globalNames)
			if tt.wantErr {
				require.Error(t, err)
				if tt.errContains != "" {
					require.Contains(t, err.Error(), tt.errContains)
				}
				return
			}
			require.NoError(t, err)
			got, err := tmpl.Render(context.Background(), tt.globals)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}
