package notebook

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/deepnoodle-ai/notebook/analysis"
)

func TestNotebookErrorBasics(t *testing.T) {
	err := NewNotebookError(ErrorTypeRuntime, "division by zero")
	require.Equal(t, "runtime_error: division by zero", err.Error())
	require.Nil(t, err.Unwrap())
}

func TestNewCycleError(t *testing.T) {
	err := NewCycleError("dependency cycle detected", []string{"a", "b"})
	require.Equal(t, ErrorTypeCycle, err.Type)
	require.Equal(t, []string{"a", "b"}, err.Details)
	require.True(t, MatchesErrorType(err, ErrorTypeCycle))
}

func TestClassifyError(t *testing.T) {
	t.Run("passes through notebook errors", func(t *testing.T) {
		original := NewNotebookError(ErrorTypeSessionUnavailable, "stopped")
		classified := ClassifyError(fmt.Errorf("run aborted: %w", original))
		require.Equal(t, ErrorTypeSessionUnavailable, classified.Type)
	})

	t.Run("analysis errors", func(t *testing.T) {
		_, err := analysis.Analyze("x := :=", analysis.LanguageCode)
		require.Error(t, err)
		classified := ClassifyError(err)
		require.Equal(t, ErrorTypeAnalysis, classified.Type)
	})

	t.Run("deadline exceeded", func(t *testing.T) {
		err := fmt.Errorf("script failed: %w", context.DeadlineExceeded)
		require.Equal(t, ErrorTypeTimeout, ClassifyError(err).Type)
	})

	t.Run("cancellation", func(t *testing.T) {
		require.Equal(t, ErrorTypeTimeout, ClassifyError(context.Canceled).Type)
	})

	t.Run("timeout message", func(t *testing.T) {
		require.Equal(t, ErrorTypeTimeout, ClassifyError(errors.New("read Timeout on socket")).Type)
	})

	t.Run("defaults to runtime", func(t *testing.T) {
		require.Equal(t, ErrorTypeRuntime, ClassifyError(errors.New("boom")).Type)
	})
}

func TestIsInfrastructureError(t *testing.T) {
	require.True(t, IsInfrastructureError(NewNotebookError(ErrorTypeSessionUnavailable, "gone")))
	require.False(t, IsInfrastructureError(NewNotebookError(ErrorTypeRuntime, "boom")))
	require.False(t, IsInfrastructureError(errors.New("boom")))
}
