package notebook

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/deepnoodle-ai/notebook/analysis"
)

// Error type constants for classification and matching
const (
	// ErrorTypeAnalysis indicates a block's source could not be parsed.
	// The block is kept but excluded from automatic edge inference.
	ErrorTypeAnalysis = "analysis_error"

	// ErrorTypeCycle indicates the dependency graph contains a cycle and
	// no execution order exists.
	ErrorTypeCycle = "cycle_error"

	// ErrorTypeTimeout matches a block execution that exceeded its time
	// limit or was canceled.
	ErrorTypeTimeout = "timeout"

	// ErrorTypeRuntime indicates a block failed while executing. Unknown
	// errors default to this classification.
	ErrorTypeRuntime = "runtime_error"

	// ErrorTypeSessionUnavailable indicates the execution session is
	// stopped or could not be created. Unlike a block failure, this
	// aborts the whole run.
	ErrorTypeSessionUnavailable = "session_unavailable"
)

// NotebookError represents a structured error with classification.
// It supports Go's error wrapping patterns with Unwrap() method.
type NotebookError struct {
	Type    string `json:"type"`
	Cause   string `json:"cause"`
	Details any    `json:"details,omitempty"`
	Wrapped error  `json:"-"` // Original error being wrapped
}

// Error implements the error interface
func (e *NotebookError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Cause)
}

// Unwrap implements the error unwrapping interface for Go's errors.Is and errors.As
func (e *NotebookError) Unwrap() error {
	return e.Wrapped
}

// NewNotebookError creates a new NotebookError with the specified type and
// cause. The type is usually one of the ErrorType constants but may be any
// string; matching treats it as an opaque tag.
func NewNotebookError(errorType, cause string) *NotebookError {
	return &NotebookError{
		Type:  errorType,
		Cause: cause,
	}
}

// NewCycleError builds a cycle error carrying the IDs of the blocks on the
// cycle so callers can surface them.
func NewCycleError(cause string, blockIDs []string) *NotebookError {
	return &NotebookError{
		Type:    ErrorTypeCycle,
		Cause:   cause,
		Details: blockIDs,
	}
}

// ClassifyError attempts to classify a regular error into a NotebookError
func ClassifyError(err error) *NotebookError {
	// If the error is already a NotebookError, return it
	var notebookError *NotebookError
	if errors.As(err, &notebookError) {
		return notebookError
	}
	var analysisError *analysis.Error
	if errors.As(err, &analysisError) {
		return &NotebookError{
			Type:    ErrorTypeAnalysis,
			Cause:   analysisError.Message,
			Wrapped: err,
		}
	}
	// Check for timeout patterns
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) ||
		strings.Contains(strings.ToLower(err.Error()), "timeout") {
		return &NotebookError{
			Type:    ErrorTypeTimeout,
			Cause:   err.Error(),
			Wrapped: err,
		}
	}
	// Default to a runtime error
	return &NotebookError{
		Type:    ErrorTypeRuntime,
		Cause:   err.Error(),
		Wrapped: err,
	}
}

// MatchesErrorType checks if an error matches a specified error type
func MatchesErrorType(err error, errorType string) bool {
	return ClassifyError(err).Type == errorType
}

// IsInfrastructureError reports whether an error should abort a whole run
// rather than fail a single block.
func IsInfrastructureError(err error) bool {
	return MatchesErrorType(err, ErrorTypeSessionUnavailable)
}
