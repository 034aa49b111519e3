package notebook

import (
	"context"
	"time"
)

// ExecutionCallbacks defines the callback interface for run and graph
// events. The engine emits; subscribers (a UI layer, a persistence layer)
// react. Callbacks run synchronously on the engine goroutine.
type ExecutionCallbacks interface {
	// Run-level callbacks
	BeforeRun(ctx context.Context, event *RunEvent)
	AfterRun(ctx context.Context, event *RunEvent)

	// Block-level callback, fired after every block execution or skip
	AfterBlockExecution(ctx context.Context, event *BlockExecutionEvent)

	// Graph callback, fired whenever a block mutation changes the graph
	GraphUpdated(ctx context.Context, event *GraphEvent)
}

// RunEvent provides context for run-level events
type RunEvent struct {
	RunID      string
	ProjectID  string
	SessionID  string
	Status     RunStatus
	BlockCount int
	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration
	Error      error
}

// BlockExecutionEvent provides context for block-level events
type BlockExecutionEvent struct {
	RunID     string
	ProjectID string
	SessionID string
	BlockID   string
	Result    *ExecutionResult
}

// GraphEvent provides context for graph mutations
type GraphEvent struct {
	ProjectID string
	Graph     *Graph
	Plan      *ExecutionPlan

	// StaleBlockIDs lists blocks invalidated by the mutation.
	StaleBlockIDs []string
}

// BaseExecutionCallbacks provides a default implementation that does nothing
type BaseExecutionCallbacks struct{}

func (n *BaseExecutionCallbacks) BeforeRun(ctx context.Context, event *RunEvent) {
	// noop
}

func (n *BaseExecutionCallbacks) AfterRun(ctx context.Context, event *RunEvent) {
	// noop
}

func (n *BaseExecutionCallbacks) AfterBlockExecution(ctx context.Context, event *BlockExecutionEvent) {
	// noop
}

func (n *BaseExecutionCallbacks) GraphUpdated(ctx context.Context, event *GraphEvent) {
	// noop
}

// NewBaseExecutionCallbacks creates a new no-op callbacks implementation.
// Embed this in your own callbacks to get a default implementation that does nothing.
func NewBaseExecutionCallbacks() ExecutionCallbacks {
	return &BaseExecutionCallbacks{}
}

// CallbackChain allows chaining multiple callback implementations
type CallbackChain struct {
	callbacks []ExecutionCallbacks
}

// NewCallbackChain creates a new callback chain
func NewCallbackChain(callbacks ...ExecutionCallbacks) *CallbackChain {
	return &CallbackChain{callbacks: callbacks}
}

// Add adds a callback to the chain
func (c *CallbackChain) Add(callback ExecutionCallbacks) {
	c.callbacks = append(c.callbacks, callback)
}

func (c *CallbackChain) BeforeRun(ctx context.Context, event *RunEvent) {
	for _, callback := range c.callbacks {
		callback.BeforeRun(ctx, event)
	}
}

func (c *CallbackChain) AfterRun(ctx context.Context, event *RunEvent) {
	for _, callback := range c.callbacks {
		callback.AfterRun(ctx, event)
	}
}

func (c *CallbackChain) AfterBlockExecution(ctx context.Context, event *BlockExecutionEvent) {
	for _, callback := range c.callbacks {
		callback.AfterBlockExecution(ctx, event)
	}
}

func (c *CallbackChain) GraphUpdated(ctx context.Context, event *GraphEvent) {
	for _, callback := range c.callbacks {
		callback.GraphUpdated(ctx, event)
	}
}
