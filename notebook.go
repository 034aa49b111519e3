package notebook

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/deepnoodle-ai/notebook/analysis"
)

// NotebookOptions configures a Notebook
type NotebookOptions struct {
	Repository BlockRepository
	Logger     *slog.Logger
	Callbacks  ExecutionCallbacks
}

// Notebook is the block lifecycle service. It analyzes sources on every
// mutation, keeps per-project dependency graphs cached, invalidates
// downstream blocks when their inputs change, and validates user-declared
// edges before accepting them.
type Notebook struct {
	repository BlockRepository
	logger     *slog.Logger
	callbacks  ExecutionCallbacks

	mutex  sync.Mutex
	graphs map[string]*Graph
}

// NewNotebook creates a notebook service
func NewNotebook(opts NotebookOptions) (*Notebook, error) {
	if opts.Repository == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Callbacks == nil {
		opts.Callbacks = &BaseExecutionCallbacks{}
	}
	return &Notebook{
		repository: opts.Repository,
		logger:     opts.Logger,
		callbacks:  opts.Callbacks,
		graphs:     map[string]*Graph{},
	}, nil
}

// CreateBlock analyzes and stores a new block. An unparseable source is
// not an error: the block is stored with its analysis error recorded and
// participates in the graph through fallback edges.
func (n *Notebook) CreateBlock(ctx context.Context, block *Block) (*Block, error) {
	if block.ID == "" {
		block.ID = NewBlockID()
	}
	if block.ProjectID == "" {
		return nil, fmt.Errorf("project id is required")
	}
	if block.Type == "" {
		block.Type = BlockTypeCode
	}
	now := time.Now()
	block.CreatedAt = now
	block.UpdatedAt = now
	block.Status = BlockStatusIdle
	n.analyze(block)

	if err := n.repository.PutBlock(ctx, block); err != nil {
		return nil, fmt.Errorf("failed to store block: %w", err)
	}
	n.logger.Info("block created",
		"block_id", block.ID,
		"project_id", block.ProjectID,
		"type", block.Type)
	n.graphChanged(ctx, block.ProjectID, nil)
	return block.Copy(), nil
}

// EditBlock replaces a block's source, re-analyzes it, and marks the block
// and everything downstream of it stale.
func (n *Notebook) EditBlock(ctx context.Context, blockID, source string) (*Block, error) {
	block, err := n.repository.GetBlock(ctx, blockID)
	if err != nil {
		return nil, err
	}
	block.Source = source
	block.Status = BlockStatusStale
	block.UpdatedAt = time.Now()
	n.analyze(block)

	if err := n.repository.PutBlock(ctx, block); err != nil {
		return nil, fmt.Errorf("failed to store block: %w", err)
	}

	stale, err := n.invalidateDependents(ctx, block.ProjectID, blockID)
	if err != nil {
		return nil, err
	}
	n.logger.Info("block edited", "block_id", blockID, "stale_dependents", len(stale))
	n.graphChanged(ctx, block.ProjectID, append([]string{blockID}, stale...))
	return block.Copy(), nil
}

// DeleteBlock removes a block. Its dependents become stale: they may now
// reference names nothing defines, and the next run will surface that.
func (n *Notebook) DeleteBlock(ctx context.Context, blockID string) error {
	block, err := n.repository.GetBlock(ctx, blockID)
	if err != nil {
		return err
	}

	// Dependents are computed before the delete, while the edges still
	// exist.
	stale, err := n.invalidateDependents(ctx, block.ProjectID, blockID)
	if err != nil {
		return err
	}
	if err := n.repository.DeleteBlock(ctx, blockID); err != nil {
		return err
	}

	// Drop dangling explicit references to the deleted block.
	blocks, err := n.repository.ListBlocks(ctx, block.ProjectID)
	if err != nil {
		return err
	}
	for _, other := range blocks {
		trimmed := other.ExplicitDeps[:0]
		for _, dep := range other.ExplicitDeps {
			if dep != blockID {
				trimmed = append(trimmed, dep)
			}
		}
		if len(trimmed) != len(other.ExplicitDeps) {
			other.ExplicitDeps = trimmed
			if err := n.repository.PutBlock(ctx, other); err != nil {
				return err
			}
		}
	}

	n.logger.Info("block deleted", "block_id", blockID, "stale_dependents", len(stale))
	n.graphChanged(ctx, block.ProjectID, stale)
	return nil
}

// AddExplicitEdge declares that one block depends on another. The edge is
// rejected when either block is missing, the edge is a self-loop, it
// already exists, or it would create a cycle.
func (n *Notebook) AddExplicitEdge(ctx context.Context, fromID, toID string) error {
	if fromID == toID {
		return NewCycleError("a block cannot depend on itself", []string{fromID})
	}
	from, err := n.repository.GetBlock(ctx, fromID)
	if err != nil {
		return err
	}
	to, err := n.repository.GetBlock(ctx, toID)
	if err != nil {
		return err
	}
	if from.ProjectID != to.ProjectID {
		return fmt.Errorf("blocks %s and %s belong to different projects", fromID, toID)
	}
	for _, dep := range to.ExplicitDeps {
		if dep == fromID {
			return fmt.Errorf("edge %s -> %s already exists", fromID, toID)
		}
	}

	graph, err := n.Graph(ctx, to.ProjectID)
	if err != nil {
		return err
	}
	if graph.WouldCreateCycle(fromID, toID) {
		return NewCycleError(
			fmt.Sprintf("edge %s -> %s would create a cycle", fromID, toID),
			[]string{fromID, toID})
	}

	to.ExplicitDeps = append(to.ExplicitDeps, fromID)
	to.UpdatedAt = time.Now()
	if err := n.repository.PutBlock(ctx, to); err != nil {
		return fmt.Errorf("failed to store block: %w", err)
	}
	n.logger.Info("explicit edge added", "from", fromID, "to", toID)
	n.graphChanged(ctx, to.ProjectID, nil)
	return nil
}

// Graph returns the dependency graph for a project, rebuilding it only
// when a mutation invalidated the cache.
func (n *Notebook) Graph(ctx context.Context, projectID string) (*Graph, error) {
	n.mutex.Lock()
	cached, ok := n.graphs[projectID]
	n.mutex.Unlock()
	if ok {
		return cached, nil
	}

	blocks, err := n.repository.ListBlocks(ctx, projectID)
	if err != nil {
		return nil, err
	}
	var executable []*Block
	for _, block := range blocks {
		if block.Executable() {
			executable = append(executable, block)
		}
	}
	graph := BuildGraph(executable)

	n.mutex.Lock()
	n.graphs[projectID] = graph
	n.mutex.Unlock()
	return graph, nil
}

// Plan validates the project's graph and returns its execution order
func (n *Notebook) Plan(ctx context.Context, projectID string) (*ExecutionPlan, error) {
	graph, err := n.Graph(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return ValidatePlan(graph), nil
}

// analyze refreshes a block's derived analysis fields from its source.
func (n *Notebook) analyze(block *Block) {
	record, err := analysis.Analyze(block.Source, block.Type.Language())
	if err != nil {
		block.Analysis = nil
		block.AnalysisError = err.Error()
		n.logger.Debug("block analysis failed", "block_id", block.ID, "error", err)
		return
	}
	block.Analysis = record
	block.AnalysisError = ""
}

// invalidateDependents marks every block downstream of the given block
// stale, using the graph as it stood before the current mutation.
func (n *Notebook) invalidateDependents(ctx context.Context, projectID, blockID string) ([]string, error) {
	graph, err := n.Graph(ctx, projectID)
	if err != nil {
		return nil, err
	}
	var stale []string
	for _, dependent := range graph.Dependents(blockID) {
		block, err := n.repository.GetBlock(ctx, dependent)
		if err != nil {
			return nil, err
		}
		if block.Status == BlockStatusStale {
			continue
		}
		block.Status = BlockStatusStale
		if err := n.repository.PutBlock(ctx, block); err != nil {
			return nil, err
		}
		stale = append(stale, dependent)
	}
	return stale, nil
}

// graphChanged drops the cached graph and notifies subscribers with the
// rebuilt one.
func (n *Notebook) graphChanged(ctx context.Context, projectID string, staleIDs []string) {
	n.mutex.Lock()
	delete(n.graphs, projectID)
	n.mutex.Unlock()

	graph, err := n.Graph(ctx, projectID)
	if err != nil {
		n.logger.Warn("failed to rebuild graph", "project_id", projectID, "error", err)
		return
	}
	n.callbacks.GraphUpdated(ctx, &GraphEvent{
		ProjectID:     projectID,
		Graph:         graph,
		Plan:          ValidatePlan(graph),
		StaleBlockIDs: staleIDs,
	})
}
