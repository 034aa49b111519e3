package notebook

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.jetify.com/typeid"
)

// NewRunID returns a new unique run identifier
func NewRunID() string {
	id, err := typeid.WithPrefix("run")
	if err != nil {
		panic(err)
	}
	return id.String()
}

// RunStatus represents the overall outcome of a run
type RunStatus string

const (
	// RunStatusCompleted means every block completed.
	RunStatusCompleted RunStatus = "completed"

	// RunStatusCompletedWithErrors means the run finished but one or more
	// blocks failed or were skipped.
	RunStatusCompletedWithErrors RunStatus = "completed_with_errors"

	// RunStatusFailed means the run could not proceed at all: the graph
	// was cyclic or the session was unavailable.
	RunStatusFailed RunStatus = "failed"
)

// RunResult aggregates the outcome of executing a set of blocks.
type RunResult struct {
	RunID     string             `json:"run_id"`
	ProjectID string             `json:"project_id"`
	SessionID string             `json:"session_id,omitempty"`
	Status    RunStatus          `json:"status"`
	Results   []*ExecutionResult `json:"results,omitempty"`
	Error     string             `json:"error,omitempty"`
	StartedAt time.Time          `json:"started_at"`
	Duration  time.Duration      `json:"duration"`
}

// ExecutorOptions configures an Executor
type ExecutorOptions struct {
	Repository      BlockRepository
	Sessions        *SessionManager
	Logger          *slog.Logger
	Callbacks       ExecutionCallbacks
	ExecutionLogger ExecutionLogger
	Formatter       RunFormatter
}

// Executor runs blocks in dependency order. It validates the graph, leases
// a session, dispatches blocks one at a time, persists each block's
// outcome, and skips everything downstream of a failure.
type Executor struct {
	repository BlockRepository
	sessions   *SessionManager
	logger     *slog.Logger
	callbacks  ExecutionCallbacks
	execLogger ExecutionLogger
	formatter  RunFormatter
}

// NewExecutor creates an executor
func NewExecutor(opts ExecutorOptions) (*Executor, error) {
	if opts.Repository == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if opts.Sessions == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Callbacks == nil {
		opts.Callbacks = &BaseExecutionCallbacks{}
	}
	if opts.ExecutionLogger == nil {
		opts.ExecutionLogger = NewNullExecutionLogger()
	}
	return &Executor{
		repository: opts.Repository,
		sessions:   opts.Sessions,
		logger:     opts.Logger,
		callbacks:  opts.Callbacks,
		execLogger: opts.ExecutionLogger,
		formatter:  opts.Formatter,
	}, nil
}

// ExecuteProject runs every executable block in the project in dependency
// order. The returned error is non-nil only when the run could not proceed
// at all; individual block failures are reported in the result.
func (e *Executor) ExecuteProject(ctx context.Context, projectID string) (*RunResult, error) {
	blocks, err := e.repository.ListBlocks(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list blocks: %w", err)
	}
	return e.run(ctx, projectID, blocks, nil)
}

// ExecuteBlocks runs the given blocks, ordered by the project's full
// dependency graph. Blocks not listed are not run, even if listed blocks
// depend on them.
func (e *Executor) ExecuteBlocks(ctx context.Context, projectID string, blockIDs []string) (*RunResult, error) {
	if len(blockIDs) == 0 {
		return nil, fmt.Errorf("no blocks requested")
	}
	blocks, err := e.repository.ListBlocks(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list blocks: %w", err)
	}
	requested := map[string]bool{}
	for _, id := range blockIDs {
		requested[id] = true
	}
	found := 0
	for _, block := range blocks {
		if requested[block.ID] {
			if !block.Executable() {
				return nil, fmt.Errorf("block %s is not executable (type %s)", block.ID, block.Type)
			}
			found++
		}
	}
	if found != len(requested) {
		return nil, ErrBlockNotFound
	}
	return e.run(ctx, projectID, blocks, requested)
}

// run validates the graph over all blocks and executes the selected subset
// (everything executable when selected is nil) in topological order.
func (e *Executor) run(ctx context.Context, projectID string, blocks []*Block, selected map[string]bool) (*RunResult, error) {
	result := &RunResult{
		RunID:     NewRunID(),
		ProjectID: projectID,
		StartedAt: time.Now(),
	}
	logger := e.logger.With("run_id", result.RunID, "project_id", projectID)

	var executable []*Block
	byID := map[string]*Block{}
	for _, block := range blocks {
		if block.Executable() {
			executable = append(executable, block)
			byID[block.ID] = block
		}
	}
	if len(executable) == 0 {
		return nil, fmt.Errorf("project %s has no executable blocks", projectID)
	}

	graph := BuildGraph(executable)
	plan := ValidatePlan(graph)
	if !plan.Valid {
		result.Status = RunStatusFailed
		result.Error = plan.Reason
		result.Duration = time.Since(result.StartedAt)
		logger.Warn("run rejected", "reason", plan.Reason, "cycle_blocks", plan.CycleBlockIDs)
		return result, NewCycleError(plan.Reason, plan.CycleBlockIDs)
	}

	session, err := e.sessions.SessionForProject(ctx, projectID)
	if err != nil {
		result.Status = RunStatusFailed
		result.Error = err.Error()
		result.Duration = time.Since(result.StartedAt)
		return result, err
	}
	result.SessionID = session.ID()

	runOrder := plan.Order
	if selected != nil {
		runOrder = nil
		for _, id := range plan.Order {
			if selected[id] {
				runOrder = append(runOrder, id)
			}
		}
	}

	logger.Info("run started", "session_id", session.ID(), "blocks", len(runOrder))
	e.callbacks.BeforeRun(ctx, &RunEvent{
		RunID:      result.RunID,
		ProjectID:  projectID,
		SessionID:  session.ID(),
		BlockCount: len(runOrder),
		StartTime:  result.StartedAt,
	})

	// Block ID -> the failed upstream block that poisons it.
	skip := map[string]string{}
	failures := 0

	for _, id := range runOrder {
		if ctx.Err() != nil {
			result.Status = RunStatusCompletedWithErrors
			result.Error = ctx.Err().Error()
			break
		}
		block := byID[id]

		var blockResult *ExecutionResult
		if because, skipped := skip[id]; skipped {
			blockResult = &ExecutionResult{
				BlockID:        id,
				SessionID:      session.ID(),
				Status:         BlockStatusSkipped,
				SkippedBecause: because,
				Error:          fmt.Sprintf("skipped: upstream block %s failed", because),
				StartedAt:      time.Now(),
			}
		} else {
			if e.formatter != nil {
				e.formatter.PrintBlockStart(id, block.Ordinal)
			}
			blockResult, err = session.Execute(ctx, block)
			if err != nil {
				// The session is gone; nothing downstream can run.
				result.Status = RunStatusFailed
				result.Error = err.Error()
				result.Duration = time.Since(result.StartedAt)
				logger.Error("run aborted", "error", err)
				e.finishRun(ctx, result, len(runOrder), err)
				return result, err
			}
		}

		if e.formatter != nil {
			if blockResult.Failed() {
				e.formatter.PrintBlockError(id, blockResult.Error)
			} else {
				e.formatter.PrintBlockOutput(id, blockResult)
			}
		}

		result.Results = append(result.Results, blockResult)
		e.persistOutcome(ctx, block, blockResult, logger)
		e.logOutcome(ctx, result.RunID, projectID, blockResult)
		e.callbacks.AfterBlockExecution(ctx, &BlockExecutionEvent{
			RunID:     result.RunID,
			ProjectID: projectID,
			SessionID: session.ID(),
			BlockID:   id,
			Result:    blockResult,
		})

		if blockResult.Status == BlockStatusFailed || blockResult.Status == BlockStatusSkipped {
			failures++
			origin := id
			if blockResult.SkippedBecause != "" {
				origin = blockResult.SkippedBecause
			}
			for _, dependent := range graph.Dependents(id) {
				if _, marked := skip[dependent]; !marked {
					skip[dependent] = origin
				}
			}
		}
	}

	if result.Status == "" {
		if failures > 0 {
			result.Status = RunStatusCompletedWithErrors
		} else {
			result.Status = RunStatusCompleted
		}
	}
	result.Duration = time.Since(result.StartedAt)
	logger.Info("run finished", "status", result.Status, "duration", result.Duration, "failures", failures)
	e.finishRun(ctx, result, len(runOrder), nil)
	return result, nil
}

func (e *Executor) finishRun(ctx context.Context, result *RunResult, blockCount int, runErr error) {
	e.callbacks.AfterRun(ctx, &RunEvent{
		RunID:      result.RunID,
		ProjectID:  result.ProjectID,
		SessionID:  result.SessionID,
		Status:     result.Status,
		BlockCount: blockCount,
		StartTime:  result.StartedAt,
		EndTime:    result.StartedAt.Add(result.Duration),
		Duration:   result.Duration,
		Error:      runErr,
	})
}

// persistOutcome writes a block's execution outcome back to the repository.
func (e *Executor) persistOutcome(ctx context.Context, block *Block, result *ExecutionResult, logger *slog.Logger) {
	updated := block.Copy()
	updated.Status = result.Status
	updated.LastOutput = result.Stdout
	updated.LastError = result.Error
	updated.LastDuration = result.Duration
	updated.UpdatedAt = time.Now()
	if result.Status == BlockStatusCompleted || result.Status == BlockStatusFailed {
		updated.ExecutionCount++
	}
	if err := e.repository.PutBlock(ctx, updated); err != nil {
		logger.Warn("failed to persist block outcome", "block_id", block.ID, "error", err)
	}
}

func (e *Executor) logOutcome(ctx context.Context, runID, projectID string, result *ExecutionResult) {
	entry := &ExecutionLogEntry{
		RunID:          runID,
		ProjectID:      projectID,
		SessionID:      result.SessionID,
		BlockID:        result.BlockID,
		Status:         result.Status,
		Stdout:         result.Stdout,
		Error:          result.Error,
		ErrorType:      result.ErrorType,
		SkippedBecause: result.SkippedBecause,
		StartTime:      result.StartedAt,
		Duration:       result.Duration.Seconds(),
	}
	if err := e.execLogger.LogExecution(ctx, entry); err != nil {
		e.logger.Warn("failed to log block execution", "block_id", result.BlockID, "error", err)
	}
}
