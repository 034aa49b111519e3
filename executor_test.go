package notebook

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type testHarness struct {
	repository *MemoryBlockRepository
	notebook   *Notebook
	sessions   *SessionManager
	executor   *Executor
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()
	repository := NewMemoryBlockRepository()
	nb, err := NewNotebook(NotebookOptions{Repository: repository})
	require.NoError(t, err)
	sessions := NewSessionManager(SessionManagerOptions{})
	t.Cleanup(func() {
		sessions.StopAll(context.Background())
	})
	executor, err := NewExecutor(ExecutorOptions{
		Repository: repository,
		Sessions:   sessions,
	})
	require.NoError(t, err)
	return &testHarness{
		repository: repository,
		notebook:   nb,
		sessions:   sessions,
		executor:   executor,
	}
}

func (h *testHarness) addBlock(t *testing.T, ordinal int, source string) *Block {
	t.Helper()
	block, err := h.notebook.CreateBlock(context.Background(), &Block{
		ProjectID: "proj_test",
		Type:      BlockTypeCode,
		Ordinal:   ordinal,
		Source:    source,
	})
	require.NoError(t, err)
	return block
}

func TestExecuteProjectChain(t *testing.T) {
	ctx := context.Background()
	h := newTestHarness(t)
	a := h.addBlock(t, 1, "x := 5")
	b := h.addBlock(t, 2, "y := x * 2")
	c := h.addBlock(t, 3, "print(x + y)")

	run, err := h.executor.ExecuteProject(ctx, "proj_test")
	require.NoError(t, err)
	require.Equal(t, RunStatusCompleted, run.Status)
	require.Len(t, run.Results, 3)
	require.Equal(t, []string{a.ID, b.ID, c.ID},
		[]string{run.Results[0].BlockID, run.Results[1].BlockID, run.Results[2].BlockID})
	require.Equal(t, "15\n", run.Results[2].Stdout)

	// Outcomes are persisted back to the repository.
	stored, err := h.repository.GetBlock(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, BlockStatusCompleted, stored.Status)
	require.Equal(t, "15\n", stored.LastOutput)
	require.Equal(t, 1, stored.ExecutionCount)
}

func TestExecuteProjectSkipsDownstreamOfFailure(t *testing.T) {
	ctx := context.Background()
	h := newTestHarness(t)
	h.addBlock(t, 1, "x := 5")
	b := h.addBlock(t, 2, "y := x.bad_method()")
	c := h.addBlock(t, 3, "z := y + 1")
	d := h.addBlock(t, 4, "w := x * 2")

	run, err := h.executor.ExecuteProject(ctx, "proj_test")
	require.NoError(t, err)
	require.Equal(t, RunStatusCompletedWithErrors, run.Status)
	require.Len(t, run.Results, 4)

	byBlock := map[string]*ExecutionResult{}
	for _, result := range run.Results {
		byBlock[result.BlockID] = result
	}
	require.Equal(t, BlockStatusFailed, byBlock[b.ID].Status)
	require.Equal(t, BlockStatusSkipped, byBlock[c.ID].Status)
	require.Equal(t, b.ID, byBlock[c.ID].SkippedBecause)
	// d depends only on x and still runs.
	require.Equal(t, BlockStatusCompleted, byBlock[d.ID].Status)

	stored, err := h.repository.GetBlock(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, BlockStatusSkipped, stored.Status)
	// Skipped blocks do not count as executions.
	require.Equal(t, 0, stored.ExecutionCount)
}

func TestExecuteProjectSkipsTransitively(t *testing.T) {
	ctx := context.Background()
	h := newTestHarness(t)
	a := h.addBlock(t, 1, "x := missing_name")
	b := h.addBlock(t, 2, "y := x + 1")
	c := h.addBlock(t, 3, "z := y + 1")

	run, err := h.executor.ExecuteProject(ctx, "proj_test")
	require.NoError(t, err)
	require.Equal(t, RunStatusCompletedWithErrors, run.Status)

	byBlock := map[string]*ExecutionResult{}
	for _, result := range run.Results {
		byBlock[result.BlockID] = result
	}
	require.Equal(t, BlockStatusFailed, byBlock[a.ID].Status)
	require.Equal(t, BlockStatusSkipped, byBlock[b.ID].Status)
	require.Equal(t, BlockStatusSkipped, byBlock[c.ID].Status)
	// Both skips trace back to the original failure.
	require.Equal(t, a.ID, byBlock[b.ID].SkippedBecause)
	require.Equal(t, a.ID, byBlock[c.ID].SkippedBecause)
}

func TestExecuteProjectRejectsCycles(t *testing.T) {
	ctx := context.Background()
	h := newTestHarness(t)
	a := h.addBlock(t, 1, "x := 1")
	b := h.addBlock(t, 2, "y := 2")

	// Force a cycle directly in the repository; AddExplicitEdge would
	// reject it.
	blockA, err := h.repository.GetBlock(ctx, a.ID)
	require.NoError(t, err)
	blockA.ExplicitDeps = []string{b.ID}
	require.NoError(t, h.repository.PutBlock(ctx, blockA))
	blockB, err := h.repository.GetBlock(ctx, b.ID)
	require.NoError(t, err)
	blockB.ExplicitDeps = []string{a.ID}
	require.NoError(t, h.repository.PutBlock(ctx, blockB))

	run, err := h.executor.ExecuteProject(ctx, "proj_test")
	require.Error(t, err)
	require.True(t, MatchesErrorType(err, ErrorTypeCycle))
	require.Equal(t, RunStatusFailed, run.Status)
	require.Empty(t, run.Results)
}

func TestExecuteProjectNoExecutableBlocks(t *testing.T) {
	ctx := context.Background()
	h := newTestHarness(t)
	_, err := h.notebook.CreateBlock(ctx, &Block{
		ProjectID: "proj_test",
		Type:      BlockTypeMarkdown,
		Ordinal:   1,
		Source:    "# notes",
	})
	require.NoError(t, err)

	_, err = h.executor.ExecuteProject(ctx, "proj_test")
	require.Error(t, err)
	require.Contains(t, err.Error(), "no executable blocks")
}

func TestExecuteBlocksSubset(t *testing.T) {
	ctx := context.Background()
	h := newTestHarness(t)
	a := h.addBlock(t, 1, "x := 5")
	b := h.addBlock(t, 2, "y := x * 2")
	h.addBlock(t, 3, "z := y + 1")

	run, err := h.executor.ExecuteBlocks(ctx, "proj_test", []string{a.ID, b.ID})
	require.NoError(t, err)
	require.Equal(t, RunStatusCompleted, run.Status)
	require.Len(t, run.Results, 2)
	require.Equal(t, a.ID, run.Results[0].BlockID)
	require.Equal(t, b.ID, run.Results[1].BlockID)
}

func TestExecuteBlocksUnknownBlock(t *testing.T) {
	ctx := context.Background()
	h := newTestHarness(t)
	h.addBlock(t, 1, "x := 5")

	_, err := h.executor.ExecuteBlocks(ctx, "proj_test", []string{"block_missing"})
	require.ErrorIs(t, err, ErrBlockNotFound)

	_, err = h.executor.ExecuteBlocks(ctx, "proj_test", nil)
	require.Error(t, err)
}

func TestExecuteBlocksRejectsNonExecutable(t *testing.T) {
	ctx := context.Background()
	h := newTestHarness(t)
	a := h.addBlock(t, 1, "x := 5")
	notes, err := h.notebook.CreateBlock(ctx, &Block{
		ProjectID: "proj_test",
		Type:      BlockTypeMarkdown,
		Ordinal:   2,
		Source:    "# notes",
	})
	require.NoError(t, err)

	_, err = h.executor.ExecuteBlocks(ctx, "proj_test", []string{a.ID, notes.ID})
	require.Error(t, err)
	require.Contains(t, err.Error(), "not executable")
}

func TestExecuteProjectAbortsOnStoppedSession(t *testing.T) {
	ctx := context.Background()
	h := newTestHarness(t)
	h.addBlock(t, 1, "x := 5")

	session, err := h.sessions.SessionForProject(ctx, "proj_test")
	require.NoError(t, err)
	require.NoError(t, session.Stop(ctx))

	// A stopped session rejects execution with an infrastructure error,
	// which is what makes the executor abort the whole run.
	_, err = session.Execute(ctx, codeBlock(t, "a", 1, "x := 1"))
	require.Error(t, err)
	require.True(t, IsInfrastructureError(err))
}

type recordingCallbacks struct {
	BaseExecutionCallbacks
	mutex       sync.Mutex
	beforeRuns  []*RunEvent
	afterRuns   []*RunEvent
	blockEvents []*BlockExecutionEvent
}

func (c *recordingCallbacks) BeforeRun(ctx context.Context, event *RunEvent) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.beforeRuns = append(c.beforeRuns, event)
}

func (c *recordingCallbacks) AfterRun(ctx context.Context, event *RunEvent) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.afterRuns = append(c.afterRuns, event)
}

func (c *recordingCallbacks) AfterBlockExecution(ctx context.Context, event *BlockExecutionEvent) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.blockEvents = append(c.blockEvents, event)
}

func TestExecutorCallbacks(t *testing.T) {
	ctx := context.Background()
	h := newTestHarness(t)
	callbacks := &recordingCallbacks{}
	executor, err := NewExecutor(ExecutorOptions{
		Repository: h.repository,
		Sessions:   h.sessions,
		Callbacks:  callbacks,
	})
	require.NoError(t, err)

	h.addBlock(t, 1, "x := 5")
	h.addBlock(t, 2, "y := x * 2")

	run, err := executor.ExecuteProject(ctx, "proj_test")
	require.NoError(t, err)
	require.Equal(t, RunStatusCompleted, run.Status)

	require.Len(t, callbacks.beforeRuns, 1)
	require.Equal(t, run.RunID, callbacks.beforeRuns[0].RunID)
	require.Equal(t, 2, callbacks.beforeRuns[0].BlockCount)
	require.Len(t, callbacks.blockEvents, 2)
	require.Len(t, callbacks.afterRuns, 1)
	require.Equal(t, RunStatusCompleted, callbacks.afterRuns[0].Status)
}

func TestExecutorExecutionLog(t *testing.T) {
	ctx := context.Background()
	h := newTestHarness(t)
	execLogger := NewFileExecutionLogger(t.TempDir())
	executor, err := NewExecutor(ExecutorOptions{
		Repository:      h.repository,
		Sessions:        h.sessions,
		ExecutionLogger: execLogger,
	})
	require.NoError(t, err)

	h.addBlock(t, 1, "x := 5")
	h.addBlock(t, 2, "print(x)")

	run, err := executor.ExecuteProject(ctx, "proj_test")
	require.NoError(t, err)

	entries, err := execLogger.GetExecutionHistory(ctx, run.RunID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, run.RunID, entries[0].RunID)
	require.Equal(t, BlockStatusCompleted, entries[0].Status)
	require.Equal(t, "5\n", entries[1].Stdout)
}

func TestNewExecutorValidation(t *testing.T) {
	_, err := NewExecutor(ExecutorOptions{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "repository is required")

	_, err = NewExecutor(ExecutorOptions{Repository: NewMemoryBlockRepository()})
	require.Error(t, err)
	require.Contains(t, err.Error(), "session manager is required")
}
