package notebook

// RunFormatter interface for pretty output during a run
type RunFormatter interface {
	PrintBlockStart(blockID string, ordinal int)
	PrintBlockOutput(blockID string, result *ExecutionResult)
	PrintBlockError(blockID string, err string)
}
