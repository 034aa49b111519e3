package notebook

import "context"

// NullExecutionLogger is a no-op implementation of ExecutionLogger.
type NullExecutionLogger struct{}

func NewNullExecutionLogger() *NullExecutionLogger {
	return &NullExecutionLogger{}
}

func (l *NullExecutionLogger) LogExecution(ctx context.Context, entry *ExecutionLogEntry) error {
	return nil
}

func (l *NullExecutionLogger) GetExecutionHistory(ctx context.Context, runID string) ([]*ExecutionLogEntry, error) {
	return nil, nil
}
