package notebook

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileExecutionLogger is an implementation of ExecutionLogger that logs to
// a file. A file is created per run. The file is formatted as
// newline-delimited JSON.
type FileExecutionLogger struct {
	directory string
}

func NewFileExecutionLogger(directory string) *FileExecutionLogger {
	return &FileExecutionLogger{directory: directory}
}

func (l *FileExecutionLogger) runLogPath(runID string) string {
	return filepath.Join(l.directory, fmt.Sprintf("%s.jsonl", runID))
}

func (l *FileExecutionLogger) GetExecutionHistory(ctx context.Context, runID string) ([]*ExecutionLogEntry, error) {
	filePath := l.runLogPath(runID)
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	var entries []*ExecutionLogEntry
	for _, line := range strings.Split(string(data), "\n") {
		if line == "" {
			continue
		}
		var entry ExecutionLogEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return nil, err
		}
		entries = append(entries, &entry)
	}
	return entries, nil
}

func (l *FileExecutionLogger) LogExecution(ctx context.Context, entry *ExecutionLogEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	filePath := l.runLogPath(entry.RunID)
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write([]byte(string(data) + "\n")); err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		return err
	}
	return nil
}
