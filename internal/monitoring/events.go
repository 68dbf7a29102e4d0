// Package monitoring writes the prediction event log and derives drift
// reports from it.
package monitoring

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Event names written to the prediction log.
const (
	EventPredict           = "predict"
	EventBatchPredict      = "batch_predict"
	EventBatchPredictError = "batch_predict_error"
)

// EventLog appends JSON lines to the prediction log through a slog
// JSONHandler. The slog message is the event name.
type EventLog struct {
	f      *os.File
	logger *slog.Logger
}

// OpenEventLog opens path for appending, creating it and its directory.
func OpenEventLog(path string) (*EventLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	return &EventLog{f: f, logger: slog.New(slog.NewJSONHandler(f, nil))}, nil
}

// Logger returns the event logger.
func (l *EventLog) Logger() *slog.Logger {
	return l.logger
}

// Close closes the log file.
func (l *EventLog) Close() error {
	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	return err
}
