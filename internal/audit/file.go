package audit

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
)

// FileEmitter appends events to a local file as JSON lines.
type FileEmitter struct {
	mu     sync.Mutex
	file   *os.File
	logger *slog.Logger
}

// NewFileEmitter opens (or creates) the audit log at path in append mode.
func NewFileEmitter(path string, logger *slog.Logger) (*FileEmitter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open audit log %s: %w", path, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FileEmitter{file: f, logger: logger}, nil
}

// Emit writes the event as one JSON line. Write failures are logged, never
// propagated: auditing must not break the conversation path.
func (f *FileEmitter) Emit(event *Event) {
	data, err := event.JSON()
	if err != nil {
		f.logger.Warn("audit: marshal event", "error", err)
		return
	}
	data = append(data, '\n')

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.file.Write(data); err != nil {
		f.logger.Warn("audit: write event", "error", err)
	}
}

// Close closes the underlying file.
func (f *FileEmitter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.file.Close()
}
