package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// JSONLSink appends entries to a per-run JSONL file. Append-only by
// construction: the file is opened O_APPEND and nothing in draftsmith
// reads it back.
type JSONLSink struct {
	mu   sync.Mutex
	file *os.File
	path string
}

// NewJSONLSink opens (or creates) <dir>/<runID>.jsonl for appending.
func NewJSONLSink(dir, runID string) (*JSONLSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating telemetry directory: %w", err)
	}

	path := filepath.Join(dir, runID+".jsonl")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening telemetry file: %w", err)
	}

	return &JSONLSink{file: file, path: path}, nil
}

// Path returns the sink's file path.
func (s *JSONLSink) Path() string {
	return s.path
}

// Emit appends one entry as a JSON line.
func (s *JSONLSink) Emit(ctx context.Context, entry Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return os.ErrClosed
	}
	_, err = s.file.Write(append(data, '\n'))
	return err
}

// Close closes the file.
func (s *JSONLSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

var _ Sink = (*JSONLSink)(nil)
