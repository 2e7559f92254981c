package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Writer appends events to <dir>/<key>.jsonl. A nil *Writer discards
// everything, so callers never need to check whether journaling is on.
type Writer struct {
	key  string
	file *os.File
	seq  int
	mu   sync.Mutex
}

// Open opens or creates the journal for key, continuing its sequence.
func Open(dir, key string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	path := filepath.Join(dir, key+".jsonl")

	// Read existing events to determine starting sequence number
	seq := 0
	if events, err := readFile(path); err == nil && len(events) > 0 {
		seq = events[len(events)-1].Seq
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	return &Writer{key: key, file: file, seq: seq}, nil
}

// Write appends one event.
func (w *Writer) Write(component, eventType, level string, opts ...EventOption) error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	w.seq++
	data, err := json.Marshal(NewEvent(w.seq, component, eventType, level, opts...))
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if _, err := w.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	return nil
}

// Info is Write at LevelInfo, dropping the error. Journaling never fails an operation.
func (w *Writer) Info(component, eventType string, opts ...EventOption) {
	_ = w.Write(component, eventType, LevelInfo, opts...)
}

// Close closes the journal file.
func (w *Writer) Close() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file != nil {
		err := w.file.Close()
		w.file = nil
		return err
	}
	return nil
}

// Key returns the environment key.
func (w *Writer) Key() string {
	if w == nil {
		return ""
	}
	return w.key
}

// FilePath returns the journal file path.
func (w *Writer) FilePath() string {
	if w == nil || w.file == nil {
		return ""
	}
	return w.file.Name()
}

// Seq returns the last sequence number written.
func (w *Writer) Seq() int {
	if w == nil {
		return 0
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.seq
}
