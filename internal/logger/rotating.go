package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

const (
	// DefaultMaxLogSize is the maximum size of a single transcript file (10MB)
	DefaultMaxLogSize = 10 * 1024 * 1024

	// DefaultMaxLogFiles is the maximum number of transcript files to keep
	DefaultMaxLogFiles = 10
)

// RotatingLogger is an io.Writer over size-capped, count-capped files in dir.
// Each write is stamped with the wall clock.
type RotatingLogger struct {
	mu       sync.Mutex
	dir      string
	prefix   string
	maxSize  int64
	maxFiles int
	current  *os.File
	written  int64
}

// NewRotatingLogger creates dir if needed and opens a fresh file named
// <prefix>-<timestamp>.log.
func NewRotatingLogger(dir, prefix string) (*RotatingLogger, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	if prefix == "" {
		prefix = "transcript"
	}

	l := &RotatingLogger{
		dir:      dir,
		prefix:   prefix,
		maxSize:  DefaultMaxLogSize,
		maxFiles: DefaultMaxLogFiles,
	}

	if err := l.createNewFile(); err != nil {
		return nil, err
	}
	l.cleanup()

	return l, nil
}

// SetLimits overrides the default size and file-count caps. Zero keeps a cap unchanged.
func (l *RotatingLogger) SetLimits(maxSize int64, maxFiles int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if maxSize > 0 {
		l.maxSize = maxSize
	}
	if maxFiles > 0 {
		l.maxFiles = maxFiles
	}
}

// Write implements io.Writer
func (l *RotatingLogger) Write(p []byte) (n int, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.current == nil {
		if err := l.createNewFile(); err != nil {
			return 0, err
		}
	}

	timestamp := time.Now().Format("2006-01-02 15:04:05")
	n, err = fmt.Fprintf(l.current, "[%s] %s", timestamp, p)
	if err != nil {
		return 0, err
	}
	l.written += int64(n)

	if l.written >= l.maxSize {
		if err := l.rotate(); err != nil {
			return len(p), err
		}
	}

	return len(p), nil
}

// Section writes a header line separating one subprocess from the next.
func (l *RotatingLogger) Section(title string) {
	fmt.Fprintf(l, "==== %s ====\n", title)
}

// Rotate closes the current file and opens a new one
func (l *RotatingLogger) Rotate() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rotate()
}

// Close closes the logger
func (l *RotatingLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.current != nil {
		err := l.current.Close()
		l.current = nil
		return err
	}
	return nil
}

// FilePath returns the current log file path
func (l *RotatingLogger) FilePath() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.current != nil {
		return l.current.Name()
	}
	return ""
}

func (l *RotatingLogger) rotate() error {
	if l.current != nil {
		if err := l.current.Close(); err != nil {
			return fmt.Errorf("failed to close current log file: %w", err)
		}
		l.current = nil
	}

	l.cleanup()
	return l.createNewFile()
}

func (l *RotatingLogger) createNewFile() error {
	timestamp := time.Now().Format("20060102-150405.000000")
	path := filepath.Join(l.dir, fmt.Sprintf("%s-%s.log", l.prefix, timestamp))

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}

	l.current = file
	l.written = 0
	return nil
}

// cleanup removes the oldest files beyond maxFiles
func (l *RotatingLogger) cleanup() {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return
	}

	var logFiles []string
	for _, entry := range entries {
		if !entry.IsDir() && filepath.Ext(entry.Name()) == ".log" {
			logFiles = append(logFiles, filepath.Join(l.dir, entry.Name()))
		}
	}

	// File names carry the creation timestamp, so name order is age order
	sort.Strings(logFiles)

	for len(logFiles) > l.maxFiles {
		os.Remove(logFiles[0])
		logFiles = logFiles[1:]
	}
}
