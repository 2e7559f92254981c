// Package lock guards one-time cache creation with an exclusive lock file.
package lock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// writeGrace is how long an unreadable lock file is assumed to be mid-write
const writeGrace = 2 * time.Second

// ErrHeld is returned by TryAcquire while a live process owns the lock.
var ErrHeld = errors.New("lock is held by another process")

// Info is the JSON payload written into the lock file
type Info struct {
	PID       int       `json:"pid"`
	StartTime time.Time `json:"start_time"`
	Hostname  string    `json:"hostname"`
}

// File is an O_EXCL lock file with stale-PID takeover
type File struct {
	path     string
	acquired bool
}

// New creates a lock for the given path. Nothing touches disk until acquire.
func New(path string) *File {
	return &File{path: path}
}

// Path returns the lock file location.
func (l *File) Path() string {
	return l.path
}

// ProcessAlive reports whether a process with the given PID is still running.
func ProcessAlive(pid int) bool {
	return processAlive(pid)
}

// TryAcquire makes a single attempt to take the lock. A lock file left by a
// dead process, or one that cannot be parsed, is removed and retried once.
func (l *File) TryAcquire() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	err := l.create()
	if err == nil || !os.IsExist(err) {
		return err
	}

	info, readErr := l.readInfo()
	if readErr == nil && processAlive(info.PID) {
		return fmt.Errorf("%w (PID: %d, started: %s)", ErrHeld, info.PID, info.StartTime.Format(time.RFC3339))
	}
	if readErr != nil && l.recentlyCreated() {
		// The holder may not have written its info yet
		return fmt.Errorf("%w: lock file is being written", ErrHeld)
	}

	return l.takeOver()
}

// takeOver replaces a stale or unreadable lock file. Contenders serialize on
// a guard file and re-check the lock under it, so a lock recreated by one of
// them is never removed by another.
func (l *File) takeOver() error {
	guard := l.path + ".takeover"
	g, err := os.OpenFile(guard, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if !os.IsExist(err) {
			return fmt.Errorf("failed to create takeover guard: %w", err)
		}
		// A guard outlives writeGrace only if its owner died mid-takeover
		if st, statErr := os.Stat(guard); statErr == nil && time.Since(st.ModTime()) > writeGrace {
			os.Remove(guard)
		}
		return fmt.Errorf("%w: takeover in progress", ErrHeld)
	}
	g.Close()
	defer os.Remove(guard)

	info, readErr := l.readInfo()
	switch {
	case readErr == nil && processAlive(info.PID):
		return fmt.Errorf("%w (PID: %d, started: %s)", ErrHeld, info.PID, info.StartTime.Format(time.RFC3339))
	case readErr != nil && !os.IsNotExist(readErr) && l.recentlyCreated():
		return fmt.Errorf("%w: lock file is being written", ErrHeld)
	}

	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove stale lock: %w", err)
	}
	if err := l.create(); err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("%w: lock file reappeared", ErrHeld)
		}
		return err
	}
	return nil
}

// Acquire polls TryAcquire until the lock is taken, ctx is done, or
// maxWait elapses.
func (l *File) Acquire(ctx context.Context, poll, maxWait time.Duration) error {
	if poll <= 0 {
		poll = 200 * time.Millisecond
	}
	deadline := time.Now().Add(maxWait)

	for {
		err := l.TryAcquire()
		if err == nil || !errors.Is(err, ErrHeld) {
			return err
		}
		if maxWait > 0 && time.Now().After(deadline) {
			return fmt.Errorf("timed out after %s waiting for %s: %w", maxWait, l.path, err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(poll):
		}
	}
}

// Release removes the lock file if this instance holds it
func (l *File) Release() error {
	if !l.acquired {
		return nil
	}

	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to release lock: %w", err)
	}

	l.acquired = false
	return nil
}

// IsStale reports whether the lock file belongs to a process that is gone
func (l *File) IsStale() bool {
	info, err := l.readInfo()
	if err != nil {
		return false
	}
	return !processAlive(info.PID)
}

func (l *File) recentlyCreated() bool {
	st, err := os.Stat(l.path)
	return err == nil && time.Since(st.ModTime()) < writeGrace
}

func (l *File) create() error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if os.IsExist(err) {
			return err
		}
		return fmt.Errorf("failed to create lock file: %w", err)
	}

	if err := writeInfo(f); err != nil {
		f.Close()
		os.Remove(l.path)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(l.path)
		return fmt.Errorf("failed to close lock file: %w", err)
	}

	l.acquired = true
	return nil
}

func (l *File) readInfo() (*Info, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, err
	}

	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func writeInfo(f *os.File) error {
	hostname, _ := os.Hostname()
	info := Info{
		PID:       os.Getpid(),
		StartTime: time.Now(),
		Hostname:  hostname,
	}

	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal lock info: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("failed to write lock info: %w", err)
	}
	return nil
}
