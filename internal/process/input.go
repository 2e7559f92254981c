package process

import (
	"io"
	"strings"
	"sync"
)

// FeedState is the scripted-stdin lifecycle.
type FeedState int

const (
	AwaitingReadiness FeedState = iota
	Writing
	Closed
)

func (s FeedState) String() string {
	switch s {
	case AwaitingReadiness:
		return "awaiting-readiness"
	case Writing:
		return "writing"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// Feeder delivers scripted lines to a child's stdin one at a time. The next
// line is queued only after the previous write has been accepted by the
// stream, and the stream is closed after the last line.
type Feeder struct {
	mu    sync.Mutex
	state FeedState
	lines []string
	sent  int
	err   error
	done  chan struct{}
}

// NewFeeder creates a feeder in AwaitingReadiness. Each line gets a
// trailing newline.
func NewFeeder(lines []string) *Feeder {
	return &Feeder{
		lines: append([]string(nil), lines...),
		done:  make(chan struct{}),
	}
}

// Start moves to Writing and feeds w in the background. closeFn ends the
// input; when nil, w is closed if it is an io.Closer.
func (f *Feeder) Start(w io.Writer, closeFn func() error) {
	f.mu.Lock()
	if f.state != AwaitingReadiness {
		f.mu.Unlock()
		return
	}
	f.state = Writing
	f.mu.Unlock()

	if closeFn == nil {
		closeFn = func() error {
			if c, ok := w.(io.Closer); ok {
				return c.Close()
			}
			return nil
		}
	}

	go f.run(w, closeFn)
}

func (f *Feeder) run(w io.Writer, closeFn func() error) {
	defer close(f.done)

	for _, line := range f.lines {
		if !strings.HasSuffix(line, "\n") {
			line += "\n"
		}
		// Write blocks until the stream has taken the line
		if _, err := io.WriteString(w, line); err != nil {
			f.finish(err)
			closeFn()
			return
		}
		f.mu.Lock()
		f.sent++
		f.mu.Unlock()
	}

	f.finish(closeFn())
}

func (f *Feeder) finish(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = Closed
	if f.err == nil {
		f.err = err
	}
}

// State returns the current lifecycle state.
func (f *Feeder) State() FeedState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Sent returns how many lines were fully written.
func (f *Feeder) Sent() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent
}

// Err returns the first write or close error. The child exiting before
// reading all input shows up here, not as a run failure.
func (f *Feeder) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// Done is closed once the feeder reaches Closed.
func (f *Feeder) Done() <-chan struct{} {
	return f.done
}
