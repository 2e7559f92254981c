package ui

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"golang.org/x/term"
)

// SpinnerInterval is the time between spinner frame updates
const SpinnerInterval = 100 * time.Millisecond

// Spinner shows progress for a long-running step such as a skeleton build.
// On a non-TTY writer it prints the label once instead of animating.
type Spinner struct {
	label      string
	startTime  time.Time
	frames     []rune
	frameIndex int
	isTTY      bool
	mu         sync.Mutex
	active     bool
	stopChan   chan struct{}
	doneChan   chan struct{}
	writer     io.Writer
}

var defaultFrames = []rune{'⠋', '⠙', '⠹', '⠸', '⠼', '⠴', '⠦', '⠧', '⠇', '⠏'}

// NewSpinner creates a Spinner writing to writer, or stderr when nil.
func NewSpinner(label string, writer io.Writer) *Spinner {
	if writer == nil {
		writer = os.Stderr
	}

	isTTY := false
	if f, ok := writer.(*os.File); ok {
		isTTY = term.IsTerminal(int(f.Fd()))
	}

	return &Spinner{
		label:     label,
		startTime: time.Now(),
		frames:    defaultFrames,
		isTTY:     isTTY,
		stopChan:  make(chan struct{}),
		doneChan:  make(chan struct{}),
		writer:    writer,
	}
}

// Start begins the animation. Calling it twice is a no-op.
func (s *Spinner) Start() {
	s.mu.Lock()
	if s.active {
		s.mu.Unlock()
		return
	}
	s.active = true
	s.startTime = time.Now()
	s.mu.Unlock()

	go s.loop()
}

// Stop ends the animation and prints finalMessage when non-empty.
func (s *Spinner) Stop(finalMessage string) {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	s.active = false
	s.mu.Unlock()

	close(s.stopChan)
	<-s.doneChan

	if s.isTTY {
		fmt.Fprint(s.writer, "\r\033[K")
	}
	if finalMessage != "" {
		fmt.Fprintln(s.writer, finalMessage)
	}
}

// IsTTY returns whether the output is a TTY
func (s *Spinner) IsTTY() bool {
	return s.isTTY
}

// Duration returns how long the spinner has been running
func (s *Spinner) Duration() time.Duration {
	return time.Since(s.startTime)
}

func (s *Spinner) loop() {
	defer close(s.doneChan)

	if !s.isTTY {
		fmt.Fprintf(s.writer, "%s...\n", s.label)
		<-s.stopChan
		return
	}

	ticker := time.NewTicker(SpinnerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.render()
		}
	}
}

func (s *Spinner) render() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return
	}

	elapsed := time.Since(s.startTime)
	frame := s.frames[s.frameIndex]
	s.frameIndex = (s.frameIndex + 1) % len(s.frames)

	fmt.Fprintf(s.writer, "\r%s%c%s %s (%d:%02d)",
		colorGreen, frame, colorReset, s.label, int(elapsed.Minutes()), int(elapsed.Seconds())%60)
}
