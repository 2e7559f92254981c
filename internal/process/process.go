// Package process runs shell command lines with scripted stdin, a timeout,
// and captured output.
package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"sort"
	"sync"
	"time"

	herrors "github.com/silver2dream/makerkit/internal/errors"
	"github.com/silver2dream/makerkit/internal/logger"
)

const (
	// DefaultTimeout applies when neither Spec nor Runner set one.
	DefaultTimeout = 60 * time.Second

	// waitDelay bounds how long Wait lingers on I/O after the child is killed
	waitDelay = 2 * time.Second
)

// Spec describes one subprocess run.
type Spec struct {
	Command      string
	Dir          string
	Timeout      time.Duration
	Inputs       []string
	Env          map[string]string
	AllowFailure bool
	UsePTY       bool
}

// Result is the outcome of a finished subprocess.
type Result struct {
	Command  string
	Dir      string
	Stdout   string
	Stderr   string
	ExitCode int
	Success  bool
	Duration time.Duration
	// PTY is true when the run actually used a terminal; Stderr is then empty.
	PTY bool
}

// Output returns stdout followed by stderr.
func (r *Result) Output() string {
	if r.Stderr == "" {
		return r.Stdout
	}
	return r.Stdout + r.Stderr
}

// Runner executes Specs. The zero value is usable.
type Runner struct {
	// DefaultTimeout is used for Specs without a timeout.
	DefaultTimeout time.Duration
	// Transcript receives a copy of every run's output when set.
	Transcript io.Writer
}

// NewRunner returns a Runner with the package default timeout.
func NewRunner(transcript io.Writer) *Runner {
	return &Runner{DefaultTimeout: DefaultTimeout, Transcript: transcript}
}

type sectioner interface {
	Section(title string)
}

// Run executes spec.Command through the platform shell and waits for it.
// A non-zero exit yields ProcessFailedError unless AllowFailure is set; an
// expired timeout yields ProcessTimeoutError with the output captured so far.
func (r *Runner) Run(ctx context.Context, spec Spec) (*Result, error) {
	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = r.DefaultTimeout
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	log := logger.Component("process")
	log.Debug("running", "command", spec.Command, "dir", spec.Dir, "timeout", timeout, "inputs", len(spec.Inputs))

	if s, ok := r.Transcript.(sectioner); ok {
		s.Section(spec.Command)
	}

	var (
		out run
		err error
	)
	if spec.UsePTY {
		out, err = r.runPTY(runCtx, spec)
		if errors.Is(err, errNoPTY) {
			log.Debug("pty unavailable, using pipes", "command", spec.Command)
			out, err = r.runPipes(runCtx, spec)
		}
	} else {
		out, err = r.runPipes(runCtx, spec)
	}
	if err != nil {
		return nil, err
	}
	res, waitErr := out.res, out.waitErr

	if waitErr != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		log.Warn("timed out", "command", spec.Command, "timeout", timeout)
		return res, &herrors.ProcessTimeoutError{
			Command: spec.Command,
			Timeout: timeout,
			Stdout:  res.Stdout,
			Stderr:  res.Stderr,
		}
	}
	if waitErr != nil && ctx.Err() != nil {
		return res, ctx.Err()
	}

	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			return res, fmt.Errorf("wait for %q: %w", spec.Command, waitErr)
		}
		res.ExitCode = exitErr.ExitCode()
	}
	res.Success = res.ExitCode == 0

	if !res.Success && !spec.AllowFailure {
		return res, &herrors.ProcessFailedError{
			Command:  spec.Command,
			Dir:      spec.Dir,
			ExitCode: res.ExitCode,
			Stdout:   res.Stdout,
			Stderr:   res.Stderr,
			Cause:    waitErr,
		}
	}

	log.Debug("finished", "command", spec.Command, "exit", res.ExitCode, "duration", res.Duration)
	return res, nil
}

// run pairs a collected result with the error Wait returned
type run struct {
	res     *Result
	waitErr error
}

func (r *Runner) runPipes(ctx context.Context, spec Spec) (run, error) {
	cmd := shellCommand(ctx, spec.Command)
	cmd.Dir = spec.Dir
	cmd.Env = buildEnv(spec.Env)
	cmd.WaitDelay = waitDelay
	setProcGroup(cmd)

	var stdout, stderr syncBuffer
	cmd.Stdout = r.tee(&stdout)
	cmd.Stderr = r.tee(&stderr)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return run{}, fmt.Errorf("stdin pipe for %q: %w", spec.Command, err)
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return run{}, fmt.Errorf("start %q: %w", spec.Command, err)
	}

	feeder := NewFeeder(spec.Inputs)
	feeder.Start(stdin, nil)

	waitErr := cmd.Wait()

	return run{res: &Result{
		Command:  spec.Command,
		Dir:      spec.Dir,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}, waitErr: waitErr}, nil
}

func (r *Runner) runPTY(ctx context.Context, spec Spec) (run, error) {
	cmd := shellCommand(ctx, spec.Command)
	cmd.Dir = spec.Dir
	cmd.Env = buildEnv(spec.Env)
	cmd.WaitDelay = waitDelay
	killGroupOnCancel(cmd)

	start := time.Now()
	p := newPTYExecutor(cmd)
	if err := p.Start(); err != nil {
		if cmd.Process == nil {
			return run{}, errNoPTY
		}
		return run{}, fmt.Errorf("start %q: %w", spec.Command, err)
	}
	defer p.Close()

	var out syncBuffer
	copied := make(chan struct{})
	go func() {
		defer close(copied)
		// Reads end with EIO once the child side is gone
		io.Copy(r.tee(&out), p.Terminal())
	}()

	feeder := NewFeeder(spec.Inputs)
	feeder.Start(p.Terminal(), p.SendEOF)

	waitErr := cmd.Wait()
	select {
	case <-copied:
	case <-time.After(waitDelay):
	}

	return run{res: &Result{
		Command:  spec.Command,
		Dir:      spec.Dir,
		Stdout:   out.String(),
		Duration: time.Since(start),
		PTY:      true,
	}, waitErr: waitErr}, nil
}

func (r *Runner) tee(w io.Writer) io.Writer {
	if r.Transcript == nil {
		return w
	}
	return io.MultiWriter(w, r.Transcript)
}

// shellCommand builds the command: sh -c on Unix, cmd /c on Windows
func shellCommand(ctx context.Context, line string) *exec.Cmd {
	if runtime.GOOS == "windows" {
		return exec.CommandContext(ctx, "cmd", "/c", line)
	}
	return exec.CommandContext(ctx, "sh", "-c", line)
}

// buildEnv layers NO_COLOR and the overrides on top of the parent environment
func buildEnv(overrides map[string]string) []string {
	env := append(os.Environ(), "NO_COLOR=1")

	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+overrides[k])
	}
	return env
}

// syncBuffer is a bytes.Buffer safe for the exec copy goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
