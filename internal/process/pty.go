package process

import (
	"errors"
	"io"
	"os/exec"
)

var errNoPTY = errors.New("pseudo-terminal not available")

// ptyExecutor runs a command attached to a pseudo-terminal. Reads of the
// terminal carry stdout and stderr merged; writes reach the child's stdin.
type ptyExecutor struct {
	cmd *exec.Cmd
	pty io.ReadWriteCloser
}

func newPTYExecutor(cmd *exec.Cmd) *ptyExecutor {
	return &ptyExecutor{cmd: cmd}
}

// Start begins execution of the command.
// Platform-specific implementation in pty_unix.go and pty_windows.go
func (p *ptyExecutor) Start() error {
	return p.startPlatform()
}

// Terminal returns the master side of the terminal.
func (p *ptyExecutor) Terminal() io.ReadWriter {
	return p.pty
}

// SendEOF signals end of input the way a user pressing Ctrl-D would.
func (p *ptyExecutor) SendEOF() error {
	_, err := p.pty.Write([]byte{0x04})
	return err
}

// Close closes the terminal
func (p *ptyExecutor) Close() error {
	if p.pty != nil {
		return p.pty.Close()
	}
	return nil
}
