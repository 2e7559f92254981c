//go:build !windows

package process

import (
	"github.com/creack/pty"
)

// startPlatform starts the command with a PTY on Unix systems
func (p *ptyExecutor) startPlatform() error {
	ptmx, err := pty.Start(p.cmd)
	if err != nil {
		return err
	}
	p.pty = ptmx
	return nil
}
