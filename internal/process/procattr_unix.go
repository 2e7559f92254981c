//go:build !windows

package process

import (
	"os/exec"
	"syscall"
)

// setProcGroup puts the child in its own process group so the entire child
// tree can be killed when the context expires.
func setProcGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	killGroupOnCancel(cmd)
}

// killGroupOnCancel kills the child's process group on cancel. PTY children
// start a new session, which already makes them group leaders.
func killGroupOnCancel(cmd *exec.Cmd) {
	cmd.Cancel = func() error {
		if cmd.Process != nil {
			// Negative PID targets the group
			return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		}
		return nil
	}
}
