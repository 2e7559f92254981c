//go:build windows

package process

// startPlatform reports that no PTY exists so the caller uses plain pipes.
func (p *ptyExecutor) startPlatform() error {
	return errNoPTY
}
