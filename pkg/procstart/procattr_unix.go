//go:build !windows

package procstart

import (
	"os/exec"
	"syscall"
)

// setProcAttr starts the child in its own session so a Ctrl+C aimed at the
// launcher does not reach it.
func setProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}
