//go:build windows

package procstart

import (
	"os/exec"
	"syscall"
)

// setProcAttr starts the child in a new process group so console Ctrl+C
// events aimed at the launcher do not reach it.
func setProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP,
	}
}
