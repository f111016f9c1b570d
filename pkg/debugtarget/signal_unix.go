//go:build !windows

package debugtarget

import (
	"os"
	"syscall"
)

var terminateSignal os.Signal = syscall.SIGTERM
