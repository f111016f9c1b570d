//go:build windows

package debugtarget

import "os"

// Interrupt is not deliverable to other processes on windows; the failed
// signal makes SyncStopping kill immediately.
var terminateSignal os.Signal = os.Interrupt
