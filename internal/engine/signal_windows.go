//go:build windows

package engine

import "os"

// Windows has no job-control signals; pause is reported as unsupported.
var (
	suspendSignal os.Signal = os.Interrupt
	resumeSignal  os.Signal = os.Interrupt
)

const signalPauseSupported = false
