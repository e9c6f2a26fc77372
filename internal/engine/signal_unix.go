//go:build unix

package engine

import (
	"os"
	"syscall"
)

// suspendSignal stops the process without killing it; resumeSignal
// continues it. ffmpeg tolerates both mid-encode.
var (
	suspendSignal os.Signal = syscall.SIGSTOP
	resumeSignal  os.Signal = syscall.SIGCONT
)

const signalPauseSupported = true
