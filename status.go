//go:build linux || darwin || freebsd

package buildio

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// WaitStatus is the raw status reported by wait4 for a child process
type WaitStatus = unix.WaitStatus

// Exit status strings
const (
	statusSucceededStr = "succeeded"
	statusExitCodeFmt  = "failed with exit code %d"
	statusSignalFmt    = "failed due to signal %d (%s)"
	statusAbnormalStr  = "died abnormally"
)

// StatusToString renders a wait status the way every process result is
// reported to users.
func StatusToString(status WaitStatus) string {
	switch {
	case status.Exited() && status.ExitStatus() == 0:
		return statusSucceededStr
	case status.Exited():
		return fmt.Sprintf(statusExitCodeFmt, status.ExitStatus())
	case status.Signaled():
		sig := status.Signal()
		return fmt.Sprintf(statusSignalFmt, int(sig), sig.String())
	default:
		return statusAbnormalStr
	}
}

// StatusOK reports whether the process exited normally with status 0
func StatusOK(status WaitStatus) bool {
	return status.Exited() && status.ExitStatus() == 0
}

// ExecError reports a program that ran but did not succeed
type ExecError struct {
	// Program is the program name as given by the caller
	Program string
	// Status is the raw wait status
	Status WaitStatus
}

// Error returns a formatted error message
func (e *ExecError) Error() string {
	return fmt.Sprintf("program '%s' %s", e.Program, StatusToString(e.Status))
}

// ExitCode returns the exit code, or -1 if the program did not exit normally
func (e *ExecError) ExitCode() int {
	if !e.Status.Exited() {
		return -1
	}
	return e.Status.ExitStatus()
}
