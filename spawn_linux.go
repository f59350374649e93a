//go:build linux

package buildio

import (
	"syscall"
)

func sysProcAttr(cloneFlags uintptr, dieWithParent bool) *syscall.SysProcAttr {
	sys := &syscall.SysProcAttr{Cloneflags: cloneFlags}
	if dieWithParent {
		sys.Pdeathsig = syscall.SIGKILL
	}
	return sys
}
