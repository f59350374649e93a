//go:build darwin || freebsd

package buildio

import (
	"syscall"
)

// There is no parent death signal outside Linux; dieWithParent is ignored.
func sysProcAttr(_ uintptr, _ bool) *syscall.SysProcAttr {
	return &syscall.SysProcAttr{}
}
