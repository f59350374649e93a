//go:build linux || darwin || freebsd

package buildio

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusToString(t *testing.T) {
	tests := []struct {
		name   string
		status WaitStatus
		want   string
		ok     bool
	}{
		{name: "success", status: WaitStatus(0), want: "succeeded", ok: true},
		{name: "exit code", status: WaitStatus(3 << 8), want: "failed with exit code 3"},
		{name: "killed", status: WaitStatus(9), want: "failed due to signal 9 (killed)"},
		{name: "stopped", status: WaitStatus(0x7f | 19<<8), want: "died abnormally"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusToString(tt.status))
			assert.Equal(t, tt.ok, StatusOK(tt.status))
		})
	}
}

func TestExecError(t *testing.T) {
	err := &ExecError{Program: "cc", Status: WaitStatus(1 << 8)}
	assert.Equal(t, "program 'cc' failed with exit code 1", err.Error())
	assert.Equal(t, 1, err.ExitCode())

	err = &ExecError{Program: "cc", Status: WaitStatus(9)}
	assert.Equal(t, "program 'cc' failed due to signal 9 (killed)", err.Error())
	assert.Equal(t, -1, err.ExitCode())
}
