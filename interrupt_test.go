//go:build linux || darwin || freebsd

package buildio

import (
	"context"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckInterrupt(t *testing.T) {
	defer ResetInterrupt()

	require.NoError(t, CheckInterrupt(context.Background()))

	TriggerInterrupt()
	TriggerInterrupt()
	assert.ErrorIs(t, CheckInterrupt(context.Background()), ErrInterrupted)

	ResetInterrupt()
	require.NoError(t, CheckInterrupt(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := CheckInterrupt(ctx)
	assert.ErrorIs(t, err, ErrInterrupted)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestInterruptWakesWaiters(t *testing.T) {
	defer ResetInterrupt()

	ch := interrupted()
	go TriggerInterrupt()

	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("interrupt did not wake waiter")
	}
}

func TestNotifyInterrupt(t *testing.T) {
	defer ResetInterrupt()

	stop := NotifyInterrupt(syscall.SIGUSR1)
	defer stop()

	ch := interrupted()
	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGUSR1))

	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("signal did not raise the interrupt flag")
	}
	stop()
}
