package buildio

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
)

// The process-wide interrupt flag. Blocking operations (Handle.Wait,
// Engine.Download) check it cooperatively; raising it wakes every waiter.
var interrupt = struct {
	mu        sync.Mutex
	raised    bool
	triggered chan struct{}
}{triggered: make(chan struct{})}

// TriggerInterrupt raises the process-wide interrupt flag
func TriggerInterrupt() {
	interrupt.mu.Lock()
	defer interrupt.mu.Unlock()
	if !interrupt.raised {
		interrupt.raised = true
		close(interrupt.triggered)
	}
}

// ResetInterrupt lowers the process-wide interrupt flag
func ResetInterrupt() {
	interrupt.mu.Lock()
	defer interrupt.mu.Unlock()
	if interrupt.raised {
		interrupt.raised = false
		interrupt.triggered = make(chan struct{})
	}
}

// interrupted returns a channel closed once the flag is raised
func interrupted() <-chan struct{} {
	interrupt.mu.Lock()
	defer interrupt.mu.Unlock()
	return interrupt.triggered
}

// CheckInterrupt returns ErrInterrupted if the flag is raised or ctx is done
func CheckInterrupt(ctx context.Context) error {
	select {
	case <-interrupted():
		return ErrInterrupted
	default:
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrInterrupted, err)
	}
	return nil
}

// NotifyInterrupt raises the interrupt flag when one of sigs (default
// os.Interrupt) is delivered. The returned function stops the relay.
func NotifyInterrupt(sigs ...os.Signal) (stop func()) {
	if len(sigs) == 0 {
		sigs = []os.Signal{os.Interrupt}
	}
	ch := make(chan os.Signal, 1)
	done := make(chan struct{})
	signal.Notify(ch, sigs...)
	go func() {
		for {
			select {
			case <-ch:
				Logger().Debug("interrupt received")
				TriggerInterrupt()
			case <-done:
				return
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			signal.Stop(ch)
			close(done)
		})
	}
}
