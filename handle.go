//go:build linux || darwin || freebsd

package buildio

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/axondata/go-buildio/internal/platform"
)

// Ownership selects what happens when a Handle is closed while its process
// is still live.
type Ownership int

const (
	// OwnershipRaw handles signal and reap a live process on Close. Used for
	// fire-and-forget helpers.
	OwnershipRaw Ownership = iota
	// OwnershipSupervised handles must be finalized by Wait, Kill or Release
	// before Close; closing a live one panics.
	OwnershipSupervised
)

// String returns the string representation of an Ownership
func (o Ownership) String() string {
	switch o {
	case OwnershipRaw:
		return "raw"
	case OwnershipSupervised:
		return "supervised"
	default:
		return "unknown"
	}
}

// SignalTarget selects who receives the termination signal
type SignalTarget int

const (
	// TargetProcess signals the child alone
	TargetProcess SignalTarget = iota
	// TargetGroup signals every member of the child's process group
	TargetGroup
)

// TerminationPolicy is how a Handle terminates its process
type TerminationPolicy struct {
	// Target is the child or its whole process group
	Target SignalTarget
	// Signal is the signal to deliver
	Signal syscall.Signal
}

// DefaultTerminationPolicy kills the child alone with SIGKILL
var DefaultTerminationPolicy = TerminationPolicy{Target: TargetProcess, Signal: DefaultKillSignal}

// Handle owns one child process identity until it is finalized by Wait,
// Kill or Release. A Handle is not safe for concurrent use.
type Handle struct {
	pid       int
	policy    TerminationPolicy
	ownership Ownership

	// PollMin is the first interval between exit status polls in Wait
	PollMin time.Duration
	// PollMax caps the interval between exit status polls in Wait
	PollMax time.Duration
}

// NewHandle takes ownership of the child pid
func NewHandle(pid int, ownership Ownership, policy TerminationPolicy) *Handle {
	if policy.Signal == 0 {
		policy.Signal = DefaultKillSignal
	}
	return &Handle{
		pid:       pid,
		policy:    policy,
		ownership: ownership,
		PollMin:   DefaultWaitPollMin,
		PollMax:   DefaultWaitPollMax,
	}
}

// Pid returns the child pid, or 0 once the handle is finalized
func (h *Handle) Pid() int {
	return h.pid
}

// Live reports whether the handle still owns a process
func (h *Handle) Live() bool {
	return h.pid != 0
}

// Ownership returns the scope-exit policy chosen at construction
func (h *Handle) Ownership() Ownership {
	return h.ownership
}

// Policy returns the termination policy
func (h *Handle) Policy() TerminationPolicy {
	return h.policy
}

// SetTerminationPolicy changes how Kill terminates the process
func (h *Handle) SetTerminationPolicy(policy TerminationPolicy) {
	if policy.Signal == 0 {
		policy.Signal = DefaultKillSignal
	}
	h.policy = policy
}

func (h *Handle) mustBeLive(op string) {
	if h.pid == 0 {
		panic(fmt.Sprintf("buildio: %s on a finalized process handle", op))
	}
}

func (h *Handle) pidString() string {
	return strconv.Itoa(h.pid)
}

// Kill sends the termination signal to the process, or to its whole process
// group, and then reaps it. A failure to deliver the signal is logged; the
// process is reaped regardless.
func (h *Handle) Kill() (WaitStatus, error) {
	h.mustBeLive("kill")

	Logger().Debug("killing process", "pid", h.pid, "group", h.policy.Target == TargetGroup)

	target := h.pid
	if h.policy.Target == TargetGroup {
		target = -h.pid
	}
	if err := unix.Kill(target, h.policy.Signal); err != nil && !h.zombieGroup(err) {
		Logger().Error("killing process", "pid", h.pid, "error", &OpError{Op: OpKill, Path: h.pidString(), Err: err})
	}

	return h.reap()
}

// zombieGroup reports the BSD/Darwin case where signalling a process group
// fails with EPERM because every member is already a zombie. The leader
// still answers kill(pid, 0) in that state.
func (h *Handle) zombieGroup(err error) bool {
	if !platform.GroupKillZombieEPERM || h.policy.Target != TargetGroup {
		return false
	}
	return errors.Is(err, unix.EPERM) && unix.Kill(h.pid, 0) == nil
}

// reap blocks in wait4 until the process exits, retrying interrupted calls.
func (h *Handle) reap() (WaitStatus, error) {
	for {
		var status unix.WaitStatus
		wpid, err := unix.Wait4(h.pid, &status, 0, nil)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return 0, &OpError{Op: OpWait, Path: h.pidString(), Err: err}
		}
		if wpid == h.pid {
			h.pid = 0
			return status, nil
		}
	}
}

// Wait blocks until the process exits and returns its raw status.
//
// Interrupted system calls are retried. Between polls the process-wide
// interrupt flag and ctx are checked; if either fires Wait returns
// ErrInterrupted and the handle stays live, so the caller can Kill it. Any
// other OS error is returned as an *OpError.
func (h *Handle) Wait(ctx context.Context) (WaitStatus, error) {
	h.mustBeLive("wait")

	backoff := h.PollMin
	if backoff <= 0 {
		backoff = DefaultWaitPollMin
	}
	for {
		var status unix.WaitStatus
		wpid, err := unix.Wait4(h.pid, &status, unix.WNOHANG, nil)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return 0, &OpError{Op: OpWait, Path: h.pidString(), Err: err}
		}
		if wpid == h.pid {
			h.pid = 0
			return status, nil
		}

		if err := CheckInterrupt(ctx); err != nil {
			return 0, err
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return 0, fmt.Errorf("%w: %w", ErrInterrupted, ctx.Err())
		case <-interrupted():
			timer.Stop()
			return 0, ErrInterrupted
		case <-timer.C:
		}

		backoff *= 2
		if h.PollMax > 0 && backoff > h.PollMax {
			backoff = h.PollMax
		}
	}
}

// Release finalizes the handle without signalling or waiting and returns
// the pid. The caller becomes responsible for reaping the process.
func (h *Handle) Release() int {
	pid := h.pid
	h.pid = 0
	return pid
}

// Close applies the ownership policy to a handle at the end of its scope.
// A finalized handle is left alone. A live raw handle is killed and reaped.
// A live supervised handle is a programming error and panics.
func (h *Handle) Close() error {
	if h.pid == 0 {
		return nil
	}
	switch h.ownership {
	case OwnershipSupervised:
		panic(fmt.Sprintf("buildio: supervised process %d closed before it was waited for", h.pid))
	default:
		_, err := h.Kill()
		return err
	}
}
