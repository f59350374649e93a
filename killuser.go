//go:build linux || darwin || freebsd

package buildio

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/axondata/go-buildio/internal/platform"
)

const killUserBody = "buildio-kill-user"

func init() {
	RegisterBody(killUserBody, killAllVisible)
}

// killAllVisible sends SIGKILL to every process the caller may signal until
// none are left. Running as the target uid, that is every process of the
// uid.
func killAllVisible() error {
	for {
		err := unix.Kill(-1, unix.SIGKILL)
		switch {
		case err == nil:
		case errors.Is(err, unix.EINTR):
		case errors.Is(err, unix.ESRCH), errors.Is(err, unix.EPERM):
			return nil
		default:
			return fmt.Errorf("cannot kill processes: %w", err)
		}
	}
}

// KillUser kills every process running under uid. It refuses to act on
// uid 0.
func KillUser(ctx context.Context, uid uint32) error {
	if uid == 0 {
		return ErrKillRoot
	}

	Logger().Debug("killing all processes running under uid", "uid", uid)

	h, err := Spawn(killUserBody, SpawnOptions{
		UID:         &uid,
		ErrorPrefix: fmt.Sprintf("cannot kill processes for uid %d: ", uid),
		Ownership:   OwnershipRaw,
	})
	if err != nil {
		return err
	}
	defer h.Close()

	status, err := h.Wait(ctx)
	if err != nil {
		return err
	}
	if killedItself(status) {
		return nil
	}
	if !StatusOK(status) {
		return fmt.Errorf("cannot kill processes for uid %d: %s", uid, StatusToString(status))
	}
	return nil
}

// killedItself reports a helper that was caught by its own kill(-1), which
// happens where kill(-1) includes the caller.
func killedItself(status WaitStatus) bool {
	return platform.KillAllIncludesCaller && status.Signaled() && status.Signal() == unix.SIGKILL
}
