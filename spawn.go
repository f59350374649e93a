//go:build linux || darwin || freebsd

package buildio

import (
	"fmt"
	"os"
	"syscall"

	"github.com/docker/docker/pkg/reexec"

	"github.com/axondata/go-buildio/internal/platform"
)

// Environment variables that carry spawn options into a re-executed body.
// They are removed from the environment before the body runs.
const (
	envErrorPrefix = "_BUILDIO_ERROR_PREFIX"
)

// RegisterBody registers fn as a child body under name. The body runs in a
// re-executed copy of the current binary started by Spawn. Bodies must be
// registered from init functions so they exist in both parent and child.
//
// A body that returns an error or panics prints the spawn's error prefix
// followed by the message to stderr and exits with status 1. A body that
// returns nil exits with status 0. Control never returns to main.
func RegisterBody(name string, fn func() error) {
	reexec.Register(name, func() {
		prefix := os.Getenv(envErrorPrefix)
		_ = os.Unsetenv(envErrorPrefix)

		if err := runBody(fn); err != nil {
			fmt.Fprintf(os.Stderr, "%s%v\n", prefix, err)
			os.Exit(1)
		}
		os.Exit(0)
	})
}

func runBody(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

// InitChild runs the registered body if the current process was started by
// Spawn, and never returns in that case. It returns false in an ordinary
// process. Call it first thing in main, and in TestMain for tests that spawn.
func InitChild() bool {
	return reexec.Init()
}

// SpawnOptions configures Spawn
type SpawnOptions struct {
	// CloneFlags are extra clone(2) flags for the child. Linux only.
	// CLONE_VM is always rejected.
	CloneFlags uintptr
	// DieWithParent delivers SIGKILL to the child when the parent dies.
	// Linux only; ignored elsewhere.
	DieWithParent bool
	// ErrorPrefix is printed before the error message when the body fails
	ErrorPrefix string
	// SeparateProcessGroup puts the child in its own process group, and makes
	// Kill signal the whole group
	SeparateProcessGroup bool
	// Env replaces the child environment. Nil inherits the parent's.
	Env []string
	// Dir is the child's working directory. Empty inherits the parent's.
	Dir string
	// Stdout and Stderr default to the parent's
	Stdout *os.File
	Stderr *os.File
	// Ownership is the scope-exit policy of the returned handle
	Ownership Ownership
	// UID and GID switch credentials before the body runs
	UID *uint32
	GID *uint32
}

// Spawn starts the body registered under name in a new child process and
// returns the handle that owns it.
func Spawn(name string, opts SpawnOptions) (*Handle, error) {
	if opts.CloneFlags&platform.CloneVM != 0 {
		return nil, ErrCloneFlagsIncompatible
	}
	if opts.CloneFlags != 0 && !platform.CloneSupported {
		return nil, ErrCloneUnsupported
	}

	sys := sysProcAttr(opts.CloneFlags, opts.DieWithParent)
	sys.Setpgid = opts.SeparateProcessGroup
	sys.Credential = credential(opts.UID, opts.GID)

	env := opts.Env
	if env == nil {
		env = os.Environ()
	}
	env = append(env[:len(env):len(env)], envErrorPrefix+"="+opts.ErrorPrefix)

	stdout, stderr := opts.Stdout, opts.Stderr
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}

	pid, err := syscall.ForkExec(reexec.Self(), []string{name}, &syscall.ProcAttr{
		Dir:   opts.Dir,
		Env:   env,
		Files: []uintptr{os.Stdin.Fd(), stdout.Fd(), stderr.Fd()},
		Sys:   sys,
	})
	if err != nil {
		return nil, &OpError{Op: OpSpawn, Path: name, Err: err}
	}

	processesStarted.WithLabelValues("body").Inc()
	Logger().Debug("spawned child", "body", name, "pid", pid)

	policy := DefaultTerminationPolicy
	if opts.SeparateProcessGroup {
		policy.Target = TargetGroup
	}
	return NewHandle(pid, opts.Ownership, policy), nil
}

// credential builds the child credential. setgroups is only applied when a
// gid is being dropped, and then clears every supplementary group.
func credential(uid, gid *uint32) *syscall.Credential {
	if uid == nil && gid == nil {
		return nil
	}
	cred := &syscall.Credential{
		Uid:         uint32(os.Getuid()),
		Gid:         uint32(os.Getgid()),
		Groups:      []uint32{},
		NoSetGroups: gid == nil,
	}
	if uid != nil {
		cred.Uid = *uid
	}
	if gid != nil {
		cred.Gid = *gid
	}
	return cred
}
