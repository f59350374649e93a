//go:build linux || darwin || freebsd

package buildio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"syscall"
)

// RunOptions describes one launch of an external program. The zero value of
// every field means "inherit from the parent" or "off".
type RunOptions struct {
	// Program is the program to execute, also used as argv[0]
	Program string
	// Args are the arguments after argv[0]
	Args []string
	// SearchPath resolves Program through PATH instead of using it as a path
	SearchPath bool
	// CaptureStdout connects the child's stdout to a pipe readable through
	// RunningProgram.Stdout
	CaptureStdout bool
	// MergeStderrToStdout sends the child's stderr wherever stdout goes
	MergeStderrToStdout bool
	// Chdir is the child's working directory
	Chdir string
	// UID and GID switch credentials in the child. Setting GID also drops
	// every supplementary group.
	UID *uint32
	GID *uint32
	// Environment replaces the child environment entirely. Nil inherits.
	Environment map[string]string
	// SeparateProcessGroup puts the child in its own process group; Kill
	// then signals the whole group
	SeparateProcessGroup bool
	// DieWithParent kills the child when the parent dies (Linux only)
	DieWithParent bool
	// IsInteractive pauses the process-wide logger while the child runs
	IsInteractive bool
	// ErrorPrefix is prepended to launch failures
	ErrorPrefix string
	// Stdin defaults to the parent's stdin
	Stdin *os.File
	// KillSignal is the signal used by Kill. Defaults to SIGKILL.
	KillSignal syscall.Signal
}

// RunningProgram is an external program started by RunExternalProgram. It
// must be finalized with Wait, Reap, Kill or Finish before Close.
type RunningProgram struct {
	// Program is the program name as given in RunOptions
	Program string

	handle *Handle
	stdout *FileSource
	resume func()
}

// Pid returns the child pid, or 0 once it has been reaped
func (p *RunningProgram) Pid() int {
	return p.handle.Pid()
}

// Stdout returns the captured output stream, or nil if output was not
// captured
func (p *RunningProgram) Stdout() Source {
	if p.stdout == nil {
		return nil
	}
	return p.stdout
}

// Reap waits for the program to exit and returns its raw status. An
// interrupted wait returns ErrInterrupted and leaves the program running.
func (p *RunningProgram) Reap(ctx context.Context) (WaitStatus, error) {
	status, err := p.handle.Wait(ctx)
	if err != nil {
		return 0, err
	}
	p.resume()
	Logger().Debug("program exited", "program", p.Program, "status", StatusToString(status))
	return status, nil
}

// Wait waits for the program to exit and returns an *ExecError if it did
// not succeed.
func (p *RunningProgram) Wait(ctx context.Context) error {
	status, err := p.Reap(ctx)
	if err != nil {
		return err
	}
	if !StatusOK(status) {
		return &ExecError{Program: p.Program, Status: status}
	}
	return nil
}

// Kill terminates the program according to its termination policy and
// reaps it
func (p *RunningProgram) Kill() (WaitStatus, error) {
	defer p.resume()
	return p.handle.Kill()
}

// Finish finalizes the program at the end of the caller's scope:
//
//	p, err := RunExternalProgram(ctx, opts)
//	if err != nil {
//		return err
//	}
//	defer p.Finish(&err)
//
// If a panic is unwinding or *errp holds an error, the program is killed
// instead of waited for; a panic is then resumed. Otherwise Finish waits and
// stores a non-success into *errp. An interrupted wait kills the program.
func (p *RunningProgram) Finish(errp *error) {
	if r := recover(); r != nil {
		p.killDuringUnwind()
		panic(r)
	}
	if !p.handle.Live() {
		return
	}
	if *errp != nil {
		p.killDuringUnwind()
		return
	}
	err := p.Wait(context.Background())
	if errors.Is(err, ErrInterrupted) {
		p.killDuringUnwind()
	}
	*errp = err
}

func (p *RunningProgram) killDuringUnwind() {
	if !p.handle.Live() {
		return
	}
	if _, err := p.Kill(); err != nil {
		Logger().Warn("killing program", "program", p.Program, "error", err)
		return
	}
	Logger().Debug("killed program during error handling", "program", p.Program)
}

// Close releases the output pipe. Closing a program that was never waited
// for is a programming error and panics.
func (p *RunningProgram) Close() error {
	var err error
	if p.stdout != nil {
		err = p.stdout.Close()
	}
	if cerr := p.handle.Close(); cerr != nil {
		err = cerr
	}
	return err
}

// RunExternalProgram starts an external program and returns without waiting
// for it. A failure to execute the program is returned here, not as an exit
// status.
func RunExternalProgram(ctx context.Context, opts RunOptions) (*RunningProgram, error) {
	if err := CheckInterrupt(ctx); err != nil {
		return nil, err
	}

	path := opts.Program
	if opts.SearchPath {
		resolved, err := exec.LookPath(opts.Program)
		if err != nil {
			return nil, launchError(opts, err)
		}
		path = resolved
	}

	var readSide, writeSide *os.File
	if opts.CaptureStdout {
		var err error
		readSide, writeSide, err = os.Pipe()
		if err != nil {
			return nil, &OpError{Op: OpPipe, Path: opts.Program, Err: err}
		}
	}

	stdin := opts.Stdin
	if stdin == nil {
		stdin = os.Stdin
	}
	stdout := os.Stdout
	if writeSide != nil {
		stdout = writeSide
	}
	stderr := os.Stderr
	if opts.MergeStderrToStdout {
		stderr = stdout
	}

	sys := sysProcAttr(0, opts.DieWithParent)
	sys.Setpgid = opts.SeparateProcessGroup
	sys.Credential = credential(opts.UID, opts.GID)

	resume := func() {}
	if opts.IsInteractive {
		resume = PauseLogger()
	}

	argv := append([]string{opts.Program}, opts.Args...)
	pid, err := syscall.ForkExec(path, argv, &syscall.ProcAttr{
		Dir:   opts.Chdir,
		Env:   environment(opts.Environment),
		Files: []uintptr{stdin.Fd(), stdout.Fd(), stderr.Fd()},
		Sys:   sys,
	})
	if writeSide != nil {
		_ = writeSide.Close()
	}
	if err != nil {
		resume()
		if readSide != nil {
			_ = readSide.Close()
		}
		return nil, launchError(opts, err)
	}

	processesStarted.WithLabelValues("exec").Inc()
	Logger().Debug("started program", "program", opts.Program, "pid", pid)

	policy := TerminationPolicy{Target: TargetProcess, Signal: opts.KillSignal}
	if opts.SeparateProcessGroup {
		policy.Target = TargetGroup
	}
	p := &RunningProgram{
		Program: opts.Program,
		handle:  NewHandle(pid, OwnershipSupervised, policy),
		resume:  resume,
	}
	if readSide != nil {
		p.stdout = NewFileSource(readSide)
	}
	return p, nil
}

func launchError(opts RunOptions, err error) error {
	opErr := &OpError{Op: OpExec, Path: opts.Program, Err: err}
	if opts.ErrorPrefix == "" {
		return opErr
	}
	return fmt.Errorf("%s%w", opts.ErrorPrefix, opErr)
}

// environment renders a replacement environment, or the parent's when env
// is nil
func environment(env map[string]string) []string {
	if env == nil {
		return os.Environ()
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}

// RunAndCapture runs a program to completion and returns its raw status and
// everything it wrote to stdout. An unsuccessful exit is reported through
// the status, not as an error.
func RunAndCapture(ctx context.Context, opts RunOptions) (WaitStatus, []byte, error) {
	opts.CaptureStdout = true

	p, err := RunExternalProgram(ctx, opts)
	if err != nil {
		return 0, nil, err
	}
	defer p.stdout.Close()

	out, err := Drain(p.Stdout())
	if err != nil {
		p.killDuringUnwind()
		return 0, out, err
	}

	status, err := p.Reap(ctx)
	if err != nil {
		p.killDuringUnwind()
		return 0, out, err
	}
	return status, out, nil
}

// RunProgram runs a program to completion and returns its stdout. An
// unsuccessful exit is returned as an *ExecError.
func RunProgram(ctx context.Context, opts RunOptions) (string, error) {
	status, out, err := RunAndCapture(ctx, opts)
	if err != nil {
		return string(out), err
	}
	if !StatusOK(status) {
		return string(out), &ExecError{Program: opts.Program, Status: status}
	}
	return string(out), nil
}
