// Copyright (c) 2022 Whist Technologies, Inc.

// Package executable runs the external tools (gcloud, ssh, vncviewer) that
// the drivers are built on. Each invocation resolves success or failure from
// the exit code of the process, and failures are reported as
// *types.CommandFailedError so that callers can inspect the exit status.
package executable // import "github.com/whisthq/whist/backend/cloud-desktop/executable"

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"

	"github.com/whisthq/whist/backend/cloud-desktop/types"
	"go.uber.org/zap"
)

// Options decides what happens to the output of a process.
type Options struct {
	// CaptureStdout collects stdout into Result.Stdout instead of streaming
	// it to the caller's stdout.
	CaptureStdout bool
	// CaptureStderr collects stderr into Result.Stderr instead of streaming
	// it to the caller's stderr.
	CaptureStderr bool
	// Echo keeps streaming captured output to the terminal as well.
	Echo bool
}

// Result holds the captured output of a finished process. Output that was
// not captured is left empty.
type Result struct {
	Stdout  string
	Stderr  string
	Process *os.Process
}

// Runner is implemented by Executable. Drivers depend on it so that tests
// can replace the external tool with a function.
type Runner interface {
	Execute(ctx context.Context, args []string, opts Options) (*Result, error)
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, args []string, opts Options) (*Result, error)

// Execute calls f(ctx, args, opts).
func (f RunnerFunc) Execute(ctx context.Context, args []string, opts Options) (*Result, error) {
	return f(ctx, args, opts)
}

// Executable is a command that can be invoked with different arguments.
type Executable struct {
	command string
	log     *zap.SugaredLogger

	// Stdout and Stderr receive the output that is not captured. They
	// default to the stdout and stderr of this process.
	Stdout io.Writer
	Stderr io.Writer
}

// New returns an Executable for the given command path.
func New(command string, log *zap.SugaredLogger) *Executable {
	return &Executable{
		command: command,
		log:     log,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
	}
}

// Command returns the path of the executable.
func (e *Executable) Command() string {
	return e.command
}

// Execute runs the command to completion.
func (e *Executable) Execute(ctx context.Context, args []string, opts Options) (*Result, error) {
	cmd, stdout, stderr := e.prepare(ctx, args, opts)

	err := cmd.Run()
	result := &Result{
		Stdout:  stdout.String(),
		Stderr:  stderr.String(),
		Process: cmd.Process,
	}
	if err != nil {
		return result, e.commandError(args, err)
	}

	return result, nil
}

// Process is a long-lived child process started by Start.
type Process struct {
	cmd  *exec.Cmd
	done chan struct{}
	err  error
}

// Start launches the command without waiting for it to exit. The process is
// tied to ctx and to this process, so it is for callers that do not detach
// the child. Output cannot be captured, only streamed, and Start rejects
// Options asking for CaptureStdout or CaptureStderr.
func (e *Executable) Start(ctx context.Context, args []string, opts Options) (*Process, error) {
	if opts.CaptureStdout || opts.CaptureStderr {
		return nil, &types.InvalidArgumentError{Argument: "options", Reason: "the output of a started process cannot be captured"}
	}
	cmd, _, _ := e.prepare(ctx, args, opts)
	if err := cmd.Start(); err != nil {
		return nil, e.commandError(args, err)
	}

	p := &Process{cmd: cmd, done: make(chan struct{})}
	go func() {
		defer close(p.done)
		if err := cmd.Wait(); err != nil {
			p.err = e.commandError(args, err)
		}
	}()

	return p, nil
}

// Pid returns the process id of the child.
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// Kill kills the process if it is still running.
func (p *Process) Kill() error {
	select {
	case <-p.done:
		return nil
	default:
	}

	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	<-p.done
	return nil
}

// Wait blocks until the process exits and returns its failure, if any.
func (p *Process) Wait() error {
	<-p.done
	return p.err
}

func (e *Executable) prepare(ctx context.Context, args []string, opts Options) (*exec.Cmd, *bytes.Buffer, *bytes.Buffer) {
	e.log.Debugf("%s %s", e.command, strings.Join(args, " "))

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, e.command, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = e.sink(&stdout, e.Stdout, opts.CaptureStdout, opts.Echo)
	cmd.Stderr = e.sink(&stderr, e.Stderr, opts.CaptureStderr, opts.Echo)

	return cmd, &stdout, &stderr
}

func (e *Executable) sink(buf *bytes.Buffer, terminal io.Writer, capture, echo bool) io.Writer {
	switch {
	case !capture:
		return terminal
	case echo:
		return io.MultiWriter(buf, terminal)
	default:
		return buf
	}
}

func (e *Executable) commandError(args []string, err error) error {
	failure := &types.CommandFailedError{
		Command:  e.command,
		Args:     args,
		ExitCode: -1,
		Err:      err,
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		failure.ExitCode = exitErr.ExitCode()
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			failure.Signal = status.Signal().String()
		}
	}

	return failure
}
