// Copyright (c) 2022 Whist Technologies, Inc.

package openssh

import (
	"context"
	"path/filepath"

	"github.com/shirou/gopsutil/v3/process"
)

// Daemon is an ssh process running in the background.
type Daemon interface {
	Pid() int32
	Kill(ctx context.Context) error
}

// DaemonFinder locates the background process left by `ssh -f`, which is not
// a child of this process anymore.
type DaemonFinder interface {
	Find(ctx context.Context, command string, args []string) (Daemon, error)
}

type processFinder struct{}

// Find returns the most recently started process whose command line is
// exactly command followed by args, or nil if there is none.
func (processFinder) Find(ctx context.Context, command string, args []string) (Daemon, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}

	var (
		found   *process.Process
		created int64
	)
	for _, p := range procs {
		cmdline, err := p.CmdlineSliceWithContext(ctx)
		if err != nil || !matchesCommandLine(cmdline, command, args) {
			continue
		}
		t, err := p.CreateTimeWithContext(ctx)
		if err != nil {
			continue
		}
		if found == nil || t > created {
			found, created = p, t
		}
	}

	if found == nil {
		return nil, nil
	}
	return &daemon{p: found}, nil
}

func matchesCommandLine(cmdline []string, command string, args []string) bool {
	if len(cmdline) != len(args)+1 {
		return false
	}
	if cmdline[0] != command && filepath.Base(cmdline[0]) != filepath.Base(command) {
		return false
	}
	for i, arg := range args {
		if cmdline[i+1] != arg {
			return false
		}
	}
	return true
}

type daemon struct {
	p *process.Process
}

func (d *daemon) Pid() int32 {
	return d.p.Pid
}

// Kill terminates the daemon unless it already exited.
func (d *daemon) Kill(ctx context.Context) error {
	running, err := d.p.IsRunningWithContext(ctx)
	if err != nil || !running {
		return nil
	}
	return d.p.KillWithContext(ctx)
}
