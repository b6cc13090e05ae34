// Copyright (c) 2022 Whist Technologies, Inc.

// Package openssh forwards ports by running the OpenSSH client in the
// background.
package openssh // import "github.com/whisthq/whist/backend/cloud-desktop/tunnels/openssh"

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/afero"
	"github.com/whisthq/whist/backend/cloud-desktop/executable"
	"github.com/whisthq/whist/backend/cloud-desktop/types"
	"github.com/whisthq/whist/backend/cloud-desktop/utils"
	"go.uber.org/zap"
)

// optionSchema lists the extra -o options accepted on the command line. All
// of them take a value.
var optionSchema = map[string]bool{
	"ConnectTimeout":      true,
	"ServerAliveInterval": true,
	"ServerAliveCountMax": true,
	"Compression":         true,
	"ConnectionAttempts":  true,
	"TCPKeepAlive":        true,
	"UserKnownHostsFile":  true,
	"LogLevel":            true,
}

// SSHTunnel runs `ssh -fNT -L ...`. Host keys are not checked, so the known
// hosts file is restored when the tunnel is closed to keep the keys of
// transient machines out of it.
type SSHTunnel struct {
	Runner  executable.Runner
	Command string
	Fs      afero.Fs
	// KnownHosts defaults to ~/.ssh/known_hosts.
	KnownHosts string
	// Timeout is how long a failing ssh is retried.
	Timeout time.Duration
	// Wait is a grace period after ssh returns, before the tunnel is used.
	Wait   time.Duration
	Finder DaemonFinder

	log *zap.SugaredLogger
}

// New returns a tunnel running the ssh binary at command.
func New(command string, log *zap.SugaredLogger) *SSHTunnel {
	return &SSHTunnel{
		Runner:  executable.New(command, log),
		Command: command,
		Fs:      afero.NewOsFs(),
		Finder:  processFinder{},
		log:     log,
	}
}

// Args returns the ssh arguments of the tunnel. Options are not validated
// here, an option without a value is passed as its bare name.
func Args(spec types.TunnelSpec) []string {
	args := []string{
		"-o", "StrictHostKeyChecking=no",
		"-fNT",
		"-p", strconv.Itoa(spec.Port),
		"-L", utils.Sprintf("%d:localhost:%d", spec.LocalPort, spec.RemotePort),
		"-l", spec.User,
	}
	if spec.IdentityFile != "" {
		args = append(args, "-i", spec.IdentityFile)
	}
	for _, o := range spec.Options {
		if o.Value == nil {
			args = append(args, "-o", o.Name)
			continue
		}
		args = append(args, "-o", o.Name+"="+*o.Value)
	}
	return append(args, spec.Host)
}

func (t *SSHTunnel) knownHosts() (string, error) {
	if t.KnownHosts != "" {
		return t.KnownHosts, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", utils.MakeError("couldn't find the home directory: %s", err)
	}
	return filepath.Join(home, ".ssh", "known_hosts"), nil
}

// PortForward starts the ssh daemon. The returned handle kills it and
// restores the known hosts file.
func (t *SSHTunnel) PortForward(ctx context.Context, spec types.TunnelSpec) (types.ExitHandle, error) {
	if err := types.ValidateOptions(spec.Options, optionSchema); err != nil {
		return nil, err
	}
	args := Args(spec)

	knownHosts, err := t.knownHosts()
	if err != nil {
		return nil, err
	}
	restore, err := utils.BackupFile(t.Fs, t.log, knownHosts)
	if err != nil {
		return nil, err
	}

	t.log.Infof("Forward localhost:%d to %s:%d", spec.LocalPort, spec.Host, spec.RemotePort)
	_, err = utils.Retry(ctx, t.log, t.Timeout, func() (*executable.Result, error) {
		return t.Runner.Execute(ctx, args, executable.Options{})
	})
	if err != nil {
		var result *multierror.Error
		result = multierror.Append(result, err)
		if restoreErr := restore(ctx); restoreErr != nil {
			result = multierror.Append(result, restoreErr)
		}
		return nil, result.ErrorOrNil()
	}

	if t.Wait > 0 {
		t.log.Debugf("Wait %s for the tunnel", t.Wait)
		select {
		case <-time.After(t.Wait):
		case <-ctx.Done():
		}
	}

	var d Daemon
	if t.Finder != nil {
		d, err = t.Finder.Find(ctx, t.Command, args)
		if err != nil {
			t.log.Warnf("Couldn't look for the ssh daemon: %s", err)
		}
	}
	if d == nil {
		t.log.Warnf("Couldn't find the ssh daemon, it will not be stopped")
	} else {
		t.log.Debugf("ssh daemon is running with pid %d", d.Pid())
	}

	return func(ctx context.Context) error {
		var result *multierror.Error
		if d != nil {
			t.log.Infof("Stop port forwarding (pid %d)", d.Pid())
			if err := d.Kill(ctx); err != nil {
				result = multierror.Append(result, utils.MakeError("couldn't kill ssh daemon %d: %w", d.Pid(), err))
			}
		}
		if err := restore(ctx); err != nil {
			result = multierror.Append(result, err)
		}
		return result.ErrorOrNil()
	}, nil
}
