// Copyright (c) 2022 Whist Technologies, Inc.

package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/whisthq/whist/backend/cloud-desktop/internal/config"
	"github.com/whisthq/whist/backend/cloud-desktop/pkg/logger"
	"github.com/whisthq/whist/backend/cloud-desktop/session"
	"github.com/whisthq/whist/backend/cloud-desktop/types"
)

// Exit codes of the command.
const (
	EXIT_OK                = 0
	EXIT_TERMINATE_FAILED  = 1
	EXIT_INVALID_ARGUMENTS = 2
)

// usageError is a malformed command line or configuration.
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

// loggedError has already been reported through the logger.
type loggedError struct {
	err error
}

func (e *loggedError) Error() string { return e.err.Error() }
func (e *loggedError) Unwrap() error { return e.err }

func exitCode(err error) int {
	if err == nil {
		return EXIT_OK
	}
	var (
		terminate *types.MachineTerminateError
		usage     *usageError
		invalid   *types.InvalidArgumentError
	)
	switch {
	case errors.As(err, &terminate):
		return EXIT_TERMINATE_FAILED
	case errors.As(err, &usage), errors.As(err, &invalid):
		return EXIT_INVALID_ARGUMENTS
	default:
		return EXIT_TERMINATE_FAILED
	}
}

func exactlyOneArg(cmd *cobra.Command, args []string) error {
	if err := cobra.ExactArgs(1)(cmd, args); err != nil {
		return &usageError{err: err}
	}
	return nil
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cloud-desktop [flags] <name>[:display-number|::port]",
		Short: "Start a cloud machine and connect to its desktop over VNC and ssh",
		Long: `Creates the machine <name>, forwards its VNC port through ssh and opens a
vncviewer on the forwarded port. The machine is terminated once the viewer
exits, and its disk is optionally kept as a snapshot.`,
		Args:          exactlyOneArg,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(cmd.Context(), cmd.Flags(), args[0])
		},
	}
	config.RegisterBackendFlags(cmd.Flags())
	config.RegisterTunnelFlags(cmd.Flags())
	config.RegisterMachineFlags(cmd.Flags())

	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{err: err}
	})
	cmd.AddCommand(newVNCWithSSHCommand())
	return cmd
}

func newVNCWithSSHCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "vnc-with-ssh [flags] <host>[:display-number|::port]",
		Short:         "Connect to the desktop of a running host over VNC and ssh",
		Args:          exactlyOneArg,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVNCWithSSH(cmd.Context(), cmd.Flags(), args[0])
		},
	}
	config.RegisterBackendFlags(cmd.Flags())
	config.RegisterTunnelFlags(cmd.Flags())
	return cmd
}

// setup parses the target and loads the configuration and the logger.
func setup(flags *pflag.FlagSet, arg string, withMachine bool) (types.Target, *config.Config, *logger.Logger, error) {
	target, err := types.ParseTarget(arg)
	if err != nil {
		return types.Target{}, nil, nil, err
	}

	machine := ""
	if withMachine {
		machine = target.Name
	}
	cfg, err := config.Load(flags, machine)
	if err != nil {
		return types.Target{}, nil, nil, &usageError{err: err}
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return types.Target{}, nil, nil, &usageError{err: err}
	}

	if err := cfg.Validate(withMachine); err != nil {
		log.Error(err)
		log.Close()
		return types.Target{}, nil, nil, &loggedError{err: err}
	}
	return target, cfg, log, nil
}

func runSession(ctx context.Context, flags *pflag.FlagSet, arg string) error {
	target, cfg, log, err := setup(flags, arg, true)
	if err != nil {
		return err
	}
	defer log.Close()

	computeBackend, tunnelBackend, viewerBackend, err := cfg.Backends()
	if err != nil {
		log.Error(err)
		return &loggedError{err: err}
	}
	spec, err := cfg.MachineSpec(target.Name)
	if err != nil {
		log.Error(err)
		return &loggedError{err: err}
	}

	host, err := newHost(ctx, cfg, computeBackend, log.SugaredLogger)
	if err != nil {
		log.Errorf("Couldn't start the %s backend: %s", computeBackend, err)
		return &loggedError{err: err}
	}
	tunnel, err := newTunnel(cfg, tunnelBackend, log.SugaredLogger)
	if err != nil {
		log.Error(err)
		return &loggedError{err: err}
	}
	viewer, err := newViewer(cfg, viewerBackend, log.SugaredLogger)
	if err != nil {
		log.Error(err)
		return &loggedError{err: err}
	}

	desktop := session.NewRemoteDesktop(tunnel, viewer, cfg.TunnelSpec("", target.Port), log.SugaredLogger)
	o := session.New(host, desktop, session.Params{
		Machine:                 spec,
		Labels:                  cfg.Labels(),
		RemotePort:              target.Port,
		LocalPort:               cfg.ResolveLocalPort(target.Port),
		PrepareDisk:             cfg.PrepareDisk,
		Snapshot:                cfg.Snapshot,
		SnapshotBeforeTerminate: cfg.SnapshotBeforeTerminate,
		DeleteDisk:              cfg.DeleteDisk,
	}, log.SugaredLogger)

	if err := o.Run(ctx); err != nil {
		var terminate *types.MachineTerminateError
		if !errors.As(err, &terminate) {
			err = &types.MachineTerminateError{Instance: string(spec.Name), Err: err}
		}
		return &loggedError{err: err}
	}
	return nil
}

// runVNCWithSSH connects to a host that is already running. Failures of the
// tunnel or the viewer are logged and do not change the exit code.
func runVNCWithSSH(ctx context.Context, flags *pflag.FlagSet, arg string) error {
	target, cfg, log, err := setup(flags, arg, false)
	if err != nil {
		return err
	}
	defer log.Close()

	_, tunnelBackend, viewerBackend, err := cfg.Backends()
	if err != nil {
		log.Error(err)
		return &loggedError{err: err}
	}
	tunnel, err := newTunnel(cfg, tunnelBackend, log.SugaredLogger)
	if err != nil {
		log.Error(err)
		return &loggedError{err: err}
	}
	viewer, err := newViewer(cfg, viewerBackend, log.SugaredLogger)
	if err != nil {
		log.Error(err)
		return &loggedError{err: err}
	}

	desktop := session.NewRemoteDesktop(tunnel, viewer, cfg.TunnelSpec(target.Name, target.Port), log.SugaredLogger)
	_ = desktop.Connect(ctx, target.Name, target.Port, cfg.ResolveLocalPort(target.Port))
	return nil
}
