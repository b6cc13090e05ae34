// Copyright (c) 2022 Whist Technologies, Inc.

package types

import (
	"strings"

	"github.com/whisthq/whist/backend/cloud-desktop/utils"
)

// CommandFailedError is returned when an external process could not be
// started or exited with a non-zero code.
type CommandFailedError struct {
	Command  string
	Args     []string
	ExitCode int
	Signal   string
	Err      error
}

func (e *CommandFailedError) Error() string {
	cmdline := strings.TrimSpace(e.Command + " " + strings.Join(e.Args, " "))
	if e.Signal != "" {
		return utils.Sprintf("command (%s) exits with code %d (%s)", cmdline, e.ExitCode, e.Signal)
	}
	if e.ExitCode < 0 {
		return utils.Sprintf("command (%s) could not be run: %v", cmdline, e.Err)
	}
	return utils.Sprintf("command (%s) exits with code %d", cmdline, e.ExitCode)
}

func (e *CommandFailedError) Unwrap() error {
	return e.Err
}

// ProviderOperationError is returned when a control plane call, or the wait
// for the operation it started, fails.
type ProviderOperationError struct {
	Operation string
	Resource  string
	Err       error
}

func (e *ProviderOperationError) Error() string {
	return utils.Sprintf("%s %s failed: %v", e.Operation, e.Resource, e.Err)
}

func (e *ProviderOperationError) Unwrap() error {
	return e.Err
}

// NoSnapshotFoundError is returned when a disk has to be restored but no
// snapshot matches its label.
type NoSnapshotFoundError struct {
	Disk   string
	Zone   string
	Filter string
}

func (e *NoSnapshotFoundError) Error() string {
	return utils.Sprintf("no snapshot of disk %s in zone %s (filter %s)", e.Disk, e.Zone, e.Filter)
}

// AddressNotFoundError is returned when an instance has no public address.
type AddressNotFoundError struct {
	Instance string
}

func (e *AddressNotFoundError) Error() string {
	return utils.Sprintf("instance %s has no public IP address", e.Instance)
}

// InvalidArgumentError is returned for malformed user input.
type InvalidArgumentError struct {
	Argument string
	Reason   string
}

func (e *InvalidArgumentError) Error() string {
	return utils.Sprintf("invalid argument %s: %s", e.Argument, e.Reason)
}

// RefusedConnectionError is returned when a viewer reports that the server
// refused its connection.
type RefusedConnectionError struct {
	Command string
	Output  string
}

func (e *RefusedConnectionError) Error() string {
	return utils.Sprintf("%s: connection refused", e.Command)
}

// MachineCreateError wraps a failure to create or start an instance.
type MachineCreateError struct {
	Instance string
	Err      error
}

func (e *MachineCreateError) Error() string {
	return utils.Sprintf("failed to create instance %s: %v", e.Instance, e.Err)
}

func (e *MachineCreateError) Unwrap() error {
	return e.Err
}

// MachineTerminateError wraps a failure to stop or delete an instance.
type MachineTerminateError struct {
	Instance string
	Err      error
}

func (e *MachineTerminateError) Error() string {
	return utils.Sprintf("failed to terminate instance %s: %v", e.Instance, e.Err)
}

func (e *MachineTerminateError) Unwrap() error {
	return e.Err
}

// DiskPrepareError wraps a failure to restore a disk from its snapshot.
type DiskPrepareError struct {
	Disk string
	Err  error
}

func (e *DiskPrepareError) Error() string {
	return utils.Sprintf("failed to prepare disk %s: %v", e.Disk, e.Err)
}

func (e *DiskPrepareError) Unwrap() error {
	return e.Err
}
