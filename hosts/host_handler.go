// Copyright (c) 2022 Whist Technologies, Inc.

// Package hosts defines the compute driver interface implemented by every
// cloud backend, together with the helpers the backends share for finding
// and labelling disk snapshots.
package hosts // import "github.com/whisthq/whist/backend/cloud-desktop/hosts"

import (
	"context"

	"github.com/whisthq/whist/backend/cloud-desktop/types"
)

// HostHandler creates, resolves and terminates the instance of a session,
// and keeps its boot disk alive across sessions through snapshots.
type HostHandler interface {
	// PrepareDisk restores the disk from its newest snapshot, unless the
	// disk already exists.
	PrepareDisk(ctx context.Context, disk types.DiskName, zone types.Zone, labels types.SnapshotLabels) error
	// CreateMachine creates an instance booting from disk and starts it.
	CreateMachine(ctx context.Context, instance types.InstanceName, disk types.DiskName, spec types.MachineSpec) error
	// GetPublicIPAddress returns the public address of a running instance.
	GetPublicIPAddress(ctx context.Context, instance types.InstanceName) (string, error)
	// TerminateMachine stops and deletes an instance, keeping its disks.
	TerminateMachine(ctx context.Context, instance types.InstanceName) error
	// CreateSnapshot snapshots the disk, labelled so that PrepareDisk can
	// find it again.
	CreateSnapshot(ctx context.Context, disk types.DiskName, snapshot string, zone types.Zone, labels types.SnapshotLabels) error
	// DeleteDisk deletes a detached disk.
	DeleteDisk(ctx context.Context, disk types.DiskName) error
}
