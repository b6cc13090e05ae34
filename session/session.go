// Copyright (c) 2022 Whist Technologies, Inc.

// Package session drives a remote desktop session from the creation of the
// machine to its termination. Whatever happens while the session is live,
// the machine is terminated and, when enabled, its disk is snapshotted so
// that the next session starts where this one ended.
package session // import "github.com/whisthq/whist/backend/cloud-desktop/session"

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/whisthq/whist/backend/cloud-desktop/hosts"
	"github.com/whisthq/whist/backend/cloud-desktop/types"
	"github.com/whisthq/whist/backend/cloud-desktop/utils"
	"go.uber.org/zap"
)

// SNAPSHOT_TIME_FORMAT is appended to the disk name to name a snapshot.
const SNAPSHOT_TIME_FORMAT = "20060102-150405"

// Params are the settings of a session, resolved from the configuration.
type Params struct {
	Machine types.MachineSpec
	Labels  types.SnapshotLabels

	RemotePort int
	LocalPort  int

	PrepareDisk             bool
	Snapshot                bool
	SnapshotBeforeTerminate bool
	DeleteDisk              bool
}

// SnapshotName returns the name of a snapshot of disk taken at t.
func SnapshotName(disk types.DiskName, t time.Time) string {
	return utils.Sprintf("%s-%s", disk, t.Format(SNAPSHOT_TIME_FORMAT))
}

// Orchestrator runs a single session.
type Orchestrator struct {
	Host    hosts.HostHandler
	Desktop *RemoteDesktop
	Params  Params
	// Now names the snapshots.
	Now func() time.Time

	id    string
	mu    sync.Mutex
	phase Phase
	log   *zap.SugaredLogger
}

func New(host hosts.HostHandler, desktop *RemoteDesktop, params Params, log *zap.SugaredLogger) *Orchestrator {
	id := uuid.NewString()
	o := &Orchestrator{
		Host:    host,
		Desktop: desktop,
		Params:  params,
		Now:     time.Now,
		id:      id,
		phase:   Idle,
		log:     log.With("session", id, "instance", params.Machine.Name),
	}
	desktop.enter = o.enter
	return o
}

// ID identifies the session in the logs.
func (o *Orchestrator) ID() string {
	return o.id
}

// Phase returns the current phase of the session.
func (o *Orchestrator) Phase() Phase {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.phase
}

func (o *Orchestrator) enter(p Phase) {
	o.mu.Lock()
	from := o.phase
	o.phase = p
	o.mu.Unlock()

	o.log.Infow("Session phase changed", "from", from.String(), "to", p.String())
}

// Run creates the machine, shows its desktop until the viewer exits, and
// tears the machine down. Failures before the teardown are logged and end
// the live part of the session early. The returned error is the failure to
// terminate the machine, if any.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.live(ctx)

	// Teardown must not be interrupted by the signal that ended the session.
	err := o.cleanup(context.WithoutCancel(ctx))
	o.enter(Done)
	return err
}

func (o *Orchestrator) live(ctx context.Context) {
	p := o.Params
	m := p.Machine

	if p.PrepareDisk {
		o.enter(Preparing)
		o.log.Infof("Prepare disk (%s)", m.Disk)
		if err := o.Host.PrepareDisk(ctx, m.Disk, m.Zone, p.Labels); err != nil {
			o.log.Warn(err)
			return
		}
	}

	o.enter(Creating)
	o.log.Infof("Create VM (%s)", m.Name)
	if err := o.Host.CreateMachine(ctx, m.Name, m.Disk, m); err != nil {
		o.log.Warn(err)
		return
	}

	o.enter(Resolving)
	o.log.Infof("Get public IP address of %s", m.Name)
	ip, err := o.Host.GetPublicIPAddress(ctx, m.Name)
	if err != nil {
		o.log.Warn(err)
		return
	}
	o.log.Infof("IP address of %s: %s", m.Name, ip)

	// The desktop enters Tunneling and Viewing and logs its own failures.
	_ = o.Desktop.Connect(ctx, ip, p.RemotePort, p.LocalPort)
}

func (o *Orchestrator) cleanup(ctx context.Context) error {
	p := o.Params
	m := p.Machine
	o.enter(Cleanup)

	snapshotTaken := false
	snapshot := func() {
		name := SnapshotName(m.Disk, o.Now())
		o.log.Infof("Create snapshot %s of disk %s", name, m.Disk)
		if err := o.Host.CreateSnapshot(ctx, m.Disk, name, m.Zone, p.Labels); err != nil {
			o.log.Warnf("Couldn't snapshot disk %s: %s", m.Disk, err)
			return
		}
		snapshotTaken = true
	}

	if p.Snapshot && p.SnapshotBeforeTerminate {
		snapshot()
	}

	o.log.Infof("Terminate VM (%s)", m.Name)
	terminateErr := o.Host.TerminateMachine(ctx, m.Name)
	if terminateErr != nil {
		o.log.Errorf("Couldn't terminate VM %s: %s", m.Name, terminateErr)
	}

	// A snapshot of the running machine that failed is attempted again on
	// the stopped disk.
	if p.Snapshot && !snapshotTaken {
		snapshot()
	}

	if p.DeleteDisk {
		if snapshotTaken {
			o.log.Infof("Delete disk (%s)", m.Disk)
			if err := o.Host.DeleteDisk(ctx, m.Disk); err != nil {
				o.log.Warnf("Couldn't delete disk %s: %s", m.Disk, err)
			}
		} else {
			o.log.Warnf("Keep disk %s since it was not snapshotted", m.Disk)
		}
	}

	return terminateErr
}
