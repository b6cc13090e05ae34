// Copyright (c) 2022 Whist Technologies, Inc.

// Package gcloud implements the compute driver by running the gcloud command
// line tool. It is used where API credentials are not available but an
// authenticated gcloud installation is.
package gcloud // import "github.com/whisthq/whist/backend/cloud-desktop/hosts/gcloud"

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/whisthq/whist/backend/cloud-desktop/executable"
	"github.com/whisthq/whist/backend/cloud-desktop/hosts"
	"github.com/whisthq/whist/backend/cloud-desktop/types"
	"github.com/whisthq/whist/backend/cloud-desktop/utils"
	"go.uber.org/zap"
	"google.golang.org/api/compute/v1"
)

// GCloudHost runs `gcloud compute` subcommands. Their JSON output is decoded
// into the Compute Engine API types.
type GCloudHost struct {
	Runner  executable.Runner
	Project string
	Zone    types.Zone

	placements hosts.Placements
	log        *zap.SugaredLogger
}

// New returns a host running commands with runner. An empty project uses the
// gcloud default.
func New(runner executable.Runner, log *zap.SugaredLogger, project string, zone types.Zone) *GCloudHost {
	return &GCloudHost{
		Runner:  runner,
		Project: project,
		Zone:    zone,
		log:     log,
	}
}

func (host *GCloudHost) run(ctx context.Context, args ...string) error {
	_, err := host.Runner.Execute(ctx, host.withProject(args), executable.Options{})
	return err
}

// query runs a command with --format=json and decodes its output into v.
func (host *GCloudHost) query(ctx context.Context, v interface{}, args ...string) error {
	args = append(args, "--format=json")
	result, err := host.Runner.Execute(ctx, host.withProject(args), executable.Options{CaptureStdout: true})
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(result.Stdout), v); err != nil {
		return utils.MakeError("couldn't decode the output of gcloud %s: %w", strings.Join(args, " "), err)
	}
	return nil
}

func (host *GCloudHost) withProject(args []string) []string {
	args = append([]string{"compute"}, args...)
	if host.Project != "" {
		args = append(args, "--project="+host.Project)
	}
	return args
}

func (host *GCloudHost) zoneOf(zone types.Zone) string {
	if zone == "" {
		return string(host.Zone)
	}
	return string(zone)
}

// CreateMachine creates the instance booting from disk, then starts it.
func (host *GCloudHost) CreateMachine(ctx context.Context, instance types.InstanceName, disk types.DiskName, spec types.MachineSpec) error {
	zone := host.zoneOf(spec.Zone)
	host.placements.PlaceInstance(instance, types.Zone(zone))
	host.placements.PlaceDisk(disk, types.Zone(zone))

	args := []string{"instances", "create", string(instance),
		"--zone=" + zone,
		"--machine-type=" + spec.Type.String(),
	}
	for _, a := range spec.Accelerators {
		args = append(args, "--accelerator", utils.Sprintf("type=%s,count=%d", a.DeviceType, a.Count))
	}
	if len(spec.Tags) > 0 {
		args = append(args, "--tags="+strings.Join(spec.Tags, ","))
	}
	if spec.Preemptible {
		args = append(args, "--preemptible")
	}
	args = append(args, utils.Sprintf("--disk=name=%s,device-name=%s,mode=rw,boot=yes", disk, disk))

	host.log.Infof("Create VM(name=%s)", instance)
	if err := host.run(ctx, args...); err != nil {
		return &types.MachineCreateError{Instance: string(instance), Err: err}
	}

	host.log.Infof("Start VM(name=%s)", instance)
	if err := host.run(ctx, "instances", "start", string(instance), "--zone="+zone); err != nil {
		return &types.MachineCreateError{Instance: string(instance), Err: err}
	}
	return nil
}

// GetPublicIPAddress looks the instance up by name.
func (host *GCloudHost) GetPublicIPAddress(ctx context.Context, instance types.InstanceName) (string, error) {
	var instances []*compute.Instance
	err := host.query(ctx, &instances, "instances", "list",
		utils.Sprintf("--filter=name=(%s)", instance),
		"--zones="+string(host.placements.InstanceZone(instance, host.Zone)))
	if err != nil {
		return "", &types.ProviderOperationError{Operation: "get", Resource: string(instance), Err: err}
	}

	for _, vm := range instances {
		if vm.Name != string(instance) {
			continue
		}
		for _, iface := range vm.NetworkInterfaces {
			for _, access := range iface.AccessConfigs {
				if access.NatIP != "" {
					return access.NatIP, nil
				}
			}
		}
	}
	return "", &types.AddressNotFoundError{Instance: string(instance)}
}

// TerminateMachine stops the instance and deletes it, keeping every disk.
func (host *GCloudHost) TerminateMachine(ctx context.Context, instance types.InstanceName) error {
	zone := "--zone=" + string(host.placements.InstanceZone(instance, host.Zone))

	host.log.Infof("Stop VM(name=%s)", instance)
	if err := host.run(ctx, "instances", "stop", string(instance), zone); err != nil {
		return &types.MachineTerminateError{Instance: string(instance), Err: err}
	}

	host.log.Infof("Delete VM(name=%s)", instance)
	if err := host.run(ctx, "instances", "delete", string(instance), zone, "--keep-disks", "all", "--quiet"); err != nil {
		return &types.MachineTerminateError{Instance: string(instance), Err: err}
	}
	return nil
}

// PrepareDisk restores a missing disk from its newest snapshot.
func (host *GCloudHost) PrepareDisk(ctx context.Context, disk types.DiskName, zone types.Zone, labels types.SnapshotLabels) error {
	if err := host.prepareDisk(ctx, disk, types.Zone(host.zoneOf(zone)), labels); err != nil {
		return &types.DiskPrepareError{Disk: string(disk), Err: err}
	}
	return nil
}

func (host *GCloudHost) prepareDisk(ctx context.Context, disk types.DiskName, zone types.Zone, labels types.SnapshotLabels) error {
	host.placements.PlaceDisk(disk, zone)
	var disks []*compute.Disk
	err := host.query(ctx, &disks, "disks", "list",
		utils.Sprintf("--filter=name=(%s)", disk),
		"--zones="+string(zone))
	if err != nil {
		return err
	}
	if len(disks) > 0 {
		host.log.Infof("Disk %s already exists", disk)
		return nil
	}

	filter := utils.Sprintf("labels.%s=%s", labels.DiskName, hosts.DiskNameLabelValue(zone, disk))
	var snapshots []*compute.Snapshot
	if err := host.query(ctx, &snapshots, "snapshots", "list", "--filter="+filter); err != nil {
		return err
	}

	newest, found := hosts.Newest(snapshots, func(s *compute.Snapshot) time.Time {
		created, _ := time.Parse(time.RFC3339, s.CreationTimestamp)
		return created
	})
	if !found {
		return &types.NoSnapshotFoundError{Disk: string(disk), Zone: string(zone), Filter: filter}
	}

	args := []string{"disks", "create", string(disk),
		"--zone=" + string(zone),
		utils.Sprintf("--size=%dGB", newest.DiskSizeGb),
		"--source-snapshot=" + newest.Name,
	}
	if diskType := newest.Labels[labels.DiskType]; diskType != "" {
		args = append(args, "--type="+diskType)
	}

	host.log.Infof("Restore disk %s from snapshot %s", disk, newest.Name)
	return host.run(ctx, args...)
}

// CreateSnapshot snapshots the disk into its region.
func (host *GCloudHost) CreateSnapshot(ctx context.Context, disk types.DiskName, snapshot string, zone types.Zone, labels types.SnapshotLabels) error {
	zone = types.Zone(host.zoneOf(zone))
	host.placements.PlaceDisk(disk, zone)

	var d compute.Disk
	err := host.query(ctx, &d, "disks", "describe", string(disk), "--zone="+string(zone))
	if err != nil {
		return &types.ProviderOperationError{Operation: "snapshot", Resource: string(disk), Err: err}
	}
	project, diskType, err := hosts.ParseDiskTypeURL(d.Type)
	if err != nil {
		return &types.ProviderOperationError{Operation: "snapshot", Resource: string(disk), Err: err}
	}

	host.log.Infof("Create snapshot %s of disk %s", snapshot, disk)
	err = host.run(ctx, "disks", "snapshot", string(disk),
		"--zone="+string(zone),
		"--snapshot-names="+snapshot,
		utils.Sprintf("--labels=%s=%s,%s=%s,%s=%s",
			labels.DiskName, hosts.DiskNameLabelValue(zone, disk),
			labels.DiskType, diskType,
			labels.Project, project),
		"--storage-location="+hosts.RegionFromZone(zone))
	if err != nil {
		return &types.ProviderOperationError{Operation: "snapshot", Resource: string(disk), Err: err}
	}
	return nil
}

// DeleteDisk deletes the disk without prompting.
func (host *GCloudHost) DeleteDisk(ctx context.Context, disk types.DiskName) error {
	host.log.Infof("Delete disk %s", disk)
	if err := host.run(ctx, "disks", "delete", string(disk), "--zone="+string(host.placements.DiskZone(disk, host.Zone)), "--quiet"); err != nil {
		return &types.ProviderOperationError{Operation: "delete", Resource: string(disk), Err: err}
	}
	return nil
}
