// Copyright (c) 2022 Whist Technologies, Inc.

// Package gcp implements the compute driver on top of the Compute Engine API.
package gcp // import "github.com/whisthq/whist/backend/cloud-desktop/hosts/gcp"

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/whisthq/whist/backend/cloud-desktop/hosts"
	"github.com/whisthq/whist/backend/cloud-desktop/types"
	"github.com/whisthq/whist/backend/cloud-desktop/utils"
	"go.uber.org/zap"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/compute/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// GCPHost manages instances, disks and snapshots of a single project.
type GCPHost struct {
	Project string
	Zone    types.Zone
	// APIBase prefixes the disk type URLs built from snapshot labels.
	APIBase string
	Compute *compute.Service

	placements hosts.Placements
	log        *zap.SugaredLogger
}

// Initialize starts the Compute Engine client. The project is read from the
// credentials when it is not configured.
func (host *GCPHost) Initialize(ctx context.Context, log *zap.SugaredLogger, opts Options) error {
	var (
		creds *google.Credentials
		err   error
	)
	if opts.CredentialsFile != "" {
		data, readErr := os.ReadFile(opts.CredentialsFile)
		if readErr != nil {
			return utils.MakeError("couldn't read credentials %s: %s", opts.CredentialsFile, readErr)
		}
		creds, err = google.CredentialsFromJSON(ctx, data, compute.ComputeScope)
	} else {
		creds, err = google.FindDefaultCredentials(ctx, compute.ComputeScope)
	}
	if err != nil {
		return utils.MakeError("unable to load GCP credentials: %s", err)
	}

	svc, err := compute.NewService(ctx, option.WithCredentials(creds))
	if err != nil {
		return utils.MakeError("unable to start the compute client: %s", err)
	}

	host.Project = opts.Project
	if host.Project == "" {
		host.Project = creds.ProjectID
	}
	if host.Project == "" {
		return &types.InvalidArgumentError{Argument: "project", Reason: "no project is specified and the credentials do not name one"}
	}

	host.Zone = types.Zone(opts.Zone)
	host.APIBase = opts.APIBase
	host.Compute = svc
	host.log = log
	return nil
}

// New returns a host using an existing client.
func New(svc *compute.Service, log *zap.SugaredLogger, project string, zone types.Zone, apiBase string) *GCPHost {
	return &GCPHost{
		Project: project,
		Zone:    zone,
		APIBase: apiBase,
		Compute: svc,
		log:     log,
	}
}

func (host *GCPHost) apiBase() string {
	if host.APIBase == "" {
		return DefaultAPIBase
	}
	return strings.TrimSuffix(host.APIBase, "/")
}

func (host *GCPHost) zoneOf(zone types.Zone) string {
	if zone == "" {
		return string(host.Zone)
	}
	return string(zone)
}

// wait blocks until the zonal operation is done and converts its error.
func (host *GCPHost) wait(ctx context.Context, zone string, op *compute.Operation) error {
	var err error
	for op.Status != OPERATION_DONE {
		op, err = host.Compute.ZoneOperations.Wait(host.Project, zone, op.Name).Context(ctx).Do()
		if err != nil {
			return utils.MakeError("failed waiting for operation: %w", err)
		}
	}

	if op.Error != nil && len(op.Error.Errors) > 0 {
		var messages []string
		for _, e := range op.Error.Errors {
			messages = append(messages, utils.Sprintf("%s: %s", e.Code, e.Message))
		}
		return &types.ProviderOperationError{
			Operation: op.OperationType,
			Resource:  op.TargetLink,
			Err:       errors.New(strings.Join(messages, "; ")),
		}
	}
	return nil
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}

// CreateMachine creates an instance booting from the existing disk and starts
// it. The disk is kept when the instance is deleted.
func (host *GCPHost) CreateMachine(ctx context.Context, instance types.InstanceName, disk types.DiskName, spec types.MachineSpec) error {
	if err := host.createMachine(ctx, instance, disk, spec); err != nil {
		return &types.MachineCreateError{Instance: string(instance), Err: err}
	}
	return nil
}

func (host *GCPHost) createMachine(ctx context.Context, instance types.InstanceName, disk types.DiskName, spec types.MachineSpec) error {
	zone := host.zoneOf(spec.Zone)
	host.placements.PlaceInstance(instance, types.Zone(zone))
	host.placements.PlaceDisk(disk, types.Zone(zone))

	d, err := host.Compute.Disks.Get(host.Project, zone, string(disk)).Context(ctx).Do()
	if err != nil {
		return utils.MakeError("couldn't get disk %s: %w", disk, err)
	}

	var accelerators []*compute.AcceleratorConfig
	for _, a := range spec.Accelerators {
		acceleratorType := a.DeviceType
		if !strings.Contains(acceleratorType, "/") {
			acceleratorType = utils.Sprintf("projects/%s/zones/%s/acceleratorTypes/%s", host.Project, zone, acceleratorType)
		}
		accelerators = append(accelerators, &compute.AcceleratorConfig{
			AcceleratorType:  acceleratorType,
			AcceleratorCount: int64(a.Count),
		})
	}

	vm := &compute.Instance{
		Name:        string(instance),
		MachineType: utils.Sprintf("zones/%s/machineTypes/%s", zone, spec.Type),
		Disks: []*compute.AttachedDisk{{
			AutoDelete:      false,
			Boot:            true,
			DeviceName:      string(disk),
			Kind:            "compute#attachedDisk",
			Mode:            "READ_WRITE",
			Source:          d.SelfLink,
			Type:            "PERSISTENT",
			ForceSendFields: []string{"AutoDelete"},
		}},
		GuestAccelerators: accelerators,
		NetworkInterfaces: []*compute.NetworkInterface{{
			Network: DEFAULT_NETWORK,
			AccessConfigs: []*compute.AccessConfig{{
				Kind:        "compute#accessConfig",
				Name:        EXTERNAL_NAT,
				NetworkTier: "PREMIUM",
				Type:        "ONE_TO_ONE_NAT",
			}},
		}},
		Scheduling: &compute.Scheduling{
			AutomaticRestart:  googleapi.Bool(false),
			OnHostMaintenance: "TERMINATE",
			Preemptible:       spec.Preemptible,
			ForceSendFields:   []string{"Preemptible"},
		},
		Tags: &compute.Tags{Items: spec.Tags},
	}

	host.log.Infof("Create VM(name=%s, machineType=%s)", instance, spec.Type)
	op, err := host.Compute.Instances.Insert(host.Project, zone, vm).RequestId(uuid.NewString()).Context(ctx).Do()
	if err != nil {
		return utils.MakeError("couldn't insert instance: %w", err)
	}
	if err := host.wait(ctx, zone, op); err != nil {
		return err
	}

	host.log.Infof("Start VM(name=%s)", instance)
	op, err = host.Compute.Instances.Start(host.Project, zone, string(instance)).RequestId(uuid.NewString()).Context(ctx).Do()
	if err != nil {
		return utils.MakeError("couldn't start instance: %w", err)
	}
	return host.wait(ctx, zone, op)
}

// GetPublicIPAddress returns the NAT address of the first network interface.
func (host *GCPHost) GetPublicIPAddress(ctx context.Context, instance types.InstanceName) (string, error) {
	zone := host.placements.InstanceZone(instance, host.Zone)
	vm, err := host.Compute.Instances.Get(host.Project, string(zone), string(instance)).Context(ctx).Do()
	if err != nil {
		return "", &types.ProviderOperationError{Operation: "get", Resource: string(instance), Err: err}
	}

	if len(vm.NetworkInterfaces) == 0 || len(vm.NetworkInterfaces[0].AccessConfigs) == 0 ||
		vm.NetworkInterfaces[0].AccessConfigs[0].NatIP == "" {
		return "", &types.AddressNotFoundError{Instance: string(instance)}
	}
	return vm.NetworkInterfaces[0].AccessConfigs[0].NatIP, nil
}

// TerminateMachine stops the instance, then deletes it.
func (host *GCPHost) TerminateMachine(ctx context.Context, instance types.InstanceName) error {
	if err := host.terminateMachine(ctx, instance); err != nil {
		return &types.MachineTerminateError{Instance: string(instance), Err: err}
	}
	return nil
}

func (host *GCPHost) terminateMachine(ctx context.Context, instance types.InstanceName) error {
	zone := string(host.placements.InstanceZone(instance, host.Zone))

	host.log.Infof("Stop VM(name=%s)", instance)
	op, err := host.Compute.Instances.Stop(host.Project, zone, string(instance)).RequestId(uuid.NewString()).Context(ctx).Do()
	if err != nil {
		return utils.MakeError("couldn't stop instance: %w", err)
	}
	if err := host.wait(ctx, zone, op); err != nil {
		return err
	}

	host.log.Infof("Delete VM(name=%s)", instance)
	op, err = host.Compute.Instances.Delete(host.Project, zone, string(instance)).RequestId(uuid.NewString()).Context(ctx).Do()
	if err != nil {
		return utils.MakeError("couldn't delete instance: %w", err)
	}
	return host.wait(ctx, zone, op)
}

// PrepareDisk restores a missing disk from the newest snapshot labelled with
// its name and zone.
func (host *GCPHost) PrepareDisk(ctx context.Context, disk types.DiskName, zone types.Zone, labels types.SnapshotLabels) error {
	if err := host.prepareDisk(ctx, disk, types.Zone(host.zoneOf(zone)), labels); err != nil {
		return &types.DiskPrepareError{Disk: string(disk), Err: err}
	}
	return nil
}

func (host *GCPHost) prepareDisk(ctx context.Context, disk types.DiskName, zone types.Zone, labels types.SnapshotLabels) error {
	host.placements.PlaceDisk(disk, zone)
	_, err := host.Compute.Disks.Get(host.Project, string(zone), string(disk)).Context(ctx).Do()
	if err == nil {
		host.log.Infof("Disk %s already exists", disk)
		return nil
	}
	if !isNotFound(err) {
		return utils.MakeError("couldn't get disk %s: %w", disk, err)
	}

	filter := utils.Sprintf(`labels.%s="%s"`, labels.DiskName, hosts.DiskNameLabelValue(zone, disk))
	var snapshots []*compute.Snapshot
	err = host.Compute.Snapshots.List(host.Project).Filter(filter).Pages(ctx, func(page *compute.SnapshotList) error {
		snapshots = append(snapshots, page.Items...)
		return nil
	})
	if err != nil {
		return utils.MakeError("couldn't list snapshots: %w", err)
	}

	newest, found := hosts.Newest(snapshots, func(s *compute.Snapshot) time.Time {
		created, err := time.Parse(time.RFC3339, s.CreationTimestamp)
		if err != nil {
			host.log.Warnf("Snapshot %s has an invalid creation timestamp %q", s.Name, s.CreationTimestamp)
		}
		return created
	})
	if !found {
		return &types.NoSnapshotFoundError{Disk: string(disk), Zone: string(zone), Filter: filter}
	}

	diskType := utils.Sprintf("%s/projects/%s/zones/%s/diskTypes/%s",
		host.apiBase(), newest.Labels[labels.Project], zone, newest.Labels[labels.DiskType])

	host.log.Infof("Restore disk %s from snapshot %s", disk, newest.Name)
	op, err := host.Compute.Disks.Insert(host.Project, string(zone), &compute.Disk{
		Name:           string(disk),
		SizeGb:         newest.DiskSizeGb,
		SourceSnapshot: newest.SelfLink,
		Type:           diskType,
	}).RequestId(uuid.NewString()).Context(ctx).Do()
	if err != nil {
		return utils.MakeError("couldn't create disk %s: %w", disk, err)
	}
	return host.wait(ctx, string(zone), op)
}

// CreateSnapshot snapshots the disk into its region, labelled with the disk
// name, type and project read from the disk itself.
func (host *GCPHost) CreateSnapshot(ctx context.Context, disk types.DiskName, snapshot string, zone types.Zone, labels types.SnapshotLabels) error {
	zone = types.Zone(host.zoneOf(zone))
	host.placements.PlaceDisk(disk, zone)
	if err := host.createSnapshot(ctx, disk, snapshot, zone, labels); err != nil {
		return &types.ProviderOperationError{Operation: "snapshot", Resource: string(disk), Err: err}
	}
	return nil
}

func (host *GCPHost) createSnapshot(ctx context.Context, disk types.DiskName, snapshot string, zone types.Zone, labels types.SnapshotLabels) error {
	d, err := host.Compute.Disks.Get(host.Project, string(zone), string(disk)).Context(ctx).Do()
	if err != nil {
		return utils.MakeError("couldn't get disk %s: %w", disk, err)
	}

	project, diskType, err := hosts.ParseDiskTypeURL(d.Type)
	if err != nil {
		return err
	}

	host.log.Infof("Create snapshot %s of disk %s", snapshot, disk)
	op, err := host.Compute.Disks.CreateSnapshot(host.Project, string(zone), string(disk), &compute.Snapshot{
		Name: snapshot,
		Labels: map[string]string{
			labels.DiskName: hosts.DiskNameLabelValue(zone, disk),
			labels.DiskType: diskType,
			labels.Project:  project,
		},
		StorageLocations: []string{hosts.RegionFromZone(zone)},
	}).RequestId(uuid.NewString()).Context(ctx).Do()
	if err != nil {
		return err
	}
	return host.wait(ctx, string(zone), op)
}

// DeleteDisk deletes a disk that is no longer attached to any instance.
func (host *GCPHost) DeleteDisk(ctx context.Context, disk types.DiskName) error {
	zone := string(host.placements.DiskZone(disk, host.Zone))

	host.log.Infof("Delete disk %s", disk)
	op, err := host.Compute.Disks.Delete(host.Project, zone, string(disk)).RequestId(uuid.NewString()).Context(ctx).Do()
	if err == nil {
		err = host.wait(ctx, zone, op)
	}
	if err != nil {
		return &types.ProviderOperationError{Operation: "delete", Resource: string(disk), Err: err}
	}
	return nil
}
