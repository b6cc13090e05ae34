// Copyright (c) 2022 Whist Technologies, Inc.

// Package aws implements the compute driver on EC2. Disks are EBS volumes
// tagged with their name. EC2 cannot launch an instance from an existing
// volume, so instances are launched from a bootstrap image and their root
// volume is replaced by the session disk before the first boot.
package aws // import "github.com/whisthq/whist/backend/cloud-desktop/hosts/aws"

import (
	"context"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2Types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/smithy-go"
	"github.com/lithammer/shortuuid/v3"
	"github.com/whisthq/whist/backend/cloud-desktop/hosts"
	"github.com/whisthq/whist/backend/cloud-desktop/types"
	"github.com/whisthq/whist/backend/cloud-desktop/utils"
	"go.uber.org/zap"
)

type AWSHost struct {
	Region  string
	Zone    types.Zone
	ImageID string
	EC2     EC2API

	// Instances are looked up by name in the whole region, only the disk
	// zones need remembering.
	placements hosts.Placements
	log        *zap.SugaredLogger
}

// RegionFromZone strips the trailing letter of an availability zone.
func RegionFromZone(zone string) string {
	if len(zone) == 0 {
		return zone
	}
	last := zone[len(zone)-1]
	if last >= 'a' && last <= 'z' {
		return zone[:len(zone)-1]
	}
	return zone
}

// Initialize starts the AWS and EC2 clients in the region of the zone.
func (host *AWSHost) Initialize(ctx context.Context, log *zap.SugaredLogger, opts Options) error {
	region := RegionFromZone(opts.Zone)

	// Initialize general AWS config on the selected region
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return utils.MakeError("unable to load AWS SDK config: %s", err)
	}

	host.Region = region
	host.Zone = types.Zone(opts.Zone)
	host.ImageID = opts.ImageID
	host.EC2 = ec2.NewFromConfig(cfg)
	host.log = log
	return nil
}

// New returns a host using an existing client.
func New(client EC2API, log *zap.SugaredLogger, zone types.Zone, imageID string) *AWSHost {
	return &AWSHost{
		Region:  RegionFromZone(string(zone)),
		Zone:    zone,
		ImageID: imageID,
		EC2:     client,
		log:     log,
	}
}

func nameFilter(name string) ec2Types.Filter {
	return ec2Types.Filter{Name: aws.String("tag:" + NAME_TAG), Values: []string{name}}
}

func tagSpecification(resource ec2Types.ResourceType, tags map[string]string) []ec2Types.TagSpecification {
	spec := ec2Types.TagSpecification{ResourceType: resource}
	for k, v := range tags {
		spec.Tags = append(spec.Tags, ec2Types.Tag{Key: aws.String(k), Value: aws.String(v)})
	}
	return []ec2Types.TagSpecification{spec}
}

func tagValue(tags []ec2Types.Tag, key string) string {
	for _, t := range tags {
		if aws.ToString(t.Key) == key {
			return aws.ToString(t.Value)
		}
	}
	return ""
}

// findInstance returns the live instance tagged with name.
func (host *AWSHost) findInstance(ctx context.Context, name types.InstanceName) (ec2Types.Instance, error) {
	out, err := host.EC2.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		Filters: []ec2Types.Filter{
			nameFilter(string(name)),
			{Name: aws.String("instance-state-name"), Values: []string{"pending", "running", "stopping", "stopped"}},
		},
	})
	if err != nil {
		return ec2Types.Instance{}, utils.MakeError("error describing instance %s: %w", name, err)
	}
	for _, r := range out.Reservations {
		if len(r.Instances) > 0 {
			return r.Instances[0], nil
		}
	}
	return ec2Types.Instance{}, utils.MakeError("no instance named %s", name)
}

// findVolume returns the volume tagged with name in zone, if any.
func (host *AWSHost) findVolume(ctx context.Context, name types.DiskName, zone types.Zone) (*ec2Types.Volume, error) {
	out, err := host.EC2.DescribeVolumes(ctx, &ec2.DescribeVolumesInput{
		Filters: []ec2Types.Filter{
			nameFilter(string(name)),
			{Name: aws.String("availability-zone"), Values: []string{string(zone)}},
		},
	})
	if err != nil {
		return nil, utils.MakeError("error describing volume %s: %w", name, err)
	}
	if len(out.Volumes) == 0 {
		return nil, nil
	}
	return &out.Volumes[0], nil
}

func (host *AWSHost) zoneOf(zone types.Zone) types.Zone {
	if zone == "" {
		return host.Zone
	}
	return zone
}

// CreateMachine launches an instance, swaps its root volume for the disk
// and starts it again.
func (host *AWSHost) CreateMachine(ctx context.Context, instance types.InstanceName, disk types.DiskName, spec types.MachineSpec) error {
	if spec.Type.Name == "" {
		return &types.InvalidArgumentError{Argument: "machine-type", Reason: "EC2 only supports named instance types"}
	}
	if err := host.createMachine(ctx, instance, disk, spec); err != nil {
		return &types.MachineCreateError{Instance: string(instance), Err: err}
	}
	return nil
}

func (host *AWSHost) createMachine(ctx context.Context, instance types.InstanceName, disk types.DiskName, spec types.MachineSpec) error {
	zone := host.zoneOf(spec.Zone)
	host.placements.PlaceDisk(disk, zone)
	if len(spec.Accelerators) > 0 {
		host.log.Warnf("Accelerators %v are ignored, the instance type %s determines them on EC2", spec.Accelerators, spec.Type)
	}

	volume, err := host.findVolume(ctx, disk, zone)
	if err != nil {
		return err
	}
	if volume == nil {
		return utils.MakeError("disk %s does not exist in %s", disk, zone)
	}

	input := &ec2.RunInstancesInput{
		MinCount:          aws.Int32(INSTANCE_COUNT),
		MaxCount:          aws.Int32(INSTANCE_COUNT),
		ImageId:           aws.String(host.ImageID),
		InstanceType:      ec2Types.InstanceType(spec.Type.Name),
		Placement:         &ec2Types.Placement{AvailabilityZone: aws.String(string(zone))},
		SecurityGroups:    spec.Tags,
		TagSpecifications: tagSpecification(ec2Types.ResourceTypeInstance, map[string]string{NAME_TAG: string(instance)}),
		ClientToken:       aws.String(shortuuid.New()),
	}
	if spec.Preemptible {
		// Only persistent spot requests can be stopped, which the root swap
		// needs.
		input.InstanceMarketOptions = &ec2Types.InstanceMarketOptionsRequest{
			MarketType: ec2Types.MarketTypeSpot,
			SpotOptions: &ec2Types.SpotMarketOptions{
				SpotInstanceType:             ec2Types.SpotInstanceTypePersistent,
				InstanceInterruptionBehavior: ec2Types.InstanceInterruptionBehaviorStop,
			},
		}
	}

	host.log.Infof("Create VM(name=%s, type=%s)", instance, spec.Type)
	result, err := host.EC2.RunInstances(ctx, input)
	if err != nil {
		return utils.MakeError("error creating instance: %w", err)
	}
	if len(result.Instances) == 0 {
		return utils.MakeError("no instance was launched")
	}
	id := aws.ToString(result.Instances[0].InstanceId)

	if err := host.waitForInstanceRunning(ctx, id); err != nil {
		return err
	}

	described, err := host.EC2.DescribeInstances(ctx, &ec2.DescribeInstancesInput{InstanceIds: []string{id}})
	if err != nil {
		return utils.MakeError("error describing instance %s: %w", id, err)
	}
	if len(described.Reservations) == 0 || len(described.Reservations[0].Instances) == 0 {
		return utils.MakeError("instance %s disappeared", id)
	}
	launched := described.Reservations[0].Instances[0]
	rootDevice := aws.ToString(launched.RootDeviceName)

	if err := host.stopInstance(ctx, id); err != nil {
		return err
	}

	for _, mapping := range launched.BlockDeviceMappings {
		if aws.ToString(mapping.DeviceName) != rootDevice || mapping.Ebs == nil {
			continue
		}
		if err := host.deleteBootstrapVolume(ctx, id, aws.ToString(mapping.Ebs.VolumeId)); err != nil {
			return err
		}
	}

	host.log.Infof("Attach disk %s to %s as %s", disk, instance, rootDevice)
	_, err = host.EC2.AttachVolume(ctx, &ec2.AttachVolumeInput{
		Device:     aws.String(rootDevice),
		InstanceId: aws.String(id),
		VolumeId:   volume.VolumeId,
	})
	if err != nil {
		return utils.MakeError("error attaching disk %s: %w", disk, err)
	}
	err = ec2.NewVolumeInUseWaiter(host.EC2).Wait(ctx, &ec2.DescribeVolumesInput{VolumeIds: []string{aws.ToString(volume.VolumeId)}}, MAX_WAIT_TIME)
	if err != nil {
		return utils.MakeError("failed waiting for disk %s to be attached: %w", disk, err)
	}

	host.log.Infof("Start VM(name=%s)", instance)
	if _, err := host.EC2.StartInstances(ctx, &ec2.StartInstancesInput{InstanceIds: []string{id}}); err != nil {
		return utils.MakeError("error starting instance %s: %w", id, err)
	}
	return host.waitForInstanceRunning(ctx, id)
}

func (host *AWSHost) deleteBootstrapVolume(ctx context.Context, instanceID, volumeID string) error {
	host.log.Debugf("Detach bootstrap volume %s", volumeID)
	_, err := host.EC2.DetachVolume(ctx, &ec2.DetachVolumeInput{
		InstanceId: aws.String(instanceID),
		VolumeId:   aws.String(volumeID),
	})
	if err != nil {
		return utils.MakeError("error detaching volume %s: %w", volumeID, err)
	}

	err = ec2.NewVolumeAvailableWaiter(host.EC2).Wait(ctx, &ec2.DescribeVolumesInput{VolumeIds: []string{volumeID}}, MAX_WAIT_TIME)
	if err != nil {
		return utils.MakeError("failed waiting for volume %s to be detached: %w", volumeID, err)
	}

	if _, err := host.EC2.DeleteVolume(ctx, &ec2.DeleteVolumeInput{VolumeId: aws.String(volumeID)}); err != nil {
		return utils.MakeError("error deleting volume %s: %w", volumeID, err)
	}
	return nil
}

// waitForInstanceRunning waits until the given instance is running on AWS.
func (host *AWSHost) waitForInstanceRunning(ctx context.Context, id string) error {
	waiter := ec2.NewInstanceRunningWaiter(host.EC2)
	err := waiter.Wait(ctx, &ec2.DescribeInstancesInput{InstanceIds: []string{id}}, MAX_WAIT_TIME)
	if err != nil {
		return utils.MakeError("failed waiting for instance %s to be running: %w", id, err)
	}
	return nil
}

func (host *AWSHost) stopInstance(ctx context.Context, id string) error {
	if _, err := host.EC2.StopInstances(ctx, &ec2.StopInstancesInput{InstanceIds: []string{id}}); err != nil {
		return utils.MakeError("error stopping instance %s: %w", id, err)
	}

	waiter := ec2.NewInstanceStoppedWaiter(host.EC2)
	err := waiter.Wait(ctx, &ec2.DescribeInstancesInput{InstanceIds: []string{id}}, MAX_WAIT_TIME)
	if err != nil {
		return utils.MakeError("failed waiting for instance %s to stop: %w", id, err)
	}
	return nil
}

// GetPublicIPAddress returns the public address of the instance.
func (host *AWSHost) GetPublicIPAddress(ctx context.Context, instance types.InstanceName) (string, error) {
	i, err := host.findInstance(ctx, instance)
	if err != nil {
		return "", &types.ProviderOperationError{Operation: "get", Resource: string(instance), Err: err}
	}
	if aws.ToString(i.PublicIpAddress) == "" {
		return "", &types.AddressNotFoundError{Instance: string(instance)}
	}
	return aws.ToString(i.PublicIpAddress), nil
}

// TerminateMachine stops the instance, then terminates it. Volumes attached
// after launch are kept on termination.
func (host *AWSHost) TerminateMachine(ctx context.Context, instance types.InstanceName) error {
	if err := host.terminateMachine(ctx, instance); err != nil {
		return &types.MachineTerminateError{Instance: string(instance), Err: err}
	}
	return nil
}

func (host *AWSHost) terminateMachine(ctx context.Context, instance types.InstanceName) error {
	i, err := host.findInstance(ctx, instance)
	if err != nil {
		return err
	}
	id := aws.ToString(i.InstanceId)

	host.log.Infof("Stop VM(name=%s)", instance)
	if err := host.stopInstance(ctx, id); err != nil {
		return err
	}

	host.log.Infof("Delete VM(name=%s)", instance)
	if _, err := host.EC2.TerminateInstances(ctx, &ec2.TerminateInstancesInput{InstanceIds: []string{id}}); err != nil {
		return utils.MakeError("error terminating instance %s: %w", id, err)
	}

	waiter := ec2.NewInstanceTerminatedWaiter(host.EC2)
	err = waiter.Wait(ctx, &ec2.DescribeInstancesInput{InstanceIds: []string{id}}, MAX_WAIT_TIME)
	if err != nil {
		return utils.MakeError("failed waiting for instance %s to terminate: %w", id, err)
	}
	return nil
}

// PrepareDisk restores a missing volume from its newest snapshot.
func (host *AWSHost) PrepareDisk(ctx context.Context, disk types.DiskName, zone types.Zone, labels types.SnapshotLabels) error {
	if err := host.prepareDisk(ctx, disk, host.zoneOf(zone), labels); err != nil {
		return &types.DiskPrepareError{Disk: string(disk), Err: err}
	}
	return nil
}

func (host *AWSHost) prepareDisk(ctx context.Context, disk types.DiskName, zone types.Zone, labels types.SnapshotLabels) error {
	host.placements.PlaceDisk(disk, zone)
	volume, err := host.findVolume(ctx, disk, zone)
	if err != nil {
		return err
	}
	if volume != nil {
		host.log.Infof("Disk %s already exists", disk)
		return nil
	}

	labelValue := hosts.DiskNameLabelValue(zone, disk)
	out, err := host.EC2.DescribeSnapshots(ctx, &ec2.DescribeSnapshotsInput{
		OwnerIds: []string{"self"},
		Filters: []ec2Types.Filter{
			{Name: aws.String("tag:" + labels.DiskName), Values: []string{labelValue}},
		},
	})
	if err != nil {
		return utils.MakeError("error describing snapshots: %w", err)
	}

	newest, found := hosts.Newest(out.Snapshots, func(s ec2Types.Snapshot) time.Time {
		return aws.ToTime(s.StartTime)
	})
	if !found {
		return &types.NoSnapshotFoundError{Disk: string(disk), Zone: string(zone), Filter: "tag:" + labels.DiskName + "=" + labelValue}
	}

	input := &ec2.CreateVolumeInput{
		AvailabilityZone:  aws.String(string(zone)),
		SnapshotId:        newest.SnapshotId,
		Size:              newest.VolumeSize,
		TagSpecifications: tagSpecification(ec2Types.ResourceTypeVolume, map[string]string{NAME_TAG: string(disk)}),
	}
	if volumeType := tagValue(newest.Tags, labels.DiskType); volumeType != "" {
		input.VolumeType = ec2Types.VolumeType(volumeType)
	}

	host.log.Infof("Restore disk %s from snapshot %s", disk, aws.ToString(newest.SnapshotId))
	created, err := host.EC2.CreateVolume(ctx, input)
	if err != nil {
		return utils.MakeError("error creating volume %s: %w", disk, err)
	}

	err = ec2.NewVolumeAvailableWaiter(host.EC2).Wait(ctx, &ec2.DescribeVolumesInput{VolumeIds: []string{aws.ToString(created.VolumeId)}}, MAX_WAIT_TIME)
	if err != nil {
		return utils.MakeError("failed waiting for volume %s to be available: %w", disk, err)
	}
	return nil
}

// CreateSnapshot snapshots the volume, tagged with its name, type and
// region.
func (host *AWSHost) CreateSnapshot(ctx context.Context, disk types.DiskName, snapshot string, zone types.Zone, labels types.SnapshotLabels) error {
	if err := host.createSnapshot(ctx, disk, snapshot, host.zoneOf(zone), labels); err != nil {
		return &types.ProviderOperationError{Operation: "snapshot", Resource: string(disk), Err: err}
	}
	return nil
}

func (host *AWSHost) createSnapshot(ctx context.Context, disk types.DiskName, snapshot string, zone types.Zone, labels types.SnapshotLabels) error {
	host.placements.PlaceDisk(disk, zone)
	volume, err := host.findVolume(ctx, disk, zone)
	if err != nil {
		return err
	}
	if volume == nil {
		return utils.MakeError("disk %s does not exist in %s", disk, zone)
	}

	host.log.Infof("Create snapshot %s of disk %s", snapshot, disk)
	out, err := host.EC2.CreateSnapshot(ctx, &ec2.CreateSnapshotInput{
		VolumeId:    volume.VolumeId,
		Description: aws.String(snapshot),
		TagSpecifications: tagSpecification(ec2Types.ResourceTypeSnapshot, map[string]string{
			NAME_TAG:        snapshot,
			labels.DiskName: hosts.DiskNameLabelValue(zone, disk),
			labels.DiskType: string(volume.VolumeType),
			labels.Project:  RegionFromZone(string(zone)),
		}),
	})
	if err != nil {
		return err
	}

	err = ec2.NewSnapshotCompletedWaiter(host.EC2).Wait(ctx, &ec2.DescribeSnapshotsInput{SnapshotIds: []string{aws.ToString(out.SnapshotId)}}, MAX_WAIT_TIME)
	if err != nil {
		return utils.MakeError("failed waiting for snapshot %s: %w", snapshot, err)
	}
	return nil
}

// DeleteDisk deletes the volume. A volume that is already gone is not an
// error.
func (host *AWSHost) DeleteDisk(ctx context.Context, disk types.DiskName) error {
	volume, err := host.findVolume(ctx, disk, host.placements.DiskZone(disk, host.Zone))
	if err != nil {
		return &types.ProviderOperationError{Operation: "delete", Resource: string(disk), Err: err}
	}
	if volume == nil {
		host.log.Infof("Disk %s is already deleted", disk)
		return nil
	}

	host.log.Infof("Delete disk %s", disk)
	_, err = host.EC2.DeleteVolume(ctx, &ec2.DeleteVolumeInput{VolumeId: volume.VolumeId})
	if err != nil && !isNotFound(err) {
		return &types.ProviderOperationError{Operation: "delete", Resource: string(disk), Err: err}
	}
	return nil
}

func isNotFound(err error) bool {
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "InvalidVolume.NotFound"
}
