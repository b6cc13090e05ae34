// Copyright (c) 2022 Whist Technologies, Inc.

// Package config loads the layered configuration of a cloud desktop session.
// Values come from the global JSON file, the CLOUD_DESKTOP_* environment
// variables, the per-machine JSON file and the command line, in that order of
// precedence. config.Load should be called once at the top of the command,
// after the flags have been parsed.
package config // import "github.com/whisthq/whist/backend/cloud-desktop/internal/config"

import (
	"strings"
	"time"

	"github.com/whisthq/whist/backend/cloud-desktop/types"
	"github.com/whisthq/whist/backend/cloud-desktop/utils"
)

// ComputeBackend selects the driver used to manage instances and disks.
type ComputeBackend string

// TunnelBackend selects the driver used to forward the viewer port.
type TunnelBackend string

// ViewerBackend selects the local viewer.
type ViewerBackend string

const (
	GCP    ComputeBackend = "gcp"
	GCloud ComputeBackend = "gcloud"
	AWS    ComputeBackend = "aws"

	OpenSSH TunnelBackend = "openssh"
	GoSSH   TunnelBackend = "go"

	TigerVNC ViewerBackend = "tigervnc"
)

// ParseComputeBackend resolves a backend name, ignoring case.
func ParseComputeBackend(name string) (ComputeBackend, error) {
	switch b := ComputeBackend(strings.ToLower(name)); b {
	case GCP, GCloud, AWS:
		return b, nil
	}
	return "", &types.InvalidArgumentError{Argument: "cloud", Reason: utils.Sprintf("invalid cloud backend: %s", name)}
}

// ParseTunnelBackend resolves a backend name, ignoring case.
func ParseTunnelBackend(name string) (TunnelBackend, error) {
	switch b := TunnelBackend(strings.ToLower(name)); b {
	case OpenSSH, GoSSH:
		return b, nil
	}
	return "", &types.InvalidArgumentError{Argument: "ssh", Reason: utils.Sprintf("invalid ssh backend: %s", name)}
}

// ParseViewerBackend resolves a backend name, ignoring case.
func ParseViewerBackend(name string) (ViewerBackend, error) {
	switch b := ViewerBackend(strings.ToLower(name)); b {
	case TigerVNC:
		return b, nil
	}
	return "", &types.InvalidArgumentError{Argument: "vncviewer", Reason: utils.Sprintf("invalid vncviewer backend: %s", name)}
}

// SnapshotLabels holds the names of the labels put on snapshots.
type SnapshotLabels struct {
	DiskName string `koanf:"disk-name"`
	DiskType string `koanf:"disk-type"`
	Project  string `koanf:"project"`
}

// Config is the merged configuration of a session. Durations are expressed
// in seconds.
type Config struct {
	Cloud     string `koanf:"cloud"`
	SSH       string `koanf:"ssh"`
	VNCViewer string `koanf:"vncviewer"`
	LogLevel  string `koanf:"log-level"`

	// LocalPort is the port on localhost the viewer connects to. A negative
	// value reuses the remote port.
	LocalPort    int    `koanf:"local-port"`
	Port         int    `koanf:"port"`
	LoginName    string `koanf:"login-name"`
	IdentityFile string `koanf:"identity-file"`

	SSHPath        string   `koanf:"ssh-path"`
	SSHTimeoutTime int      `koanf:"ssh-timeout-time"`
	SSHWaitTime    int      `koanf:"ssh-wait-time"`
	SSHOptions     []string `koanf:"ssh-option"`
	KnownHosts     string   `koanf:"known-hosts"`

	VNCViewerPath string `koanf:"vncviewer-path"`
	PasswordFile  string `koanf:"password-file"`
	// QualityLevel and CompressLevel are left to the viewer when negative.
	QualityLevel         int      `koanf:"quality-level"`
	CompressLevel        int      `koanf:"compress-level"`
	VNCViewerOptions     []string `koanf:"vncviewer-option"`
	VNCViewerTimeoutTime int      `koanf:"vncviewer-timeout-time"`

	MachineType  string   `koanf:"machine-type"`
	VCPU         int      `koanf:"vcpu"`
	Memory       float64  `koanf:"memory"`
	Accelerators []string `koanf:"accelerator"`
	Preemptible  bool     `koanf:"preemptible"`
	Tags         []string `koanf:"tags"`
	Zone         string   `koanf:"zone"`

	Project     string `koanf:"project"`
	Credentials string `koanf:"credentials"`
	GcloudPath  string `koanf:"gcloud-path"`
	APIEndpoint string `koanf:"api-endpoint"`
	AWSImageID  string `koanf:"aws-image-id"`

	Disk                    string `koanf:"disk"`
	InstanceName            string `koanf:"instance-name"`
	PrepareDisk             bool   `koanf:"prepare-disk"`
	Snapshot                bool   `koanf:"snapshot"`
	SnapshotBeforeTerminate bool   `koanf:"snapshot-before-terminate"`
	DeleteDisk              bool   `koanf:"delete-disk"`

	SnapshotLabels SnapshotLabels `koanf:"snapshot-labels"`
}

// Backends resolves the three backend names.
func (c *Config) Backends() (ComputeBackend, TunnelBackend, ViewerBackend, error) {
	compute, err := ParseComputeBackend(c.Cloud)
	if err != nil {
		return "", "", "", err
	}
	tunnel, err := ParseTunnelBackend(c.SSH)
	if err != nil {
		return "", "", "", err
	}
	viewer, err := ParseViewerBackend(c.VNCViewer)
	if err != nil {
		return "", "", "", err
	}
	return compute, tunnel, viewer, nil
}

// Validate checks the values that can be checked before anything is
// allocated in the cloud. Machine settings are only checked when withMachine
// is set, since a plain tunnel and viewer session does not need them.
func (c *Config) Validate(withMachine bool) error {
	if _, _, _, err := c.Backends(); err != nil {
		return err
	}

	if c.LocalPort > 65535 || c.LocalPort == 0 {
		return &types.InvalidArgumentError{Argument: "local-port", Reason: utils.Sprintf("%d is not a valid port", c.LocalPort)}
	}
	if c.Port < 1 || c.Port > 65535 {
		return &types.InvalidArgumentError{Argument: "port", Reason: utils.Sprintf("%d is not a valid port", c.Port)}
	}
	if c.SSHTimeoutTime < 0 || c.SSHWaitTime < 0 || c.VNCViewerTimeoutTime < 0 {
		return &types.InvalidArgumentError{Argument: "timeout-time", Reason: "durations cannot be negative"}
	}
	// -1 leaves the level to vncviewer.
	if c.QualityLevel < -1 || c.QualityLevel > 9 {
		return &types.InvalidArgumentError{Argument: "quality-level", Reason: utils.Sprintf("%d is not -1 or a level from 0 to 9", c.QualityLevel)}
	}
	if c.CompressLevel < -1 || c.CompressLevel > 9 {
		return &types.InvalidArgumentError{Argument: "compress-level", Reason: utils.Sprintf("%d is not -1 or a level from 0 to 9", c.CompressLevel)}
	}

	if !withMachine {
		return nil
	}

	if _, err := types.ParseAccelerators(c.Accelerators); err != nil {
		return err
	}
	if c.Zone == "" {
		return &types.InvalidArgumentError{Argument: "zone", Reason: "no zone is specified"}
	}
	return c.machineType().Validate()
}

func (c *Config) machineType() types.MachineType {
	return types.MachineType{
		Name:     c.MachineType,
		VCPU:     c.VCPU,
		MemoryGB: c.Memory,
	}
}

// ResolveNames returns the instance and disk names of the machine. Both
// default to the machine name.
func (c *Config) ResolveNames(machine string) (types.InstanceName, types.DiskName) {
	instance, disk := c.InstanceName, c.Disk
	if instance == "" {
		instance = machine
	}
	if disk == "" {
		disk = machine
	}
	return types.InstanceName(instance), types.DiskName(disk)
}

// MachineSpec builds the create-time parameters of the machine.
func (c *Config) MachineSpec(machine string) (types.MachineSpec, error) {
	accelerators, err := types.ParseAccelerators(c.Accelerators)
	if err != nil {
		return types.MachineSpec{}, err
	}

	instance, disk := c.ResolveNames(machine)
	return types.MachineSpec{
		Name:         instance,
		Disk:         disk,
		Zone:         types.Zone(c.Zone),
		Type:         c.machineType(),
		Accelerators: accelerators,
		Preemptible:  c.Preemptible,
		Tags:         c.Tags,
	}, nil
}

// Labels returns the snapshot label names.
func (c *Config) Labels() types.SnapshotLabels {
	return types.SnapshotLabels{
		DiskName: c.SnapshotLabels.DiskName,
		DiskType: c.SnapshotLabels.DiskType,
		Project:  c.SnapshotLabels.Project,
	}
}

// ResolveLocalPort returns the configured local port, or remotePort when
// none is configured.
func (c *Config) ResolveLocalPort(remotePort int) int {
	if c.LocalPort < 0 {
		return remotePort
	}
	return c.LocalPort
}

// TunnelSpec returns the forwarding parameters for host.
func (c *Config) TunnelSpec(host string, remotePort int) types.TunnelSpec {
	return types.TunnelSpec{
		Host:         host,
		Port:         c.Port,
		User:         c.LoginName,
		IdentityFile: c.IdentityFile,
		RemotePort:   remotePort,
		LocalPort:    c.ResolveLocalPort(remotePort),
		Options:      types.ParseOptions(c.SSHOptions),
	}
}

func (c *Config) SSHTimeout() time.Duration {
	return time.Duration(c.SSHTimeoutTime) * time.Second
}

func (c *Config) SSHWait() time.Duration {
	return time.Duration(c.SSHWaitTime) * time.Second
}

func (c *Config) VNCViewerTimeout() time.Duration {
	return time.Duration(c.VNCViewerTimeoutTime) * time.Second
}
