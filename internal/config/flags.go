// Copyright (c) 2022 Whist Technologies, Inc.

package config

import (
	"os/user"

	"github.com/spf13/pflag"
	"github.com/whisthq/whist/backend/cloud-desktop/hosts"
)

// RegisterBackendFlags adds the flags that select the backends and the log
// level.
func RegisterBackendFlags(f *pflag.FlagSet) {
	f.String("cloud", string(GCP), "The cloud backend, one of [gcp, gcloud, aws].")
	f.String("ssh", string(OpenSSH), "The ssh backend, one of [openssh, go].")
	f.String("vncviewer", string(TigerVNC), "The vncviewer backend, one of [tigervnc].")
	f.String("log-level", "info", "One of followings: [trace, debug, info, warn, error, fatal].")
}

// RegisterTunnelFlags adds the flags of the ssh tunnel and the viewer.
func RegisterTunnelFlags(f *pflag.FlagSet) {
	f.Int("local-port", -1, "The port number of the localhost. Defaults to the remote port.")
	f.IntP("port", "p", 22, "The port number of the ssh server.")
	f.StringP("login-name", "l", currentUser(), "The login name.")
	f.StringP("identity-file", "i", "", "The path of the identity file.")

	f.String("ssh-path", "ssh", "The path of the `ssh` command.")
	f.Int("ssh-timeout-time", 0, "How long to keep retrying ssh [sec].")
	f.Int("ssh-wait-time", 0, "How long to wait after the tunnel is up [sec].")
	f.StringSlice("ssh-option", nil, "Extra ssh options of the form Key=Value.")
	f.String("known-hosts", "", "The known hosts file restored after the session. Defaults to ~/.ssh/known_hosts.")

	f.String("vncviewer-path", "vncviewer", "The path of the `vncviewer` command.")
	f.String("password-file", "~/.vnc/passwd", "The path of the vnc password file.")
	f.Int("quality-level", -1, "The JPEG quality level, 0 = Low, 9 = High.")
	f.Int("compress-level", -1, "The compression level, 0 = Low, 9 = High.")
	f.StringSlice("vncviewer-option", nil, "Extra vncviewer options of the form Key or Key=Value.")
	f.Int("vncviewer-timeout-time", 0, "How long to keep retrying vncviewer [sec].")
}

// RegisterMachineFlags adds the flags of the cloud machine and its disk.
func RegisterMachineFlags(f *pflag.FlagSet) {
	f.String("machine-type", "", "The machine type.")
	f.Int("vcpu", 0, "The number of CPUs of a custom machine type.")
	f.Float64("memory", 0, "The memory of a custom machine type [GB].")
	f.StringSlice("accelerator", nil, "The accelerators, of the form type=count.")
	f.Bool("preemptible", false, "Use a preemptible machine.")
	f.StringSlice("tags", nil, "The network tags.")
	f.String("zone", "", "The zone.")

	f.String("project", "", "The project. Defaults to the project of the credentials.")
	f.String("credentials", "", "The path of a service account key file.")
	f.String("gcloud-path", "gcloud", "The path of the `gcloud` command.")
	f.String("api-endpoint", "", "The base URL of the compute API.")
	f.String("aws-image-id", "", "The AMI used to bootstrap EC2 instances.")

	f.String("disk", "", "The boot disk. Defaults to the machine name.")
	f.String("instance-name", "", "The instance name. Defaults to the machine name.")
	f.Bool("prepare-disk", false, "Restore the disk from its newest snapshot if it does not exist.")
	f.Bool("snapshot", false, "Snapshot the disk when the session ends.")
	f.Bool("snapshot-before-terminate", false, "Take the snapshot before terminating the machine.")
	f.Bool("delete-disk", false, "Delete the disk once it has been snapshotted.")

	f.String("snapshot-labels.disk-name", hosts.DefaultSnapshotLabels.DiskName, "The snapshot label holding the disk name.")
	f.String("snapshot-labels.disk-type", hosts.DefaultSnapshotLabels.DiskType, "The snapshot label holding the disk type.")
	f.String("snapshot-labels.project", hosts.DefaultSnapshotLabels.Project, "The snapshot label holding the project.")
}

func currentUser() string {
	u, err := user.Current()
	if err != nil {
		return ""
	}
	return u.Username
}
