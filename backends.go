// Copyright (c) 2022 Whist Technologies, Inc.

package main

import (
	"context"

	"github.com/whisthq/whist/backend/cloud-desktop/executable"
	"github.com/whisthq/whist/backend/cloud-desktop/hosts"
	"github.com/whisthq/whist/backend/cloud-desktop/hosts/aws"
	"github.com/whisthq/whist/backend/cloud-desktop/hosts/gcloud"
	"github.com/whisthq/whist/backend/cloud-desktop/hosts/gcp"
	"github.com/whisthq/whist/backend/cloud-desktop/internal/config"
	"github.com/whisthq/whist/backend/cloud-desktop/tunnels"
	"github.com/whisthq/whist/backend/cloud-desktop/tunnels/gossh"
	"github.com/whisthq/whist/backend/cloud-desktop/tunnels/openssh"
	"github.com/whisthq/whist/backend/cloud-desktop/types"
	"github.com/whisthq/whist/backend/cloud-desktop/utils"
	"github.com/whisthq/whist/backend/cloud-desktop/viewers"
	"github.com/whisthq/whist/backend/cloud-desktop/viewers/tigervnc"
	"go.uber.org/zap"
)

// newHost starts the client of the selected cloud.
func newHost(ctx context.Context, cfg *config.Config, backend config.ComputeBackend, log *zap.SugaredLogger) (hosts.HostHandler, error) {
	switch backend {
	case config.GCP:
		host := &gcp.GCPHost{}
		err := host.Initialize(ctx, log, gcp.Options{
			Project:         cfg.Project,
			Zone:            cfg.Zone,
			CredentialsFile: utils.ExpandHome(cfg.Credentials),
			APIBase:         cfg.APIEndpoint,
		})
		if err != nil {
			return nil, err
		}
		return host, nil

	case config.GCloud:
		runner := executable.New(cfg.GcloudPath, log)
		return gcloud.New(runner, log, cfg.Project, types.Zone(cfg.Zone)), nil

	case config.AWS:
		if cfg.AWSImageID == "" {
			return nil, &types.InvalidArgumentError{Argument: "aws-image-id", Reason: "an image is required to launch EC2 instances"}
		}
		host := &aws.AWSHost{}
		err := host.Initialize(ctx, log, aws.Options{
			Zone:    cfg.Zone,
			ImageID: cfg.AWSImageID,
		})
		if err != nil {
			return nil, err
		}
		return host, nil

	default:
		return nil, &types.InvalidArgumentError{Argument: "cloud", Reason: utils.Sprintf("invalid cloud backend: %s", backend)}
	}
}

func newTunnel(cfg *config.Config, backend config.TunnelBackend, log *zap.SugaredLogger) (tunnels.Tunnel, error) {
	switch backend {
	case config.OpenSSH:
		t := openssh.New(cfg.SSHPath, log)
		t.KnownHosts = utils.ExpandHome(cfg.KnownHosts)
		t.Timeout = cfg.SSHTimeout()
		t.Wait = cfg.SSHWait()
		return t, nil

	case config.GoSSH:
		t := gossh.New(log)
		t.Timeout = cfg.SSHTimeout()
		return t, nil

	default:
		return nil, &types.InvalidArgumentError{Argument: "ssh", Reason: utils.Sprintf("invalid ssh backend: %s", backend)}
	}
}

// viewerOptions expands the password file, since vncviewer does not.
func viewerOptions(cfg *config.Config) tigervnc.Options {
	return tigervnc.Options{
		PasswordFile:  utils.ExpandHome(cfg.PasswordFile),
		CompressLevel: cfg.CompressLevel,
		QualityLevel:  cfg.QualityLevel,
		Extra:         types.ParseOptions(cfg.VNCViewerOptions),
	}
}

func newViewer(cfg *config.Config, backend config.ViewerBackend, log *zap.SugaredLogger) (viewers.Viewer, error) {
	switch backend {
	case config.TigerVNC:
		return tigervnc.New(cfg.VNCViewerPath, viewerOptions(cfg), cfg.VNCViewerTimeout(), log), nil

	default:
		return nil, &types.InvalidArgumentError{Argument: "vncviewer", Reason: utils.Sprintf("invalid vncviewer backend: %s", backend)}
	}
}
