// Copyright (c) 2022 Whist Technologies, Inc.

package session

import (
	"context"

	"github.com/whisthq/whist/backend/cloud-desktop/tunnels"
	"github.com/whisthq/whist/backend/cloud-desktop/types"
	"github.com/whisthq/whist/backend/cloud-desktop/viewers"
	"go.uber.org/zap"
)

// RemoteDesktop shows the desktop of a running machine: it forwards the VNC
// port over ssh, runs the viewer, and closes the tunnel once the viewer
// exits.
type RemoteDesktop struct {
	Tunnel tunnels.Tunnel
	Viewer viewers.Viewer
	// Template carries the ssh parameters. Its host and ports are filled in
	// by Connect.
	Template types.TunnelSpec

	// enter is notified when the tunnel is being opened and when the
	// viewer is started.
	enter func(Phase)
	log   *zap.SugaredLogger
}

func NewRemoteDesktop(tunnel tunnels.Tunnel, viewer viewers.Viewer, template types.TunnelSpec, log *zap.SugaredLogger) *RemoteDesktop {
	return &RemoteDesktop{
		Tunnel:   tunnel,
		Viewer:   viewer,
		Template: template,
		log:      log,
	}
}

func (rd *RemoteDesktop) notify(p Phase) {
	if rd.enter != nil {
		rd.enter(p)
	}
}

// Connect blocks until the viewer exits. Failures are logged as warnings and
// the first of them is returned. The tunnel is closed in any case, and a
// failure to close it is only logged.
func (rd *RemoteDesktop) Connect(ctx context.Context, host string, remotePort, localPort int) error {
	spec := rd.Template
	spec.Host = host
	spec.RemotePort = remotePort
	spec.LocalPort = localPort

	rd.log.Infof("port (localhost): %d", localPort)
	rd.log.Infof("port (remote): %d", remotePort)

	rd.notify(Tunneling)
	exit, err := rd.Tunnel.PortForward(ctx, spec)
	if err != nil {
		rd.log.Warnf("Couldn't forward port %d of %s: %s", remotePort, host, err)
		return err
	}

	rd.notify(Viewing)
	rd.log.Infof("Connect to %s via vncviewer", host)
	err = rd.Viewer.Connect(ctx, localPort)
	if err != nil {
		rd.log.Warnf("vncviewer failed: %s", err)
	}

	// The tunnel is closed even if the session was interrupted.
	if exitErr := exit(context.WithoutCancel(ctx)); exitErr != nil {
		rd.log.Warnf("Couldn't stop port forwarding: %s", exitErr)
	}
	return err
}
