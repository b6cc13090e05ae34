// Copyright (c) 2022 Whist Technologies, Inc.

// Package tunnels defines the driver that forwards a local port to a port on
// the remote machine.
package tunnels // import "github.com/whisthq/whist/backend/cloud-desktop/tunnels"

import (
	"context"

	"github.com/whisthq/whist/backend/cloud-desktop/types"
)

// Tunnel forwards spec.LocalPort on localhost to spec.RemotePort on the
// remote host. The returned handle closes the tunnel and undoes any local
// side effect of opening it.
type Tunnel interface {
	PortForward(ctx context.Context, spec types.TunnelSpec) (types.ExitHandle, error)
}
