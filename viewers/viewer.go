// Copyright (c) 2022 Whist Technologies, Inc.

// Package viewers defines the driver that shows the remote desktop.
package viewers // import "github.com/whisthq/whist/backend/cloud-desktop/viewers"

import "context"

// Viewer connects to a VNC server listening on localhost:localPort and
// blocks until the user closes the viewer.
type Viewer interface {
	Connect(ctx context.Context, localPort int) error
}
