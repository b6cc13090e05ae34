// Copyright (c) 2022 Whist Technologies, Inc.

/*
The cloud-desktop command starts a machine in the cloud, connects a local VNC
viewer to it through an ssh tunnel and terminates the machine when the viewer
is closed.

Every flag can also be set in the JSON files
$CLOUD_DESKTOP_CONFIG (by default <user config dir>/cloud-desktop/config.json)
and machines/<name>.json next to it, or through CLOUD_DESKTOP_* environment
variables.
*/
package main // import "github.com/whisthq/whist/backend/cloud-desktop"

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}

// run executes the command line and returns the exit code.
func run(ctx context.Context, args []string) int {
	cmd := newRootCommand()
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(ctx)
	var logged *loggedError
	if err != nil && !errors.As(err, &logged) {
		cmd.PrintErrln("Error:", err)
	}
	return exitCode(err)
}
