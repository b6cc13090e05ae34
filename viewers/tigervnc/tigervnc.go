// Copyright (c) 2022 Whist Technologies, Inc.

// Package tigervnc runs the TigerVNC viewer.
package tigervnc // import "github.com/whisthq/whist/backend/cloud-desktop/viewers/tigervnc"

import (
	"context"
	"strconv"
	"time"

	"github.com/whisthq/whist/backend/cloud-desktop/executable"
	"github.com/whisthq/whist/backend/cloud-desktop/types"
	"github.com/whisthq/whist/backend/cloud-desktop/utils"
	"go.uber.org/zap"
)

// UNSET_LEVEL leaves the compress or quality level to the viewer.
const UNSET_LEVEL = -1

// optionSchema maps the generic options accepted by vncviewer to whether
// they take a value.
var optionSchema = map[string]bool{
	"PasswordFile":      true,
	"CompressLevel":     true,
	"QualityLevel":      true,
	"PreferredEncoding": true,
	"DesktopSize":       true,
	"Geometry":          true,
	"Log":               true,

	"FullScreen":      false,
	"Shared":          false,
	"ViewOnly":        false,
	"AutoSelect":      false,
	"FullColor":       false,
	"DotWhenNoCursor": false,
	"RemoteResize":    false,
}

// Options are the vncviewer parameters of a session.
type Options struct {
	PasswordFile  string
	CompressLevel int
	QualityLevel  int
	Extra         []types.Option
}

// TigerVNC runs vncviewer against the local end of the tunnel. A viewer run
// that reports a refused connection is retried until Timeout, since the VNC
// server may still be starting on a fresh machine.
type TigerVNC struct {
	Runner  executable.Runner
	Command string
	Options Options
	Timeout time.Duration

	log *zap.SugaredLogger
}

func New(command string, opts Options, timeout time.Duration, log *zap.SugaredLogger) *TigerVNC {
	return &TigerVNC{
		Runner:  executable.New(command, log),
		Command: command,
		Options: opts,
		Timeout: timeout,
		log:     log,
	}
}

// Args returns the vncviewer arguments connecting to localPort.
func Args(opts Options, localPort int) []string {
	var args []string
	if opts.PasswordFile != "" {
		args = append(args, "-PasswordFile", opts.PasswordFile)
	}
	if opts.CompressLevel != UNSET_LEVEL {
		args = append(args, "-CompressLevel", strconv.Itoa(opts.CompressLevel))
	}
	if opts.QualityLevel != UNSET_LEVEL {
		args = append(args, "-QualityLevel", strconv.Itoa(opts.QualityLevel))
	}
	for _, o := range opts.Extra {
		args = append(args, "-"+o.Name)
		if o.Value != nil {
			args = append(args, *o.Value)
		}
	}
	return append(args, utils.Sprintf("::%d", localPort))
}

// Connect runs vncviewer until it exits.
func (v *TigerVNC) Connect(ctx context.Context, localPort int) error {
	if err := types.ValidateOptions(v.Options.Extra, optionSchema); err != nil {
		return err
	}
	args := Args(v.Options, localPort)

	v.log.Infof("Connect to localhost:%d via vncviewer", localPort)
	_, err := utils.Retry(ctx, v.log, v.Timeout, func() (*executable.Result, error) {
		return v.run(ctx, args)
	})
	return err
}

func (v *TigerVNC) run(ctx context.Context, args []string) (*executable.Result, error) {
	result, err := v.Runner.Execute(ctx, args, executable.Options{
		CaptureStdout: true,
		CaptureStderr: true,
		Echo:          true,
	})
	if result != nil {
		output := result.Stdout + result.Stderr
		if utils.ContainsFold(output, "connection refused") {
			return result, &types.RefusedConnectionError{Command: v.Command, Output: output}
		}
	}
	return result, err
}
