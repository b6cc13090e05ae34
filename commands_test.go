// Copyright (c) 2022 Whist Technologies, Inc.

package main

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/pflag"
	"github.com/whisthq/whist/backend/cloud-desktop/internal/config"
	"github.com/whisthq/whist/backend/cloud-desktop/types"
	"github.com/whisthq/whist/backend/cloud-desktop/viewers/tigervnc"
)

func TestExitCode(t *testing.T) {
	var tests = []struct {
		name     string
		err      error
		expected int
	}{
		{"success", nil, EXIT_OK},
		{"usage", &usageError{err: errors.New("unknown flag")}, EXIT_INVALID_ARGUMENTS},
		{"invalid argument", &loggedError{err: &types.InvalidArgumentError{Argument: "zone"}}, EXIT_INVALID_ARGUMENTS},
		{"terminate", &loggedError{err: &types.MachineTerminateError{Instance: "vm", Err: errors.New("busy")}}, EXIT_TERMINATE_FAILED},
		{
			name:     "invalid argument while terminating",
			err:      &types.MachineTerminateError{Instance: "vm", Err: &types.InvalidArgumentError{Argument: "zone"}},
			expected: EXIT_TERMINATE_FAILED,
		},
		{"other", errors.New("no credentials"), EXIT_TERMINATE_FAILED},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCode(tt.err); got != tt.expected {
				t.Errorf("expected exit code %d, got %d", tt.expected, got)
			}
		})
	}
}

func TestRunRejectsInvalidInvocations(t *testing.T) {
	// No configuration file is read from the user's directory.
	t.Setenv("CLOUD_DESKTOP_CONFIG", filepath.Join(t.TempDir(), "config.json"))

	var tests = []struct {
		name string
		args []string
	}{
		{"no target", []string{}},
		{"two targets", []string{"foo:1", "bar:1"}},
		{"no port", []string{"foo"}},
		{"unknown flag", []string{"--bogus", "foo:1"}},
		{"unknown cloud", []string{"--cloud", "azure", "--zone", "us-west1-b", "--machine-type", "n1-standard-1", "foo:1"}},
		{"no zone", []string{"--machine-type", "n1-standard-1", "foo:1"}},
		{"no machine type", []string{"--zone", "us-west1-b", "foo:1"}},
		{"unknown log level", []string{"--log-level", "loud", "foo:1"}},
		{"unknown ssh backend", []string{"vnc-with-ssh", "--ssh", "telnet", "host:1"}},
		{"vnc-with-ssh without port", []string{"vnc-with-ssh", "host"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code := run(context.Background(), tt.args); code != EXIT_INVALID_ARGUMENTS {
				t.Errorf("expected exit code %d, got %d", EXIT_INVALID_ARGUMENTS, code)
			}
		})
	}
}

func TestViewerOptionsExpandDefaultPasswordFile(t *testing.T) {
	t.Setenv("HOME", "/home/user")
	t.Setenv("CLOUD_DESKTOP_CONFIG", filepath.Join(t.TempDir(), "config.json"))

	flags := pflag.NewFlagSet("vnc-with-ssh", pflag.ContinueOnError)
	config.RegisterBackendFlags(flags)
	config.RegisterTunnelFlags(flags)
	if err := flags.Parse(nil); err != nil {
		t.Fatal(err)
	}

	cfg, err := config.Load(flags, "")
	if err != nil {
		t.Fatalf("did not expect error, got: %s", err)
	}

	expected := []string{"-PasswordFile", "/home/user/.vnc/passwd", "::5901"}
	if diff := cmp.Diff(expected, tigervnc.Args(viewerOptions(cfg), 5901)); diff != "" {
		t.Errorf("unexpected vncviewer arguments (-want +got):\n%s", diff)
	}
}
