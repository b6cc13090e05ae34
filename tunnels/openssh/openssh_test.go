// Copyright (c) 2022 Whist Technologies, Inc.

package openssh

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"
	"github.com/whisthq/whist/backend/cloud-desktop/executable"
	"github.com/whisthq/whist/backend/cloud-desktop/tunnels"
	"github.com/whisthq/whist/backend/cloud-desktop/types"
	"go.uber.org/zap"
)

var _ tunnels.Tunnel = (*SSHTunnel)(nil)

const knownHosts = "/home/user/.ssh/known_hosts"

type fakeDaemon struct {
	killed  int
	killErr error
}

func (d *fakeDaemon) Pid() int32 { return 42 }

func (d *fakeDaemon) Kill(ctx context.Context) error {
	d.killed++
	return d.killErr
}

type fakeFinder struct {
	daemon  Daemon
	command string
	args    []string
}

func (f *fakeFinder) Find(ctx context.Context, command string, args []string) (Daemon, error) {
	f.command, f.args = command, args
	return f.daemon, nil
}

func newTestTunnel(runner executable.Runner, finder DaemonFinder) *SSHTunnel {
	return &SSHTunnel{
		Runner:     runner,
		Command:    "ssh",
		Fs:         afero.NewMemMapFs(),
		KnownHosts: knownHosts,
		Finder:     finder,
		log:        zap.NewNop().Sugar(),
	}
}

func testSpec() types.TunnelSpec {
	return types.TunnelSpec{
		Host:       "localhost",
		Port:       22,
		User:       "user",
		RemotePort: 1022,
		LocalPort:  8022,
	}
}

func TestArgs(t *testing.T) {
	var tests = []struct {
		name     string
		modify   func(s *types.TunnelSpec)
		expected []string
	}{
		{
			name:   "minimal",
			modify: func(s *types.TunnelSpec) {},
			expected: []string{"-o", "StrictHostKeyChecking=no", "-fNT", "-p", "22",
				"-L", "8022:localhost:1022", "-l", "user", "localhost"},
		},
		{
			name: "identity file and options",
			modify: func(s *types.TunnelSpec) {
				s.IdentityFile = "~/.ssh/id_ed25519"
				s.Options = types.ParseOptions([]string{"ConnectTimeout=5"})
			},
			expected: []string{"-o", "StrictHostKeyChecking=no", "-fNT", "-p", "22",
				"-L", "8022:localhost:1022", "-l", "user",
				"-i", "~/.ssh/id_ed25519", "-o", "ConnectTimeout=5", "localhost"},
		},
		{
			name: "option without value",
			modify: func(s *types.TunnelSpec) {
				s.Options = types.ParseOptions([]string{"Compression", "ServerAliveInterval=10"})
			},
			expected: []string{"-o", "StrictHostKeyChecking=no", "-fNT", "-p", "22",
				"-L", "8022:localhost:1022", "-l", "user",
				"-o", "Compression", "-o", "ServerAliveInterval=10", "localhost"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := testSpec()
			tt.modify(&spec)
			if diff := cmp.Diff(tt.expected, Args(spec)); diff != "" {
				t.Errorf("unexpected args (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPortForwardRestoresKnownHosts(t *testing.T) {
	var tun *SSHTunnel
	var gotArgs []string
	runner := executable.RunnerFunc(func(ctx context.Context, args []string, opts executable.Options) (*executable.Result, error) {
		gotArgs = args
		return &executable.Result{}, afero.WriteFile(tun.Fs, knownHosts, []byte("foobar"), 0600)
	})
	d := &fakeDaemon{}
	finder := &fakeFinder{daemon: d}
	tun = newTestTunnel(runner, finder)

	if err := afero.WriteFile(tun.Fs, knownHosts, []byte("original"), 0600); err != nil {
		t.Fatal(err)
	}

	exit, err := tun.PortForward(context.Background(), testSpec())
	if err != nil {
		t.Fatalf("did not expect error, got: %s", err)
	}
	if finder.command != "ssh" || !cmp.Equal(finder.args, gotArgs) {
		t.Errorf("expected the daemon to be looked up by its command line, got %s %v", finder.command, finder.args)
	}

	if err := exit(context.Background()); err != nil {
		t.Fatalf("did not expect error on exit, got: %s", err)
	}
	if d.killed != 1 {
		t.Errorf("expected the daemon to be killed once, got %d", d.killed)
	}

	content, err := afero.ReadFile(tun.Fs, knownHosts)
	if err != nil {
		t.Fatal(err)
	}
	if string(content) != "original" {
		t.Errorf("expected known_hosts to be restored, got %q", content)
	}
}

func TestPortForwardWithoutDaemon(t *testing.T) {
	runner := executable.RunnerFunc(func(ctx context.Context, args []string, opts executable.Options) (*executable.Result, error) {
		return &executable.Result{}, nil
	})
	tun := newTestTunnel(runner, &fakeFinder{})

	exit, err := tun.PortForward(context.Background(), testSpec())
	if err != nil {
		t.Fatalf("did not expect error, got: %s", err)
	}
	if err := exit(context.Background()); err != nil {
		t.Errorf("did not expect error on exit, got: %s", err)
	}
}

func TestPortForwardCommandNotFound(t *testing.T) {
	tun := newTestTunnel(executable.New("./not-found", zap.NewNop().Sugar()), &fakeFinder{})
	if err := afero.WriteFile(tun.Fs, knownHosts, []byte("original"), 0600); err != nil {
		t.Fatal(err)
	}

	_, err := tun.PortForward(context.Background(), testSpec())
	var failed *types.CommandFailedError
	if !errors.As(err, &failed) {
		t.Fatalf("expected a CommandFailedError, got %v", err)
	}
	if failed.ExitCode != -1 {
		t.Errorf("expected the command not to run, got exit code %d", failed.ExitCode)
	}
}

func TestPortForwardRetriesUntilTimeout(t *testing.T) {
	calls := 0
	runner := executable.RunnerFunc(func(ctx context.Context, args []string, opts executable.Options) (*executable.Result, error) {
		calls++
		if calls < 3 {
			return &executable.Result{}, &types.CommandFailedError{Command: "ssh", ExitCode: 255}
		}
		return &executable.Result{}, nil
	})
	tun := newTestTunnel(runner, &fakeFinder{})
	tun.Timeout = 1 << 40

	if _, err := tun.PortForward(context.Background(), testSpec()); err != nil {
		t.Fatalf("did not expect error, got: %s", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}
}

func TestPortForwardRejectsUnknownOption(t *testing.T) {
	called := false
	runner := executable.RunnerFunc(func(ctx context.Context, args []string, opts executable.Options) (*executable.Result, error) {
		called = true
		return &executable.Result{}, nil
	})
	tun := newTestTunnel(runner, &fakeFinder{})

	spec := testSpec()
	spec.Options = types.ParseOptions([]string{"ProxyCommand=nc %h %p"})
	_, err := tun.PortForward(context.Background(), spec)

	var invalid *types.InvalidArgumentError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected an InvalidArgumentError, got %v", err)
	}
	if called {
		t.Errorf("did not expect ssh to run")
	}
}

func TestExitHandleReportsKillFailure(t *testing.T) {
	runner := executable.RunnerFunc(func(ctx context.Context, args []string, opts executable.Options) (*executable.Result, error) {
		return &executable.Result{}, nil
	})
	d := &fakeDaemon{killErr: errors.New("operation not permitted")}
	tun := newTestTunnel(runner, &fakeFinder{daemon: d})

	exit, err := tun.PortForward(context.Background(), testSpec())
	if err != nil {
		t.Fatalf("did not expect error, got: %s", err)
	}
	if err := exit(context.Background()); err == nil {
		t.Errorf("expected the kill failure to be reported")
	}
	// The known hosts file is still taken care of.
	if exists, _ := afero.Exists(tun.Fs, knownHosts); exists {
		t.Errorf("expected known_hosts that did not exist to be removed")
	}
}

func TestMatchesCommandLine(t *testing.T) {
	args := []string{"-fNT", "host"}
	var tests = []struct {
		name    string
		cmdline []string
		command string
		match   bool
	}{
		{"exact", []string{"ssh", "-fNT", "host"}, "ssh", true},
		{"full path", []string{"/usr/bin/ssh", "-fNT", "host"}, "ssh", true},
		{"other args", []string{"ssh", "-fNT", "other"}, "ssh", false},
		{"other command", []string{"scp", "-fNT", "host"}, "ssh", false},
		{"extra args", []string{"ssh", "-v", "-fNT", "host"}, "ssh", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := matchesCommandLine(tt.cmdline, tt.command, args); got != tt.match {
				t.Errorf("expected %v, got %v", tt.match, got)
			}
		})
	}
}
