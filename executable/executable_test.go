// Copyright (c) 2022 Whist Technologies, Inc.

package executable

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/whisthq/whist/backend/cloud-desktop/types"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestExecuteCapturesStdout(t *testing.T) {
	echo := New("echo", zap.NewNop().Sugar())
	result, err := echo.Execute(context.Background(), []string{"value"}, Options{CaptureStdout: true})
	if err != nil {
		t.Fatalf("did not expect error, got: %s", err)
	}
	if result.Stdout != "value\n" {
		t.Errorf("expected stdout %q, got %q", "value\n", result.Stdout)
	}
}

func TestExecuteStreams(t *testing.T) {
	var stdout, stderr bytes.Buffer
	sh := New("sh", zap.NewNop().Sugar())
	sh.Stdout = &stdout
	sh.Stderr = &stderr

	var tests = []struct {
		name                   string
		opts                   Options
		captured, terminal     string
		capturedErr, streamErr string
	}{
		{"stream everything", Options{}, "", "out\n", "", "err\n"},
		{"capture stdout only", Options{CaptureStdout: true}, "out\n", "", "", "err\n"},
		{"capture and echo", Options{CaptureStdout: true, CaptureStderr: true, Echo: true}, "out\n", "out\n", "err\n", "err\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stdout.Reset()
			stderr.Reset()

			result, err := sh.Execute(context.Background(), []string{"-c", "echo out; echo err >&2"}, tt.opts)
			if err != nil {
				t.Fatalf("did not expect error, got: %s", err)
			}
			if result.Stdout != tt.captured {
				t.Errorf("expected captured stdout %q, got %q", tt.captured, result.Stdout)
			}
			if stdout.String() != tt.terminal {
				t.Errorf("expected streamed stdout %q, got %q", tt.terminal, stdout.String())
			}
			if result.Stderr != tt.capturedErr {
				t.Errorf("expected captured stderr %q, got %q", tt.capturedErr, result.Stderr)
			}
			if stderr.String() != tt.streamErr {
				t.Errorf("expected streamed stderr %q, got %q", tt.streamErr, stderr.String())
			}
		})
	}
}

func TestExecuteFailures(t *testing.T) {
	var tests = []struct {
		name     string
		command  string
		args     []string
		exitCode int
	}{
		{"non-zero exit", "sh", []string{"-c", "exit 3"}, 3},
		{"command not found", "./not-found", nil, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := New(tt.command, zap.NewNop().Sugar())
			_, err := e.Execute(context.Background(), tt.args, Options{CaptureStdout: true, CaptureStderr: true})

			var failure *types.CommandFailedError
			if !errors.As(err, &failure) {
				t.Fatalf("expected a CommandFailedError, got %v", err)
			}
			if failure.ExitCode != tt.exitCode {
				t.Errorf("expected exit code %d, got %d", tt.exitCode, failure.ExitCode)
			}
			if failure.Command != tt.command {
				t.Errorf("expected command %s, got %s", tt.command, failure.Command)
			}
		})
	}
}

func TestExecuteLogsCommandLine(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	e := New("echo", zap.New(core).Sugar())

	if _, err := e.Execute(context.Background(), []string{"a", "b"}, Options{CaptureStdout: true}); err != nil {
		t.Fatalf("did not expect error, got: %s", err)
	}

	entries := logs.FilterMessage("echo a b").All()
	if len(entries) != 1 {
		t.Errorf("expected a single diagnostic line, got %d", len(entries))
	}
}

func TestStartAndKill(t *testing.T) {
	e := New("sleep", zap.NewNop().Sugar())
	p, err := e.Start(context.Background(), []string{"30"}, Options{})
	if err != nil {
		t.Fatalf("did not expect error, got: %s", err)
	}
	if p.Pid() <= 0 {
		t.Errorf("expected a valid pid, got %d", p.Pid())
	}

	killed := make(chan error, 1)
	go func() { killed <- p.Kill() }()

	select {
	case err := <-killed:
		if err != nil {
			t.Errorf("did not expect error, got: %s", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for the process to be killed")
	}

	var failure *types.CommandFailedError
	if !errors.As(p.Wait(), &failure) || failure.Signal == "" {
		t.Errorf("expected the killed process to report a signal, got %v", p.Wait())
	}

	// A second kill is a no-op.
	if err := p.Kill(); err != nil {
		t.Errorf("did not expect error, got: %s", err)
	}
}

func TestStartRejectsCapture(t *testing.T) {
	e := New("sleep", zap.NewNop().Sugar())

	var tests = []struct {
		name string
		opts Options
	}{
		{"stdout", Options{CaptureStdout: true}},
		{"stderr", Options{CaptureStderr: true}},
		{"both", Options{CaptureStdout: true, CaptureStderr: true, Echo: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := e.Start(context.Background(), []string{"30"}, tt.opts)
			var invalid *types.InvalidArgumentError
			if !errors.As(err, &invalid) {
				t.Errorf("expected an InvalidArgumentError, got %v", err)
			}
			if p != nil {
				p.Kill()
				t.Errorf("expected no process to be started")
			}
		})
	}
}
