// Copyright (c) 2022 Whist Technologies, Inc.

package utils

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

func TestRetry(t *testing.T) {
	var tests = []struct {
		name          string
		deadline      time.Duration
		expectedCalls int
		err           bool
	}{
		{"retry until success", 1000 * time.Second, 10, false},
		{"fail when timeout", 0, 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			result, err := Retry(context.Background(), zap.NewNop().Sugar(), tt.deadline, func() (int, error) {
				calls++
				if calls == 10 {
					return calls, nil
				}
				return 0, MakeError("attempt %d", calls)
			})

			if calls != tt.expectedCalls {
				t.Errorf("expected %d calls, got %d", tt.expectedCalls, calls)
			}
			if tt.err {
				if err == nil || err.Error() != "attempt 1" {
					t.Errorf("expected the first failure, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("did not expect error, got: %s", err)
			}
			if result != 10 {
				t.Errorf("expected result 10, got %d", result)
			}
		})
	}
}

// TestRetryReturnsLastError makes sure that the most recent failure is the
// one reported once the deadline elapses.
func TestRetryReturnsLastError(t *testing.T) {
	start := time.Unix(0, 0)
	elapsed := time.Duration(0)
	now = func() time.Time { return start.Add(elapsed) }
	t.Cleanup(func() { now = time.Now })

	calls := 0
	_, err := Retry(context.Background(), zap.NewNop().Sugar(), 3*time.Second, func() (struct{}, error) {
		calls++
		elapsed += time.Second
		return struct{}{}, MakeError("attempt %d", calls)
	})

	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
	if err == nil || err.Error() != "attempt 3" {
		t.Errorf("expected the last failure, got %v", err)
	}
}

func TestRetryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := Retry(ctx, zap.NewNop().Sugar(), time.Hour, func() (int, error) {
		calls++
		if calls == 2 {
			cancel()
		}
		return 0, errors.New("still failing")
	})

	if err == nil {
		t.Fatalf("expected an error")
	}
	if calls != 2 {
		t.Errorf("expected retries to stop after cancellation, got %d calls", calls)
	}
}

func TestBackupFile(t *testing.T) {
	var tests = []struct {
		name     string
		original *string
	}{
		{"restore existing file", strPtr("original")},
		{"delete file that did not exist", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			path := "/home/user/.ssh/known_hosts"
			if tt.original != nil {
				if err := afero.WriteFile(fs, path, []byte(*tt.original), 0600); err != nil {
					t.Fatalf("failed to write fixture: %v", err)
				}
			}

			restore, err := BackupFile(fs, zap.NewNop().Sugar(), path)
			if err != nil {
				t.Fatalf("did not expect error, got: %s", err)
			}

			if err := afero.WriteFile(fs, path, []byte("mutated"), 0644); err != nil {
				t.Fatalf("failed to mutate fixture: %v", err)
			}

			if err := restore(context.Background()); err != nil {
				t.Fatalf("did not expect error while restoring, got: %s", err)
			}

			exists, err := afero.Exists(fs, path)
			if err != nil {
				t.Fatal(err)
			}
			if tt.original == nil {
				if exists {
					t.Errorf("expected %s to be deleted", path)
				}
				return
			}

			content, err := afero.ReadFile(fs, path)
			if err != nil {
				t.Fatal(err)
			}
			if string(content) != *tt.original {
				t.Errorf("expected content %q, got %q", *tt.original, content)
			}
		})
	}
}

// TestBackupFileAlreadyGone checks that restoring a file which never existed
// and was never created is not an error.
func TestBackupFileAlreadyGone(t *testing.T) {
	fs := afero.NewMemMapFs()
	restore, err := BackupFile(fs, zap.NewNop().Sugar(), "/nonexistent")
	if err != nil {
		t.Fatalf("did not expect error, got: %s", err)
	}
	if err := restore(context.Background()); err != nil {
		t.Errorf("did not expect error, got: %s", err)
	}
}

func TestContainsFold(t *testing.T) {
	if !ContainsFold("vncviewer: Connection Refused (111)", "connection refused") {
		t.Errorf("expected a case-insensitive match")
	}
	if ContainsFold("connected", "connection refused") {
		t.Errorf("did not expect a match")
	}
}

func strPtr(s string) *string {
	return &s
}

func TestExpandHome(t *testing.T) {
	t.Setenv("HOME", "/home/user")

	var tests = []struct {
		path     string
		expected string
	}{
		{"~/.ssh/id_ed25519", "/home/user/.ssh/id_ed25519"},
		{"~", "/home/user"},
		{"/etc/ssh/key", "/etc/ssh/key"},
		{"~other/key", "~other/key"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := ExpandHome(tt.path); got != tt.expected {
			t.Errorf("ExpandHome(%q): expected %q, got %q", tt.path, tt.expected, got)
		}
	}
}
