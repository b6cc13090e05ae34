// Copyright (c) 2022 Whist Technologies, Inc.

package logger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	var tests = []struct {
		name     string
		expected zapcore.Level
		err      bool
	}{
		{"trace", zapcore.DebugLevel, false},
		{"debug", zapcore.DebugLevel, false},
		{"info", zapcore.InfoLevel, false},
		{"", zapcore.InfoLevel, false},
		{"WARN", zapcore.WarnLevel, false},
		{"error", zapcore.ErrorLevel, false},
		{"fatal", zapcore.FatalLevel, false},
		{"verbose", zapcore.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			level, err := ParseLevel(tt.name)
			if tt.err != (err != nil) {
				t.Fatalf("expected error %v, got %v", tt.err, err)
			}
			if level != tt.expected {
				t.Errorf("expected level %s, got %s", tt.expected, level)
			}
		})
	}
}

func TestNewWithOutputFiltersLevels(t *testing.T) {
	t.Setenv("SENTRY_DSN", "")
	t.Setenv("LOGZIO_SHIPPING_TOKEN", "")

	var buf bytes.Buffer
	log, err := NewWithOutput("warn", zapcore.AddSync(&buf))
	if err != nil {
		t.Fatalf("did not expect error, got: %s", err)
	}

	log.Infof("hidden %d", 1)
	log.Warnf("shown %d", 2)
	log.Close()

	output := buf.String()
	if strings.Contains(output, "hidden 1") {
		t.Errorf("expected info messages to be filtered out, got %q", output)
	}
	if !strings.Contains(output, "shown 2") {
		t.Errorf("expected warning to be written, got %q", output)
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New("loud"); err == nil {
		t.Errorf("expected an unknown level to be rejected")
	}
}

type sent struct {
	level   zapcore.Level
	message string
	payload string
	fields  map[string]interface{}
}

type fakeSink struct {
	sent    []sent
	flushed int
}

func (s *fakeSink) send(ent zapcore.Entry, payload []byte, fields map[string]interface{}) error {
	s.sent = append(s.sent, sent{ent.Level, ent.Message, string(payload), fields})
	return nil
}

func (s *fakeSink) flush() error {
	s.flushed++
	return nil
}

func TestRemoteCore(t *testing.T) {
	s := &fakeSink{}
	onlyErrors := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return lvl >= zapcore.ErrorLevel
	})
	log := zap.New(newRemoteCore(s, onlyErrors)).Sugar().With("session", "1234")

	log.Infow("ignored")
	log.Errorw("couldn't terminate", "instance", "vm")
	if err := log.Sync(); err != nil {
		t.Fatalf("did not expect error on sync, got: %s", err)
	}

	if len(s.sent) != 1 {
		t.Fatalf("expected a single entry, got %d", len(s.sent))
	}
	got := s.sent[0]
	if got.level != zapcore.ErrorLevel || got.message != "couldn't terminate" {
		t.Errorf("unexpected entry %+v", got)
	}
	expected := map[string]interface{}{"session": "1234", "instance": "vm"}
	if diff := cmp.Diff(expected, got.fields); diff != "" {
		t.Errorf("unexpected fields (-want +got):\n%s", diff)
	}
	if !strings.Contains(got.payload, `"session":"1234"`) || !strings.Contains(got.payload, `"message":"couldn't terminate"`) {
		t.Errorf("expected the payload to carry the message and the context, got %s", got.payload)
	}
	if s.flushed != 1 {
		t.Errorf("expected one flush, got %d", s.flushed)
	}
}

func TestRemoteCoreWithoutSink(t *testing.T) {
	if core := newRemoteCore(nil, zapcore.DebugLevel); core.Enabled(zapcore.FatalLevel) {
		t.Errorf("expected a disabled core without a sink")
	}
}
