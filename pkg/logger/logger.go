// Copyright (c) 2022 Whist Technologies, Inc.

// Package logger builds the zap logger that is handed to every component of
// cloud-desktop. Console output always goes to stderr, since stdout belongs
// to the external tools we launch. When the corresponding environment
// variables are set, errors are additionally reported to Sentry and all
// messages are shipped to Logz.io.
//
// There is no package-level logger: New should be called once at the top of
// main, and the returned handle passed down to the components that need it.
package logger // import "github.com/whisthq/whist/backend/cloud-desktop/pkg/logger"

import (
	"os"
	"strings"

	"github.com/whisthq/whist/backend/cloud-desktop/utils"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps a sugared zap logger together with the cores that need to be
// flushed before exiting.
type Logger struct {
	*zap.SugaredLogger
	base *zap.Logger
}

// ParseLevel converts a level name into a zap level. The names `trace` and
// `fatal` are accepted for compatibility with older configuration files.
func ParseLevel(name string) (zapcore.Level, error) {
	switch strings.ToLower(name) {
	case "trace", "debug":
		return zapcore.DebugLevel, nil
	case "", "info":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	case "fatal":
		return zapcore.FatalLevel, nil
	default:
		return zapcore.InfoLevel, utils.MakeError("invalid log level %q. One of followings: [trace, debug, info, warn, error, fatal]", name)
	}
}

// New creates a logger that writes to stderr at the given level.
func New(level string) (*Logger, error) {
	return NewWithOutput(level, zapcore.Lock(os.Stderr))
}

// NewWithOutput is like New, but writes console output to out.
func NewWithOutput(level string, out zapcore.WriteSyncer) (*Logger, error) {
	consoleLevel, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}

	// Sentry only receives errors, Logz.io receives everything.
	onlyErrors := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return lvl >= zapcore.ErrorLevel
	})
	allLevels := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return true
	})

	consoleEncoderConfig := zap.NewDevelopmentEncoderConfig()
	consoleEncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder

	core := zapcore.NewTee(
		zapcore.NewCore(zapcore.NewConsoleEncoder(consoleEncoderConfig), out, consoleLevel),
		newRemoteCore(newSentrySink(), onlyErrors),
		newRemoteCore(newLogzioSink(), allLevels),
	)

	base := zap.New(core)
	return &Logger{SugaredLogger: base.Sugar(), base: base}, nil
}

// Close flushes the queues and sends the pending events to the
// corresponding outputs. This should be called before exiting the program.
func (l *Logger) Close() {
	err := l.base.Sync()
	if err != nil && !isIgnorableSyncError(err) {
		l.Errorf("failed to drain log queues: %s", err)
	}
}

// Syncing a terminal returns EINVAL (or ENOTTY) on most platforms.
func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "invalid argument") || strings.Contains(msg, "inappropriate ioctl")
}

// newRemoteEncoderConfig returns a configuration that is appropiate for
// the JSON payloads sent to Sentry and Logz.io.
func newRemoteEncoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "type",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.EpochTimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}
