// Copyright (c) 2022 Whist Technologies, Inc.

package logger

import (
	"log"
	"os"
	"time"

	"github.com/logzio/logzio-go"
	"github.com/whisthq/whist/backend/cloud-desktop/utils"
	"go.uber.org/zap/zapcore"
)

const (
	LOGZIO_LISTENER_URL   = "https://listener.logz.io:8071"
	LOGZIO_DRAIN_DURATION = 3 * time.Second
)

type logzioSink struct {
	sender *logzio.LogzioSender
}

// newLogzioSink returns nil when LOGZIO_SHIPPING_TOKEN is not set.
func newLogzioSink() sink {
	token := os.Getenv("LOGZIO_SHIPPING_TOKEN")
	if token == "" {
		return nil
	}

	sender, err := logzio.New(
		token,
		logzio.SetUrl(LOGZIO_LISTENER_URL),
		logzio.SetDrainDuration(LOGZIO_DRAIN_DURATION),
		logzio.SetCheckDiskSpace(false),
	)
	if err != nil {
		// The logger is not built yet.
		log.Printf("couldn't create logz.io sender: %s", err)
		return nil
	}
	return &logzioSink{sender: sender}
}

// send ships the JSON payload, which already carries the context fields.
func (s *logzioSink) send(_ zapcore.Entry, payload []byte, _ map[string]interface{}) error {
	if err := s.sender.Send(payload); err != nil {
		return utils.MakeError("couldn't send payload to logz.io: %s", err)
	}
	return nil
}

func (s *logzioSink) flush() error {
	return s.sender.Sync()
}
