// Copyright (c) 2022 Whist Technologies, Inc.

package logger

import (
	"errors"
	"log"
	"os"
	"reflect"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/whisthq/whist/backend/cloud-desktop/utils"
	"go.uber.org/zap/zapcore"
)

// SENTRY_FLUSH_TIMEOUT bounds how long Close waits for pending events.
const SENTRY_FLUSH_TIMEOUT = 5 * time.Second

type sentrySink struct {
	client *sentry.Client
}

// newSentrySink returns nil when SENTRY_DSN is not set.
func newSentrySink() sink {
	dsn := os.Getenv("SENTRY_DSN")
	if dsn == "" {
		return nil
	}

	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: os.Getenv("CLOUD_DESKTOP_ENVIRONMENT"),
	})
	if err != nil {
		// The logger is not built yet.
		log.Printf("error starting Sentry client: %s", err)
		return nil
	}
	return &sentrySink{client: client}
}

// send reports the entry as an exception. Context fields, such as the
// session id, become tags so that the events of a session can be grouped.
func (s *sentrySink) send(ent zapcore.Entry, _ []byte, fields map[string]interface{}) error {
	err := errors.New(ent.Message)
	event := sentry.NewEvent()
	event.Level = sentry.Level(ent.Level.String())
	event.Timestamp = ent.Time
	event.Exception = append(event.Exception, sentry.Exception{
		Value:      ent.Message,
		Type:       reflect.TypeOf(err).String(),
		Stacktrace: sentry.ExtractStacktrace(err),
	})

	scope := sentry.NewScope()
	for key, value := range fields {
		scope.SetTag(key, utils.Sprintf("%v", value))
	}

	s.client.CaptureEvent(event, &sentry.EventHint{OriginalException: err}, scope)
	return nil
}

func (s *sentrySink) flush() error {
	if !s.client.Flush(SENTRY_FLUSH_TIMEOUT) {
		return utils.MakeError("failed to flush Sentry, some events may not have been sent")
	}
	return nil
}
