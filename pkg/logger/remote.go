// Copyright (c) 2022 Whist Technologies, Inc.

package logger

import (
	"go.uber.org/zap/zapcore"
)

// sink delivers log entries to a remote service.
type sink interface {
	// send receives the entry, its JSON encoding and every context field
	// attached to the entry, including the ones added through With.
	send(ent zapcore.Entry, payload []byte, fields map[string]interface{}) error
	flush() error
}

// remoteCore encodes the entries accepted by enabler and hands them to a
// sink.
type remoteCore struct {
	enabler zapcore.LevelEnabler
	encoder zapcore.Encoder
	sink    sink
	// context collects the fields added through With.
	context []zapcore.Field
}

func newRemoteCore(s sink, enabler zapcore.LevelEnabler) zapcore.Core {
	if s == nil {
		return zapcore.NewNopCore()
	}
	return &remoteCore{
		enabler: enabler,
		encoder: zapcore.NewJSONEncoder(newRemoteEncoderConfig()),
		sink:    s,
	}
}

func (rc *remoteCore) Enabled(level zapcore.Level) bool {
	return rc.enabler.Enabled(level)
}

func (rc *remoteCore) With(fields []zapcore.Field) zapcore.Core {
	core := &remoteCore{
		enabler: rc.enabler,
		encoder: rc.encoder.Clone(),
		sink:    rc.sink,
		context: append(append([]zapcore.Field{}, rc.context...), fields...),
	}
	for i := range fields {
		fields[i].AddTo(core.encoder)
	}
	return core
}

func (rc *remoteCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if rc.Enabled(ent.Level) {
		return ce.AddCore(ent, rc)
	}
	return ce
}

func (rc *remoteCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	buf, err := rc.encoder.EncodeEntry(ent, fields)
	if err != nil {
		return err
	}
	defer buf.Free()

	values := zapcore.NewMapObjectEncoder()
	for _, f := range rc.context {
		f.AddTo(values)
	}
	for _, f := range fields {
		f.AddTo(values)
	}

	if err := rc.sink.send(ent, buf.Bytes(), values.Fields); err != nil {
		return err
	}
	if ent.Level > zapcore.ErrorLevel {
		// The process may be about to exit.
		return rc.Sync()
	}
	return nil
}

func (rc *remoteCore) Sync() error {
	return rc.sink.flush()
}
