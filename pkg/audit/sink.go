/*
Copyright 2025 NSLNV.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package audit

import (
	"context"
	"sort"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Sink defines the interface for audit event destinations.
type Sink interface {
	// Write sends an audit event to the sink.
	Write(ctx context.Context, event *Event) error

	// Close releases any resources held by the sink.
	Close() error

	// Name returns the sink's identifier.
	Name() string
}

// LogSink writes audit events to the application log. Event context is
// emitted as a nested object so log pipelines can index individual keys.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger.Named("audit")}
}

// eventContext marshals an event context with sorted keys
type eventContext map[string]interface{}

func (c eventContext) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := enc.AddReflected(k, c[k]); err != nil {
			return err
		}
	}
	return nil
}

// Write logs the event at its level
func (s *LogSink) Write(_ context.Context, event *Event) error {
	fields := []zap.Field{
		zap.String("eventId", event.ID),
		zap.String("eventType", string(event.Type)),
		zap.Time("occurredAt", event.Timestamp),
	}
	if len(event.Context) > 0 {
		fields = append(fields, zap.Object("context", eventContext(event.Context)))
	}

	if ce := s.logger.Check(event.Level.zapLevel(), event.Message); ce != nil {
		ce.Write(fields...)
	}
	return nil
}

func (s *LogSink) Close() error {
	return nil
}

func (s *LogSink) Name() string {
	return "log"
}
