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
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Kafka message headers set on every audit event
const (
	HeaderEventType   = "event-type"
	HeaderLevel       = "level"
	HeaderSource      = "source"
	HeaderContentType = "content-type"
)

// KafkaSinkConfig configures a KafkaSink.
type KafkaSinkConfig struct {
	Brokers []string
	Topic   string

	// TLS enables TLS with the system roots.
	TLS bool

	// Source is sent in the source header so consumers can tell
	// deployments apart. Default: "leaddesk"
	Source string

	// BatchSize defaults to 100, BatchTimeout to 1s and WriteTimeout to 10s.
	BatchSize    int
	BatchTimeout time.Duration
	WriteTimeout time.Duration
}

// messageWriter is the subset of *kafka.Writer used by the sink
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes audit events as JSON to a Kafka topic. Events about
// the same lead share a partition key, so consumers see one lead's history
// in order.
type KafkaSink struct {
	writer messageWriter
	topic  string
	source string
	logger *zap.Logger

	mu     sync.Mutex
	closed bool

	written atomic.Int64
	failed  atomic.Int64
}

// NewKafkaSink creates a KafkaSink backed by a batching kafka.Writer
func NewKafkaSink(cfg KafkaSinkConfig, logger *zap.Logger) (*KafkaSink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("at least one Kafka broker is required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka topic is required")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}

	transport := &kafka.Transport{ClientID: "leaddesk-audit"}
	if cfg.TLS {
		transport.TLS = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
		WriteTimeout: cfg.WriteTimeout,
		RequiredAcks: kafka.RequireAll,
		Compression:  kafka.Snappy,
		Transport:    transport,
	}

	logger.Info("Kafka audit sink created",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("topic", cfg.Topic),
		zap.Bool("tls", cfg.TLS))

	return newKafkaSink(writer, cfg.Topic, cfg.Source, logger), nil
}

func newKafkaSink(w messageWriter, topic, source string, logger *zap.Logger) *KafkaSink {
	if source == "" {
		source = "leaddesk"
	}
	return &KafkaSink{
		writer: w,
		topic:  topic,
		source: source,
		logger: logger.Named("kafka-audit"),
	}
}

// partitionKey picks the lead id, then the acting admin, then the event type
func partitionKey(e *Event) []byte {
	if v, ok := e.Context["leadId"]; ok && v != nil {
		return []byte(fmt.Sprintf("lead:%v", v))
	}
	for _, k := range []string{"adminUsername", "username"} {
		if v, ok := e.Context[k].(string); ok && v != "" {
			return []byte("admin:" + v)
		}
	}
	return []byte("type:" + string(e.Type))
}

// classifyKafkaError buckets a write error for logs and the returned error
func classifyKafkaError(err error) string {
	if err == nil {
		return ""
	}

	var werrs kafka.WriteErrors
	if errors.As(err, &werrs) {
		for _, e := range werrs {
			if e != nil {
				return classifyKafkaError(e)
			}
		}
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	}

	var kerr kafka.Error
	if errors.As(err, &kerr) {
		switch {
		case kerr == kafka.SASLAuthenticationFailed || kerr == kafka.TopicAuthorizationFailed:
			return "auth"
		case kerr == kafka.UnknownTopicOrPartition || kerr == kafka.InvalidTopic:
			return "topic"
		case kerr.Timeout():
			return "timeout"
		case kerr.Temporary():
			return "broker"
		default:
			return "rejected"
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return "timeout"
		}
		return "network"
	}
	return "other"
}

// Write publishes one event
func (s *KafkaSink) Write(ctx context.Context, event *Event) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return errors.New("kafka sink is closed")
	}

	value, err := json.Marshal(event)
	if err != nil {
		s.failed.Add(1)
		return fmt.Errorf("failed to marshal audit event: %w", err)
	}

	msg := kafka.Message{
		Key:   partitionKey(event),
		Value: value,
		Time:  event.Timestamp,
		Headers: []kafka.Header{
			{Key: HeaderEventType, Value: []byte(event.Type)},
			{Key: HeaderLevel, Value: []byte(event.Level)},
			{Key: HeaderSource, Value: []byte(s.source)},
			{Key: HeaderContentType, Value: []byte("application/json")},
		},
	}

	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		kind := classifyKafkaError(err)
		s.failed.Add(1)

		fields := []zap.Field{
			zap.Error(err),
			zap.String("kind", kind),
			zap.String("eventId", event.ID),
			zap.String("eventType", string(event.Type)),
		}
		if kind == "network" || kind == "timeout" || kind == "broker" {
			s.logger.Warn("Kafka temporarily unavailable, audit event dropped", fields...)
		} else {
			s.logger.Error("Failed to publish audit event", fields...)
		}
		return fmt.Errorf("failed to write to Kafka (%s): %w", kind, err)
	}

	s.written.Add(1)
	return nil
}

// Close flushes pending batches and closes the writer
func (s *KafkaSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	s.logger.Info("Closing Kafka audit sink",
		zap.String("topic", s.topic),
		zap.Int64("written", s.written.Load()),
		zap.Int64("failed", s.failed.Load()))

	if err := s.writer.Close(); err != nil {
		return fmt.Errorf("failed to close Kafka writer: %w", err)
	}
	return nil
}

func (s *KafkaSink) Name() string {
	return "kafka"
}

// MessageStats returns the number of published and failed messages
func (s *KafkaSink) MessageStats() (written, failed int64) {
	return s.written.Load(), s.failed.Load()
}
