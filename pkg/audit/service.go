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
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/nslnv/leaddesk/pkg/metrics"
)

// Emitter is what request handlers depend on
type Emitter interface {
	Emit(ctx context.Context, event *Event)
}

// Nop discards events
type Nop struct{}

// Emit implements Emitter
func (Nop) Emit(context.Context, *Event) {}

// ServiceConfig configures the Service queue.
type ServiceConfig struct {
	// QueueSize bounds the number of buffered events.
	// Default: 1000
	QueueSize int

	// WorkerCount is the number of goroutines delivering events.
	// Default: 2
	WorkerCount int

	// WriteTimeout bounds a single sink write.
	// Default: 5s
	WriteTimeout time.Duration
}

// Service delivers events to every sink asynchronously. Emit never blocks the
// caller: when the queue is full the event is dropped and counted.
type Service struct {
	sinks  []Sink
	queue  chan *Event
	logger *zap.Logger
	config ServiceConfig

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	processed atomic.Int64
	dropped   atomic.Int64
}

var _ Emitter = (*Service)(nil)

// NewService starts the delivery workers.
func NewService(sinks []Sink, cfg ServiceConfig, logger *zap.Logger) *Service {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 2
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}

	s := &Service{
		sinks:  sinks,
		queue:  make(chan *Event, cfg.QueueSize),
		logger: logger.Named("audit-service"),
		config: cfg,
	}
	for i := 0; i < cfg.WorkerCount; i++ {
		s.wg.Add(1)
		go s.worker()
	}

	names := make([]string, 0, len(sinks))
	for _, sink := range sinks {
		names = append(names, sink.Name())
	}
	s.logger.Info("audit service started",
		zap.Strings("sinks", names),
		zap.Int("queue_size", cfg.QueueSize),
		zap.Int("workers", cfg.WorkerCount))
	return s
}

// Emit queues an event for delivery. It never blocks.
func (s *Service) Emit(_ context.Context, event *Event) {
	if event == nil {
		return
	}
	event.fill()

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}

	select {
	case s.queue <- event:
	default:
		s.dropped.Add(1)
		metrics.AuditEventsDropped.Inc()
		s.logger.Warn("audit queue full, dropping event",
			zap.String("event_type", string(event.Type)),
			zap.String("event_id", event.ID))
	}
}

// EmitSync writes an event to every sink before returning.
func (s *Service) EmitSync(ctx context.Context, event *Event) error {
	event.fill()
	return s.deliver(ctx, event)
}

func (s *Service) worker() {
	defer s.wg.Done()
	for event := range s.queue {
		ctx, cancel := context.WithTimeout(context.Background(), s.config.WriteTimeout)
		_ = s.deliver(ctx, event)
		cancel()
		s.processed.Add(1)
	}
}

// deliver writes to all sinks; a failing sink does not stop the others.
func (s *Service) deliver(ctx context.Context, event *Event) error {
	var errs []error
	for _, sink := range s.sinks {
		if err := sink.Write(ctx, event); err != nil {
			result := "error"
			if errors.Is(err, ErrCircuitOpen) {
				result = "circuit_open"
			}
			metrics.AuditEvents.WithLabelValues(sink.Name(), result).Inc()
			s.logger.Warn("failed to write audit event",
				zap.String("sink", sink.Name()),
				zap.String("event_id", event.ID),
				zap.Error(err))
			errs = append(errs, err)
			continue
		}
		metrics.AuditEvents.WithLabelValues(sink.Name(), "success").Inc()
	}
	return errors.Join(errs...)
}

// Stats returns processed and dropped event counts.
func (s *Service) Stats() (processed, dropped int64) {
	return s.processed.Load(), s.dropped.Load()
}

// Close stops accepting events, drains the queue and closes every sink.
func (s *Service) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	s.wg.Wait()

	var errs []error
	for _, sink := range s.sinks {
		if err := sink.Close(); err != nil {
			s.logger.Warn("failed to close audit sink",
				zap.String("sink", sink.Name()),
				zap.Error(err))
			errs = append(errs, err)
		}
	}

	processed, dropped := s.Stats()
	s.logger.Info("audit service closed",
		zap.Int64("processed", processed),
		zap.Int64("dropped", dropped))
	return errors.Join(errs...)
}
