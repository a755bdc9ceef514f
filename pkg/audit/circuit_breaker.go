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
	"time"

	"go.uber.org/zap"
)

// CircuitState represents the current state of the circuit breaker.
type CircuitState int32

const (
	// CircuitClosed indicates normal operation - writes flow through.
	CircuitClosed CircuitState = iota
	// CircuitOpen indicates the circuit is tripped - writes are rejected.
	CircuitOpen
	// CircuitHalfOpen lets a single trial write through.
	CircuitHalfOpen
)

// String returns the string representation of the circuit state.
func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig configures the circuit breaker behavior.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before opening the circuit.
	// Default: 5
	FailureThreshold int

	// OpenTimeout is how long to wait before transitioning from open to half-open.
	// Default: 30s
	OpenTimeout time.Duration
}

// ErrCircuitOpen is returned when the circuit breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreakerSink stops calling a failing network sink for a while so a
// dead broker does not slow down every audit worker.
type CircuitBreakerSink struct {
	sink   Sink
	config CircuitBreakerConfig
	logger *zap.Logger
	now    func() time.Time

	mu               sync.Mutex
	state            CircuitState
	consecutiveFails int
	openedAt         time.Time
	probing          bool
}

// NewCircuitBreakerSink wraps sink with a circuit breaker.
func NewCircuitBreakerSink(sink Sink, cfg CircuitBreakerConfig, logger *zap.Logger) *CircuitBreakerSink {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	return &CircuitBreakerSink{
		sink:   sink,
		config: cfg,
		logger: logger.Named("circuit-breaker").With(zap.String("sink", sink.Name())),
		now:    time.Now,
	}
}

// Write forwards to the wrapped sink unless the circuit is open.
func (s *CircuitBreakerSink) Write(ctx context.Context, event *Event) error {
	if !s.allow() {
		return ErrCircuitOpen
	}
	err := s.sink.Write(ctx, event)
	s.record(err)
	return err
}

func (s *CircuitBreakerSink) allow() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case CircuitClosed:
		return true
	case CircuitOpen:
		if s.now().Sub(s.openedAt) < s.config.OpenTimeout {
			return false
		}
		s.transitionLocked(CircuitHalfOpen)
		s.probing = true
		return true
	default:
		// one trial write at a time
		if s.probing {
			return false
		}
		s.probing = true
		return true
	}
}

func (s *CircuitBreakerSink) record(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.probing = false
	if err == nil {
		s.consecutiveFails = 0
		if s.state != CircuitClosed {
			s.transitionLocked(CircuitClosed)
		}
		return
	}

	s.consecutiveFails++
	if s.state == CircuitHalfOpen || s.consecutiveFails >= s.config.FailureThreshold {
		s.openedAt = s.now()
		if s.state != CircuitOpen {
			s.transitionLocked(CircuitOpen)
		}
	}
}

func (s *CircuitBreakerSink) transitionLocked(to CircuitState) {
	s.logger.Info("circuit breaker state change",
		zap.String("from", s.state.String()),
		zap.String("to", to.String()),
		zap.Int("consecutive_failures", s.consecutiveFails))
	s.state = to
}

// State returns the current circuit state.
func (s *CircuitBreakerSink) State() CircuitState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Close closes the wrapped sink.
func (s *CircuitBreakerSink) Close() error {
	return s.sink.Close()
}

// Name returns the wrapped sink's name.
func (s *CircuitBreakerSink) Name() string {
	return s.sink.Name()
}
