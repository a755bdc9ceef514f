package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func TestCircuitBreakerSink(t *testing.T) {
	inner := &memorySink{err: errors.New("broker down")}
	cb := NewCircuitBreakerSink(inner, CircuitBreakerConfig{FailureThreshold: 2, OpenTimeout: time.Minute}, zaptest.NewLogger(t))
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	cb.now = func() time.Time { return now }
	ctx := context.Background()
	ev := NewEvent(EventLeadCreated, "x", nil)

	assert.Error(t, cb.Write(ctx, ev))
	assert.Equal(t, CircuitClosed, cb.State())
	assert.Error(t, cb.Write(ctx, ev))
	assert.Equal(t, CircuitOpen, cb.State())

	assert.ErrorIs(t, cb.Write(ctx, ev), ErrCircuitOpen)

	// Probe fails: back to open
	now = now.Add(time.Minute)
	err := cb.Write(ctx, ev)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, CircuitOpen, cb.State())

	// Probe succeeds: closed
	now = now.Add(time.Minute)
	inner.mu.Lock()
	inner.err = nil
	inner.mu.Unlock()
	assert.NoError(t, cb.Write(ctx, ev))
	assert.Equal(t, CircuitClosed, cb.State())
	assert.Len(t, inner.Events(), 1)

	assert.Equal(t, "memory", cb.Name())
	assert.NoError(t, cb.Close())
}

func TestCircuitStateString(t *testing.T) {
	assert.Equal(t, "half-open", CircuitHalfOpen.String())
	assert.Equal(t, "unknown", CircuitState(9).String())
}
