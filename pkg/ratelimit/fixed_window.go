// SPDX-FileCopyrightText: 2025 NSLNV
//
// SPDX-License-Identifier: Apache-2.0

package ratelimit

import (
	"context"
	"sync"
	"time"
)

// record is the per-key counter of the current window.
// count is always >= 1; the record is ignored once now >= resetAt.
type record struct {
	count   int
	resetAt time.Time
}

// FixedWindow implements an in-memory fixed-window limiter with a background sweep
type FixedWindow struct {
	mu      sync.Mutex
	records map[string]*record
	config  Config
	now     func() time.Time
	done    chan struct{}
	stop    sync.Once
}

var _ Limiter = (*FixedWindow)(nil)

// Option customises a FixedWindow
type Option func(*FixedWindow)

// WithClock replaces time.Now, mainly for tests
func WithClock(now func() time.Time) Option {
	return func(fw *FixedWindow) {
		fw.now = now
	}
}

// NewFixedWindow creates a fixed-window limiter and starts its sweep goroutine
func NewFixedWindow(cfg Config, opts ...Option) *FixedWindow {
	fw := &FixedWindow{
		records: make(map[string]*record),
		config:  cfg.withDefaults(),
		now:     time.Now,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(fw)
	}

	go fw.sweepLoop()

	return fw
}

// CheckLimit counts a request for key and reports whether it is allowed.
// A denied request does not increment the counter.
func (fw *FixedWindow) CheckLimit(key string) Result {
	now := fw.now()

	fw.mu.Lock()
	defer fw.mu.Unlock()

	rec, ok := fw.records[key]
	if !ok || !now.Before(rec.resetAt) {
		rec = &record{count: 1, resetAt: now.Add(fw.config.Window)}
		fw.records[key] = rec
		return Result{
			Allowed:   true,
			Remaining: fw.config.MaxRequests - 1,
			ResetAt:   rec.resetAt,
			Total:     1,
		}
	}

	if rec.count >= fw.config.MaxRequests {
		return Result{
			Allowed:   false,
			Remaining: 0,
			ResetAt:   rec.resetAt,
			Total:     rec.count,
		}
	}

	rec.count++
	return Result{
		Allowed:   true,
		Remaining: fw.config.MaxRequests - rec.count,
		ResetAt:   rec.resetAt,
		Total:     rec.count,
	}
}

// Check implements Limiter. The in-memory store never fails.
func (fw *FixedWindow) Check(_ context.Context, key string) (Result, error) {
	return fw.CheckLimit(key), nil
}

// Limit returns the configured maximum per window
func (fw *FixedWindow) Limit() int {
	return fw.config.MaxRequests
}

// Remaining returns how many requests key may still make in its current window
func (fw *FixedWindow) Remaining(key string) int {
	now := fw.now()

	fw.mu.Lock()
	defer fw.mu.Unlock()

	rec, ok := fw.records[key]
	if !ok || !now.Before(rec.resetAt) {
		return fw.config.MaxRequests
	}
	return max(0, fw.config.MaxRequests-rec.count)
}

// ResetAt returns the end of key's window, or false if key is not tracked
func (fw *FixedWindow) ResetAt(key string) (time.Time, bool) {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	rec, ok := fw.records[key]
	if !ok {
		return time.Time{}, false
	}
	return rec.resetAt, true
}

// Stats returns the number of tracked keys and the requests counted across them
func (fw *FixedWindow) Stats() Stats {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	s := Stats{Keys: len(fw.records)}
	for _, rec := range fw.records {
		s.Requests += rec.count
	}
	return s
}

// Reset forgets key
func (fw *FixedWindow) Reset(key string) {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	delete(fw.records, key)
}

// Clear forgets every key
func (fw *FixedWindow) Clear() {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	fw.records = make(map[string]*record)
}

// Len returns the current number of tracked keys (for testing/metrics)
func (fw *FixedWindow) Len() int {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return len(fw.records)
}

// Config returns a copy of the effective configuration
func (fw *FixedWindow) Config() Config {
	return fw.config
}

// Stop stops the sweep goroutine and drops all state. Safe to call twice.
func (fw *FixedWindow) Stop() {
	fw.stop.Do(func() {
		close(fw.done)
		fw.Clear()
	})
}

func (fw *FixedWindow) sweepLoop() {
	ticker := time.NewTicker(fw.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-fw.done:
			return
		case <-ticker.C:
			fw.Sweep()
		}
	}
}

// Sweep removes every record whose window has ended and returns how many were dropped
func (fw *FixedWindow) Sweep() int {
	now := fw.now()

	fw.mu.Lock()
	defer fw.mu.Unlock()

	removed := 0
	for key, rec := range fw.records {
		if !now.Before(rec.resetAt) {
			delete(fw.records, key)
			removed++
		}
	}
	return removed
}
