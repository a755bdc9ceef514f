// SPDX-FileCopyrightText: 2025 NSLNV
//
// SPDX-License-Identifier: Apache-2.0

package ratelimit

import (
	"context"
	"time"
)

// Config holds fixed-window limiter configuration
type Config struct {
	// MaxRequests is the number of requests accepted per key in one window
	MaxRequests int `yaml:"maxRequests"`
	// Window is the length of one fixed window
	Window time.Duration `yaml:"window"`
	// SweepInterval is how often expired windows are dropped from memory
	SweepInterval time.Duration `yaml:"sweepInterval"`
}

// Result is the outcome of a single CheckLimit call
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
	// Total is the number of requests counted in the current window
	Total int
}

// RetryAfter returns how long the caller should wait before the window resets.
func (r Result) RetryAfter(now time.Time) time.Duration {
	if r.Allowed || !r.ResetAt.After(now) {
		return 0
	}
	return r.ResetAt.Sub(now)
}

// Stats summarises the limiter's tracked state
type Stats struct {
	Keys     int `json:"keys"`
	Requests int `json:"requests"`
}

// Limiter decides whether a request identified by key may proceed.
// Implementations must be safe for concurrent use.
type Limiter interface {
	Check(ctx context.Context, key string) (Result, error)
	Limit() int
	Stop()
}

// DefaultLoginConfig returns the login attempt limit: 5 attempts per 15 minutes
func DefaultLoginConfig() Config {
	return Config{
		MaxRequests:   5,
		Window:        15 * time.Minute,
		SweepInterval: time.Minute,
	}
}

// DefaultLeadConfig returns the lead submission limit: 3 per minute
func DefaultLeadConfig() Config {
	return Config{
		MaxRequests:   3,
		Window:        time.Minute,
		SweepInterval: time.Minute,
	}
}

// DefaultLogConfig returns the client log limit: 10 per minute
func DefaultLogConfig() Config {
	return Config{
		MaxRequests:   10,
		Window:        time.Minute,
		SweepInterval: 5 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	if c.MaxRequests <= 0 {
		c.MaxRequests = 10
	}
	if c.Window <= 0 {
		c.Window = time.Minute
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = 5 * time.Minute
	}
	return c
}
