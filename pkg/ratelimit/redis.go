// SPDX-FileCopyrightText: 2025 NSLNV
//
// SPDX-License-Identifier: Apache-2.0

package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// fixedWindowScript runs the whole check server-side so that concurrent
// instances see one counter per key. A denied call leaves the counter as is.
// Returns {allowed, count, pttl}.
var fixedWindowScript = redis.NewScript(`
local max = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
if current >= max then
  local ttl = redis.call('PTTL', KEYS[1])
  if ttl < 0 then
    redis.call('PEXPIRE', KEYS[1], window)
    ttl = window
  end
  return {0, current, ttl}
end
current = redis.call('INCR', KEYS[1])
if current == 1 then
  redis.call('PEXPIRE', KEYS[1], window)
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], window)
  ttl = window
end
return {1, current, ttl}
`)

// RedisConfig configures a Redis-backed fixed-window limiter
type RedisConfig struct {
	Config
	// Prefix namespaces the counter keys, e.g. "leaddesk:ratelimit:login"
	Prefix string
}

// RedisFixedWindow is a fixed-window limiter whose counters live in Redis.
// Windows expire through key TTLs, so no sweep goroutine is needed.
type RedisFixedWindow struct {
	rdb    redis.UniversalClient
	config Config
	prefix string
	now    func() time.Time
}

var _ Limiter = (*RedisFixedWindow)(nil)

// NewRedisFixedWindow creates a limiter on top of an existing Redis client.
// The client is owned by the caller.
func NewRedisFixedWindow(rdb redis.UniversalClient, cfg RedisConfig) (*RedisFixedWindow, error) {
	if rdb == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	prefix := strings.TrimRight(cfg.Prefix, ":")
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &RedisFixedWindow{
		rdb:    rdb,
		config: cfg.Config.withDefaults(),
		prefix: prefix,
		now:    time.Now,
	}, nil
}

// Check implements Limiter
func (r *RedisFixedWindow) Check(ctx context.Context, key string) (Result, error) {
	res, err := fixedWindowScript.Run(ctx, r.rdb,
		[]string{r.prefix + ":" + key},
		r.config.MaxRequests, r.config.Window.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return Result{}, fmt.Errorf("redis fixed window check: %w", err)
	}
	if len(res) != 3 {
		return Result{}, fmt.Errorf("redis fixed window check: unexpected reply length %d", len(res))
	}

	allowed := res[0] == 1
	count := int(res[1])
	resetAt := r.now().Add(time.Duration(res[2]) * time.Millisecond)

	if !allowed {
		return Result{Allowed: false, Remaining: 0, ResetAt: resetAt, Total: count}, nil
	}
	return Result{
		Allowed:   true,
		Remaining: max(0, r.config.MaxRequests-count),
		ResetAt:   resetAt,
		Total:     count,
	}, nil
}

// Limit implements Limiter
func (r *RedisFixedWindow) Limit() int {
	return r.config.MaxRequests
}

// Reset deletes the counter for key
func (r *RedisFixedWindow) Reset(ctx context.Context, key string) error {
	return r.rdb.Del(ctx, r.prefix+":"+key).Err()
}

// Stop is a no-op; the Redis client is closed by its owner.
func (r *RedisFixedWindow) Stop() {}
