package ratelimit

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/nslnv/leaddesk/pkg/apiresponses"
	"github.com/nslnv/leaddesk/pkg/metrics"
)

// BucketConfig holds token-bucket throttle configuration
type BucketConfig struct {
	// Rate is the number of requests allowed per second
	Rate float64 `yaml:"rate"`
	// Burst is the maximum number of requests allowed in a burst
	Burst int `yaml:"burst"`
	// CleanupInterval is how often to clean up idle entries
	CleanupInterval time.Duration `yaml:"cleanupInterval"`
	// MaxAge is how long to keep an entry after last access
	MaxAge time.Duration `yaml:"maxAge"`
}

// DefaultAdminAPIConfig returns the admin API throttle: 20 req/s per admin, burst of 50
func DefaultAdminAPIConfig() BucketConfig {
	return BucketConfig{
		Rate:            20,
		Burst:           50,
		CleanupInterval: time.Minute,
		MaxAge:          10 * time.Minute,
	}
}

type bucketEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// TokenBucket throttles bursts of authenticated admin traffic. Unlike the
// fixed-window limiters it refills continuously, which suits an interactive
// dashboard issuing many small reads.
type TokenBucket struct {
	mu      sync.Mutex
	entries map[string]*bucketEntry
	config  BucketConfig
	done    chan struct{}
	stop    sync.Once
}

// NewTokenBucket creates a throttle and starts its cleanup goroutine
func NewTokenBucket(cfg BucketConfig) *TokenBucket {
	if cfg.Rate <= 0 {
		cfg.Rate = 20
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 50
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Minute
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 10 * time.Minute
	}

	tb := &TokenBucket{
		entries: make(map[string]*bucketEntry),
		config:  cfg,
		done:    make(chan struct{}),
	}
	go tb.cleanup()
	return tb
}

// Allow reports whether key may make one more request now
func (tb *TokenBucket) Allow(key string) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	e, ok := tb.entries[key]
	if !ok {
		e = &bucketEntry{limiter: rate.NewLimiter(rate.Limit(tb.config.Rate), tb.config.Burst)}
		tb.entries[key] = e
	}
	e.lastAccess = time.Now()
	return e.limiter.Allow()
}

// Middleware throttles by the key returned from keyFn, falling back to the client IP.
// Apply it after the session guard so the admin identity is available.
func (tb *TokenBucket) Middleware(policy string, keyFn KeyFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := ""
		if keyFn != nil {
			key = keyFn(c)
		}
		if key == "" {
			key = c.ClientIP()
		}
		if !tb.Allow(key) {
			metrics.RateLimitDecisions.WithLabelValues(policy, "denied").Inc()
			c.Header("Retry-After", "1")
			apiresponses.RespondTooManyRequests(c, "Too many requests. Please slow down.")
			c.Abort()
			return
		}
		metrics.RateLimitDecisions.WithLabelValues(policy, "allowed").Inc()
		c.Next()
	}
}

// Len returns the number of tracked keys
func (tb *TokenBucket) Len() int {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return len(tb.entries)
}

// Stop stops the cleanup goroutine. Safe to call twice.
func (tb *TokenBucket) Stop() {
	tb.stop.Do(func() { close(tb.done) })
}

func (tb *TokenBucket) cleanup() {
	ticker := time.NewTicker(tb.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-tb.done:
			return
		case <-ticker.C:
			tb.removeIdle(time.Now())
		}
	}
}

func (tb *TokenBucket) removeIdle(now time.Time) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	for key, e := range tb.entries {
		if now.Sub(e.lastAccess) > tb.config.MaxAge {
			delete(tb.entries, key)
		}
	}
}
