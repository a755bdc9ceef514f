// SPDX-FileCopyrightText: 2025 NSLNV
//
// SPDX-License-Identifier: Apache-2.0

package ratelimit

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nslnv/leaddesk/pkg/apiresponses"
	"github.com/nslnv/leaddesk/pkg/metrics"
)

// Response headers set by Middleware
const (
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderReset      = "X-RateLimit-Reset"
	HeaderRetryAfter = "Retry-After"
)

// KeyFunc extracts the limiting key from a request
type KeyFunc func(c *gin.Context) string

// ClientIPKey keys requests by gin's client IP (honours trusted proxies)
func ClientIPKey(c *gin.Context) string {
	return c.ClientIP()
}

// MiddlewareOptions tunes the fixed-window middleware
type MiddlewareOptions struct {
	// Policy names the limiter in metrics and logs, e.g. "login"
	Policy string
	// Key defaults to ClientIPKey
	Key KeyFunc
	// Message is the client-facing error text on denial
	Message string
	// OnDeny is called after the 429 response was written
	OnDeny func(c *gin.Context, key string, res Result)
	Log    *zap.SugaredLogger
}

// Middleware returns a Gin middleware that applies limiter to every request of
// the route it is mounted on. Store errors fail open: the limiter guards
// against abuse, it is not an access control.
func Middleware(limiter Limiter, opts MiddlewareOptions) gin.HandlerFunc {
	if opts.Key == nil {
		opts.Key = ClientIPKey
	}
	if opts.Message == "" {
		opts.Message = "Too many requests. Please try again later."
	}
	if opts.Policy == "" {
		opts.Policy = "default"
	}
	log := opts.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	return func(c *gin.Context) {
		key := opts.Key(c)
		res, err := limiter.Check(c.Request.Context(), key)
		if err != nil {
			metrics.RateLimitStoreErrors.WithLabelValues(opts.Policy).Inc()
			log.Warnw("rate limit store unavailable, allowing request", "policy", opts.Policy, "error", err)
			c.Next()
			return
		}
		WriteHeaders(c, limiter.Limit(), res)
		if !res.Allowed {
			metrics.RateLimitDecisions.WithLabelValues(opts.Policy, "denied").Inc()
			apiresponses.RespondTooManyRequests(c, opts.Message)
			c.Abort()
			if opts.OnDeny != nil {
				opts.OnDeny(c, key, res)
			}
			return
		}
		metrics.RateLimitDecisions.WithLabelValues(opts.Policy, "allowed").Inc()
		c.Next()
	}
}

// WriteHeaders sets the X-RateLimit-* headers for res, plus Retry-After when denied
func WriteHeaders(c *gin.Context, limit int, res Result) {
	c.Header(HeaderLimit, strconv.Itoa(limit))
	c.Header(HeaderRemaining, strconv.Itoa(res.Remaining))
	c.Header(HeaderReset, res.ResetAt.UTC().Format(time.RFC3339))
	if wait := res.RetryAfter(time.Now()); wait > 0 {
		secs := int((wait + time.Second - 1) / time.Second)
		c.Header(HeaderRetryAfter, strconv.Itoa(secs))
	}
}
