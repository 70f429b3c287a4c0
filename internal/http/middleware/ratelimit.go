// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// RateLimiter is an in-memory token bucket per caller identity, built on
// golang.org/x/time/rate. Idle buckets are evicted opportunistically. Limits
// are process-local; a multi-replica deployment needs a shared limiter.
package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// keyFunc maps a request to the identity of its bucket.
type keyFunc func(*gin.Context) string

// KeyBySubjectOrIP keys authenticated admin calls by token subject and
// everything else by client IP. Prefixes keep the namespaces apart.
func KeyBySubjectOrIP() keyFunc {
	return func(c *gin.Context) string {
		if sub := AdminSubject(c); sub != "" {
			return "admin:" + sub
		}
		return "ip:" + c.ClientIP()
	}
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is safe for concurrent use.
type RateLimiter struct {
	rps      rate.Limit
	burst    int
	keyFn    keyFunc
	mu       sync.Mutex
	visitors map[string]*visitor

	ttl      time.Duration
	cleanupN uint64
}

// NewRateLimiter allows rps tokens per second with the given burst (coerced
// to at least 1) per key.
func NewRateLimiter(rps float64, burst int, keyFn keyFunc) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		rps:      rate.Limit(rps),
		burst:    burst,
		keyFn:    keyFn,
		visitors: make(map[string]*visitor),
		ttl:      10 * time.Minute,
	}
}

// getVisitor returns the limiter for key. Every 5000 lookups idle entries are
// swept first, so a stale bucket is dropped even when it is the one asked for.
func (rl *RateLimiter) getVisitor(key string) *rate.Limiter {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.cleanupN++
	if rl.cleanupN >= 5000 {
		for k, vv := range rl.visitors {
			if now.Sub(vv.lastSeen) >= rl.ttl {
				delete(rl.visitors, k)
			}
		}
		rl.cleanupN = 0
	}

	if v, ok := rl.visitors[key]; ok {
		v.lastSeen = now
		return v.limiter
	}
	lim := rate.NewLimiter(rl.rps, rl.burst)
	rl.visitors[key] = &visitor{limiter: lim, lastSeen: now}
	return lim
}

// IsRateBypass reports whether IdempotencyValidator flagged a replay.
func IsRateBypass(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyRateBypass)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// Handler rejects over-limit requests with 429 and Retry-After: 1. Replays
// of a stored Idempotency-Key never consume tokens.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) {
			c.Next()
			return
		}

		key := rl.keyFn(c)
		if rl.getVisitor(key).Allow() {
			c.Next()
			return
		}

		LoggerFrom(c).Warn().Str("rate_key", key).Msg("rate limited")
		c.Header("Retry-After", "1")
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": c.Writer.Header().Get(requestIDHeader),
			"code":       "rate_limited",
			"message":    "rate limit exceeded",
		})
	}
}
