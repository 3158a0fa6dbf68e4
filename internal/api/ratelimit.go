package api

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/driftlabs/driftroute/pkg/utils"
)

// tokenBucket is a refilling bucket for one client.
type tokenBucket struct {
	mu         sync.Mutex
	capacity   float64
	tokens     float64
	refillRate float64 // tokens per second
	lastRefill time.Time
	lastAccess time.Time
}

func newTokenBucket(capacity, refillRate float64) *tokenBucket {
	now := time.Now()
	return &tokenBucket{
		capacity:   capacity,
		tokens:     capacity,
		refillRate: refillRate,
		lastRefill: now,
		lastAccess: now,
	}
}

// tryConsume takes one token if available.
func (tb *tokenBucket) tryConsume() (allowed bool, remaining int) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(tb.lastRefill).Seconds()
	tb.tokens = minFloat(tb.tokens+elapsed*tb.refillRate, tb.capacity)
	tb.lastRefill = now
	tb.lastAccess = now

	if tb.tokens >= 1 {
		tb.tokens--
		return true, int(tb.tokens)
	}
	return false, 0
}

// RateLimiter limits requests per client IP with a token bucket each. Idle
// buckets are dropped by a background sweep.
type RateLimiter struct {
	mu         sync.Mutex
	buckets    map[string]*tokenBucket
	perMinute  int
	burst      float64
	log        *utils.Logger
	stopSweep  chan struct{}
	sweepEvery time.Duration
}

// NewRateLimiter creates a limiter allowing perMinute requests per client,
// with a burst of the same size.
func NewRateLimiter(perMinute int, log *utils.Logger) *RateLimiter {
	if log == nil {
		log = utils.NewLogger()
	}
	rl := &RateLimiter{
		buckets:    make(map[string]*tokenBucket),
		perMinute:  perMinute,
		burst:      float64(perMinute),
		log:        log,
		stopSweep:  make(chan struct{}),
		sweepEvery: time.Minute,
	}
	go rl.sweepLoop()
	return rl
}

// Stop ends the background sweep.
func (rl *RateLimiter) Stop() {
	close(rl.stopSweep)
}

func (rl *RateLimiter) bucketFor(id string) *tokenBucket {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[id]
	if !ok {
		b = newTokenBucket(rl.burst, float64(rl.perMinute)/60.0)
		rl.buckets[id] = b
	}
	return b
}

func (rl *RateLimiter) sweepLoop() {
	ticker := time.NewTicker(rl.sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().Add(-10 * time.Minute)
			rl.mu.Lock()
			for id, b := range rl.buckets {
				b.mu.Lock()
				idle := b.lastAccess.Before(cutoff)
				b.mu.Unlock()
				if idle {
					delete(rl.buckets, id)
				}
			}
			rl.mu.Unlock()
		case <-rl.stopSweep:
			return
		}
	}
}

// Middleware rejects over-limit requests with 429 and rate-limit headers.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, remaining := rl.bucketFor(c.ClientIP()).tryConsume()

		c.Header("X-RateLimit-Limit", strconv.Itoa(rl.perMinute))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if !allowed {
			c.Header("Retry-After", strconv.Itoa(int(60/maxInt(rl.perMinute, 1))+1))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
