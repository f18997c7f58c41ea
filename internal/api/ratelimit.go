package api

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ajitpratap0/turtlefunk/internal/metrics"
)

// Requests per sliding 60s window, by route class
var routeLimits = map[string]int{
	"order":   5,
	"account": 30,
	"quotes":  60,
	"bars":    30,
	"news":    20,
}

const defaultLimit = 100

const rateWindow = 60 * time.Second

// RateLimiter enforces a per-(route class, client IP) sliding window.
// The window is exact: timestamps are kept and pruned on every request.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string][]time.Time
	now     func() time.Time
}

// NewRateLimiter creates a rate limiter
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		windows: make(map[string][]time.Time),
		now:     time.Now,
	}
}

// Allow records a request against (class, ip) and reports whether it fits
// the window, along with the remaining budget.
func (rl *RateLimiter) Allow(class, ip string) (bool, int) {
	limit, ok := routeLimits[class]
	if !ok {
		limit = defaultLimit
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	key := class + ":" + ip
	now := rl.now()
	cutoff := now.Add(-rateWindow)

	window := rl.windows[key]
	kept := window[:0]
	for _, t := range window {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= limit {
		rl.windows[key] = kept
		return false, 0
	}

	kept = append(kept, now)
	rl.windows[key] = kept
	return true, limit - len(kept)
}

// Middleware applies the rate limit for a route class
func (rl *RateLimiter) Middleware(class string) gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, remaining := rl.Allow(class, c.ClientIP())
		if !allowed {
			metrics.RateLimited.WithLabelValues(class).Inc()
			c.Header("Retry-After", strconv.Itoa(int(rateWindow.Seconds())))
			c.Header("X-RateLimit-Remaining", "0")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Next()
	}
}
