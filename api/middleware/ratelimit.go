package middleware

import (
	"net/http"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// rateLimiter keeps one token bucket per tenant, falling back to client IP
// for requests without a tenant.
type rateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     int
	burst    int
}

func newRateLimiter(perMinute, burst int) *rateLimiter {
	return &rateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     perMinute,
		burst:    burst,
	}
}

func (rl *rateLimiter) limiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if l, ok := rl.limiters[key]; ok {
		return l
	}
	// Crude bound on the key space; buckets for idle tenants are cheap to
	// rebuild.
	if len(rl.limiters) > 10000 {
		rl.limiters = make(map[string]*rate.Limiter)
	}
	l := rate.NewLimiter(rate.Limit(float64(rl.rate)/60.0), rl.burst)
	rl.limiters[key] = l
	return l
}

// RateLimit throttles requests per tenant at perMinute with the given burst.
func RateLimit(perMinute, burst int) gin.HandlerFunc {
	rl := newRateLimiter(perMinute, burst)

	return func(c *gin.Context) {
		key := c.Query("tenant")
		if key == "" {
			key = c.ClientIP()
		}

		l := rl.limiter(key)
		if !l.Allow() {
			reservation := l.Reserve()
			retryAfter := reservation.Delay()
			reservation.Cancel()

			c.Header("X-RateLimit-Limit", strconv.Itoa(perMinute))
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("Retry-After", retryAfter.String())
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"retry_after": retryAfter.Seconds(),
			})
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(perMinute))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(int(l.Tokens())))

		c.Next()
	}
}
