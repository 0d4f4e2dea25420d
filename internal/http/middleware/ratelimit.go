// README: Per-key token bucket limiter; idle buckets expire from the cache.
package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// KeyFunc picks the bucket a request is charged to. An empty key is not limited.
type KeyFunc func(c *gin.Context) string

type RateLimiter struct {
	limit   rate.Limit
	burst   int
	buckets *cache.Cache
}

// NewRateLimiter allows perMinute requests per key with a burst of the same size.
func NewRateLimiter(perMinute int) *RateLimiter {
	return &RateLimiter{
		limit:   rate.Limit(float64(perMinute) / 60),
		burst:   perMinute,
		buckets: cache.New(10*time.Minute, 5*time.Minute),
	}
}

func (l *RateLimiter) Allow(key string) bool {
	if v, ok := l.buckets.Get(key); ok {
		l.buckets.SetDefault(key, v)
		return v.(*rate.Limiter).Allow()
	}
	lim := rate.NewLimiter(l.limit, l.burst)
	if err := l.buckets.Add(key, lim, cache.DefaultExpiration); err != nil {
		// Lost the race to another request for the same key.
		if v, ok := l.buckets.Get(key); ok {
			return v.(*rate.Limiter).Allow()
		}
	}
	return lim.Allow()
}

func (l *RateLimiter) Middleware(key KeyFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		k := key(c)
		if k != "" && !l.Allow(k) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many messages, try again in a minute"})
			return
		}
		c.Next()
	}
}

// SharedToken rejects requests that do not carry token in X-Webhook-Token or
// the token query parameter. An empty token disables the check.
func SharedToken(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}
		got := c.GetHeader("X-Webhook-Token")
		if got == "" {
			got = c.Query("token")
		}
		if got != token {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid webhook token"})
			return
		}
		c.Next()
	}
}
