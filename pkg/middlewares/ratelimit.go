package middlewares

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/campuslink/groupchat/utils/ratelimit"
)

// RateLimit smooths bursts through a shared token bucket. Requests wait
// up to waitTimeout for a token before being rejected, so short spikes
// queue instead of failing. A nil limiter disables limiting.
func RateLimit(limiter *ratelimit.TokenBucket, waitTimeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter != nil && !limiter.WaitN(1, waitTimeout) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "too many requests, please try again later",
			})
			return
		}
		c.Next()
	}
}

// MaxConcurrency caps in-flight requests with a buffered-channel
// semaphore, keeping goroutine growth bounded under load.
func MaxConcurrency(maxConcurrent int) gin.HandlerFunc {
	sem := make(chan struct{}, maxConcurrent)

	return func(c *gin.Context) {
		select {
		case sem <- struct{}{}:
			defer func() { <-sem }()
			c.Next()
		default:
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"error": "server at capacity, please try again later",
			})
		}
	}
}
