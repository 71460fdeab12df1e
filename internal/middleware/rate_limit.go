package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/getmentor/consultations-api/pkg/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RateLimiter is an in-memory token bucket per caller. Callers are identified by
// actor id when a session is present and by client IP otherwise.
type RateLimiter struct {
	visitors map[string]*rate.Limiter
	mu       sync.Mutex
	r        rate.Limit // requests per second
	b        int        // burst size
}

// NewRateLimiter creates a rate limiter whose idle buckets are swept every
// minute until ctx is done
func NewRateLimiter(ctx context.Context, r rate.Limit, b int) *RateLimiter {
	rl := &RateLimiter{
		visitors: make(map[string]*rate.Limiter),
		r:        r,
		b:        b,
	}
	go rl.cleanupVisitors(ctx, time.Minute)
	return rl
}

func (rl *RateLimiter) getVisitor(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	limiter, exists := rl.visitors[key]
	if !exists {
		limiter = rate.NewLimiter(rl.r, rl.b)
		rl.visitors[key] = limiter
	}
	return limiter
}

func (rl *RateLimiter) cleanupVisitors(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.sweep()
		}
	}
}

// sweep drops buckets that have refilled, i.e. callers idle for a while
func (rl *RateLimiter) sweep() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, limiter := range rl.visitors {
		if limiter.Tokens() >= float64(rl.b) {
			delete(rl.visitors, key)
		}
	}
}

func visitorKey(c *gin.Context) string {
	if session, err := GetActorSession(c); err == nil {
		return "actor:" + session.ActorID
	}
	return "ip:" + c.ClientIP()
}

// Middleware returns a Gin middleware function for rate limiting
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := visitorKey(c)

		if !rl.getVisitor(key).Allow() {
			logger.Debug("Rate limit exceeded", zap.String("visitor", key), zap.String("path", c.FullPath()))
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "Rate limit exceeded. Please try again later.",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
