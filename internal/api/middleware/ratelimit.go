package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// clientLimiter stores the rate limiter for a specific client.
type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiterMiddleware limits public endpoints per client IP.
type RateLimiterMiddleware struct {
	clients map[string]*clientLimiter
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	log     *zap.Logger
}

// NewRateLimiterMiddleware creates a new RateLimiterMiddleware. A perSecond of 0 disables limiting.
func NewRateLimiterMiddleware(perSecond float64, burst int, log *zap.Logger) *RateLimiterMiddleware {
	return &RateLimiterMiddleware{
		clients: make(map[string]*clientLimiter),
		limit:   rate.Limit(perSecond),
		burst:   burst,
		log:     log,
	}
}

// getClientLimiter retrieves or creates the rate limiter for a given client identifier.
func (rm *RateLimiterMiddleware) getClientLimiter(identifier string) *clientLimiter {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	limiter, exists := rm.clients[identifier]
	if !exists {
		limiter = &clientLimiter{limiter: rate.NewLimiter(rm.limit, rm.burst)}
		rm.clients[identifier] = limiter
	}
	limiter.lastSeen = time.Now()
	return limiter
}

// Cleanup removes client entries idle for longer than maxIdle and returns how many it removed.
func (rm *RateLimiterMiddleware) Cleanup(maxIdle time.Duration) int {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	count := 0
	for id, client := range rm.clients {
		if time.Since(client.lastSeen) > maxIdle {
			delete(rm.clients, id)
			count++
		}
	}
	return count
}

// RunCleanup calls Cleanup every interval until done is closed.
func (rm *RateLimiterMiddleware) RunCleanup(interval time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if n := rm.Cleanup(3 * interval); n > 0 {
				rm.log.Debug("rate limiter cleanup", zap.Int("removed", n))
			}
		}
	}
}

// Limit creates the Gin middleware handler.
func (rm *RateLimiterMiddleware) Limit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rm.limit <= 0 {
			c.Next()
			return
		}
		clientKey := c.ClientIP()
		if !rm.getClientLimiter(clientKey).limiter.Allow() {
			rm.log.Info("rate limit exceeded", zap.String("client_ip", clientKey), zap.String("path", c.FullPath()))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
			return
		}
		c.Next()
	}
}
