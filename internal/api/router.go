package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aaandroiddd/Waboku.gg-sub004/internal/api/handlers"
	"github.com/aaandroiddd/Waboku.gg-sub004/internal/api/middleware"
	"github.com/aaandroiddd/Waboku.gg-sub004/internal/auth"
	"github.com/aaandroiddd/Waboku.gg-sub004/internal/config"
	"github.com/aaandroiddd/Waboku.gg-sub004/internal/services"
)

// SetupRouter configures and returns the main Gin engine. The returned rate
// limiter's cleanup loop is left to the caller.
func SetupRouter(cfg *config.Config, lifecycleService services.ILifecycleService, log *zap.Logger) (*gin.Engine, *middleware.RateLimiterMiddleware) {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(log))
	r.Use(middleware.CORSMiddleware())

	rateLimiter := middleware.NewRateLimiterMiddleware(cfg.PublicRateLimitPerSecond, cfg.PublicRateLimitBurst, log)

	lifecycleHandler := handlers.NewLifecycleHandler(lifecycleService, log)
	listingHandler := handlers.NewListingHandler(lifecycleService)

	secrets := auth.Secrets{Scheduler: cfg.CronSecret, Admin: cfg.AdminSecret}

	v1 := r.Group("/v1")
	{
		// Public Routes
		v1.GET("/ping", func(c *gin.Context) {
			c.String(http.StatusOK, "pong")
		})
		v1.GET("/listings/active", rateLimiter.Limit(), listingHandler.ActiveListings)

		// Lifecycle Routes (scheduler or admin secret)
		lifecycle := v1.Group("/lifecycle")
		lifecycle.Use(middleware.LifecycleAuthMiddleware(secrets, log))
		{
			lifecycle.POST("/archive", lifecycleHandler.Archive)
			lifecycle.POST("/migrate-ttl", lifecycleHandler.MigrateTTL)
			lifecycle.POST("/cleanup", lifecycleHandler.Cleanup)
			lifecycle.POST("/sweep-favorites", lifecycleHandler.SweepFavorites)
			lifecycle.GET("/diagnostics", lifecycleHandler.Diagnostics)
			lifecycle.GET("/runs", lifecycleHandler.LastRuns)
		}
	}

	return r, rateLimiter
}

// requestLogger logs one line per request with zap.
func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.String("client_ip", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		log.Info("request", fields...)
	}
}
