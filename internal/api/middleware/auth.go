package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aaandroiddd/Waboku.gg-sub004/internal/auth"
)

// ContextKeyPrincipal holds the key for the accepted principal in Gin context.
const ContextKeyPrincipal = "principal"

// LifecycleAuthMiddleware admits requests bearing the scheduler or admin secret
// and rejects everything else with 401 before any handler runs.
func LifecycleAuthMiddleware(secrets auth.Secrets, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal := auth.Classify(c.GetHeader("Authorization"), secrets)
		if !principal.Trusted() {
			log.Warn("rejected lifecycle request",
				zap.String("path", c.FullPath()),
				zap.String("client_ip", c.ClientIP()),
				zap.Bool("has_authorization", c.GetHeader("Authorization") != ""))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "Unauthorized",
				"details": "a valid Bearer token is required",
			})
			return
		}

		c.Set(ContextKeyPrincipal, principal)
		c.Next()
	}
}

// PrincipalFrom returns the principal set by LifecycleAuthMiddleware, or
// PrincipalRejected when the middleware did not run.
func PrincipalFrom(c *gin.Context) auth.Principal {
	if v, ok := c.Get(ContextKeyPrincipal); ok {
		if p, ok := v.(auth.Principal); ok {
			return p
		}
	}
	return auth.PrincipalRejected
}
