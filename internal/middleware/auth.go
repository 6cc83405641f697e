// Package middleware provides the Gin middleware chain for the JWP Tracker API.
//
// Ordering matters. The router registers the global chain as
//
//	Recovery → RequestID → Metrics → Logger → CORS → SecurityHeaders
//
// and the protected route groups append Auth (plus RequireAdmin for the admin
// surface) after it. RequestID runs first so every later stage can tag its
// output with the same correlation ID; Auth runs after the observability
// stages so rejected requests are still counted and logged like any other
// traffic.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yeryani-tests/joint-work-plan-app/internal/auth"
)

// IdentityKey is the gin context key under which AuthMiddleware stores the
// authenticated auth.Identity.
const IdentityKey = "identity"

// AuthMiddleware validates the Bearer session token on incoming requests and
// stores the resulting identity in the request context. Requests without a
// valid token are rejected with 401 before any handler runs.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header must use the Bearer scheme"})
			return
		}

		claims, err := auth.ValidateSessionToken(parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired session"})
			return
		}

		c.Set(IdentityKey, claims.Identity())
		c.Next()
	}
}

// RequireAdmin rejects requests whose identity does not carry the admin role.
// It must be registered after AuthMiddleware; a request that reaches it
// without an identity is treated as unauthenticated rather than forbidden.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := IdentityFromContext(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}
		if !id.IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Administrator access required"})
			return
		}
		c.Next()
	}
}

// IdentityFromContext returns the identity stored by AuthMiddleware, or
// ok=false when the request never passed authentication.
func IdentityFromContext(c *gin.Context) (auth.Identity, bool) {
	v, ok := c.Get(IdentityKey)
	if !ok {
		return auth.Identity{}, false
	}
	id, ok := v.(auth.Identity)
	return id, ok
}
