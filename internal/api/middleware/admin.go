package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// AdminMiddleware returns a Gin middleware that guards operator endpoints
// with a shared admin token carried in the X-Admin-Token header. When no
// token is configured the guarded routes are disabled outright rather than
// left open.
// Parameters:
//   - token: expected admin token; empty disables the guarded routes.
// Returns:
//   - gin.HandlerFunc: middleware handler.
func AdminMiddleware(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "Admin endpoints are not configured"})
			return
		}
		supplied := c.GetHeader("X-Admin-Token")
		if subtle.ConstantTimeCompare([]byte(supplied), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid admin token"})
			return
		}
		c.Next()
	}
}
