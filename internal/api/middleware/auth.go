package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/memelab/memeforge/internal/auth"
	"github.com/memelab/memeforge/internal/logger"
	"github.com/memelab/memeforge/internal/repository"
)

const (
	contextUserIDKey    = "user_id"
	contextUserEmailKey = "user_email"
)

// AuthMiddleware returns a Gin middleware that authenticates requests.
// Two credentials are accepted: a JWT bearer token in the Authorization
// header, or a raw API key in the X-API-KEY header. Bearer tokens are tried
// first. On a successful token login the user's profile row is created if it
// does not exist yet, so every authenticated user has a profile.
// Parameters:
//   - tokens: JWT verifier for bearer tokens.
//   - keys: API key service for X-API-KEY lookups.
//   - profiles: profile repository used to hydrate profiles on token login.
// Returns:
//   - gin.HandlerFunc: middleware handler.
func AuthMiddleware(tokens *auth.TokenVerifier, keys *auth.APIKeyService, profiles *repository.ProfileRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		if token := bearerToken(c); token != "" {
			claims, err := tokens.Verify(ctx, token)
			if err != nil {
				logger.CtxWarn(ctx, "Bearer token rejected: client_ip=%s, error=%v", c.ClientIP(), err)
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
				return
			}
			// Profile hydration is best-effort; a transient DB error must
			// not block an otherwise valid request.
			if _, perr := profiles.GetOrCreate(ctx, claims.UserID, claims.Email); perr != nil {
				logger.CtxWarn(ctx, "Failed to ensure profile: user_id=%s, error=%v", claims.UserID, perr)
			}
			grant(c, claims.UserID, claims.Email)
			c.Next()
			return
		}

		if raw := c.GetHeader("X-API-KEY"); raw != "" {
			key, err := keys.Validate(ctx, raw)
			if err != nil {
				logger.CtxWarn(ctx, "API key rejected: client_ip=%s, error=%v", c.ClientIP(), err)
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired API key"})
				return
			}
			grant(c, key.UserID, "")
			c.Next()
			return
		}

		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "Authentication required. Provide 'Authorization: Bearer <token>' or 'X-API-KEY' header",
		})
	}
}

// bearerToken extracts the token from an "Authorization: Bearer ..." header.
func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// grant records the authenticated identity on the Gin context and enriches
// the request-scoped logger with the user ID.
func grant(c *gin.Context, userID, email string) {
	ctx := logger.WithFields(c.Request.Context(), logger.Fields{
		logger.FieldUserID: userID,
	})
	c.Request = c.Request.WithContext(ctx)
	c.Set("logger", logger.FromContext(ctx))
	c.Set(contextUserIDKey, userID)
	if email != "" {
		c.Set(contextUserEmailKey, email)
	}
}

// UserID returns the authenticated user's ID, or "" for unauthenticated requests.
// Parameters:
//   - c: Gin request context.
// Returns:
//   - string: user ID set by AuthMiddleware.
func UserID(c *gin.Context) string {
	return c.GetString(contextUserIDKey)
}

// UserEmail returns the authenticated user's email when known. API key logins
// carry no email, so this may be empty for authenticated requests.
// Parameters:
//   - c: Gin request context.
// Returns:
//   - string: user email set by AuthMiddleware.
func UserEmail(c *gin.Context) string {
	return c.GetString(contextUserEmailKey)
}
