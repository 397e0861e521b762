package auth

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/trackvote/pkg/jwt"
	"github.com/trackvote/pkg/redis"
)

// AuthMiddleware resolves the caller identity for everything below it. The
// engine itself never validates credentials; by the time a request reaches
// a room operation, user_id is a trusted, already-authenticated value.
func AuthMiddleware(sessions *redis.SessionStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Token from cookie, or query param for WebSocket connects.
		token, _ := c.Cookie("auth_token")
		if token == "" {
			token = c.Query("token")
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "no auth token"})
			return
		}

		claims, err := jwt.ValidateToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		session, err := sessions.GetSession(c.Request.Context(), claims.UserID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session not found"})
			return
		}

		if time.Now().After(session.ExpiresAt) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session expired"})
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("display_name", session.DisplayName)
		c.Next()
	}
}
