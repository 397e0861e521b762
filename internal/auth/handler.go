package auth

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/trackvote/pkg/jwt"
	"github.com/trackvote/pkg/redis"
)

const sessionLifetime = 24 * time.Hour

type Handler struct {
	sessions *redis.SessionStore
}

func NewHandler(sessions *redis.SessionStore) *Handler {
	return &Handler{sessions: sessions}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	auth := r.Group("/auth")
	{
		auth.POST("/login", h.login)

		protected := auth.Group("", AuthMiddleware(h.sessions))
		protected.GET("/me", h.me)
		protected.POST("/logout", h.logout)
	}
}

type LoginRequest struct {
	Name string `json:"name" binding:"required"`
}

// login issues a guest identity: a fresh user id bound to the supplied
// display name, delivered as a JWT cookie backed by a redis session.
func (h *Handler) login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := uuid.New()
	session := &redis.Session{
		UserID:      userID.String(),
		DisplayName: req.Name,
		ExpiresAt:   time.Now().Add(sessionLifetime).UTC(),
	}

	if err := h.sessions.StoreSession(c.Request.Context(), session); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "failed to store session"})
		return
	}

	token, err := jwt.GenerateToken(userID.String())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}

	http.SetCookie(c.Writer, &http.Cookie{
		Name:     "auth_token",
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})

	c.JSON(http.StatusOK, gin.H{
		"user_id":      userID,
		"display_name": req.Name,
		"token":        token,
	})
}

func (h *Handler) me(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"user_id":      c.GetString("user_id"),
		"display_name": c.GetString("display_name"),
	})
}

func (h *Handler) logout(c *gin.Context) {
	userID := c.GetString("user_id")
	if err := h.sessions.DeleteSession(c.Request.Context(), userID); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "failed to delete session"})
		return
	}

	http.SetCookie(c.Writer, &http.Cookie{
		Name:     "auth_token",
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})

	c.Status(http.StatusNoContent)
}
