package handlers

import (
	"net/http"
	"strings"

	"chat_terminal/internal/models"

	"github.com/gin-gonic/gin"
)

const ctxUserKey = "user"

// userMiddleware resolves the Bearer token to a live user via the credential
// store and stashes it in the Gin context.
func (h *Handler) userMiddleware(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if header == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "missing Authorization header",
		})
		return
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "invalid Authorization header format",
		})
		return
	}

	user, err := h.services.Verify(parts[1])
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "invalid or expired token",
		})
		return
	}

	// store in Gin context
	c.Set(ctxUserKey, user)
	c.Next()
}

// currentUser pulls the verified user out of the Gin context.
func currentUser(c *gin.Context) *models.User {
	v, ok := c.Get(ctxUserKey)
	if !ok {
		return nil
	}
	u, _ := v.(*models.User)
	return u
}
