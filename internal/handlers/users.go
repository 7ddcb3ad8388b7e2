package handlers

import (
	"errors"
	"net/http"

	"chat_terminal/internal/service"

	"github.com/gin-gonic/gin"
)

// listUsers returns every stored account. Admin permission required.
func (h *Handler) listUsers(c *gin.Context) {
	users, err := h.services.ListUsers(currentUser(c))
	if err != nil {
		if errors.Is(err, service.ErrPermissionDenied) {
			c.JSON(http.StatusForbidden, gin.H{"error": "admin permission required"})
			return
		}
		if h.log != nil {
			h.log.Errorw("list_users_failed", "err", err)
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list users"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

// deleteUser removes an account and revokes its tokens. Admin permission required.
func (h *Handler) deleteUser(c *gin.Context) {
	username := c.Param("username")

	err := h.services.DeleteUser(currentUser(c), username)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"message": "user deleted", "username": username})
	case errors.Is(err, service.ErrPermissionDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": "admin permission required"})
	case errors.Is(err, service.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "no such user"})
	default:
		if h.log != nil {
			h.log.Errorw("delete_user_failed", "username", username, "err", err)
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete user"})
	}
}
