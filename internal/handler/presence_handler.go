package handler

import (
	"Intralink/internal/repo"
	"Intralink/internal/service"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

type PresenceHandler interface {
	GetStatus(c *gin.Context)
	GetOnlineUsers(c *gin.Context)
}

type presenceHandler struct {
	presence service.PresenceService
}

func NewPresenceHandler(presence service.PresenceService) PresenceHandler {
	return &presenceHandler{presence: presence}
}

func (h *presenceHandler) GetStatus(c *gin.Context) {
	userID := c.Param("userId")

	status, err := h.presence.GetStatus(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, repo.ErrPresenceNotFound) {
			// Never connected: report offline rather than erroring.
			c.JSON(http.StatusOK, gin.H{"userId": userID, "isOnline": false, "activeConnections": 0})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get presence"})
		return
	}

	conns, err := h.presence.Connections(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get presence"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"presence": status, "activeConnections": len(conns)})
}

func (h *presenceHandler) GetOnlineUsers(c *gin.Context) {
	users, err := h.presence.GetOnlineUsers(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list online users"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"users": users})
}
