package handler

import (
	"Intralink/internal/repo"
	"Intralink/internal/service"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// ChatHandler exposes the conversation and message history REST surface.
// Live traffic goes over the socket channels; these endpoints serve initial
// page loads and reconnect catch-up.
type ChatHandler interface {
	GetConversations(c *gin.Context)
	GetMessages(c *gin.Context)
	GetUnreadCount(c *gin.Context)
	CreateGroup(c *gin.Context)
	AddParticipant(c *gin.Context)
	RemoveParticipant(c *gin.Context)
	LeaveGroup(c *gin.Context)
	DeleteGroup(c *gin.Context)
}

type chatHandler struct {
	messages service.MessageService
}

func NewChatHandler(messages service.MessageService) ChatHandler {
	return &chatHandler{messages: messages}
}

func (h *chatHandler) GetConversations(c *gin.Context) {
	userID := c.GetString("userID")

	convs, err := h.messages.GetUserConversations(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get conversations"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"conversations": convs})
}

func (h *chatHandler) GetMessages(c *gin.Context) {
	userID := c.GetString("userID")
	conversationID := c.Param("conversationId")

	page := c.DefaultQuery("page", "1")
	pageNumber, err := strconv.ParseInt(page, 10, 64)
	if err != nil || pageNumber < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid page number"})
		return
	}

	msgs, err := h.messages.GetMessages(c.Request.Context(), conversationID, userID, pageNumber)
	if err != nil {
		respondServiceError(c, err, "Failed to get messages")
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

func (h *chatHandler) GetUnreadCount(c *gin.Context) {
	userID := c.GetString("userID")

	count, err := h.messages.UnreadCount(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count unread messages"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"unreadCount": count})
}

type createGroupRequest struct {
	ParticipantIDs []string `json:"participantIds" binding:"required"`
	Title          string   `json:"title"`
}

func (h *chatHandler) CreateGroup(c *gin.Context) {
	userID := c.GetString("userID")

	var req createGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	conv, err := h.messages.CreateGroupConversation(c.Request.Context(), userID, req.ParticipantIDs, req.Title)
	if err != nil {
		respondServiceError(c, err, "Failed to create group")
		return
	}

	c.JSON(http.StatusCreated, gin.H{"conversation": conv})
}

type participantRequest struct {
	UserID string `json:"userId" binding:"required"`
}

func (h *chatHandler) AddParticipant(c *gin.Context) {
	actorID := c.GetString("userID")
	conversationID := c.Param("conversationId")

	var req participantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	if err := h.messages.AddParticipant(c.Request.Context(), conversationID, actorID, req.UserID); err != nil {
		respondServiceError(c, err, "Failed to add participant")
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *chatHandler) RemoveParticipant(c *gin.Context) {
	actorID := c.GetString("userID")
	conversationID := c.Param("conversationId")
	userID := c.Param("userId")

	if err := h.messages.RemoveParticipant(c.Request.Context(), conversationID, actorID, userID); err != nil {
		respondServiceError(c, err, "Failed to remove participant")
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *chatHandler) LeaveGroup(c *gin.Context) {
	userID := c.GetString("userID")
	conversationID := c.Param("conversationId")

	if err := h.messages.LeaveGroup(c.Request.Context(), conversationID, userID); err != nil {
		respondServiceError(c, err, "Failed to leave group")
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *chatHandler) DeleteGroup(c *gin.Context) {
	actorID := c.GetString("userID")
	conversationID := c.Param("conversationId")

	if err := h.messages.DeleteGroup(c.Request.Context(), conversationID, actorID); err != nil {
		respondServiceError(c, err, "Failed to delete group")
		return
	}

	c.Status(http.StatusNoContent)
}

// respondServiceError maps service failures to HTTP statuses. Authorization
// failures become 403, missing documents 404, the rest 500 with a generic
// message.
func respondServiceError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, service.ErrNotParticipant),
		errors.Is(err, service.ErrNotCreator),
		errors.Is(err, service.ErrNotSender):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrNotGroup),
		errors.Is(err, service.ErrEmptyContent),
		errors.Is(err, service.ErrNoRecipient):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, repo.ErrMessageNotFound),
		errors.Is(err, repo.ErrConversationNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}
