package handler

import (
	"Intralink/internal/auth"
	"net/http"

	"github.com/gin-gonic/gin"
)

// AuthHandler issues access tokens. Identity itself comes from the intranet
// directory upstream; this endpoint just exchanges a user identity for a
// token both socket channels accept.
type AuthHandler interface {
	IssueToken(c *gin.Context)
}

type authHandler struct {
	tokens *auth.TokenIssuer
}

func NewAuthHandler(tokens *auth.TokenIssuer) AuthHandler {
	return &authHandler{tokens: tokens}
}

type tokenRequest struct {
	UserID   string `json:"userId" binding:"required"`
	Username string `json:"username" binding:"required"`
}

func (h *authHandler) IssueToken(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	token, err := h.tokens.Generate(req.UserID, req.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to issue token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"accessToken": token})
}
