package approuters

import (
	"Intralink/internal/configuration"

	"github.com/gin-gonic/gin"
)

// ChatRouters sets up the conversation and presence REST routes. Everything
// here requires a valid bearer token.
func ChatRouters(router *gin.Engine, container *configuration.Container) {
	chatRoute := router.Group("/il/api", container.Tokens.GinAuth())
	{
		chatRoute.GET("/conversations", container.ChatHandler.GetConversations)
		chatRoute.GET("/conversations/:conversationId/messages", container.ChatHandler.GetMessages)
		chatRoute.GET("/messages/unread-count", container.ChatHandler.GetUnreadCount)

		chatRoute.POST("/conversations/group", container.ChatHandler.CreateGroup)
		chatRoute.POST("/conversations/:conversationId/participants", container.ChatHandler.AddParticipant)
		chatRoute.DELETE("/conversations/:conversationId/participants/:userId", container.ChatHandler.RemoveParticipant)
		chatRoute.POST("/conversations/:conversationId/leave", container.ChatHandler.LeaveGroup)
		chatRoute.DELETE("/conversations/:conversationId", container.ChatHandler.DeleteGroup)

		chatRoute.GET("/presence/online", container.PresenceHandler.GetOnlineUsers)
		chatRoute.GET("/presence/:userId", container.PresenceHandler.GetStatus)
	}
}
