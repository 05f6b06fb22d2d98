package approuters

import (
	"Intralink/internal/configuration"

	"github.com/gin-gonic/gin"
)

// AuthRouters sets up the token endpoint. Unauthenticated: this is where
// tokens come from.
func AuthRouters(router *gin.Engine, container *configuration.Container) {
	authRoute := router.Group("/il/api/auth")
	{
		authRoute.POST("/token", container.AuthHandler.IssueToken)
	}
}
