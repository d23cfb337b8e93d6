// internal/api/routes.go
package api

import (
	"github.com/gin-gonic/gin"
)

// SetupRoutes registers all HTTP routes on the given router.
func SetupRoutes(router *gin.Engine, s *Server) {
	// Login and health are intentionally *not* under /api/v1.
	router.POST("/login", s.LoginHandler)
	router.GET("/health", s.HealthHandler)

	apiV1 := router.Group("/api/v1")
	apiV1.Use(AuthMiddleware())
	{
		connections := apiV1.Group("/connections")
		{
			// POST /api/v1/connections
			connections.POST("", s.ConnectHandler)
			// GET /api/v1/connections
			connections.GET("", s.ListConnectionsHandler)
			// DELETE /api/v1/connections/{id}
			connections.DELETE("/:id", s.DisconnectHandler)
		}

		commands := apiV1.Group("/commands")
		{
			// POST /api/v1/commands
			commands.POST("", s.SubmitCommandHandler)
			// GET /api/v1/commands
			commands.GET("", s.ListCommandsHandler)
			// GET /api/v1/commands/{id}
			commands.GET("/:id", s.GetCommandHandler)
			// POST /api/v1/commands/{id}/approve-step
			commands.POST("/:id/approve-step", s.ApproveStepHandler)
			// POST /api/v1/commands/{id}/approve-steps
			commands.POST("/:id/approve-steps", s.ApproveStepsHandler)
			// GET /api/v1/commands/{id}/approval-status
			commands.GET("/:id/approval-status", s.ApprovalStatusHandler)
			// POST /api/v1/commands/{id}/reject
			commands.POST("/:id/reject", s.RejectCommandHandler)
		}
	}
}
