package main

import (
	"livelinks-platform/internal/auth"
	"livelinks-platform/internal/httpapi"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, authMW gin.HandlerFunc) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	v1 := r.Group("/v1")

	// AUTH routes (token issuance).
	// NOTE: This is a placeholder login route; real credential validation is not implemented.
	v1.POST("/auth/login", h.Login)

	// protected API group
	protected := v1.Group("")
	protected.Use(authMW)
	{
		protected.GET("/me", func(c *gin.Context) {
			uid, _ := auth.UserID(c.Request.Context())
			c.JSON(200, gin.H{"user_id": uid, "username": auth.Username(c.Request.Context())})
		})

		// MEDIA routes: room credential minting for call participants.
		protected.POST("/media/token", h.MediaToken)

		// PROFILE routes
		protected.GET("/profiles/:user_id", h.GetProfile)

		// CALL routes
		protected.GET("/calls/active", h.GetActiveCall)
	}
}
