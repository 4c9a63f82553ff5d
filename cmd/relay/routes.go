package main

import (
	"insurance-voice-agent/internal/relay"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, h relay.Handlers) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// The relay surface is public by design: the dashboard calls it
	// cross-origin, and Twilio posts status callbacks to /voice-agent/status.
	relay.RegisterRoutes(r, h)
}
