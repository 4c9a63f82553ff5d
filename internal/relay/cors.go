package relay

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// CORSMiddleware applies the relay's single cross-origin policy: permissive
// headers on every response, and preflight answered before routing.
// The dashboard runs on a different origin; the Twilio callback ignores CORS
// but gets the same headers harmlessly.
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-Id")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
