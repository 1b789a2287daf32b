package middlewares

import (
	"net/http"

	"bitbucket.org/mmdatafocus/floor_backend/config"
	"github.com/gin-gonic/gin"
)

// ReadinessGate answers probes immediately and returns 503 for everything else until the database is connected.
// Redis is optional; key locks fall back to in-process locks without it.
func ReadinessGate() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Always allow Cloud Run startup probe.
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		if c.Request.URL.Path == "/health" {
			c.Next()
			return
		}
		if config.GetDB() == nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "service is starting"})
			return
		}
		c.Next()
	}
}
