package middlewares

import (
	"strings"

	"bitbucket.org/mmdatafocus/floor_backend/utils"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	HeaderCorrelationId = "X-Correlation-Id"
	HeaderUserName      = "X-User-Name"
)

// CorrelationMiddleware generates a correlation id once per request and attaches it to the context.
func CorrelationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		cid := strings.TrimSpace(c.GetHeader(HeaderCorrelationId))
		if cid == "" {
			cid = uuid.NewString()
		}
		ctx := utils.SetCorrelationIdInContext(c.Request.Context(), cid)
		ctx = utils.SetClientIPInContext(ctx, c.ClientIP())
		c.Request = c.Request.WithContext(ctx)
		c.Header(HeaderCorrelationId, cid)
		c.Next()
	}
}

// SessionMiddleware carries the supervisor or operator name of the floor terminal into the context.
// Requests without the header run anonymously.
func SessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		name := strings.TrimSpace(c.GetHeader(HeaderUserName))
		if name == "" {
			c.Next()
			return
		}
		c.Request = c.Request.WithContext(utils.SetUserNameInContext(c.Request.Context(), name))
		c.Next()
	}
}
