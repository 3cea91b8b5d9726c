package admin

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/flowgate/internal/observability"
)

// recovery returns a middleware that recovers from panics in handlers.
func recovery(logger observability.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error("panic recovered",
					observability.Any("error", err),
					observability.String("method", c.Request.Method),
					observability.String("path", c.Request.URL.Path),
					observability.String("stack", string(debug.Stack())),
				)

				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error":   "Internal Server Error",
					"message": "An unexpected error occurred",
				})
			}
		}()

		c.Next()
	}
}

// isHealthCheckPath checks if the path is a health check endpoint.
func isHealthCheckPath(path string) bool {
	return path == "/health" || path == "/healthz"
}

// logging returns a middleware that logs admin requests. Health checks
// are not logged.
func logging(logger observability.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if isHealthCheckPath(path) {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []observability.Field{
			observability.String("method", c.Request.Method),
			observability.String("path", path),
			observability.Int("status", status),
			observability.Duration("latency", time.Since(start)),
			observability.String("client_ip", c.ClientIP()),
		}

		if status >= http.StatusInternalServerError {
			logger.Error("admin request completed", fields...)
			return
		}
		logger.Debug("admin request completed", fields...)
	}
}
