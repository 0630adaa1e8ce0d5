package server

import (
	"time"

	"github.com/gin-gonic/gin"

	logx "github.com/gisa-chat/server/pkg/logger"
)

// LoggerMiddleware logs every request once it completes.
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			path = path + "?" + raw
		}

		c.Next()

		status := c.Writer.Status()
		ev := logx.Info()
		if status >= 500 {
			ev = logx.Error()
		}
		ev.Str("method", c.Request.Method).
			Str("path", path).
			Int("status_code", status).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Int("body_size", c.Writer.Size()).
			Str("error", c.Errors.ByType(gin.ErrorTypePrivate).String()).
			Msg("request completed")
	}
}
