package middleware

import (
	"log/slog"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// Logger logs one line per request. Server errors log at ERROR, client errors
// at WARN, health probes at DEBUG and everything else at INFO. Alert streams
// are also logged when they open, since they may stay up for minutes.
func Logger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			path = path + "?" + raw
		}

		requestLogger := logger.With(
			"method", c.Request.Method,
			"path", path,
			"correlation_id", GetCorrelationID(c),
			"user_id", GetUserID(c),
		)

		streaming := strings.Contains(c.GetHeader("Accept"), "text/event-stream")
		if streaming {
			requestLogger.Info("Event stream opened")
		}

		c.Next()

		statusCode := c.Writer.Status()
		level := slog.LevelInfo
		switch {
		case statusCode >= 500:
			level = slog.LevelError
		case statusCode >= 400:
			level = slog.LevelWarn
		case c.FullPath() == "/health":
			level = slog.LevelDebug
		}

		requestLogger.Log(c.Request.Context(), level, "HTTP request",
			"route", c.FullPath(),
			"status", statusCode,
			"bytes", c.Writer.Size(),
			"latency", time.Since(start),
			"client_ip", c.ClientIP(),
			"user_agent", c.Request.UserAgent(),
			"streamed", streaming,
		)
	}
}
