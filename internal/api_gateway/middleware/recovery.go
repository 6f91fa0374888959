package middleware

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"runtime/debug"
	"syscall"

	"github.com/gin-gonic/gin"
)

// Recovery turns a handler panic into a 500 with the request's correlation ID.
// A panic caused by a client that went away (common on alert streams) is only
// logged, since nothing can be written back.
func Recovery(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}

			requestLogger := logger.With(
				"path", c.Request.URL.Path,
				"method", c.Request.Method,
				"correlation_id", GetCorrelationID(c),
				"user_id", GetUserID(c),
			)

			if clientGone(r) {
				requestLogger.Warn("Client connection lost", "error", r)
				c.Abort()
				return
			}

			requestLogger.Error("Panic recovered", "error", r, "stack", string(debug.Stack()))

			response := gin.H{
				"error": gin.H{
					"code":    "INTERNAL_SERVER_ERROR",
					"message": "An internal server error occurred",
				},
			}
			if correlationID := GetCorrelationID(c); correlationID != "" {
				response["correlation_id"] = correlationID
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, response)
		}()

		c.Next()
	}
}

// clientGone reports panics raised by writes to a closed connection
func clientGone(r interface{}) bool {
	err, ok := r.(error)
	if !ok {
		return false
	}
	if errors.Is(err, http.ErrAbortHandler) || errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		var sysErr *os.SyscallError
		return errors.As(opErr.Err, &sysErr)
	}
	return false
}
