package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/expense-tracker/internal/identity"
)

const (
	// UserIDHeader carries the authenticated user, set by the auth proxy in front of the API
	UserIDHeader = "X-User-ID"

	// UserIDKey is the key used to store the user id in the gin context
	UserIDKey = "user_id"
)

// UserIdentity moves the user named by UserIDHeader into the request context.
// Requests without the header pass through unauthenticated.
func UserIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if userID := c.GetHeader(UserIDHeader); userID != "" {
			c.Set(UserIDKey, userID)
			c.Request = c.Request.WithContext(identity.WithUserID(c.Request.Context(), userID))
		}
		c.Next()
	}
}

// GetUserID returns the user set by UserIdentity, if any
func GetUserID(c *gin.Context) string {
	return c.GetString(UserIDKey)
}
