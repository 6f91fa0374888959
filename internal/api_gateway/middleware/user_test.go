package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/expense-tracker/internal/identity"
)

func TestUserIdentityMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(UserIdentity())
	router.GET("/whoami", func(c *gin.Context) {
		userID, ok := identity.FromContext(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"user_id": userID, "ok": ok, "key": GetUserID(c)})
	})

	t.Run("WithHeader", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, "/whoami", nil)
		req.Header.Set(UserIDHeader, "u1")
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"user_id":"u1","ok":true,"key":"u1"}`, rr.Body.String())
	})

	t.Run("WithoutHeader", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, "/whoami", nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.JSONEq(t, `{"user_id":"","ok":false,"key":""}`, rr.Body.String())
	})
}
