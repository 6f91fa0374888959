package api_gateway

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/expense-tracker/internal/api_gateway/handler"
	"github.com/expense-tracker/internal/api_gateway/middleware"
)

// HealthChecker reports whether a backing store is reachable
type HealthChecker interface {
	Ping(ctx context.Context) error
}

type handlers struct {
	expense *handler.ExpenseHandler
	budget  *handler.BudgetHandler
	alert   *handler.AlertHandler
}

// setupRouter configures API routes and middleware for the application
func setupRouter(logger *slog.Logger, r *gin.Engine, h handlers, checks map[string]HealthChecker) {
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.CorrelationID())
	r.Use(middleware.UserIdentity())
	r.Use(middleware.Logger(logger))

	v1 := r.Group("/api/v1")
	{
		expenses := v1.Group("/expenses")
		{
			expenses.GET("", h.expense.List)
			expenses.POST("", h.expense.Create)
			expenses.POST("/receipt", h.expense.CreateFromReceiptText)
			expenses.POST("/receipt/image", h.expense.CreateFromReceiptImage)
			expenses.POST("/sms", h.expense.CreateFromSMS)
			expenses.PATCH("/:id", h.expense.Update)
			expenses.DELETE("/:id", h.expense.Delete)
		}

		budget := v1.Group("/budget")
		{
			budget.GET("", h.budget.Get)
			budget.PUT("", h.budget.Set)
			budget.GET("/aggregate", h.budget.Aggregate)
		}

		alerts := v1.Group("/alerts")
		{
			alerts.GET("", h.alert.List)
			alerts.DELETE("", h.alert.Clear)
			alerts.GET("/stream", h.alert.Stream)
			alerts.POST("/:id/read", h.alert.MarkRead)
		}
	}

	r.GET("/health", healthHandler(checks))
}

// healthHandler pings every store; any failure turns the answer into a 503
func healthHandler(checks map[string]HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		results := make(gin.H, len(checks))
		for name, check := range checks {
			if err := check.Ping(ctx); err != nil {
				status = http.StatusServiceUnavailable
				results[name] = err.Error()
				continue
			}
			results[name] = "ok"
		}

		state := "ok"
		if status != http.StatusOK {
			state = "degraded"
		}
		c.JSON(status, gin.H{"status": state, "checks": results, "timestamp": time.Now().UTC()})
	}
}
