package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/expense-tracker/internal/api_gateway/middleware"
	"github.com/expense-tracker/internal/api_gateway/service"
)

// BudgetHandler handles HTTP requests for spending periods and the live aggregate
type BudgetHandler struct {
	budgetService service.BudgetService
	logger        *slog.Logger
}

// NewBudgetHandler creates a new budget handler
func NewBudgetHandler(logger *slog.Logger, budgetService service.BudgetService) *BudgetHandler {
	return &BudgetHandler{
		budgetService: budgetService,
		logger:        logger,
	}
}

// Set replaces the user's spending period with one starting now
func (h *BudgetHandler) Set(c *gin.Context) {
	var req SetBudgetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	p, err := h.budgetService.SetBudget(c.Request.Context(), middleware.GetUserID(c), req.Limit, req.Days, req.Hours)
	if err != nil {
		RespondServiceError(c, h.logger, err)
		return
	}
	RespondOK(c, mapPeriodToResponse(p, p.Remaining(time.Now())))
}

// Get returns the user's spending period and the time left in it
func (h *BudgetHandler) Get(c *gin.Context) {
	p, remaining, err := h.budgetService.ActivePeriod(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		RespondServiceError(c, h.logger, err)
		return
	}
	if p == nil {
		RespondWithError(c, http.StatusNotFound, "NO_ACTIVE_BUDGET", "No spending period has been set")
		return
	}
	RespondOK(c, mapPeriodToResponse(p, remaining))
}

// Aggregate returns the live spending view of the user's period
func (h *BudgetHandler) Aggregate(c *gin.Context) {
	v, err := h.budgetService.GetAggregate(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		RespondServiceError(c, h.logger, err)
		return
	}
	RespondOK(c, mapViewToResponse(v))
}
