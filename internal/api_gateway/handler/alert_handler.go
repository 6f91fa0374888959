package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/expense-tracker/internal/api_gateway/middleware"
	"github.com/expense-tracker/internal/api_gateway/service"
	"github.com/expense-tracker/internal/domain/alert"
)

const (
	streamBuffer    = 16
	streamKeepAlive = 25 * time.Second
)

// AlertHandler handles HTTP requests for the alert feed
type AlertHandler struct {
	alertService service.AlertService
	logger       *slog.Logger
}

// NewAlertHandler creates a new alert handler
func NewAlertHandler(logger *slog.Logger, alertService service.AlertService) *AlertHandler {
	return &AlertHandler{
		alertService: alertService,
		logger:       logger,
	}
}

// List returns the user's alerts, newest first
func (h *AlertHandler) List(c *gin.Context) {
	alerts, err := h.alertService.Alerts(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		RespondServiceError(c, h.logger, err)
		return
	}

	response := AlertListResponse{Alerts: make([]AlertResponse, 0, len(alerts))}
	for _, a := range alerts {
		response.Alerts = append(response.Alerts, mapAlertToResponse(a))
	}
	RespondOK(c, response)
}

// MarkRead flags one alert as read
func (h *AlertHandler) MarkRead(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondBadRequest(c, "Invalid alert ID")
		return
	}

	if err := h.alertService.MarkAlertRead(c.Request.Context(), middleware.GetUserID(c), id); err != nil {
		RespondServiceError(c, h.logger, err)
		return
	}
	RespondNoContent(c)
}

// Clear empties the user's alert feed
func (h *AlertHandler) Clear(c *gin.Context) {
	removed, err := h.alertService.ClearAlerts(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		RespondServiceError(c, h.logger, err)
		return
	}
	RespondOK(c, gin.H{"removed": removed})
}

// Stream pushes alerts to the client as server-sent events until it disconnects.
// Alerts arriving faster than the client reads are dropped.
func (h *AlertHandler) Stream(c *gin.Context) {
	ctx := c.Request.Context()
	userID := middleware.GetUserID(c)

	events := make(chan alert.Alert, streamBuffer)
	unsubscribe, err := h.alertService.SubscribeAlerts(ctx, userID, func(a alert.Alert) {
		select {
		case events <- a:
		default:
			h.logger.Warn("Alert stream is full, alert dropped", "user_id", a.UserID, "alert_id", a.ID.String())
		}
	})
	if err != nil {
		RespondServiceError(c, h.logger, err)
		return
	}
	defer unsubscribe()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	keepAlive := time.NewTicker(streamKeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("Alert stream closed", "user_id", userID)
			return
		case a := <-events:
			c.SSEvent("alert", mapAlertToResponse(&a))
			c.Writer.Flush()
		case <-keepAlive.C:
			c.SSEvent("ping", gin.H{"at": time.Now().UTC().Format(time.RFC3339)})
			c.Writer.Flush()
		}
	}
}
