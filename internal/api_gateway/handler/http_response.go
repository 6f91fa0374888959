package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/expense-tracker/internal/aggregation"
	"github.com/expense-tracker/internal/api_gateway/middleware"
	"github.com/expense-tracker/internal/domain/shared"
	"github.com/expense-tracker/internal/ingestion"
	"github.com/expense-tracker/internal/ocr"
)

// Response represents a standard API response
type Response struct {
	Data          interface{} `json:"data,omitempty"`
	Error         *ErrorInfo  `json:"error,omitempty"`
	CorrelationID string      `json:"correlation_id,omitempty"`
}

// ErrorInfo represents error information in a response
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewResponse creates a new response with data
func NewResponse(data interface{}) *Response {
	return &Response{
		Data: data,
	}
}

// NewErrorResponse creates a new error response
func NewErrorResponse(code, message string) *Response {
	return &Response{
		Error: &ErrorInfo{
			Code:    code,
			Message: message,
		},
	}
}

// RespondWithData sends a JSON response with data
func RespondWithData(c *gin.Context, statusCode int, data interface{}) {
	response := NewResponse(data)
	response.CorrelationID = middleware.GetCorrelationID(c)
	c.JSON(statusCode, response)
}

// RespondWithError sends a JSON response with an error
func RespondWithError(c *gin.Context, statusCode int, code, message string) {
	response := NewErrorResponse(code, message)
	response.CorrelationID = middleware.GetCorrelationID(c)
	c.JSON(statusCode, response)
}

// RespondOK sends a 200 OK response with data
func RespondOK(c *gin.Context, data interface{}) {
	RespondWithData(c, http.StatusOK, data)
}

// RespondCreated sends a 201 Created response with data
func RespondCreated(c *gin.Context, data interface{}) {
	RespondWithData(c, http.StatusCreated, data)
}

// RespondNoContent sends a 204 No Content response
func RespondNoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// RespondBadRequest sends a 400 Bad Request response with an error
func RespondBadRequest(c *gin.Context, message string) {
	RespondWithError(c, http.StatusBadRequest, "BAD_REQUEST", message)
}

// RespondUnauthorized sends a 401 Unauthorized response with an error
func RespondUnauthorized(c *gin.Context, message string) {
	if message == "" {
		message = "Unauthorized"
	}
	RespondWithError(c, http.StatusUnauthorized, "UNAUTHORIZED", message)
}

// RespondNotFound sends a 404 Not Found response with an error
func RespondNotFound(c *gin.Context, message string) {
	if message == "" {
		message = "Resource not found"
	}
	RespondWithError(c, http.StatusNotFound, "NOT_FOUND", message)
}

// RespondInternalError sends a 500 Internal Server Error response with an error
func RespondInternalError(c *gin.Context) {
	RespondWithError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "An internal server error occurred")
}

// RespondServiceUnavailable sends a 503 Service Unavailable response with an error
func RespondServiceUnavailable(c *gin.Context) {
	RespondWithError(c, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "The expense store is unavailable, try again later")
}

// RespondServiceError maps a tracker error to its HTTP status. Unknown errors
// are logged and reported as 500.
func RespondServiceError(c *gin.Context, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, shared.ErrInvalidAmount):
		RespondWithError(c, http.StatusBadRequest, "INVALID_AMOUNT", err.Error())
	case errors.Is(err, shared.ErrInvalidDuration):
		RespondWithError(c, http.StatusBadRequest, "INVALID_DURATION", err.Error())
	case errors.Is(err, shared.ErrInvalidLimit):
		RespondWithError(c, http.StatusBadRequest, "INVALID_LIMIT", err.Error())
	case errors.Is(err, shared.ErrNotAuthenticated):
		RespondUnauthorized(c, "A signed-in user is required")
	case errors.Is(err, shared.ErrNotFound):
		RespondNotFound(c, "")
	case errors.Is(err, aggregation.ErrUnavailable):
		RespondWithError(c, http.StatusNotFound, "NO_ACTIVE_BUDGET", "No spending period has been set")
	case errors.Is(err, shared.ErrDuplicate):
		RespondWithError(c, http.StatusConflict, "DUPLICATE", "This event was already recorded")
	case errors.Is(err, ingestion.ErrBusy):
		RespondWithError(c, http.StatusTooManyRequests, "BUSY", "Another message is being processed")
	case errors.Is(err, ocr.ErrDisabled):
		RespondWithError(c, http.StatusNotImplemented, "OCR_DISABLED", "Receipt image recognition is not configured")
	case errors.Is(err, shared.ErrStoreUnavailable):
		logger.Error("Store unavailable", "path", c.FullPath(), "error", err)
		RespondServiceUnavailable(c)
	default:
		logger.Error("Request failed", "path", c.FullPath(), "error", err)
		RespondInternalError(c)
	}
}
