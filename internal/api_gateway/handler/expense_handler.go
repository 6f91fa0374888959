package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/expense-tracker/internal/api_gateway/middleware"
	"github.com/expense-tracker/internal/api_gateway/service"
	"github.com/expense-tracker/internal/domain/expense"
	"github.com/expense-tracker/internal/domain/shared"
	"github.com/expense-tracker/internal/ingestion"
)

const defaultListWindow = 30 * 24 * time.Hour

// ExpenseHandler handles HTTP requests for ledger entries
type ExpenseHandler struct {
	expenseService service.ExpenseService
	maxUploadBytes int64
	logger         *slog.Logger
}

// NewExpenseHandler creates a new expense handler
func NewExpenseHandler(logger *slog.Logger, expenseService service.ExpenseService, maxUploadBytes int64) *ExpenseHandler {
	return &ExpenseHandler{
		expenseService: expenseService,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}
}

// Create records a manually entered expense
func (h *ExpenseHandler) Create(c *gin.Context) {
	var req CreateExpenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	entry, err := h.expenseService.IngestManual(c.Request.Context(), middleware.GetUserID(c), ingestion.ManualExpense{
		Amount:      req.Amount,
		Category:    req.Category,
		Description: req.Description,
		Currency:    req.Currency,
		OccurredAt:  timeOrZero(req.OccurredAt),
	})
	if err != nil {
		RespondServiceError(c, h.logger, err)
		return
	}

	RespondCreated(c, mapEntryToResponse(entry))
}

// CreateFromReceiptText records the total of receipt text recognized on the device
func (h *ExpenseHandler) CreateFromReceiptText(c *gin.Context) {
	var req ReceiptTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	entry, err := h.expenseService.IngestReceipt(c.Request.Context(), middleware.GetUserID(c), req.Text, timeOrZero(req.OccurredAt))
	h.respondIngest(c, entry, err)
}

// CreateFromReceiptImage runs OCR on an uploaded receipt photo ("file" form
// field) and records its total
func (h *ExpenseHandler) CreateFromReceiptImage(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		RespondBadRequest(c, "Missing receipt image in form field 'file'")
		return
	}
	if h.maxUploadBytes > 0 && file.Size > h.maxUploadBytes {
		RespondWithError(c, http.StatusRequestEntityTooLarge, "IMAGE_TOO_LARGE", "Receipt image exceeds the upload limit")
		return
	}

	f, err := file.Open()
	if err != nil {
		h.logger.Error("Failed to open uploaded receipt", "error", err)
		RespondInternalError(c)
		return
	}
	defer f.Close()

	image, err := io.ReadAll(f)
	if err != nil {
		h.logger.Error("Failed to read uploaded receipt", "error", err)
		RespondInternalError(c)
		return
	}

	entry, err := h.expenseService.IngestReceiptImage(c.Request.Context(), middleware.GetUserID(c), image, time.Time{})
	h.respondIngest(c, entry, err)
}

// CreateFromSMS records the debit carried by a bank message
func (h *ExpenseHandler) CreateFromSMS(c *gin.Context) {
	var req SMSRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	entry, err := h.expenseService.IngestSms(c.Request.Context(), middleware.GetUserID(c), ingestion.SMSMessage{
		Body:       req.Body,
		SenderID:   req.SenderID,
		ReceivedAt: timeOrZero(req.ReceivedAt),
	})
	if errors.Is(err, shared.ErrDuplicate) {
		RespondOK(c, IngestResponse{Recorded: false, Reason: "duplicate"})
		return
	}
	h.respondIngest(c, entry, err)
}

// respondIngest answers 201 with the entry, or 200 when no amount was found
func (h *ExpenseHandler) respondIngest(c *gin.Context, entry *expense.Entry, err error) {
	if err != nil {
		RespondServiceError(c, h.logger, err)
		return
	}
	if entry == nil {
		RespondOK(c, IngestResponse{Recorded: false, Reason: "no_amount"})
		return
	}
	response := mapEntryToResponse(entry)
	RespondCreated(c, IngestResponse{Recorded: true, Expense: &response})
}

// List returns the user's entries in [from, to], oldest first
func (h *ExpenseHandler) List(c *gin.Context) {
	var params ListExpensesParams
	if err := c.ShouldBindQuery(&params); err != nil {
		RespondBadRequest(c, "Invalid query parameters: "+err.Error())
		return
	}
	if params.To.IsZero() {
		params.To = time.Now().UTC()
	}
	if params.From.IsZero() {
		params.From = params.To.Add(-defaultListWindow)
	}
	if params.From.After(params.To) {
		RespondBadRequest(c, "'from' must not be after 'to'")
		return
	}

	entries, err := h.expenseService.ListEntries(c.Request.Context(), middleware.GetUserID(c), params.From, params.To)
	if err != nil {
		RespondServiceError(c, h.logger, err)
		return
	}

	response := ExpenseListResponse{Expenses: make([]ExpenseResponse, 0, len(entries))}
	for _, e := range entries {
		response.Expenses = append(response.Expenses, mapEntryToResponse(e))
	}
	RespondOK(c, response)
}

// Update edits one of the user's entries
func (h *ExpenseHandler) Update(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	var req UpdateExpenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}
	patch := expense.Patch{
		Amount:      req.Amount,
		Category:    req.Category,
		Description: req.Description,
		OccurredAt:  req.OccurredAt,
	}
	if patch.IsEmpty() {
		RespondBadRequest(c, "Nothing to update")
		return
	}

	entry, err := h.expenseService.UpdateEntry(c.Request.Context(), middleware.GetUserID(c), id, patch)
	if err != nil {
		RespondServiceError(c, h.logger, err)
		return
	}
	RespondOK(c, mapEntryToResponse(entry))
}

// Delete removes one of the user's entries
func (h *ExpenseHandler) Delete(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	if err := h.expenseService.DeleteEntry(c.Request.Context(), middleware.GetUserID(c), id); err != nil {
		RespondServiceError(c, h.logger, err)
		return
	}
	RespondNoContent(c)
}

func (h *ExpenseHandler) parseID(c *gin.Context) (uuid.UUID, bool) {
	idParam := c.Param("id")
	id, err := uuid.Parse(idParam)
	if err != nil {
		RespondBadRequest(c, "Invalid expense ID")
		return uuid.Nil, false
	}
	return id, true
}
