package handler

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/expense-tracker/internal/aggregation"
	"github.com/expense-tracker/internal/domain/alert"
	"github.com/expense-tracker/internal/domain/expense"
	"github.com/expense-tracker/internal/domain/period"
)

// CreateExpenseRequest represents a manually entered expense. Amount accepts a
// JSON number or a decimal string.
type CreateExpenseRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Category    string          `json:"category" binding:"max=100"`
	Description string          `json:"description" binding:"max=500"`
	Currency    string          `json:"currency" binding:"omitempty,len=3"`
	OccurredAt  *time.Time      `json:"occurred_at,omitempty"`
}

// ReceiptTextRequest carries text already recognized on the device
type ReceiptTextRequest struct {
	Text       string     `json:"text" binding:"required"`
	OccurredAt *time.Time `json:"occurred_at,omitempty"`
}

// SMSRequest carries one inbound bank message
type SMSRequest struct {
	Body       string     `json:"body" binding:"required"`
	SenderID   string     `json:"sender_id"`
	ReceivedAt *time.Time `json:"received_at,omitempty"`
}

// UpdateExpenseRequest edits an entry; omitted fields are left unchanged
type UpdateExpenseRequest struct {
	Amount      *decimal.Decimal `json:"amount,omitempty"`
	Category    *string          `json:"category,omitempty"`
	Description *string          `json:"description,omitempty"`
	OccurredAt  *time.Time       `json:"occurred_at,omitempty"`
}

// ListExpensesParams bounds the listed range; defaults to the last 30 days
type ListExpensesParams struct {
	From time.Time `form:"from" time_format:"2006-01-02T15:04:05Z07:00"`
	To   time.Time `form:"to" time_format:"2006-01-02T15:04:05Z07:00"`
}

// SetBudgetRequest starts a new spending period now
type SetBudgetRequest struct {
	Limit decimal.Decimal `json:"limit"`
	Days  int             `json:"days" binding:"min=0,max=3660"`
	Hours int             `json:"hours" binding:"min=0,max=87840"`
}

// ExpenseResponse represents a ledger entry in API responses
type ExpenseResponse struct {
	ID          string `json:"id"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency,omitempty"`
	Source      string `json:"source"`
	Provenance  string `json:"provenance,omitempty"`
	Category    string `json:"category"`
	Description string `json:"description,omitempty"`
	OccurredAt  string `json:"occurred_at"`
	CreatedAt   string `json:"created_at"`
}

// IngestResponse reports whether an adapter produced an entry
type IngestResponse struct {
	Recorded bool             `json:"recorded"`
	Reason   string           `json:"reason,omitempty"`
	Expense  *ExpenseResponse `json:"expense,omitempty"`
}

// ExpenseListResponse represents a list of entries in API responses
type ExpenseListResponse struct {
	Expenses []ExpenseResponse `json:"expenses"`
}

// BudgetResponse represents a spending period in API responses
type BudgetResponse struct {
	PeriodID         string `json:"period_id"`
	Limit            string `json:"limit"`
	StartDate        string `json:"start_date"`
	EndDate          string `json:"end_date"`
	RemainingSeconds int64  `json:"remaining_seconds"`
}

// AggregateResponse represents the live spending view in API responses
type AggregateResponse struct {
	PeriodID   string            `json:"period_id"`
	StartDate  string            `json:"start_date"`
	EndDate    string            `json:"end_date"`
	TotalSpent string            `json:"total_spent"`
	Limit      string            `json:"limit"`
	Remaining  string            `json:"remaining"`
	Percentage string            `json:"percentage"`
	EntryCount int               `json:"entry_count"`
	ByCategory map[string]string `json:"by_category"`
	ComputedAt string            `json:"computed_at"`
}

// AlertResponse represents an alert feed item in API responses
type AlertResponse struct {
	ID         string `json:"id"`
	PeriodID   string `json:"period_id"`
	Title      string `json:"title"`
	Message    string `json:"message"`
	Band       string `json:"band"`
	Percentage string `json:"percentage"`
	Read       bool   `json:"read"`
	CreatedAt  string `json:"created_at"`
}

// AlertListResponse represents the alert feed in API responses
type AlertListResponse struct {
	Alerts []AlertResponse `json:"alerts"`
}

func mapEntryToResponse(e *expense.Entry) ExpenseResponse {
	return ExpenseResponse{
		ID:          e.ID.String(),
		Amount:      e.Amount.StringFixed(2),
		Currency:    e.Currency,
		Source:      string(e.Source),
		Provenance:  e.Provenance,
		Category:    e.Category,
		Description: e.Description,
		OccurredAt:  e.OccurredAt.Format(time.RFC3339),
		CreatedAt:   e.CreatedAt.Format(time.RFC3339),
	}
}

func mapPeriodToResponse(p *period.SpendingPeriod, remaining time.Duration) BudgetResponse {
	return BudgetResponse{
		PeriodID:         p.ID.String(),
		Limit:            p.Limit.StringFixed(2),
		StartDate:        p.StartDate.Format(time.RFC3339),
		EndDate:          p.EndDate.Format(time.RFC3339),
		RemainingSeconds: int64(remaining / time.Second),
	}
}

func mapViewToResponse(v aggregation.View) AggregateResponse {
	byCategory := make(map[string]string, len(v.ByCategory))
	for category, amount := range v.ByCategory {
		byCategory[category] = amount.StringFixed(2)
	}
	return AggregateResponse{
		PeriodID:   v.PeriodID.String(),
		StartDate:  v.StartDate.Format(time.RFC3339),
		EndDate:    v.EndDate.Format(time.RFC3339),
		TotalSpent: v.TotalSpent.StringFixed(2),
		Limit:      v.Limit.StringFixed(2),
		Remaining:  v.Remaining().StringFixed(2),
		Percentage: v.Percentage.StringFixed(2),
		EntryCount: v.EntryCount,
		ByCategory: byCategory,
		ComputedAt: v.ComputedAt.Format(time.RFC3339),
	}
}

func mapAlertToResponse(a *alert.Alert) AlertResponse {
	return AlertResponse{
		ID:         a.ID.String(),
		PeriodID:   a.PeriodID.String(),
		Title:      a.Title,
		Message:    a.Message,
		Band:       string(a.Band),
		Percentage: a.Percentage.StringFixed(2),
		Read:       a.Read,
		CreatedAt:  a.CreatedAt.Format(time.RFC3339),
	}
}

func timeOrZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
