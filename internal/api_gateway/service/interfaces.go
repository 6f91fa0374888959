package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/expense-tracker/internal/aggregation"
	"github.com/expense-tracker/internal/domain/alert"
	"github.com/expense-tracker/internal/domain/expense"
	"github.com/expense-tracker/internal/domain/period"
	"github.com/expense-tracker/internal/ingestion"
)

// An empty userID resolves to the user of the request context. Every method
// returns shared.ErrNotAuthenticated when no user can be resolved.

// ExpenseService defines the ledger operations
type ExpenseService interface {
	IngestManual(ctx context.Context, userID string, in ingestion.ManualExpense) (*expense.Entry, error)

	// IngestReceipt returns a nil entry when the text carries no total
	IngestReceipt(ctx context.Context, userID, text string, occurredAt time.Time) (*expense.Entry, error)

	// IngestReceiptImage returns ocr.ErrDisabled when no recognizer is configured
	IngestReceiptImage(ctx context.Context, userID string, image []byte, occurredAt time.Time) (*expense.Entry, error)

	// IngestSms returns shared.ErrDuplicate for a repeat inside the dedup
	// window and ingestion.ErrBusy when another message is in progress
	IngestSms(ctx context.Context, userID string, msg ingestion.SMSMessage) (*expense.Entry, error)

	ListEntries(ctx context.Context, userID string, from, to time.Time) ([]*expense.Entry, error)
	UpdateEntry(ctx context.Context, userID string, id uuid.UUID, patch expense.Patch) (*expense.Entry, error)
	DeleteEntry(ctx context.Context, userID string, id uuid.UUID) error
}

// BudgetService defines spending period and aggregate operations
type BudgetService interface {
	SetBudget(ctx context.Context, userID string, limit decimal.Decimal, days, hours int) (*period.SpendingPeriod, error)

	// ActivePeriod returns a nil period when none was set
	ActivePeriod(ctx context.Context, userID string) (*period.SpendingPeriod, time.Duration, error)

	// GetAggregate returns aggregation.ErrUnavailable when no period was set
	GetAggregate(ctx context.Context, userID string) (aggregation.View, error)
}

// AlertService defines the alert feed operations
type AlertService interface {
	Alerts(ctx context.Context, userID string) ([]*alert.Alert, error)
	MarkAlertRead(ctx context.Context, userID string, id uuid.UUID) error
	ClearAlerts(ctx context.Context, userID string) (int64, error)
	SubscribeAlerts(ctx context.Context, userID string, onAlert func(alert.Alert)) (func(), error)
}
