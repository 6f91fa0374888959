package alert

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/expense-tracker/internal/domain/shared"
)

// Band classifies how close spending is to the period limit
type Band string

const (
	BandApproaching Band = "approaching"
	BandExceeded    Band = "exceeded"
	BandWarning     Band = "warning"
)

// ParseBand maps a stored value to a Band, defaulting to BandWarning
func ParseBand(s string) Band {
	switch Band(s) {
	case BandApproaching, BandExceeded:
		return Band(s)
	default:
		return BandWarning
	}
}

// Alert is an entry in the user's alert feed
type Alert struct {
	ID         uuid.UUID       `json:"id"`
	UserID     string          `json:"user_id"`
	PeriodID   uuid.UUID       `json:"period_id"`
	Title      string          `json:"title"`
	Message    string          `json:"message"`
	Band       Band            `json:"band"`
	Percentage decimal.Decimal `json:"percentage"`
	Read       bool            `json:"read"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Repository persists the alert feed
type Repository interface {
	Create(ctx context.Context, a *Alert) error
	// ListByUser returns the user's alerts, newest first
	ListByUser(ctx context.Context, userID string) ([]*Alert, error)
	MarkRead(ctx context.Context, userID string, id uuid.UUID) error
	// Clear removes all of the user's alerts and returns how many were removed
	Clear(ctx context.Context, userID string) (int64, error)
}

// ErrAlertNotFound indicates a missing alert
type ErrAlertNotFound struct {
	ID uuid.UUID
}

func (e ErrAlertNotFound) Error() string {
	return "alert not found: " + e.ID.String()
}

// Is matches shared.ErrNotFound and ErrAlertNotFound values
func (e ErrAlertNotFound) Is(target error) bool {
	if target == shared.ErrNotFound {
		return true
	}
	t, ok := target.(ErrAlertNotFound)
	return ok && (t.ID == uuid.Nil || t.ID == e.ID)
}
