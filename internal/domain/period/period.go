package period

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/expense-tracker/internal/domain/shared"
)

// SpendingPeriod is a user's budget window. StartDate and EndDate are inclusive.
type SpendingPeriod struct {
	ID        uuid.UUID       `json:"id"`
	UserID    string          `json:"user_id"`
	StartDate time.Time       `json:"start_date"`
	EndDate   time.Time       `json:"end_date"`
	Limit     decimal.Decimal `json:"limit"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewSpendingPeriod starts a window at now lasting the given number of days and hours
func NewSpendingPeriod(userID string, limit decimal.Decimal, days, hours int, now time.Time) (*SpendingPeriod, error) {
	if userID == "" {
		return nil, shared.ErrNotAuthenticated
	}
	duration := time.Duration(days)*24*time.Hour + time.Duration(hours)*time.Hour
	if duration <= 0 {
		return nil, shared.ErrInvalidDuration
	}
	if !limit.IsPositive() {
		return nil, shared.ErrInvalidLimit
	}

	start := now.UTC()
	return &SpendingPeriod{
		ID:        uuid.New(),
		UserID:    userID,
		StartDate: start,
		EndDate:   start.Add(duration),
		Limit:     limit.Round(2),
		CreatedAt: start,
	}, nil
}

// Contains reports whether t falls inside the window
func (p *SpendingPeriod) Contains(t time.Time) bool {
	return !t.Before(p.StartDate) && !t.After(p.EndDate)
}

// Remaining returns the time left until EndDate, zero once the window is over
func (p *SpendingPeriod) Remaining(now time.Time) time.Duration {
	if now.After(p.EndDate) {
		return 0
	}
	return p.EndDate.Sub(now)
}

// Latest picks the period with the most recent StartDate, ignoring the rest
func Latest(periods []*SpendingPeriod) *SpendingPeriod {
	var latest *SpendingPeriod
	for _, p := range periods {
		if p == nil {
			continue
		}
		if latest == nil || p.StartDate.After(latest.StartDate) {
			latest = p
		}
	}
	return latest
}

// Repository persists spending periods, one active period per user
type Repository interface {
	// GetActive returns the period with the latest start date, or nil, nil if none
	GetActive(ctx context.Context, userID string) (*SpendingPeriod, error)
	// Upsert overwrites the user's period with p
	Upsert(ctx context.Context, p *SpendingPeriod) error
	// ListActive returns the periods whose window contains now
	ListActive(ctx context.Context, now time.Time) ([]*SpendingPeriod, error)
}
