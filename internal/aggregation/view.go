// Package aggregation keeps a live spending view per user. A view is the sum
// of the user's ledger entries inside the active spending period, recomputed in
// full on every period change and every ledger change of that range.
package aggregation

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/expense-tracker/internal/domain/expense"
	"github.com/expense-tracker/internal/domain/period"
)

// ErrUnavailable is returned when the user has no spending period to aggregate over
var ErrUnavailable = errors.New("aggregate unavailable: no active spending period")

var hundred = decimal.NewFromInt(100)

// View is the derived spending state of one period. It is never persisted.
type View struct {
	UserID     string                     `json:"user_id"`
	PeriodID   uuid.UUID                  `json:"period_id"`
	StartDate  time.Time                  `json:"start_date"`
	EndDate    time.Time                  `json:"end_date"`
	TotalSpent decimal.Decimal            `json:"total_spent"`
	Limit      decimal.Decimal            `json:"limit"`
	Percentage decimal.Decimal            `json:"percentage"` // unclamped, may exceed 100
	EntryCount int                        `json:"entry_count"`
	ByCategory map[string]decimal.Decimal `json:"by_category"`
	ComputedAt time.Time                  `json:"computed_at"`
}

// Compute sums the entries of p's owner that fall inside p's window
func Compute(p *period.SpendingPeriod, entries []*expense.Entry, now time.Time) View {
	v := View{
		UserID:     p.UserID,
		PeriodID:   p.ID,
		StartDate:  p.StartDate,
		EndDate:    p.EndDate,
		TotalSpent: decimal.Zero,
		Limit:      p.Limit,
		Percentage: decimal.Zero,
		ByCategory: make(map[string]decimal.Decimal),
		ComputedAt: now.UTC(),
	}

	for _, e := range entries {
		if e.UserID != p.UserID || !e.InRange(p.StartDate, p.EndDate) {
			continue
		}
		v.TotalSpent = v.TotalSpent.Add(e.Amount)
		v.ByCategory[e.Category] = v.ByCategory[e.Category].Add(e.Amount)
		v.EntryCount++
	}

	if p.Limit.IsPositive() {
		v.Percentage = v.TotalSpent.Mul(hundred).Div(p.Limit)
	}
	return v
}

// Remaining is the part of the limit not yet spent, negative once exceeded
func (v View) Remaining() decimal.Decimal {
	return v.Limit.Sub(v.TotalSpent)
}

func (v View) clone() View {
	c := v
	c.ByCategory = make(map[string]decimal.Decimal, len(v.ByCategory))
	for k, amount := range v.ByCategory {
		c.ByCategory[k] = amount
	}
	return c
}
