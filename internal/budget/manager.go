// Package budget manages each user's spending period
package budget

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/expense-tracker/internal/domain/period"
	"github.com/expense-tracker/internal/domain/shared"
)

// PeriodListener is told about every period replacement
type PeriodListener func(ctx context.Context, p *period.SpendingPeriod)

// Manager reads and replaces spending periods
type Manager struct {
	repo      period.Repository
	now       func() time.Time
	logger    *slog.Logger
	mu        sync.RWMutex
	listeners []PeriodListener
}

func NewManager(logger *slog.Logger, repo period.Repository) *Manager {
	return &Manager{
		repo:   repo,
		now:    time.Now,
		logger: logger,
	}
}

// OnPeriodChange registers l to run after every successful SetPeriod
func (m *Manager) OnPeriodChange(l PeriodListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

// GetActivePeriod returns the user's current period, or nil if none was set
func (m *Manager) GetActivePeriod(ctx context.Context, userID string) (*period.SpendingPeriod, error) {
	if userID == "" {
		return nil, shared.ErrNotAuthenticated
	}
	p, err := m.repo.GetActive(ctx, userID)
	if err != nil {
		m.logger.Error("Failed to get active period", "user_id", userID, "error", err)
		return nil, fmt.Errorf("failed to get active period: %w", err)
	}
	return p, nil
}

// SetPeriod starts a new window now, replacing any existing one
func (m *Manager) SetPeriod(ctx context.Context, userID string, limit decimal.Decimal, days, hours int) (*period.SpendingPeriod, error) {
	p, err := period.NewSpendingPeriod(userID, limit, days, hours, m.now())
	if err != nil {
		m.logger.Info("Rejected spending period",
			"user_id", userID,
			"limit", limit.String(),
			"days", days,
			"hours", hours,
			"reason", err,
		)
		return nil, err
	}

	if err := m.repo.Upsert(ctx, p); err != nil {
		m.logger.Error("Failed to save spending period", "user_id", userID, "error", err)
		return nil, fmt.Errorf("failed to save spending period: %w", err)
	}

	m.logger.Info("Spending period set",
		"user_id", userID,
		"period_id", p.ID.String(),
		"limit", p.Limit.String(),
		"end_date", p.EndDate,
	)

	m.mu.RLock()
	listeners := append([]PeriodListener(nil), m.listeners...)
	m.mu.RUnlock()
	for _, l := range listeners {
		l(ctx, p)
	}

	return p, nil
}

// TimeRemaining returns how long the user's current period still runs.
// Zero when the period is over or none is set.
func (m *Manager) TimeRemaining(ctx context.Context, userID string) (time.Duration, error) {
	p, err := m.GetActivePeriod(ctx, userID)
	if err != nil || p == nil {
		return 0, err
	}
	return p.Remaining(m.now()), nil
}
