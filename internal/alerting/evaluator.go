// Package alerting turns aggregate views into threshold alerts.
//
// Each (user, period) pair moves through three bands: normal, approaching and
// exceeded. An alert fires on every upward crossing for the highest band
// reached; moving back down re-arms the lower bands. A new period starts over
// at normal.
//
// Bands live in memory. The first view of a period after a restart or Reset
// seeds the band from the newest persisted alert of that period, so a user
// already past a threshold is not alerted twice.
package alerting

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/expense-tracker/internal/aggregation"
	"github.com/expense-tracker/internal/config"
	"github.com/expense-tracker/internal/domain/alert"
)

const (
	TitleApproaching = "Approaching Spending Limit"
	TitleExceeded    = "Spending Limit Exceeded!"
)

type level int

const (
	levelNormal level = iota
	levelApproaching
	levelExceeded
)

type userState struct {
	periodID uuid.UUID
	level    level
}

// Evaluator applies the band state machine to every view it is given
type Evaluator struct {
	alerts      alert.Repository
	notifier    Notifier
	approaching decimal.Decimal
	exceeded    decimal.Decimal
	now         func() time.Time
	logger      *slog.Logger

	mu     sync.Mutex
	states map[string]*userState

	subMu       sync.RWMutex
	nextSub     uint64
	subscribers map[string]map[uint64]func(alert.Alert)
}

// NewEvaluator creates an evaluator with the configured band thresholds
func NewEvaluator(logger *slog.Logger, alerts alert.Repository, notifier Notifier, cfg config.AlertsConfig) *Evaluator {
	approaching, exceeded := cfg.ApproachingPercent, cfg.ExceededPercent
	if approaching <= 0 {
		approaching = 80
	}
	if exceeded <= approaching {
		exceeded = 100
	}
	if notifier == nil {
		notifier = NewLogNotifier(logger)
	}
	return &Evaluator{
		alerts:      alerts,
		notifier:    notifier,
		approaching: decimal.NewFromInt(int64(approaching)),
		exceeded:    decimal.NewFromInt(int64(exceeded)),
		now:         time.Now,
		logger:      logger,
		states:      make(map[string]*userState),
		subscribers: make(map[string]map[uint64]func(alert.Alert)),
	}
}

func (e *Evaluator) classify(percentage decimal.Decimal) level {
	switch {
	case percentage.GreaterThanOrEqual(e.exceeded):
		return levelExceeded
	case percentage.GreaterThanOrEqual(e.approaching):
		return levelApproaching
	default:
		return levelNormal
	}
}

// Evaluate updates the user's band and emits an alert on an upward crossing.
// The returned alert is nil when nothing fired.
func (e *Evaluator) Evaluate(ctx context.Context, v aggregation.View) *alert.Alert {
	next := e.classify(v.Percentage)

	e.mu.Lock()
	st, ok := e.states[v.UserID]
	known := ok && st.periodID == v.PeriodID
	e.mu.Unlock()

	var seed level
	if !known {
		var err error
		if seed, err = e.persistedLevel(ctx, v); err != nil {
			// Retried on the next view
			e.logger.Warn("Failed to load alert history, skipping evaluation", "user_id", v.UserID, "error", err)
			return nil
		}
	}

	e.mu.Lock()
	st, ok = e.states[v.UserID]
	if !ok || st.periodID != v.PeriodID {
		st = &userState{periodID: v.PeriodID, level: seed}
		e.states[v.UserID] = st
	}
	prev := st.level
	st.level = next
	e.mu.Unlock()

	if next <= prev {
		if next < prev {
			e.logger.Debug("Spending fell below a band, re-armed", "user_id", v.UserID, "percentage", v.Percentage.StringFixed(1))
		}
		return nil
	}

	a := e.build(v, next)
	e.deliver(ctx, a)
	return a
}

// persistedLevel is the band of the newest stored alert for the view's period
func (e *Evaluator) persistedLevel(ctx context.Context, v aggregation.View) (level, error) {
	alerts, err := e.alerts.ListByUser(ctx, v.UserID)
	if err != nil {
		return levelNormal, err
	}
	for _, a := range alerts {
		if a.PeriodID != v.PeriodID {
			continue
		}
		switch a.Band {
		case alert.BandExceeded:
			return levelExceeded, nil
		case alert.BandApproaching:
			return levelApproaching, nil
		}
	}
	return levelNormal, nil
}

func (e *Evaluator) build(v aggregation.View, l level) *alert.Alert {
	a := &alert.Alert{
		ID:         uuid.New(),
		UserID:     v.UserID,
		PeriodID:   v.PeriodID,
		Percentage: v.Percentage.Round(2),
		CreatedAt:  e.now().UTC(),
	}
	spent, limit := v.TotalSpent.StringFixed(2), v.Limit.StringFixed(2)
	if l == levelExceeded {
		a.Band = alert.BandExceeded
		a.Title = TitleExceeded
		a.Message = fmt.Sprintf("You've spent %s, which exceeds your limit of %s.", spent, limit)
	} else {
		a.Band = alert.BandApproaching
		a.Title = TitleApproaching
		a.Message = fmt.Sprintf("You've spent %s, which is %s%% of your %s limit.", spent, v.Percentage.StringFixed(1), limit)
	}
	return a
}

// deliver persists, notifies and broadcasts. A failed step is logged and the
// rest still run.
func (e *Evaluator) deliver(ctx context.Context, a *alert.Alert) {
	logger := e.logger.With("user_id", a.UserID, "band", string(a.Band))

	if err := e.alerts.Create(ctx, a); err != nil {
		logger.Error("Failed to persist alert", "error", err)
	}

	n := Notification{
		UserID: a.UserID,
		Title:  a.Title,
		Body:   a.Message,
		Data: map[string]string{
			"alert_id":   a.ID.String(),
			"period_id":  a.PeriodID.String(),
			"band":       string(a.Band),
			"percentage": a.Percentage.StringFixed(2),
		},
	}
	if err := e.notifier.Deliver(ctx, n); err != nil {
		logger.Error("Failed to deliver alert notification", "error", err)
	}

	e.subMu.RLock()
	fns := make([]func(alert.Alert), 0, len(e.subscribers[a.UserID]))
	for _, fn := range e.subscribers[a.UserID] {
		fns = append(fns, fn)
	}
	e.subMu.RUnlock()
	for _, fn := range fns {
		fn(*a)
	}

	logger.Info("Spending alert raised", "percentage", a.Percentage.String())
}

// Reset forgets the user's cached band. The next view reloads it from the
// alert history of its period.
func (e *Evaluator) Reset(userID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.states, userID)
}

// Subscribe calls fn for every alert raised for the user until the returned
// function is called
func (e *Evaluator) Subscribe(userID string, fn func(alert.Alert)) func() {
	e.subMu.Lock()
	e.nextSub++
	id := e.nextSub
	if e.subscribers[userID] == nil {
		e.subscribers[userID] = make(map[uint64]func(alert.Alert))
	}
	e.subscribers[userID][id] = fn
	e.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.subMu.Lock()
			defer e.subMu.Unlock()
			delete(e.subscribers[userID], id)
			if len(e.subscribers[userID]) == 0 {
				delete(e.subscribers, userID)
			}
		})
	}
}
