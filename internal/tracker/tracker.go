// Package tracker is the entry point of the expense tracker core. It resolves
// the acting user, runs ingestion and keeps the live aggregate and alert
// evaluation in step with every write and budget change.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/expense-tracker/internal/aggregation"
	"github.com/expense-tracker/internal/alerting"
	"github.com/expense-tracker/internal/budget"
	"github.com/expense-tracker/internal/config"
	"github.com/expense-tracker/internal/dedup"
	"github.com/expense-tracker/internal/domain/alert"
	"github.com/expense-tracker/internal/domain/expense"
	"github.com/expense-tracker/internal/domain/period"
	"github.com/expense-tracker/internal/domain/shared"
	"github.com/expense-tracker/internal/identity"
	"github.com/expense-tracker/internal/ingestion"
	"github.com/expense-tracker/internal/ocr"
)

// Deps are the stores and adapters the tracker runs on
type Deps struct {
	Identity identity.Provider
	Ledger   expense.Repository
	// Subscriber watches ledger ranges; defaults to Ledger when it implements expense.Subscriber
	Subscriber expense.Subscriber
	Periods    period.Repository
	Alerts     alert.Repository
	Notifier   alerting.Notifier
	Recognizer ocr.TextRecognizer // optional
}

// Tracker exposes the expense tracker operations
type Tracker struct {
	identity    identity.Provider
	coordinator *dedup.Coordinator
	ingestion   *ingestion.Service
	budget      *budget.Manager
	aggregator  *aggregation.Aggregator
	evaluator   *alerting.Evaluator
	alerts      alert.Repository
	recognizer  ocr.TextRecognizer
	logger      *slog.Logger
}

// New builds and wires the tracker components
func New(logger *slog.Logger, cfg *config.Config, deps Deps) (*Tracker, error) {
	if deps.Identity == nil {
		deps.Identity = identity.RequestProvider{}
	}
	if deps.Subscriber == nil {
		sub, ok := deps.Ledger.(expense.Subscriber)
		if !ok {
			return nil, errors.New("ledger store cannot push changes and no subscriber was given")
		}
		deps.Subscriber = sub
	}

	coordinator := dedup.NewCoordinator(logger.With("component", "dedup"))
	t := &Tracker{
		identity:    deps.Identity,
		coordinator: coordinator,
		ingestion:   ingestion.NewService(logger.With("component", "ingestion"), deps.Ledger, coordinator, cfg.Ingestion),
		budget:      budget.NewManager(logger.With("component", "budget"), deps.Periods),
		aggregator:  aggregation.NewAggregator(logger.With("component", "aggregation"), deps.Ledger, deps.Subscriber, deps.Periods, cfg.Aggregation.CallbackTimeout),
		evaluator:   alerting.NewEvaluator(logger.With("component", "alerting"), deps.Alerts, deps.Notifier, cfg.Alerts),
		alerts:      deps.Alerts,
		recognizer:  deps.Recognizer,
		logger:      logger,
	}

	t.budget.OnPeriodChange(func(ctx context.Context, p *period.SpendingPeriod) {
		t.evaluator.Reset(p.UserID)
		if err := t.aggregator.PeriodChanged(ctx, p); err != nil {
			t.logger.Warn("Failed to switch aggregate to new period", "user_id", p.UserID, "error", err)
		}
	})
	t.aggregator.OnUpdate(func(ctx context.Context, v aggregation.View) {
		t.evaluator.Evaluate(ctx, v)
	})
	t.identity.OnAuthChange(func(previous, next string) {
		t.coordinator.Reset()
		if previous != "" {
			t.aggregator.Untrack(previous)
		}
		t.logger.Info("Signed-in user changed", "previous", previous, "next", next)
	})

	return t, nil
}

// Start resumes live aggregation for every running period
func (t *Tracker) Start(ctx context.Context) error {
	return t.aggregator.Warm(ctx)
}

// Stop detaches live aggregation from the ledger and releases every dedup
// claim. The tracker raises no alerts afterwards.
func (t *Tracker) Stop() {
	t.aggregator.UntrackAll()
	t.coordinator.Reset()
	t.logger.Info("Tracker stopped")
}

// resolveUser prefers an explicit id and falls back to the identity provider
func (t *Tracker) resolveUser(ctx context.Context, userID string) (string, error) {
	if userID != "" {
		return userID, nil
	}
	if current, ok := t.identity.CurrentUserID(ctx); ok {
		return current, nil
	}
	return "", shared.ErrNotAuthenticated
}

// afterWrite brings the live view up to date without waiting for a change feed
func (t *Tracker) afterWrite(ctx context.Context, userID string) {
	if err := t.aggregator.Track(ctx, userID); err != nil {
		t.logger.Warn("Failed to track aggregate after write", "user_id", userID, "error", err)
		return
	}
	if err := t.aggregator.Refresh(ctx, userID); err != nil {
		t.logger.Warn("Failed to refresh aggregate after write", "user_id", userID, "error", err)
	}
}

// IngestManual records a user-entered expense
func (t *Tracker) IngestManual(ctx context.Context, userID string, in ingestion.ManualExpense) (*expense.Entry, error) {
	userID, err := t.resolveUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	entry, err := t.ingestion.IngestManual(ctx, userID, in)
	if err != nil {
		return nil, err
	}
	t.afterWrite(ctx, userID)
	return entry, nil
}

// IngestReceipt records the total of recognized receipt text. Returns nil, nil
// when the text has no amount.
func (t *Tracker) IngestReceipt(ctx context.Context, userID, text string, occurredAt time.Time) (*expense.Entry, error) {
	userID, err := t.resolveUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	entry, err := t.ingestion.IngestReceipt(ctx, userID, text, occurredAt)
	if err != nil || entry == nil {
		return nil, err
	}
	t.afterWrite(ctx, userID)
	return entry, nil
}

// IngestReceiptImage runs OCR on a receipt photo and records its total
func (t *Tracker) IngestReceiptImage(ctx context.Context, userID string, image []byte, occurredAt time.Time) (*expense.Entry, error) {
	userID, err := t.resolveUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if t.recognizer == nil {
		return nil, ocr.ErrDisabled
	}
	text, err := t.recognizer.RecognizeText(ctx, image)
	if err != nil {
		return nil, fmt.Errorf("failed to recognize receipt: %w", err)
	}
	return t.IngestReceipt(ctx, userID, text, occurredAt)
}

// IngestSms records the debit of a bank message. Duplicates return
// shared.ErrDuplicate, messages without an amount return nil, nil.
func (t *Tracker) IngestSms(ctx context.Context, userID string, msg ingestion.SMSMessage) (*expense.Entry, error) {
	userID, err := t.resolveUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	entry, err := t.ingestion.IngestSms(ctx, userID, msg)
	if err != nil || entry == nil {
		return nil, err
	}
	t.afterWrite(ctx, userID)
	return entry, nil
}

// SetBudget replaces the user's spending period, starting now
func (t *Tracker) SetBudget(ctx context.Context, userID string, limit decimal.Decimal, days, hours int) (*period.SpendingPeriod, error) {
	userID, err := t.resolveUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return t.budget.SetPeriod(ctx, userID, limit, days, hours)
}

// GetAggregate returns the user's live spending view, or
// aggregation.ErrUnavailable when no period is set
func (t *Tracker) GetAggregate(ctx context.Context, userID string) (aggregation.View, error) {
	userID, err := t.resolveUser(ctx, userID)
	if err != nil {
		return aggregation.View{}, err
	}
	if err := t.aggregator.Track(ctx, userID); err != nil {
		t.logger.Warn("Failed to track aggregate", "user_id", userID, "error", err)
	}
	return t.aggregator.Get(ctx, userID)
}

// SubscribeAlerts calls onAlert for every alert raised for the user until the
// returned function is called
func (t *Tracker) SubscribeAlerts(ctx context.Context, userID string, onAlert func(alert.Alert)) (func(), error) {
	userID, err := t.resolveUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := t.aggregator.Track(ctx, userID); err != nil {
		t.logger.Warn("Failed to track aggregate for alert subscription", "user_id", userID, "error", err)
	}
	return t.evaluator.Subscribe(userID, onAlert), nil
}

// ListEntries returns the user's entries inside [from, to], oldest first
func (t *Tracker) ListEntries(ctx context.Context, userID string, from, to time.Time) ([]*expense.Entry, error) {
	userID, err := t.resolveUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return t.ingestion.ListEntries(ctx, userID, from, to)
}

// UpdateEntry edits one of the user's entries
func (t *Tracker) UpdateEntry(ctx context.Context, userID string, id uuid.UUID, patch expense.Patch) (*expense.Entry, error) {
	userID, err := t.resolveUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	entry, err := t.ingestion.UpdateEntry(ctx, userID, id, patch)
	if err != nil {
		return nil, err
	}
	t.afterWrite(ctx, userID)
	return entry, nil
}

// DeleteEntry removes one of the user's entries
func (t *Tracker) DeleteEntry(ctx context.Context, userID string, id uuid.UUID) error {
	userID, err := t.resolveUser(ctx, userID)
	if err != nil {
		return err
	}
	if err := t.ingestion.DeleteEntry(ctx, userID, id); err != nil {
		return err
	}
	t.afterWrite(ctx, userID)
	return nil
}

// ActivePeriod returns the user's period and the time left in it
func (t *Tracker) ActivePeriod(ctx context.Context, userID string) (*period.SpendingPeriod, time.Duration, error) {
	userID, err := t.resolveUser(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	p, err := t.budget.GetActivePeriod(ctx, userID)
	if err != nil || p == nil {
		return nil, 0, err
	}
	return p, p.Remaining(time.Now()), nil
}

// Alerts returns the user's alert feed, newest first
func (t *Tracker) Alerts(ctx context.Context, userID string) ([]*alert.Alert, error) {
	userID, err := t.resolveUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	alerts, err := t.alerts.ListByUser(ctx, userID)
	if err != nil {
		t.logger.Error("Failed to list alerts", "user_id", userID, "error", err)
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	return alerts, nil
}

// MarkAlertRead flags one of the user's alerts as read
func (t *Tracker) MarkAlertRead(ctx context.Context, userID string, id uuid.UUID) error {
	userID, err := t.resolveUser(ctx, userID)
	if err != nil {
		return err
	}
	return t.alerts.MarkRead(ctx, userID, id)
}

// ClearAlerts empties the user's alert feed
func (t *Tracker) ClearAlerts(ctx context.Context, userID string) (int64, error) {
	userID, err := t.resolveUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	return t.alerts.Clear(ctx, userID)
}
