package aggregation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/expense-tracker/internal/domain/expense"
	"github.com/expense-tracker/internal/domain/period"
	"github.com/expense-tracker/internal/domain/shared"
)

// Listener receives every new view. It runs on the goroutine that observed
// the change, with a context bounded by the callback timeout. Listeners must
// not write to the ledger synchronously.
type Listener func(ctx context.Context, v View)

// Aggregator maintains live views for tracked users
type Aggregator struct {
	ledger          expense.Repository
	subscriber      expense.Subscriber
	periods         period.Repository
	callbackTimeout time.Duration
	now             func() time.Time
	logger          *slog.Logger

	mu        sync.Mutex
	users     map[string]*tracked
	listeners []Listener
}

// tracked is the per-user live state. mu guards period, cancel, view and seq;
// emitMu orders listener calls so an older view is never delivered after a newer one.
type tracked struct {
	mu      sync.Mutex
	period  *period.SpendingPeriod
	cancel  func()
	view    *View
	seq     uint64
	emitMu  sync.Mutex
	emitted uint64
}

// NewAggregator creates an aggregator reading entries from ledger and watching
// ranges through subscriber
func NewAggregator(logger *slog.Logger, ledger expense.Repository, subscriber expense.Subscriber, periods period.Repository, callbackTimeout time.Duration) *Aggregator {
	if callbackTimeout <= 0 {
		callbackTimeout = 10 * time.Second
	}
	return &Aggregator{
		ledger:          ledger,
		subscriber:      subscriber,
		periods:         periods,
		callbackTimeout: callbackTimeout,
		now:             time.Now,
		logger:          logger,
		users:           make(map[string]*tracked),
	}
}

// OnUpdate registers l for every recomputed view
func (a *Aggregator) OnUpdate(l Listener) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listeners = append(a.listeners, l)
}

func (a *Aggregator) state(userID string) *tracked {
	a.mu.Lock()
	defer a.mu.Unlock()
	t, ok := a.users[userID]
	if !ok {
		t = &tracked{}
		a.users[userID] = t
	}
	return t
}

// Track starts live aggregation for the user's active period. Tracking an
// already tracked user is a no-op, as is tracking a user without a period.
func (a *Aggregator) Track(ctx context.Context, userID string) error {
	if userID == "" {
		return shared.ErrNotAuthenticated
	}
	t := a.state(userID)

	t.mu.Lock()
	if t.period != nil {
		t.mu.Unlock()
		return nil
	}
	p, err := a.periods.GetActive(ctx, userID)
	if err != nil {
		t.mu.Unlock()
		a.logger.Error("Failed to load period for aggregation", "user_id", userID, "error", err)
		return fmt.Errorf("failed to load period for aggregation: %w", err)
	}
	if p == nil {
		t.mu.Unlock()
		return nil
	}
	v, seq, err := a.attachLocked(ctx, t, p)
	t.mu.Unlock()
	if err != nil {
		return err
	}

	a.emit(t, v, seq)
	return nil
}

// PeriodChanged re-subscribes the user to the new window and recomputes
func (a *Aggregator) PeriodChanged(ctx context.Context, p *period.SpendingPeriod) error {
	t := a.state(p.UserID)

	t.mu.Lock()
	v, seq, err := a.attachLocked(ctx, t, p)
	t.mu.Unlock()
	if err != nil {
		return err
	}

	a.emit(t, v, seq)
	return nil
}

// attachLocked subscribes to p's range before the initial read, so no change
// between the two is missed. Must hold t.mu.
func (a *Aggregator) attachLocked(ctx context.Context, t *tracked, p *period.SpendingPeriod) (View, uint64, error) {
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	t.period = p
	t.view = nil

	userID, periodID := p.UserID, p.ID
	cancel, err := a.subscriber.Subscribe(ctx, userID, p.StartDate, p.EndDate, func(entries []*expense.Entry) {
		a.ledgerChanged(userID, periodID, entries)
	})
	if err != nil {
		t.period = nil
		a.logger.Error("Failed to subscribe to ledger range", "user_id", userID, "error", err)
		return View{}, 0, fmt.Errorf("failed to subscribe to ledger range: %w", err)
	}
	t.cancel = cancel

	entries, err := a.ledger.QueryByUserAndRange(ctx, userID, p.StartDate, p.EndDate)
	if err != nil {
		a.logger.Error("Failed to query ledger range", "user_id", userID, "error", err)
		return View{}, 0, fmt.Errorf("failed to query ledger range: %w", err)
	}

	v, seq := a.applyLocked(t, entries)
	return v, seq, nil
}

func (a *Aggregator) applyLocked(t *tracked, entries []*expense.Entry) (View, uint64) {
	v := Compute(t.period, entries, a.now())
	t.view = &v
	t.seq++
	return v.clone(), t.seq
}

func (a *Aggregator) ledgerChanged(userID string, periodID uuid.UUID, entries []*expense.Entry) {
	a.mu.Lock()
	t, ok := a.users[userID]
	a.mu.Unlock()
	if !ok {
		return
	}

	t.mu.Lock()
	if t.period == nil || t.period.ID != periodID {
		t.mu.Unlock()
		return
	}
	v, seq := a.applyLocked(t, entries)
	t.mu.Unlock()

	a.logger.Debug("Aggregate recomputed",
		"user_id", userID,
		"total_spent", v.TotalSpent.String(),
		"entry_count", v.EntryCount,
	)
	a.emit(t, v, seq)
}

// Refresh re-reads the tracked range of the user. Writers in this process call
// it so the view does not wait for the next watcher tick.
func (a *Aggregator) Refresh(ctx context.Context, userID string) error {
	a.mu.Lock()
	t, ok := a.users[userID]
	a.mu.Unlock()
	if !ok {
		return nil
	}

	t.mu.Lock()
	if t.period == nil {
		t.mu.Unlock()
		return nil
	}
	p := t.period
	entries, err := a.ledger.QueryByUserAndRange(ctx, userID, p.StartDate, p.EndDate)
	if err != nil {
		t.mu.Unlock()
		a.logger.Error("Failed to refresh aggregate", "user_id", userID, "error", err)
		return fmt.Errorf("failed to refresh aggregate: %w", err)
	}
	v, seq := a.applyLocked(t, entries)
	t.mu.Unlock()

	a.emit(t, v, seq)
	return nil
}

func (a *Aggregator) emit(t *tracked, v View, seq uint64) {
	a.mu.Lock()
	listeners := append([]Listener(nil), a.listeners...)
	a.mu.Unlock()

	t.emitMu.Lock()
	defer t.emitMu.Unlock()
	if seq <= t.emitted {
		return
	}
	t.emitted = seq

	ctx, cancel := context.WithTimeout(context.Background(), a.callbackTimeout)
	defer cancel()
	for _, l := range listeners {
		l(ctx, v.clone())
	}
}

// Get returns the live view of a tracked user, or computes one on demand.
// Returns ErrUnavailable when the user has no period.
func (a *Aggregator) Get(ctx context.Context, userID string) (View, error) {
	if userID == "" {
		return View{}, shared.ErrNotAuthenticated
	}

	a.mu.Lock()
	t, ok := a.users[userID]
	a.mu.Unlock()
	if ok {
		t.mu.Lock()
		if t.view != nil {
			v := t.view.clone()
			t.mu.Unlock()
			return v, nil
		}
		t.mu.Unlock()
	}

	p, err := a.periods.GetActive(ctx, userID)
	if err != nil {
		a.logger.Error("Failed to load period for aggregate", "user_id", userID, "error", err)
		return View{}, fmt.Errorf("failed to load period for aggregate: %w", err)
	}
	if p == nil {
		return View{}, ErrUnavailable
	}
	entries, err := a.ledger.QueryByUserAndRange(ctx, userID, p.StartDate, p.EndDate)
	if err != nil {
		a.logger.Error("Failed to query ledger for aggregate", "user_id", userID, "error", err)
		return View{}, fmt.Errorf("failed to query ledger for aggregate: %w", err)
	}
	return Compute(p, entries, a.now()), nil
}

// Untrack drops the user's subscription and cached view
func (a *Aggregator) Untrack(userID string) {
	a.mu.Lock()
	t, ok := a.users[userID]
	delete(a.users, userID)
	a.mu.Unlock()
	if !ok {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	t.period = nil
	t.view = nil
}

// UntrackAll drops every user's subscription and cached view
func (a *Aggregator) UntrackAll() {
	a.mu.Lock()
	users := make([]string, 0, len(a.users))
	for userID := range a.users {
		users = append(users, userID)
	}
	a.mu.Unlock()

	for _, userID := range users {
		a.Untrack(userID)
	}
}

// Warm tracks every user whose period is currently running
func (a *Aggregator) Warm(ctx context.Context) error {
	periods, err := a.periods.ListActive(ctx, a.now())
	if err != nil {
		a.logger.Error("Failed to list active periods", "error", err)
		return fmt.Errorf("failed to list active periods: %w", err)
	}
	for _, p := range periods {
		if err := a.PeriodChanged(ctx, p); err != nil {
			a.logger.Warn("Failed to warm aggregate", "user_id", p.UserID, "error", err)
		}
	}
	a.logger.Info("Aggregates warmed", "users", len(periods))
	return nil
}

// Tracked returns the number of users with live state
func (a *Aggregator) Tracked() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.users)
}
