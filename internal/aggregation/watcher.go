package aggregation

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/expense-tracker/internal/config"
	"github.com/expense-tracker/internal/domain/expense"
)

// Watcher gives change subscriptions to a ledger store that has none, by
// re-reading every subscribed range on a fixed interval and firing when the
// content differs from the previous read.
type Watcher struct {
	repo     expense.Repository
	pool     *ants.Pool
	interval time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]*watch
}

type watch struct {
	id       uint64
	userID   string
	start    time.Time
	end      time.Time
	onChange expense.ChangeFunc

	// held for the duration of a refresh; a busy watch skips the tick
	running   sync.Mutex
	signature uint64
}

var _ expense.Subscriber = (*Watcher)(nil)

// NewWatcher creates a polling watcher. The interval is capped at config.MaxPollInterval.
func NewWatcher(logger *slog.Logger, repo expense.Repository, cfg config.AggregationConfig) (*Watcher, error) {
	size := cfg.WatcherPoolSize
	if size <= 0 {
		size = 1
	}
	pool, err := ants.NewPool(size)
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher pool: %w", err)
	}

	interval := cfg.PollInterval
	if interval <= 0 || interval > config.MaxPollInterval {
		interval = config.MaxPollInterval
	}

	return &Watcher{
		repo:     repo,
		pool:     pool,
		interval: interval,
		logger:   logger,
		subs:     make(map[uint64]*watch),
	}, nil
}

// Subscribe reads the range once to prime the change detection, then polls it
func (w *Watcher) Subscribe(ctx context.Context, userID string, start, end time.Time, onChange expense.ChangeFunc) (func(), error) {
	entries, err := w.repo.QueryByUserAndRange(ctx, userID, start, end)
	if err != nil {
		w.logger.Error("Failed to prime ledger watch", "user_id", userID, "error", err)
		return nil, fmt.Errorf("failed to prime ledger watch: %w", err)
	}

	w.mu.Lock()
	w.nextID++
	sub := &watch{
		id:        w.nextID,
		userID:    userID,
		start:     start,
		end:       end,
		onChange:  onChange,
		signature: signature(entries),
	}
	w.subs[sub.id] = sub
	w.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			w.mu.Lock()
			delete(w.subs, sub.id)
			w.mu.Unlock()
		})
	}, nil
}

// Start polls until the context is canceled
func (w *Watcher) Start(ctx context.Context) {
	w.logger.Info("Starting ledger watcher",
		"poll_interval", w.interval.String(),
		"pool_size", w.pool.Cap(),
	)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Ledger watcher stopping due to context cancellation.")
			return
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

// poll submits one refresh per subscription to the pool
func (w *Watcher) poll(ctx context.Context) {
	w.mu.Lock()
	subs := make([]*watch, 0, len(w.subs))
	for _, sub := range w.subs {
		subs = append(subs, sub)
	}
	w.mu.Unlock()

	if len(subs) == 0 {
		return
	}
	w.logger.Debug("Ledger watcher tick", "subscriptions", len(subs))

	for _, sub := range subs {
		sub := sub
		if err := w.pool.Submit(func() { w.refresh(ctx, sub) }); err != nil {
			w.logger.Error("Failed to submit ledger refresh", "user_id", sub.userID, "error", err)
		}
	}
}

func (w *Watcher) refresh(ctx context.Context, sub *watch) {
	if !sub.running.TryLock() {
		return
	}
	defer sub.running.Unlock()

	entries, err := w.repo.QueryByUserAndRange(ctx, sub.userID, sub.start, sub.end)
	if err != nil {
		w.logger.Warn("Failed to refresh ledger watch", "user_id", sub.userID, "error", err)
		return
	}

	sig := signature(entries)
	if sig == sub.signature {
		return
	}
	sub.signature = sig

	if !w.active(sub.id) {
		return
	}
	sub.onChange(entries)
}

func (w *Watcher) active(id uint64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.subs[id]
	return ok
}

// Subscriptions returns the number of live subscriptions
func (w *Watcher) Subscriptions() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.subs)
}

// Shutdown releases the refresh pool
func (w *Watcher) Shutdown() {
	w.logger.Info("Shutting down ledger watcher pool", "running_workers", w.pool.Running())
	w.pool.Release()
}

// signature hashes what a view depends on: ids, amounts, categories and edit times
func signature(entries []*expense.Entry) uint64 {
	h := fnv.New64a()
	for _, e := range entries {
		h.Write(e.ID[:])
		h.Write([]byte(e.Amount.String()))
		h.Write([]byte(e.Category))
		h.Write([]byte(strconv.FormatInt(e.UpdatedAt.UnixNano(), 10)))
		h.Write([]byte{0})
	}
	return h.Sum64()
}
