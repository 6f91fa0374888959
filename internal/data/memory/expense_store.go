// Package memory provides embedded in-process implementations of the stores.
// They back single-process deployments and the test suites, and the expense
// store pushes range changes to subscribers natively.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/expense-tracker/internal/domain/expense"
	"github.com/expense-tracker/internal/domain/shared"
)

type subscription struct {
	id       uint64
	userID   string
	start    time.Time
	end      time.Time
	onChange expense.ChangeFunc
	// serializes callbacks of one subscription
	mu sync.Mutex
}

// ExpenseStore is an in-memory ledger store
type ExpenseStore struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]*expense.Entry
	nextSub uint64
	subs    map[uint64]*subscription
	now     func() time.Time
}

var (
	_ expense.Repository = (*ExpenseStore)(nil)
	_ expense.Subscriber = (*ExpenseStore)(nil)
)

// NewExpenseStore creates an empty ledger store
func NewExpenseStore() *ExpenseStore {
	return &ExpenseStore{
		entries: make(map[uuid.UUID]*expense.Entry),
		subs:    make(map[uint64]*subscription),
		now:     time.Now,
	}
}

// Append checks the fingerprint and inserts under one lock, so the duplicate
// guard is atomic with the write.
func (s *ExpenseStore) Append(_ context.Context, entry *expense.Entry) (uuid.UUID, error) {
	if !expense.IsValidAmount(entry.Amount) {
		return uuid.Nil, shared.ErrInvalidAmount
	}

	s.mu.Lock()
	if entry.Fingerprint != "" {
		for _, e := range s.entries {
			if e.UserID == entry.UserID && e.Fingerprint == entry.Fingerprint {
				s.mu.Unlock()
				return uuid.Nil, expense.ErrDuplicateEntry{Fingerprint: entry.Fingerprint}
			}
		}
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	stored := *entry
	s.entries[stored.ID] = &stored
	s.mu.Unlock()

	s.notify(stored.UserID, stored.OccurredAt)
	return stored.ID, nil
}

func (s *ExpenseStore) GetByID(_ context.Context, id uuid.UUID) (*expense.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, expense.ErrEntryNotFound{ID: id}
	}
	out := *e
	return &out, nil
}

func (s *ExpenseStore) FindByFingerprint(_ context.Context, userID, fingerprint string) (*expense.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.entries {
		if e.UserID == userID && e.Fingerprint == fingerprint {
			out := *e
			return &out, nil
		}
	}
	return nil, nil
}

func (s *ExpenseStore) QueryByUserAndRange(_ context.Context, userID string, start, end time.Time) ([]*expense.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rangeLocked(userID, start, end), nil
}

func (s *ExpenseStore) rangeLocked(userID string, start, end time.Time) []*expense.Entry {
	out := make([]*expense.Entry, 0)
	for _, e := range s.entries {
		if e.UserID == userID && e.InRange(start, end) {
			c := *e
			out = append(out, &c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].OccurredAt.Equal(out[j].OccurredAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].OccurredAt.Before(out[j].OccurredAt)
	})
	return out
}

func (s *ExpenseStore) CountByUser(_ context.Context, userID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, e := range s.entries {
		if e.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (s *ExpenseStore) Update(_ context.Context, id uuid.UUID, patch expense.Patch) error {
	if err := patch.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	e, ok := s.entries[id]
	if !ok {
		s.mu.Unlock()
		return expense.ErrEntryNotFound{ID: id}
	}
	before := e.OccurredAt
	updated := *e
	updated.Apply(patch, s.now())
	s.entries[id] = &updated
	s.mu.Unlock()

	s.notify(updated.UserID, before, updated.OccurredAt)
	return nil
}

func (s *ExpenseStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	e, ok := s.entries[id]
	if !ok {
		s.mu.Unlock()
		return expense.ErrEntryNotFound{ID: id}
	}
	delete(s.entries, id)
	s.mu.Unlock()

	s.notify(e.UserID, e.OccurredAt)
	return nil
}

// Subscribe registers onChange for the user's [start, end] range
func (s *ExpenseStore) Subscribe(_ context.Context, userID string, start, end time.Time, onChange expense.ChangeFunc) (func(), error) {
	s.mu.Lock()
	s.nextSub++
	sub := &subscription{id: s.nextSub, userID: userID, start: start, end: end, onChange: onChange}
	s.subs[sub.id] = sub
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, sub.id)
			s.mu.Unlock()
		})
	}, nil
}

// notify delivers the fresh range content to every subscription whose window
// contains one of the touched timestamps. Runs without the store lock held.
func (s *ExpenseStore) notify(userID string, touched ...time.Time) {
	s.mu.RLock()
	var targets []*subscription
	for _, sub := range s.subs {
		if sub.userID != userID {
			continue
		}
		for _, t := range touched {
			if !t.Before(sub.start) && !t.After(sub.end) {
				targets = append(targets, sub)
				break
			}
		}
	}
	s.mu.RUnlock()

	for _, sub := range targets {
		sub.mu.Lock()
		s.mu.RLock()
		_, active := s.subs[sub.id]
		entries := s.rangeLocked(sub.userID, sub.start, sub.end)
		s.mu.RUnlock()
		if active {
			sub.onChange(entries)
		}
		sub.mu.Unlock()
	}
}
