package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/expense-tracker/internal/domain/alert"
)

// AlertStore is an in-memory alert feed
type AlertStore struct {
	mu     sync.RWMutex
	alerts map[string][]*alert.Alert
}

var _ alert.Repository = (*AlertStore)(nil)

func NewAlertStore() *AlertStore {
	return &AlertStore{alerts: make(map[string][]*alert.Alert)}
}

func (s *AlertStore) Create(_ context.Context, a *alert.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	stored := *a
	s.alerts[a.UserID] = append(s.alerts[a.UserID], &stored)
	return nil
}

func (s *AlertStore) ListByUser(_ context.Context, userID string) ([]*alert.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*alert.Alert, 0, len(s.alerts[userID]))
	for _, a := range s.alerts[userID] {
		c := *a
		out = append(out, &c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *AlertStore) MarkRead(_ context.Context, userID string, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.alerts[userID] {
		if a.ID == id {
			a.Read = true
			return nil
		}
	}
	return alert.ErrAlertNotFound{ID: id}
}

func (s *AlertStore) Clear(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := int64(len(s.alerts[userID]))
	delete(s.alerts, userID)
	return n, nil
}
