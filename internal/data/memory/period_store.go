package memory

import (
	"context"
	"sync"
	"time"

	"github.com/expense-tracker/internal/domain/period"
)

// PeriodStore keeps one spending period per user
type PeriodStore struct {
	mu      sync.RWMutex
	periods map[string][]*period.SpendingPeriod
}

var _ period.Repository = (*PeriodStore)(nil)

func NewPeriodStore() *PeriodStore {
	return &PeriodStore{periods: make(map[string][]*period.SpendingPeriod)}
}

func (s *PeriodStore) GetActive(_ context.Context, userID string) (*period.SpendingPeriod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	latest := period.Latest(s.periods[userID])
	if latest == nil {
		return nil, nil
	}
	out := *latest
	return &out, nil
}

// Upsert replaces whatever the user had, including stray duplicates
func (s *PeriodStore) Upsert(_ context.Context, p *period.SpendingPeriod) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *p
	s.periods[p.UserID] = []*period.SpendingPeriod{&stored}
	return nil
}

func (s *PeriodStore) ListActive(_ context.Context, now time.Time) ([]*period.SpendingPeriod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*period.SpendingPeriod
	for _, ps := range s.periods {
		latest := period.Latest(ps)
		if latest != nil && latest.Contains(now) {
			c := *latest
			out = append(out, &c)
		}
	}
	return out, nil
}

// Seed appends a period without replacing existing ones. Used to load legacy
// data that may hold several periods for one user.
func (s *PeriodStore) Seed(p *period.SpendingPeriod) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *p
	s.periods[p.UserID] = append(s.periods[p.UserID], &stored)
}
