package expense

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/expense-tracker/internal/domain/shared"
)

// Repository is the ledger store of expense entries
type Repository interface {
	// Append stores a new entry, assigns its ID and returns it.
	// Returns shared.ErrInvalidAmount for non-positive amounts and ErrDuplicateEntry
	// when an entry with the same fingerprint exists for the user.
	Append(ctx context.Context, entry *Entry) (uuid.UUID, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Entry, error)
	// FindByFingerprint returns nil, nil when no entry carries the fingerprint
	FindByFingerprint(ctx context.Context, userID, fingerprint string) (*Entry, error)
	// QueryByUserAndRange returns entries with occurredAt in [start, end], oldest first
	QueryByUserAndRange(ctx context.Context, userID string, start, end time.Time) ([]*Entry, error)
	CountByUser(ctx context.Context, userID string) (int64, error)
	Update(ctx context.Context, id uuid.UUID, patch Patch) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// ChangeFunc receives the full current content of a subscribed range
type ChangeFunc func(entries []*Entry)

// Subscriber is implemented by stores able to push range changes
type Subscriber interface {
	// Subscribe invokes onChange whenever an entry of the user inside [start, end]
	// is added, edited or removed. The returned function cancels the subscription.
	Subscribe(ctx context.Context, userID string, start, end time.Time, onChange ChangeFunc) (cancel func(), err error)
}

// ErrEntryNotFound indicates a missing ledger entry
type ErrEntryNotFound struct {
	ID uuid.UUID
}

func (e ErrEntryNotFound) Error() string {
	return "ledger entry not found: " + e.ID.String()
}

// Is matches shared.ErrNotFound and any ErrEntryNotFound with the same or a nil ID
func (e ErrEntryNotFound) Is(target error) bool {
	if target == shared.ErrNotFound {
		return true
	}
	t, ok := target.(ErrEntryNotFound)
	if !ok {
		return false
	}
	if t.ID == uuid.Nil {
		return true
	}
	return e.ID == t.ID
}

// ErrDuplicateEntry indicates a fingerprint uniqueness violation
type ErrDuplicateEntry struct {
	Fingerprint string
}

func (e ErrDuplicateEntry) Error() string {
	return "duplicate ledger entry: " + e.Fingerprint
}

// Is matches shared.ErrDuplicate and any ErrDuplicateEntry with the same or an empty fingerprint
func (e ErrDuplicateEntry) Is(target error) bool {
	if target == shared.ErrDuplicate {
		return true
	}
	t, ok := target.(ErrDuplicateEntry)
	if !ok {
		return false
	}
	if t.Fingerprint == "" {
		return true
	}
	return e.Fingerprint == t.Fingerprint
}
