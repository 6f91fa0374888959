package expense

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/expense-tracker/internal/domain/shared"
)

// DefaultCategory labels entries that were not classified
const DefaultCategory = "Uncategorized"

// Source identifies the ingestion adapter that produced an entry
type Source string

const (
	SourceManual  Source = "Manual"
	SourceReceipt Source = "Receipt"
	SourceSMS     Source = "SMS"
)

// Entry is one recorded expense in the ledger
type Entry struct {
	ID          uuid.UUID       `json:"id"`
	UserID      string          `json:"user_id"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency,omitempty"`
	Source      Source          `json:"source"`
	Provenance  string          `json:"provenance,omitempty"` // e.g. SMS sender id
	Category    string          `json:"category"`
	Description string          `json:"description,omitempty"`
	RawMessage  string          `json:"raw_message,omitempty"`
	OccurredAt  time.Time       `json:"occurred_at"`
	Fingerprint string          `json:"fingerprint,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Patch carries the user-editable fields of an entry. Nil fields are left untouched.
type Patch struct {
	Amount      *decimal.Decimal
	Category    *string
	Description *string
	OccurredAt  *time.Time
}

// IsEmpty reports whether the patch changes nothing
func (p Patch) IsEmpty() bool {
	return p.Amount == nil && p.Category == nil && p.Description == nil && p.OccurredAt == nil
}

// Validate rejects patches that would break entry invariants
func (p Patch) Validate() error {
	if p.Amount != nil && !IsValidAmount(*p.Amount) {
		return shared.ErrInvalidAmount
	}
	return nil
}

// NormalizeAmount rounds an amount half-up to two fraction digits
func NormalizeAmount(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(2)
}

// IsValidAmount reports whether amount stays positive at two-decimal precision
func IsValidAmount(amount decimal.Decimal) bool {
	return NormalizeAmount(amount).IsPositive()
}

// NewEntry builds a validated entry. The category falls back to DefaultCategory
// and the occurrence time to now.
func NewEntry(userID string, amount decimal.Decimal, source Source, category string, occurredAt time.Time, now time.Time) (*Entry, error) {
	if userID == "" {
		return nil, shared.ErrNotAuthenticated
	}
	if !IsValidAmount(amount) {
		return nil, shared.ErrInvalidAmount
	}
	if category == "" {
		category = DefaultCategory
	}
	if occurredAt.IsZero() {
		occurredAt = now
	}

	return &Entry{
		UserID:     userID,
		Amount:     NormalizeAmount(amount),
		Source:     source,
		Category:   category,
		OccurredAt: occurredAt.UTC(),
		CreatedAt:  now.UTC(),
		UpdatedAt:  now.UTC(),
	}, nil
}

// Apply copies the patch onto the entry
func (e *Entry) Apply(p Patch, now time.Time) {
	if p.Amount != nil {
		e.Amount = NormalizeAmount(*p.Amount)
	}
	if p.Category != nil {
		e.Category = *p.Category
		if e.Category == "" {
			e.Category = DefaultCategory
		}
	}
	if p.Description != nil {
		e.Description = *p.Description
	}
	if p.OccurredAt != nil {
		e.OccurredAt = p.OccurredAt.UTC()
	}
	e.UpdatedAt = now.UTC()
}

// InRange reports whether the entry occurred inside the inclusive window
func (e *Entry) InRange(start, end time.Time) bool {
	return !e.OccurredAt.Before(start) && !e.OccurredAt.After(end)
}

// Truncate shortens s to at most n runes
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
