// Package ingestion turns manual input, receipt text and bank SMS bodies into
// ledger entries. Every adapter validates at the boundary, SMS events go
// through the dedup coordinator before touching the store.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/expense-tracker/internal/config"
	"github.com/expense-tracker/internal/dedup"
	"github.com/expense-tracker/internal/domain/expense"
	"github.com/expense-tracker/internal/domain/shared"
	"github.com/expense-tracker/internal/extractor"
)

const (
	// SMSCategory is assigned to entries created from bank messages
	SMSCategory = "SMS"
	// ReceiptDescription labels entries created from scanned receipts
	ReceiptDescription = "Scanned receipt"

	maxDescriptionLen = 100
	maxRawMessageLen  = 500
)

// ErrBusy is returned when an SMS event arrives while another is being
// processed. The event is dropped, not queued.
var ErrBusy = errors.New("sms ingestion busy")

// ManualExpense is user-entered input for IngestManual
type ManualExpense struct {
	Amount      decimal.Decimal
	Category    string
	Description string
	Currency    string
	OccurredAt  time.Time // zero means now
}

// SMSMessage is one inbound bank message
type SMSMessage struct {
	Body       string
	SenderID   string
	ReceivedAt time.Time // zero means now
}

// Service implements the ingestion adapters on top of a ledger store
type Service struct {
	repo            expense.Repository
	coordinator     *dedup.Coordinator
	window          time.Duration
	defaultCategory string
	defaultCurrency string
	now             func() time.Time
	logger          *slog.Logger
}

// NewService creates the ingestion service
func NewService(logger *slog.Logger, repo expense.Repository, coordinator *dedup.Coordinator, cfg config.IngestionConfig) *Service {
	window := cfg.DedupWindow
	if window <= 0 {
		window = dedup.DefaultWindow
	}
	category := cfg.DefaultCategory
	if category == "" {
		category = expense.DefaultCategory
	}
	return &Service{
		repo:            repo,
		coordinator:     coordinator,
		window:          window,
		defaultCategory: category,
		defaultCurrency: cfg.DefaultCurrency,
		now:             time.Now,
		logger:          logger,
	}
}

// IngestManual records a user-entered expense
func (s *Service) IngestManual(ctx context.Context, userID string, in ManualExpense) (*expense.Entry, error) {
	category := in.Category
	if category == "" {
		category = s.defaultCategory
	}

	entry, err := expense.NewEntry(userID, in.Amount, expense.SourceManual, category, in.OccurredAt, s.now())
	if err != nil {
		s.logger.Info("Rejected manual expense", "user_id", userID, "amount", in.Amount.String(), "reason", err)
		return nil, err
	}
	entry.Description = expense.Truncate(in.Description, maxDescriptionLen)
	entry.Currency = in.Currency
	if entry.Currency == "" {
		entry.Currency = s.defaultCurrency
	}

	if err := s.append(ctx, entry); err != nil {
		return nil, err
	}

	s.logger.Info("Manual expense recorded",
		"user_id", userID,
		"entry_id", entry.ID.String(),
		"amount", entry.Amount.String(),
		"category", entry.Category,
	)
	return entry, nil
}

// IngestReceipt records the amount found in recognized receipt text.
// Returns nil, nil when no amount could be extracted.
func (s *Service) IngestReceipt(ctx context.Context, userID, text string, occurredAt time.Time) (*expense.Entry, error) {
	if userID == "" {
		return nil, shared.ErrNotAuthenticated
	}

	amount, ok := extractor.ExtractReceipt(text)
	if !ok {
		s.logger.Info("No amount found in receipt text", "user_id", userID, "text_len", len(text))
		return nil, nil
	}

	entry, err := expense.NewEntry(userID, amount, expense.SourceReceipt, s.defaultCategory, occurredAt, s.now())
	if err != nil {
		s.logger.Info("Rejected receipt amount", "user_id", userID, "amount", amount.String(), "reason", err)
		return nil, err
	}
	entry.Description = ReceiptDescription
	entry.RawMessage = expense.Truncate(text, maxRawMessageLen)
	entry.Currency = extractor.DetectCurrency(text)

	if err := s.append(ctx, entry); err != nil {
		return nil, err
	}

	s.logger.Info("Receipt expense recorded",
		"user_id", userID,
		"entry_id", entry.ID.String(),
		"amount", entry.Amount.String(),
		"currency", entry.Currency,
	)
	return entry, nil
}

// IngestSms records the debit found in a bank message.
//
// Returns nil, nil when the message carries no amount, nil, shared.ErrDuplicate
// when the same message was already recorded inside the dedup window, and
// nil, ErrBusy when another SMS event is in flight.
func (s *Service) IngestSms(ctx context.Context, userID string, msg SMSMessage) (*expense.Entry, error) {
	if userID == "" {
		return nil, shared.ErrNotAuthenticated
	}

	if !s.coordinator.TryAcquireSMS() {
		s.logger.Warn("Dropping SMS event, another one is in flight", "user_id", userID, "sender_id", msg.SenderID)
		return nil, ErrBusy
	}
	defer s.coordinator.ReleaseSMS()

	amount, ok := extractor.ExtractSMS(msg.Body)
	if !ok {
		s.logger.Debug("No amount found in SMS", "user_id", userID, "sender_id", msg.SenderID)
		return nil, nil
	}
	if !expense.IsValidAmount(amount) {
		return nil, shared.ErrInvalidAmount
	}

	receivedAt := msg.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = s.now()
	}
	fingerprint := dedup.Fingerprint(msg.Body, msg.SenderID, receivedAt, s.window)

	if !s.coordinator.TryBegin(fingerprint) {
		s.logger.Info("Duplicate SMS already in flight", "user_id", userID, "fingerprint", fingerprint)
		return nil, shared.ErrDuplicate
	}
	defer s.coordinator.End(fingerprint)

	existing, err := s.repo.FindByFingerprint(ctx, userID, fingerprint)
	if err != nil {
		s.logger.Error("Failed to check for existing SMS entry", "user_id", userID, "error", err)
		return nil, storeError(err)
	}
	if existing != nil {
		s.logger.Info("Duplicate SMS already recorded",
			"user_id", userID,
			"fingerprint", fingerprint,
			"entry_id", existing.ID.String(),
		)
		return nil, shared.ErrDuplicate
	}

	entry, err := expense.NewEntry(userID, amount, expense.SourceSMS, SMSCategory, receivedAt, s.now())
	if err != nil {
		return nil, err
	}
	entry.Description = expense.Truncate(msg.Body, maxDescriptionLen)
	entry.RawMessage = expense.Truncate(msg.Body, maxRawMessageLen)
	entry.Provenance = msg.SenderID
	entry.Fingerprint = fingerprint
	entry.Currency = extractor.DetectCurrency(msg.Body)

	if err := s.append(ctx, entry); err != nil {
		if errors.Is(err, shared.ErrDuplicate) {
			s.logger.Info("Duplicate SMS rejected by store", "user_id", userID, "fingerprint", fingerprint)
		}
		return nil, err
	}

	s.logger.Info("SMS expense recorded",
		"user_id", userID,
		"entry_id", entry.ID.String(),
		"amount", entry.Amount.String(),
		"sender_id", msg.SenderID,
	)
	return entry, nil
}

// ListEntries returns the user's entries inside [from, to], oldest first
func (s *Service) ListEntries(ctx context.Context, userID string, from, to time.Time) ([]*expense.Entry, error) {
	if userID == "" {
		return nil, shared.ErrNotAuthenticated
	}
	entries, err := s.repo.QueryByUserAndRange(ctx, userID, from, to)
	if err != nil {
		s.logger.Error("Failed to list entries", "user_id", userID, "error", err)
		return nil, storeError(err)
	}
	return entries, nil
}

// UpdateEntry edits one of the user's entries. Entries of other users read as
// not found.
func (s *Service) UpdateEntry(ctx context.Context, userID string, id uuid.UUID, patch expense.Patch) (*expense.Entry, error) {
	if err := s.checkOwner(ctx, userID, id); err != nil {
		return nil, err
	}
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, id, patch); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, err
		}
		s.logger.Error("Failed to update entry", "entry_id", id.String(), "error", err)
		return nil, storeError(err)
	}

	updated, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, storeError(err)
	}
	return updated, nil
}

// DeleteEntry removes one of the user's entries
func (s *Service) DeleteEntry(ctx context.Context, userID string, id uuid.UUID) error {
	if err := s.checkOwner(ctx, userID, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return err
		}
		s.logger.Error("Failed to delete entry", "entry_id", id.String(), "error", err)
		return storeError(err)
	}
	s.logger.Info("Entry deleted", "user_id", userID, "entry_id", id.String())
	return nil
}

func (s *Service) checkOwner(ctx context.Context, userID string, id uuid.UUID) error {
	if userID == "" {
		return shared.ErrNotAuthenticated
	}
	entry, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return err
		}
		s.logger.Error("Failed to load entry", "entry_id", id.String(), "error", err)
		return storeError(err)
	}
	if entry.UserID != userID {
		return expense.ErrEntryNotFound{ID: id}
	}
	return nil
}

func (s *Service) append(ctx context.Context, entry *expense.Entry) error {
	if _, err := s.repo.Append(ctx, entry); err != nil {
		if errors.Is(err, shared.ErrDuplicate) || errors.Is(err, shared.ErrInvalidAmount) {
			return err
		}
		s.logger.Error("Failed to append entry",
			"user_id", entry.UserID,
			"source", string(entry.Source),
			"error", err,
		)
		return storeError(err)
	}
	return nil
}

// storeError classifies a failed store call as unavailable
func storeError(err error) error {
	if errors.Is(err, shared.ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", shared.ErrStoreUnavailable, err)
}
