// Package consumer turns SMS broadcast events from the message bus into
// ledger entries
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/expense-tracker/internal/domain/expense"
	"github.com/expense-tracker/internal/domain/shared"
	"github.com/expense-tracker/internal/ingestion"
	"github.com/expense-tracker/internal/platform/messaging/producers"
)

// SMSEvent is one inbound bank message as published by the device bridge
type SMSEvent struct {
	UserID        string    `json:"user_id"`
	Body          string    `json:"body"`
	SenderID      string    `json:"sender_id"`
	ReceivedAt    time.Time `json:"received_at"`
	Listener      string    `json:"listener,omitempty"` // receiver that captured the broadcast
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// SMSIngester records the debit carried by a bank message
type SMSIngester interface {
	IngestSms(ctx context.Context, userID string, msg ingestion.SMSMessage) (*expense.Entry, error)
}

// SMSEventHandler handles SMS events consumed from Kafka
type SMSEventHandler struct {
	ingester SMSIngester
	producer producers.DeadLetterPublisher
	logger   *slog.Logger
}

func NewSMSEventHandler(logger *slog.Logger, ingester SMSIngester, producer producers.DeadLetterPublisher) *SMSEventHandler {
	return &SMSEventHandler{
		ingester: ingester,
		producer: producer,
		logger:   logger,
	}
}

// HandleMessage ingests one event. Every ingestion outcome, store outages
// included, is logged and committed. Only an undecodable event that no DLQ
// accepted returns an error.
func (h *SMSEventHandler) HandleMessage(ctx context.Context, key []byte, value []byte) error {
	var event SMSEvent
	if err := json.Unmarshal(value, &event); err != nil {
		return h.deadLetter(ctx, key, value, fmt.Sprintf("malformed event: %s", err))
	}
	if event.UserID == "" || event.Body == "" {
		return h.deadLetter(ctx, key, value, "event has no user_id or body")
	}

	logger := h.logger.With("user_id", event.UserID, "sender_id", event.SenderID)
	if event.CorrelationID != "" {
		logger = logger.With("correlation_id", event.CorrelationID)
	}
	if event.Listener != "" {
		logger = logger.With("listener", event.Listener)
	}

	entry, err := h.ingester.IngestSms(ctx, event.UserID, ingestion.SMSMessage{
		Body:       event.Body,
		SenderID:   event.SenderID,
		ReceivedAt: event.ReceivedAt,
	})
	switch {
	case err == nil && entry == nil:
		logger.Debug("SMS carried no debit amount, skipped")
		return nil
	case err == nil:
		logger.Info("SMS expense recorded", "entry_id", entry.ID.String(), "amount", entry.Amount.String())
		return nil
	case errors.Is(err, shared.ErrDuplicate):
		logger.Info("Duplicate SMS event ignored")
		return nil
	case errors.Is(err, ingestion.ErrBusy):
		logger.Warn("SMS event dropped, another event was in progress")
		return nil
	case errors.Is(err, shared.ErrStoreUnavailable):
		// Background SMS has no retry queue; the event is dropped
		logger.Error("Failed to record SMS expense, store unavailable, event dropped", "error", err)
		return nil
	default:
		logger.Error("Failed to record SMS expense", "error", err)
		return nil
	}
}

// deadLetter parks an undecodable event. When no DLQ accepts it the error is
// returned and the offset stays uncommitted.
func (h *SMSEventHandler) deadLetter(ctx context.Context, key, value []byte, reason string) error {
	h.logger.Error("Unprocessable SMS event", "message_key", string(key), "reason", reason)
	if h.producer == nil {
		return fmt.Errorf("unprocessable SMS event: %s", reason)
	}
	if err := h.producer.PublishToDLQ(ctx, string(key), value, reason); err != nil {
		h.logger.Error("Failed to publish SMS event to DLQ", "message_key", string(key), "dlq_error", err)
		return fmt.Errorf("unprocessable SMS event: %s", reason)
	}
	return nil
}
