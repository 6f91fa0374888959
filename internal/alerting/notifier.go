package alerting

import (
	"context"
	"fmt"
	"log/slog"
)

// Notification is the payload handed to the push transport
type Notification struct {
	UserID string            `json:"user_id"`
	Title  string            `json:"title"`
	Body   string            `json:"body"`
	Data   map[string]string `json:"data,omitempty"`
}

// Notifier delivers a notification to the user's device
type Notifier interface {
	Deliver(ctx context.Context, n Notification) error
}

// LogNotifier only logs notifications. Used when no transport is configured.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Deliver(_ context.Context, notification Notification) error {
	n.logger.Info("Notification",
		"user_id", notification.UserID,
		"title", notification.Title,
		"body", notification.Body,
	)
	return nil
}

// Publisher is a message broker topic. producers.AlertNotificationProducer
// satisfies it.
type Publisher interface {
	Publish(ctx context.Context, key string, value interface{}) error
}

// BrokerNotifier hands notifications to a push gateway through a broker topic,
// keyed by user so a user's alerts stay in order
type BrokerNotifier struct {
	publisher Publisher
	logger    *slog.Logger
}

func NewBrokerNotifier(logger *slog.Logger, publisher Publisher) *BrokerNotifier {
	return &BrokerNotifier{publisher: publisher, logger: logger}
}

func (n *BrokerNotifier) Deliver(ctx context.Context, notification Notification) error {
	if err := n.publisher.Publish(ctx, notification.UserID, notification); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	n.logger.Debug("Notification published", "user_id", notification.UserID, "title", notification.Title)
	return nil
}
