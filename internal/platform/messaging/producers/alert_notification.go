package producers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/expense-tracker/internal/config"
)

// AlertNotificationProducer publishes spending alert notifications keyed by user
type AlertNotificationProducer struct {
	logger *slog.Logger
	writer KafkaWriter
	topic  string
}

// NewAlertNotificationProducer ensures the alert topic exists and returns a
// producer for it. Returns nil when no alert topic is configured.
func NewAlertNotificationProducer(ctx context.Context, logger *slog.Logger, cfg *config.KafkaConfig) (*AlertNotificationProducer, error) {
	if cfg.AlertTopic == "" {
		logger.Info("Alert topic is not configured, alert notifications stay local")
		return nil, nil
	}

	conn, err := kafka.DialContext(ctx, "tcp", cfg.Brokers)
	if err != nil {
		return nil, fmt.Errorf("failed to dial kafka for alert producer: %w", err)
	}
	defer conn.Close()

	if err := ensureTopic(conn, cfg.AlertTopic, cfg.NumPartitions, cfg.ReplicationFactor, logger); err != nil {
		return nil, fmt.Errorf("failed to ensure alert topic %s exists: %w", cfg.AlertTopic, err)
	}

	// Alerts are rare, so writes are synchronous and a failure reaches the caller
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers),
		Topic:        cfg.AlertTopic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		WriteTimeout: cfg.MaxWait,
	}

	return &AlertNotificationProducer{
		logger: logger,
		writer: writer,
		topic:  cfg.AlertTopic,
	}, nil
}

// Publish writes value as JSON under key. Messages of one user share a
// partition, so their order is kept.
func (p *AlertNotificationProducer) Publish(ctx context.Context, key string, value interface{}) error {
	jsonValue, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal alert notification: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: jsonValue,
		Headers: []kafka.Header{
			{Key: "content-type", Value: []byte("application/json")},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to publish alert notification",
			"topic", p.topic,
			"key", key,
			"error", err,
		)
		return fmt.Errorf("failed to publish alert notification to %s: %w", p.topic, err)
	}

	p.logger.Debug("Published alert notification", "topic", p.topic, "key", key)
	return nil
}

func (p *AlertNotificationProducer) Close() error {
	p.logger.Info("Closing alert notification producer", "topic", p.topic)
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close alert kafka writer for topic %s: %w", p.topic, err)
	}
	return nil
}
