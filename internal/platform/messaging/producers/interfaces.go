package producers

import (
	"context"

	"github.com/segmentio/kafka-go"
)

// DeadLetterPublisher parks SMS events that can never be ingested
type DeadLetterPublisher interface {
	PublishToDLQ(ctx context.Context, key string, originalMessageValue []byte, reason string) error
	Close() error
}

// KafkaWriter is the part of *kafka.Writer the producers use
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

var (
	_ KafkaWriter         = (*kafka.Writer)(nil)
	_ DeadLetterPublisher = (*DLQProducer)(nil)
)
