// Package config provides configuration structures and validation for the expense tracker.
// It handles environment-based configuration for the HTTP API, the SMS processor,
// both databases, Kafka topics, and the ingestion, aggregation and alerting tunables.
package config

import (
	"errors"
	"strings"
	"time"
)

// MaxPollInterval bounds how long a ledger change may go unnoticed when the
// ledger store has no native change subscription.
const MaxPollInterval = 5 * time.Second

// Config holds the complete application configuration with settings for all components.
// Each field represents a major subsystem's configuration and is validated during startup.
type Config struct {
	Application ApplicationConfig
	Logging     LoggingConfig
	Server      ServerConfig
	Kafka       KafkaConfig
	Postgres    PostgresConfig
	MongoDB     MongoDBConfig
	Ingestion   IngestionConfig
	Aggregation AggregationConfig
	Alerts      AlertsConfig
	OCR         OCRConfig
}

// ApplicationConfig contains general application configuration
type ApplicationConfig struct {
	Env  string
	Name string
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string
	Format string // json or text
}

// ServerConfig contains HTTP server configuration settings
type ServerConfig struct {
	Port            int           // Port to listen on
	ShutdownTimeout time.Duration // Grace period for server shutdown
	ReadTimeout     time.Duration // Maximum duration for reading entire request
	WriteTimeout    time.Duration // Maximum duration for writing response
	IdleTimeout     time.Duration // Maximum duration to wait for next request
	MaxUploadBytes  int64         // Largest receipt image accepted
}

// KafkaConfig contains Kafka configuration
type KafkaConfig struct {
	Brokers           string
	SMSTopic          string // Inbound SMS broadcast events
	AlertTopic        string // Outbound spending alert notifications, empty disables
	NumPartitions     int
	ReplicationFactor int
	ConsumerGroup     string
	MinBytes          int
	MaxBytes          int
	MaxWait           time.Duration
	StartOffset       int64
	DLQTopic          string // Topic for undecodable SMS events
}

// PostgresConfig contains PostgreSQL configuration
type PostgresConfig struct {
	URL             string        // Database connection string
	MaxConns        int32         // Maximum number of open connections
	MinConns        int32         // Maximum number of idle connections
	ConnMaxLifetime time.Duration // Maximum lifetime of a connection
	ConnMaxIdleTime time.Duration // Maximum idle time of a connection
	MigrationsPath  string        // Path to migration files
}

// MongoDBConfig contains MongoDB configuration
type MongoDBConfig struct {
	URI             string
	Database        string
	Timeout         time.Duration
	MaxPoolSize     uint64
	MinPoolSize     uint64
	MaxConnIdleTime time.Duration
}

// IngestionConfig contains expense ingestion settings
type IngestionConfig struct {
	DedupWindow     time.Duration // Width of the fingerprint time bucket
	DefaultCategory string
	DefaultCurrency string
}

// AggregationConfig contains live aggregate settings
type AggregationConfig struct {
	PollInterval    time.Duration // Used only when the ledger store cannot push changes
	WatcherPoolSize int
	CallbackTimeout time.Duration
}

// AlertsConfig contains the alert band thresholds, in percent of the limit
type AlertsConfig struct {
	ApproachingPercent int
	ExceededPercent    int
}

// OCRConfig contains the text recognition backend settings
type OCRConfig struct {
	URL     string // Empty disables receipt image upload
	Timeout time.Duration
}

// validate performs comprehensive validation of all configuration values,
// ensuring they meet minimum requirements and logical constraints
func (c *Config) validate() error {
	var validationErrors []string

	// Validate Server config
	if c.Server.Port <= 0 {
		validationErrors = append(validationErrors, "SERVER_PORT must be greater than 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_SHUTDOWN_TIMEOUT must be greater than 0")
	}
	if c.Server.ReadTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_READ_TIMEOUT must be greater than 0")
	}
	if c.Server.WriteTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_WRITE_TIMEOUT must be greater than 0")
	}
	if c.Server.IdleTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_IDLE_TIMEOUT must be greater than 0")
	}
	if c.Server.MaxUploadBytes <= 0 {
		validationErrors = append(validationErrors, "SERVER_MAX_UPLOAD_BYTES must be greater than 0")
	}

	// Validate Kafka config
	if len(c.Kafka.Brokers) == 0 {
		validationErrors = append(validationErrors, "KAFKA_BROKERS is required")
	}
	if c.Kafka.SMSTopic == "" {
		validationErrors = append(validationErrors, "KAFKA_SMS_TOPIC is required")
	}
	if c.Kafka.ConsumerGroup == "" {
		validationErrors = append(validationErrors, "KAFKA_CONSUMER_GROUP is required")
	}
	if c.Kafka.MinBytes <= 0 {
		validationErrors = append(validationErrors, "KAFKA_CONSUMER_MIN_BYTES must be greater than 0")
	}
	if c.Kafka.MaxBytes <= 0 {
		validationErrors = append(validationErrors, "KAFKA_CONSUMER_MAX_BYTES must be greater than 0")
	}
	if c.Kafka.MaxWait <= 0 {
		validationErrors = append(validationErrors, "KAFKA_CONSUMER_MAX_WAIT must be greater than 0")
	}

	// Validate PostgreSQL config
	if c.Postgres.URL == "" {
		validationErrors = append(validationErrors, "POSTGRES_URL is required")
	}
	if c.Postgres.MaxConns <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MAX_CONNS must be greater than 0")
	}
	if c.Postgres.MinConns <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MIN_CONNS must be greater than 0")
	}
	if c.Postgres.ConnMaxLifetime <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MAX_CONN_LIFETIME must be greater than 0")
	}
	if c.Postgres.ConnMaxIdleTime <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MAX_CONN_IDLE_TIME must be greater than 0")
	}

	// Validate MongoDB config
	if c.MongoDB.URI == "" {
		validationErrors = append(validationErrors, "MONGO_URI is required")
	}
	if c.MongoDB.Database == "" {
		validationErrors = append(validationErrors, "MONGO_DATABASE is required")
	}
	if c.MongoDB.Timeout <= 0 {
		validationErrors = append(validationErrors, "MONGO_TIMEOUT must be greater than 0")
	}
	if c.MongoDB.MaxPoolSize <= 0 {
		validationErrors = append(validationErrors, "MONGO_MAX_POOL_SIZE must be greater than 0")
	}
	if c.MongoDB.MinPoolSize <= 0 {
		validationErrors = append(validationErrors, "MONGO_MIN_POOL_SIZE must be greater than 0")
	}
	if c.MongoDB.MaxConnIdleTime <= 0 {
		validationErrors = append(validationErrors, "MONGO_MAX_CONN_IDLE_TIME must be greater than 0")
	}

	// Validate Ingestion config
	if c.Ingestion.DedupWindow <= 0 {
		validationErrors = append(validationErrors, "INGESTION_DEDUP_WINDOW must be greater than 0")
	}
	if c.Ingestion.DefaultCategory == "" {
		validationErrors = append(validationErrors, "INGESTION_DEFAULT_CATEGORY is required")
	}

	// Validate Aggregation config
	if c.Aggregation.PollInterval <= 0 || c.Aggregation.PollInterval > MaxPollInterval {
		validationErrors = append(validationErrors, "AGGREGATION_POLL_INTERVAL must be between 0 and 5s")
	}
	if c.Aggregation.WatcherPoolSize <= 0 {
		validationErrors = append(validationErrors, "AGGREGATION_WATCHER_POOL_SIZE must be greater than 0")
	}
	if c.Aggregation.CallbackTimeout <= 0 {
		validationErrors = append(validationErrors, "AGGREGATION_CALLBACK_TIMEOUT must be greater than 0")
	}

	// Validate Alerts config
	if c.Alerts.ApproachingPercent <= 0 {
		validationErrors = append(validationErrors, "ALERT_APPROACHING_PERCENT must be greater than 0")
	}
	if c.Alerts.ExceededPercent <= c.Alerts.ApproachingPercent {
		validationErrors = append(validationErrors, "ALERT_EXCEEDED_PERCENT must be greater than ALERT_APPROACHING_PERCENT")
	}

	// Validate OCR config
	if c.OCR.URL != "" && c.OCR.Timeout <= 0 {
		validationErrors = append(validationErrors, "OCR_TIMEOUT must be greater than 0 when OCR_URL is set")
	}

	if len(validationErrors) > 0 {
		return errors.New(strings.Join(validationErrors, ", "))
	}

	return nil
}
