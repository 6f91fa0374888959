package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/expense-tracker/internal/config"
	"github.com/expense-tracker/internal/data/mongo"
	"github.com/expense-tracker/internal/dedup"
	"github.com/expense-tracker/internal/ingestion"
	"github.com/expense-tracker/internal/logger"
	"github.com/expense-tracker/internal/platform/messaging/consumers"
	"github.com/expense-tracker/internal/platform/messaging/producers"
	"github.com/expense-tracker/internal/platform/persistence"
	"github.com/expense-tracker/internal/sms_processor/consumer"
)

func main() {
	// Create base context with cancellation
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	// Initialize configuration
	cfg, err := config.LoadConfig("sms_processor")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.NewLogger(cfg)

	log.Info("Starting SMS Processor",
		"app_name", cfg.Application.Name,
		"env", cfg.Application.Env,
	)

	// Only the ledger is needed here; budgets and alerts are evaluated by the API,
	// which notices these writes through its ledger watcher.
	mongoDB, err := persistence.NewMongoDB(appCtx, log, &cfg.MongoDB)
	if err != nil {
		log.Error("Failed to initialize MongoDB", "error", err)
		os.Exit(1)
	}

	expenseRepo := mongo.NewExpenseRepository(log, mongoDB.Database())
	if err := expenseRepo.EnsureIndexes(appCtx); err != nil {
		log.Error("Failed to ensure expense indexes", "error", err)
		os.Exit(1)
	}

	coordinator := dedup.NewCoordinator(logger.Component(log, "dedup"))
	ingestionService := ingestion.NewService(logger.Component(log, "ingestion"), expenseRepo, coordinator, cfg.Ingestion)

	// Initialize Kafka consumer
	kafkaConsumer := consumers.NewKafkaConsumer(appCtx, log, &cfg.Kafka)

	// Initialize Kafka DLQ producer; nil when no DLQ topic is configured
	dlqProducer, err := producers.NewDLQProducer(appCtx, log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize DLQ Kafka producer", "error", err)
		os.Exit(1)
	}

	var deadLetters producers.DeadLetterPublisher
	if dlqProducer != nil {
		deadLetters = dlqProducer
	}
	smsEventHandler := consumer.NewSMSEventHandler(log, ingestionService, deadLetters)

	// Create error channel for service errors
	errChan := make(chan error, 1)

	// Create wait group for graceful shutdown
	var wg sync.WaitGroup

	// Start Kafka consumer in a goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info("Starting Kafka consumer",
			"topic", cfg.Kafka.SMSTopic,
			"group", cfg.Kafka.ConsumerGroup,
		)
		if err := kafkaConsumer.Subscribe(appCtx, cfg.Kafka.SMSTopic, cfg.Kafka.ConsumerGroup, smsEventHandler.HandleMessage); err != nil {
			errChan <- fmt.Errorf("kafka consumer error: %w", err)
			return
		}
		<-kafkaConsumer.Done()
	}()

	// Set up signal handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	// Wait for a shutdown signal or error
	var serviceErr error
	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case err := <-errChan:
		log.Error("Service error occurred", "error", err)
		serviceErr = err
	}

	// Cancel the application context
	cancelAppCtx()

	// Create a shutdown context with timeout
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	// Graceful shutdown sequence
	log.Info("Starting graceful shutdown...")

	// Wait for all goroutines to finish
	log.Info("Waiting for services to stop...", "in_flight_sms", coordinator.InFlight())
	wgChan := make(chan struct{})
	go func() {
		wg.Wait()
		close(wgChan)
	}()

	select {
	case <-wgChan:
		log.Info("All services stopped successfully")
	case <-shutdownCtx.Done():
		log.Warn("Shutdown timeout reached, forcing exit")
	}

	// Close DLQ Kafka producer; Close is nil-safe
	if err = dlqProducer.Close(); err != nil {
		log.Error("Error closing DLQ Kafka producer", "error", err)
	}

	// Close Kafka consumer
	if err = kafkaConsumer.Close(); err != nil {
		log.Error("Error closing Kafka consumer", "error", err)
	}

	// Close MongoDB connection
	if err = mongoDB.Close(shutdownCtx); err != nil {
		log.Error("Error closing MongoDB connection", "error", err)
	}

	// Final status
	if serviceErr != nil {
		log.Error("SMS Processor shutdown with errors", "error", serviceErr)
	}
	if err != nil {
		log.Error("SMS Processor shutdown completed with errors")
	} else {
		log.Info("SMS Processor shutdown completed successfully")
	}
}
