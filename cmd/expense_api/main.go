package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/expense-tracker/internal/aggregation"
	"github.com/expense-tracker/internal/alerting"
	"github.com/expense-tracker/internal/api_gateway"
	"github.com/expense-tracker/internal/config"
	"github.com/expense-tracker/internal/data/mongo"
	"github.com/expense-tracker/internal/data/postgres"
	"github.com/expense-tracker/internal/logger"
	"github.com/expense-tracker/internal/ocr"
	"github.com/expense-tracker/internal/platform/messaging/producers"
	"github.com/expense-tracker/internal/platform/persistence"
	"github.com/expense-tracker/internal/tracker"
)

func main() {
	// Create base context with cancellation
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	// Initialize configuration
	cfg, err := config.LoadConfig("expense_api")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.NewLogger(cfg)

	log.Info("Starting Expense API",
		"app_name", cfg.Application.Name,
		"env", cfg.Application.Env,
	)

	// Spending periods and alerts live in PostgreSQL, ledger entries in MongoDB
	postgresDB, err := persistence.NewPostgresDB(appCtx, log, &cfg.Postgres)
	if err != nil {
		log.Error("Failed to initialize PostgreSQL", "error", err)
		os.Exit(1)
	}

	mongoDB, err := persistence.NewMongoDB(appCtx, log, &cfg.MongoDB)
	if err != nil {
		log.Error("Failed to initialize MongoDB", "error", err)
		os.Exit(1)
	}

	// Initialize repositories
	periodRepo := postgres.NewPeriodRepository(log, postgresDB)
	alertRepo := postgres.NewAlertRepository(log, postgresDB)
	expenseRepo := mongo.NewExpenseRepository(log, mongoDB.Database())
	if err := expenseRepo.EnsureIndexes(appCtx); err != nil {
		log.Error("Failed to ensure expense indexes", "error", err)
		os.Exit(1)
	}

	// MongoDB has no per-range change feed here, so ledger ranges are polled.
	// This also picks up entries written by the SMS processor.
	watcher, err := aggregation.NewWatcher(logger.Component(log, "watcher"), expenseRepo, cfg.Aggregation)
	if err != nil {
		log.Error("Failed to initialize ledger watcher", "error", err)
		os.Exit(1)
	}

	// Alert notifications go to Kafka when a topic is configured, otherwise to the log
	alertProducer, err := producers.NewAlertNotificationProducer(appCtx, log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize alert Kafka producer", "error", err)
		os.Exit(1)
	}
	var notifier alerting.Notifier
	if alertProducer != nil {
		notifier = alerting.NewBrokerNotifier(log, alertProducer)
	}

	deps := tracker.Deps{
		Ledger:     expenseRepo,
		Subscriber: watcher,
		Periods:    periodRepo,
		Alerts:     alertRepo,
		Notifier:   notifier,
	}
	if cfg.OCR.URL != "" {
		deps.Recognizer = ocr.NewHTTPRecognizer(log, cfg.OCR)
	}

	tr, err := tracker.New(logger.Component(log, "tracker"), cfg, deps)
	if err != nil {
		log.Error("Failed to initialize tracker", "error", err)
		os.Exit(1)
	}

	go watcher.Start(appCtx)

	if err := tr.Start(appCtx); err != nil {
		// Live views are rebuilt on first request, so a failed warm-up is not fatal
		log.Warn("Failed to warm active spending periods", "error", err)
	}

	// Initialize REST server
	server := api_gateway.NewServer(log, cfg,
		api_gateway.Services{Expenses: tr, Budget: tr, Alerts: tr},
		map[string]api_gateway.HealthChecker{
			"postgres": postgresDB,
			"mongodb":  mongoDB,
		},
	)
	log.Info("REST server initialized")

	// Create error channel for server errors
	errChan := make(chan error, 1)

	// Start server in goroutine
	go func() {
		log.Info("Starting HTTP server", "port", cfg.Server.Port)
		if err := server.Start(); err != nil {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// Set up signal handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	// Wait for a shutdown signal or error
	var serverErr error
	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case err := <-errChan:
		log.Error("Server error occurred", "error", err)
		serverErr = err
	}

	// Cancel the application context
	cancelAppCtx()

	// Create a shutdown context with timeout
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()

	// Graceful shutdown sequence
	log.Info("Starting graceful shutdown...")

	// Shutdown HTTP server first so open alert streams unsubscribe
	if err = server.Stop(shutdownCtx); err != nil {
		log.Error("Error during server shutdown", "error", err)
	}

	tr.Stop()

	log.Info("Stopping ledger watcher", "subscriptions", watcher.Subscriptions())
	watcher.Shutdown()

	if alertProducer != nil {
		if err = alertProducer.Close(); err != nil {
			log.Error("Error closing alert Kafka producer", "error", err)
		}
	}

	// Shutdown postgres connection pool
	postgresDB.Close()

	if err = mongoDB.Close(shutdownCtx); err != nil {
		log.Error("Error closing MongoDB connection", "error", err)
	}

	// Final status
	if serverErr != nil {
		log.Error("HTTP server shutdown with errors", "error", serverErr)
	}
	if err != nil {
		log.Error("Server shutdown completed with errors")
	} else {
		log.Info("Server shutdown completed successfully")
	}
}
