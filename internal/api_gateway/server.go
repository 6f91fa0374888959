package api_gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/expense-tracker/internal/api_gateway/handler"
	"github.com/expense-tracker/internal/api_gateway/service"
	"github.com/expense-tracker/internal/config"
)

// Services groups what the HTTP API calls into. *tracker.Tracker implements all of them.
type Services struct {
	Expenses service.ExpenseService
	Budget   service.BudgetService
	Alerts   service.AlertService
}

// Server handles HTTP requests and manages the application's lifecycle
type Server struct {
	logger     *slog.Logger
	httpServer *http.Server
	httpRouter *gin.Engine
	shutdown   func(ctx context.Context) error
}

// NewServer creates and configures a new HTTP server with the given services.
// checks are reported by /health.
func NewServer(log *slog.Logger, cfg *config.Config, services Services, checks map[string]HealthChecker) *Server {
	if cfg.Application.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	httpRouter := gin.New()
	httpRouter.MaxMultipartMemory = cfg.Server.MaxUploadBytes

	setupRouter(log, httpRouter, handlers{
		expense: handler.NewExpenseHandler(log, services.Expenses, cfg.Server.MaxUploadBytes),
		budget:  handler.NewBudgetHandler(log, services.Budget),
		alert:   handler.NewAlertHandler(log, services.Alerts),
	}, checks)

	// Alert streams end at WriteTimeout; event-stream clients reconnect on their own
	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpRouter,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return &Server{
		logger:     log,
		httpServer: httpServer,
		httpRouter: httpRouter,
		shutdown:   httpServer.Shutdown,
	}
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.httpRouter
}

// Start begins listening for HTTP requests
func (s *Server) Start() error {
	s.logger.Info("HTTP server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the HTTP server within ctx
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping HTTP server")
	if err := s.shutdown(ctx); err != nil {
		return fmt.Errorf("failed to stop HTTP server: %w", err)
	}
	return nil
}
