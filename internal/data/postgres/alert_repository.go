package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/expense-tracker/internal/domain/alert"
	"github.com/expense-tracker/internal/platform/persistence"
)

// AlertRepository implements the alert.Repository interface for PostgreSQL
type AlertRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

var _ alert.Repository = (*AlertRepository)(nil)

// NewAlertRepository creates a new PostgreSQL alert repository
func NewAlertRepository(logger *slog.Logger, db *persistence.PostgresDB) *AlertRepository {
	return &AlertRepository{
		querier: db.Querier(),
		logger:  logger,
	}
}

// Create appends an alert to the user's feed, assigning an ID when missing
func (r *AlertRepository) Create(ctx context.Context, a *alert.Alert) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}

	query := `
		INSERT INTO alerts (id, user_id, period_id, title, message, band, percentage, read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.querier.Exec(ctx, query,
		a.ID,
		a.UserID,
		a.PeriodID,
		a.Title,
		a.Message,
		string(a.Band),
		a.Percentage.StringFixed(2),
		a.Read,
		a.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create alert", "user_id", a.UserID, "error", err)
		return fmt.Errorf("failed to create alert: %w", persistence.Unavailable(err))
	}

	return nil
}

// ListByUser returns the user's alerts, newest first
func (r *AlertRepository) ListByUser(ctx context.Context, userID string) ([]*alert.Alert, error) {
	query := `
		SELECT id, user_id, period_id, title, message, band, percentage::text, read, created_at
		FROM alerts
		WHERE user_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.querier.Query(ctx, query, userID)
	if err != nil {
		r.logger.Error("Failed to list alerts", "user_id", userID, "error", err)
		return nil, fmt.Errorf("failed to list alerts: %w", persistence.Unavailable(err))
	}
	defer rows.Close()

	alerts := make([]*alert.Alert, 0)
	for rows.Next() {
		var a alert.Alert
		var band, percentage string
		if err := rows.Scan(&a.ID, &a.UserID, &a.PeriodID, &a.Title, &a.Message, &band, &percentage, &a.Read, &a.CreatedAt); err != nil {
			r.logger.Error("Failed to scan alert", "error", err)
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		a.Band = alert.ParseBand(band)
		if a.Percentage, err = decimal.NewFromString(percentage); err != nil {
			return nil, fmt.Errorf("invalid alert percentage %q: %w", percentage, err)
		}
		alerts = append(alerts, &a)
	}
	if err := rows.Err(); err != nil {
		r.logger.Error("Failed to iterate alerts", "error", err)
		return nil, fmt.Errorf("failed to iterate alerts: %w", persistence.Unavailable(err))
	}

	return alerts, nil
}

// MarkRead flags one alert as read. Returns ErrAlertNotFound when the alert
// does not exist or belongs to another user.
func (r *AlertRepository) MarkRead(ctx context.Context, userID string, id uuid.UUID) error {
	query := `
		UPDATE alerts
		SET read = TRUE
		WHERE id = $1 AND user_id = $2
	`

	result, err := r.querier.Exec(ctx, query, id, userID)
	if err != nil {
		r.logger.Error("Failed to mark alert read", "id", id.String(), "error", err)
		return fmt.Errorf("failed to mark alert read: %w", persistence.Unavailable(err))
	}

	if result.RowsAffected() == 0 {
		return alert.ErrAlertNotFound{ID: id}
	}

	return nil
}

// Clear deletes the user's whole feed
func (r *AlertRepository) Clear(ctx context.Context, userID string) (int64, error) {
	query := `
		DELETE FROM alerts
		WHERE user_id = $1
	`

	result, err := r.querier.Exec(ctx, query, userID)
	if err != nil {
		r.logger.Error("Failed to clear alerts", "user_id", userID, "error", err)
		return 0, fmt.Errorf("failed to clear alerts: %w", persistence.Unavailable(err))
	}

	return result.RowsAffected(), nil
}
