// Package postgres provides PostgreSQL implementations of the spending period
// and alert repositories.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/expense-tracker/internal/domain/period"
	"github.com/expense-tracker/internal/platform/persistence"
)

// PeriodRepository implements the period.Repository interface for PostgreSQL
type PeriodRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

var _ period.Repository = (*PeriodRepository)(nil)

// NewPeriodRepository creates a new PostgreSQL spending period repository
func NewPeriodRepository(logger *slog.Logger, db *persistence.PostgresDB) *PeriodRepository {
	return &PeriodRepository{
		querier: db.Querier(),
		logger:  logger,
	}
}

// Upsert overwrites the user's period. The user_id primary key keeps at most
// one row per user.
func (r *PeriodRepository) Upsert(ctx context.Context, p *period.SpendingPeriod) error {
	query := `
		INSERT INTO spending_periods (id, user_id, start_date, end_date, limit_amount, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id) DO UPDATE
		SET id = EXCLUDED.id, start_date = EXCLUDED.start_date, end_date = EXCLUDED.end_date,
			limit_amount = EXCLUDED.limit_amount, created_at = EXCLUDED.created_at
	`

	_, err := r.querier.Exec(ctx, query,
		p.ID,
		p.UserID,
		p.StartDate,
		p.EndDate,
		p.Limit.StringFixed(2),
		p.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to upsert spending period", "user_id", p.UserID, "error", err)
		return fmt.Errorf("failed to upsert spending period: %w", persistence.Unavailable(err))
	}

	return nil
}

// GetActive returns the user's period with the latest start date, or nil if none
func (r *PeriodRepository) GetActive(ctx context.Context, userID string) (*period.SpendingPeriod, error) {
	query := `
		SELECT id, user_id, start_date, end_date, limit_amount::text, created_at
		FROM spending_periods
		WHERE user_id = $1
		ORDER BY start_date DESC
		LIMIT 1
	`

	p, err := scanPeriod(r.querier.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("Failed to get spending period", "user_id", userID, "error", err)
		return nil, fmt.Errorf("failed to get spending period: %w", persistence.Unavailable(err))
	}

	return p, nil
}

// ListActive returns every period whose window contains now
func (r *PeriodRepository) ListActive(ctx context.Context, now time.Time) ([]*period.SpendingPeriod, error) {
	query := `
		SELECT id, user_id, start_date, end_date, limit_amount::text, created_at
		FROM spending_periods
		WHERE start_date <= $1 AND end_date >= $1
	`

	rows, err := r.querier.Query(ctx, query, now)
	if err != nil {
		r.logger.Error("Failed to list active spending periods", "error", err)
		return nil, fmt.Errorf("failed to list active spending periods: %w", persistence.Unavailable(err))
	}
	defer rows.Close()

	var periods []*period.SpendingPeriod
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			r.logger.Error("Failed to scan spending period", "error", err)
			return nil, fmt.Errorf("failed to scan spending period: %w", err)
		}
		periods = append(periods, p)
	}
	if err := rows.Err(); err != nil {
		r.logger.Error("Failed to iterate spending periods", "error", err)
		return nil, fmt.Errorf("failed to iterate spending periods: %w", persistence.Unavailable(err))
	}

	return periods, nil
}

func scanPeriod(row pgx.Row) (*period.SpendingPeriod, error) {
	var p period.SpendingPeriod
	var limit string
	if err := row.Scan(&p.ID, &p.UserID, &p.StartDate, &p.EndDate, &limit, &p.CreatedAt); err != nil {
		return nil, err
	}
	d, err := decimal.NewFromString(limit)
	if err != nil {
		return nil, fmt.Errorf("invalid limit_amount %q: %w", limit, err)
	}
	p.Limit = d
	p.StartDate = p.StartDate.UTC()
	p.EndDate = p.EndDate.UTC()
	p.CreatedAt = p.CreatedAt.UTC()
	return &p, nil
}
