package postgres

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/expense-tracker/internal/domain/period"
	"github.com/expense-tracker/internal/domain/shared"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

var periodColumns = []string{"id", "user_id", "start_date", "end_date", "limit_amount", "created_at"}

func TestPeriodRepository_Upsert(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &PeriodRepository{querier: mock, logger: newTestLogger()}

	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	p := &period.SpendingPeriod{
		ID:        uuid.New(),
		UserID:    "u1",
		StartDate: now,
		EndDate:   now.Add(7 * 24 * time.Hour),
		Limit:     decimal.NewFromInt(5000),
		CreatedAt: now,
	}
	query := regexp.QuoteMeta(`INSERT INTO spending_periods (id, user_id, start_date, end_date, limit_amount, created_at)`)

	t.Run("success", func(t *testing.T) {
		mock.ExpectExec(query).
			WithArgs(p.ID, p.UserID, p.StartDate, p.EndDate, "5000.00", p.CreatedAt).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		err := repo.Upsert(ctx, p)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failure", func(t *testing.T) {
		expectedErr := errors.New("db error")
		mock.ExpectExec(query).
			WithArgs(p.ID, p.UserID, p.StartDate, p.EndDate, "5000.00", p.CreatedAt).
			WillReturnError(expectedErr)

		err := repo.Upsert(ctx, p)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to upsert spending period")
		assert.ErrorIs(t, err, expectedErr)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("timeout is store unavailable", func(t *testing.T) {
		mock.ExpectExec(query).
			WithArgs(p.ID, p.UserID, p.StartDate, p.EndDate, "5000.00", p.CreatedAt).
			WillReturnError(context.DeadlineExceeded)

		err := repo.Upsert(ctx, p)
		assert.ErrorIs(t, err, shared.ErrStoreUnavailable)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPeriodRepository_GetActive(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &PeriodRepository{querier: mock, logger: newTestLogger()}

	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	id := uuid.New()
	query := `FROM spending_periods\s+WHERE user_id = \$1\s+ORDER BY start_date DESC`

	t.Run("success", func(t *testing.T) {
		rows := pgxmock.NewRows(periodColumns).
			AddRow(id, "u1", now, now.Add(time.Hour), "1000.50", now)
		mock.ExpectQuery(query).WithArgs("u1").WillReturnRows(rows)

		p, err := repo.GetActive(ctx, "u1")
		require.NoError(t, err)
		require.NotNil(t, p)
		assert.Equal(t, id, p.ID)
		assert.True(t, decimal.RequireFromString("1000.50").Equal(p.Limit))
		assert.Equal(t, now.Add(time.Hour), p.EndDate)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no period", func(t *testing.T) {
		mock.ExpectQuery(query).WithArgs("u1").WillReturnError(pgx.ErrNoRows)

		p, err := repo.GetActive(ctx, "u1")
		assert.NoError(t, err)
		assert.Nil(t, p)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failure", func(t *testing.T) {
		mock.ExpectQuery(query).WithArgs("u1").WillReturnError(errors.New("db error"))

		p, err := repo.GetActive(ctx, "u1")
		assert.Error(t, err)
		assert.Nil(t, p)
		assert.Contains(t, err.Error(), "failed to get spending period")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPeriodRepository_ListActive(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &PeriodRepository{querier: mock, logger: newTestLogger()}

	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	query := `WHERE start_date <= \$1 AND end_date >= \$1`

	t.Run("success", func(t *testing.T) {
		rows := pgxmock.NewRows(periodColumns).
			AddRow(uuid.New(), "u1", now.Add(-time.Hour), now.Add(time.Hour), "100.00", now).
			AddRow(uuid.New(), "u2", now.Add(-time.Hour), now.Add(time.Hour), "200.00", now)
		mock.ExpectQuery(query).WithArgs(now).WillReturnRows(rows)

		periods, err := repo.ListActive(ctx, now)
		require.NoError(t, err)
		require.Len(t, periods, 2)
		assert.Equal(t, "u2", periods[1].UserID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("bad numeric", func(t *testing.T) {
		rows := pgxmock.NewRows(periodColumns).
			AddRow(uuid.New(), "u1", now, now.Add(time.Hour), "abc", now)
		mock.ExpectQuery(query).WithArgs(now).WillReturnRows(rows)

		_, err := repo.ListActive(ctx, now)
		assert.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failure", func(t *testing.T) {
		mock.ExpectQuery(query).WithArgs(now).WillReturnError(errors.New("db error"))

		_, err := repo.ListActive(ctx, now)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to list active spending periods")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
