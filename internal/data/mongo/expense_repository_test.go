package mongo

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/expense-tracker/internal/domain/expense"
	"github.com/expense-tracker/internal/domain/shared"
)

func TestNewExpenseRepository(t *testing.T) {
	db := &mongo.Database{}
	logger := slog.Default()

	repo := NewExpenseRepository(logger, db)

	assert.NotNil(t, repo)
	assert.IsType(t, &ExpenseRepository{}, repo)
}

func TestExpenseRepository_AppendRejectsInvalidAmount(t *testing.T) {
	repo := NewExpenseRepository(slog.Default(), &mongo.Database{})

	for _, amount := range []string{"0", "-5", "0.004"} {
		entry := &expense.Entry{UserID: "u1", Amount: decimal.RequireFromString(amount)}
		id, err := repo.Append(context.Background(), entry)
		assert.ErrorIs(t, err, shared.ErrInvalidAmount, amount)
		assert.Equal(t, uuid.Nil, id)
	}
}

func TestExpenseRepository_UpdateRejectsInvalidPatch(t *testing.T) {
	repo := NewExpenseRepository(slog.Default(), &mongo.Database{})

	negative := decimal.NewFromInt(-1)
	err := repo.Update(context.Background(), uuid.New(), expense.Patch{Amount: &negative})
	assert.ErrorIs(t, err, shared.ErrInvalidAmount)
}

func TestDocumentRoundTrip(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	entry := &expense.Entry{
		ID:          uuid.New(),
		UserID:      "u1",
		Amount:      decimal.RequireFromString("1250.50"),
		Currency:    "LKR",
		Source:      expense.SourceSMS,
		Provenance:  "BANK",
		Category:    "SMS",
		Description: "Rs. 1,250.50 debited",
		RawMessage:  "Rs. 1,250.50 debited from a/c",
		OccurredAt:  now,
		Fingerprint: "abc",
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	doc, err := toDocument(entry)
	require.NoError(t, err)
	assert.Equal(t, entry.ID.String(), doc.ID)
	assert.Equal(t, "1250.50", doc.Amount.String())

	back, err := fromDocument(doc)
	require.NoError(t, err)
	assert.True(t, entry.Amount.Equal(back.Amount))
	back.Amount = entry.Amount
	assert.Equal(t, entry, back)
}

func TestFromDocument_BadID(t *testing.T) {
	amount, err := primitive.ParseDecimal128("1.00")
	require.NoError(t, err)

	_, err = fromDocument(&entryDocument{ID: "not-a-uuid", Amount: amount})
	assert.Error(t, err)
}

func TestPatchToSet(t *testing.T) {
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	amount := decimal.RequireFromString("10.005")
	empty := ""
	desc := "lunch"

	set, err := patchToSet(expense.Patch{Amount: &amount, Category: &empty, Description: &desc}, now)
	require.NoError(t, err)

	assert.Equal(t, now, set["updated_at"])
	assert.Equal(t, expense.DefaultCategory, set["category"])
	assert.Equal(t, "lunch", set["description"])
	assert.Equal(t, "10.01", set["amount"].(primitive.Decimal128).String())
	_, hasOccurred := set["occurred_at"]
	assert.False(t, hasOccurred)
}

func TestRangeFilter(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(7 * 24 * time.Hour)

	filter := rangeFilter("u1", start, end)

	assert.Equal(t, "u1", filter["user_id"])
	assert.Equal(t, bson.M{"$gte": start, "$lte": end}, filter["occurred_at"])
}
