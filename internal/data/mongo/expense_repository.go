// Package mongo provides the MongoDB implementation of the expense ledger store.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/expense-tracker/internal/domain/expense"
	"github.com/expense-tracker/internal/domain/shared"
	"github.com/expense-tracker/internal/platform/persistence"
)

const (
	// ExpenseCollectionName is the name of the ledger collection in MongoDB
	ExpenseCollectionName = "expense_entries"
)

// entryDocument is the stored shape of an expense entry
type entryDocument struct {
	ID          string               `bson:"_id"`
	UserID      string               `bson:"user_id"`
	Amount      primitive.Decimal128 `bson:"amount"`
	Currency    string               `bson:"currency,omitempty"`
	Source      string               `bson:"source"`
	Provenance  string               `bson:"provenance,omitempty"`
	Category    string               `bson:"category"`
	Description string               `bson:"description,omitempty"`
	RawMessage  string               `bson:"raw_message,omitempty"`
	OccurredAt  time.Time            `bson:"occurred_at"`
	Fingerprint string               `bson:"fingerprint,omitempty"`
	CreatedAt   time.Time            `bson:"created_at"`
	UpdatedAt   time.Time            `bson:"updated_at"`
}

func toDecimal128(d decimal.Decimal) (primitive.Decimal128, error) {
	return primitive.ParseDecimal128(d.StringFixed(2))
}

func fromDecimal128(d primitive.Decimal128) (decimal.Decimal, error) {
	return decimal.NewFromString(d.String())
}

func toDocument(e *expense.Entry) (*entryDocument, error) {
	amount, err := toDecimal128(e.Amount)
	if err != nil {
		return nil, fmt.Errorf("failed to encode amount: %w", err)
	}
	return &entryDocument{
		ID:          e.ID.String(),
		UserID:      e.UserID,
		Amount:      amount,
		Currency:    e.Currency,
		Source:      string(e.Source),
		Provenance:  e.Provenance,
		Category:    e.Category,
		Description: e.Description,
		RawMessage:  e.RawMessage,
		OccurredAt:  e.OccurredAt.UTC(),
		Fingerprint: e.Fingerprint,
		CreatedAt:   e.CreatedAt.UTC(),
		UpdatedAt:   e.UpdatedAt.UTC(),
	}, nil
}

func fromDocument(doc *entryDocument) (*expense.Entry, error) {
	id, err := uuid.Parse(doc.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to decode entry id: %w", err)
	}
	amount, err := fromDecimal128(doc.Amount)
	if err != nil {
		return nil, fmt.Errorf("failed to decode amount: %w", err)
	}
	return &expense.Entry{
		ID:          id,
		UserID:      doc.UserID,
		Amount:      amount,
		Currency:    doc.Currency,
		Source:      expense.Source(doc.Source),
		Provenance:  doc.Provenance,
		Category:    doc.Category,
		Description: doc.Description,
		RawMessage:  doc.RawMessage,
		OccurredAt:  doc.OccurredAt.UTC(),
		Fingerprint: doc.Fingerprint,
		CreatedAt:   doc.CreatedAt.UTC(),
		UpdatedAt:   doc.UpdatedAt.UTC(),
	}, nil
}

// ExpenseRepository implements the expense.Repository interface for MongoDB
type ExpenseRepository struct {
	db     *mongo.Database
	logger *slog.Logger
}

var _ expense.Repository = (*ExpenseRepository)(nil)

// NewExpenseRepository creates a new MongoDB expense repository
func NewExpenseRepository(logger *slog.Logger, db *mongo.Database) *ExpenseRepository {
	return &ExpenseRepository{
		db:     db,
		logger: logger,
	}
}

// EnsureIndexes creates the range index and the partial unique fingerprint
// index. The latter makes the second duplicate check atomic with the insert.
func (r *ExpenseRepository) EnsureIndexes(ctx context.Context) error {
	collection := r.db.Collection(ExpenseCollectionName)

	models := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "occurred_at", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "fingerprint", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"fingerprint": bson.M{"$exists": true}}),
		},
	}

	if _, err := collection.Indexes().CreateMany(ctx, models); err != nil {
		r.logger.Error("Failed to create expense indexes", "error", err)
		return fmt.Errorf("failed to create expense indexes: %w", persistence.Unavailable(err))
	}
	return nil
}

// Append stores a new entry. Returns ErrDuplicateEntry when the fingerprint
// index rejects it.
func (r *ExpenseRepository) Append(ctx context.Context, entry *expense.Entry) (uuid.UUID, error) {
	if !expense.IsValidAmount(entry.Amount) {
		return uuid.Nil, shared.ErrInvalidAmount
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}

	doc, err := toDocument(entry)
	if err != nil {
		return uuid.Nil, err
	}

	collection := r.db.Collection(ExpenseCollectionName)
	if _, err := collection.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return uuid.Nil, expense.ErrDuplicateEntry{Fingerprint: entry.Fingerprint}
		}
		r.logger.Error("Failed to append expense entry",
			"user_id", entry.UserID,
			"error", err)
		return uuid.Nil, fmt.Errorf("failed to append expense entry: %w", persistence.Unavailable(err))
	}

	return entry.ID, nil
}

// GetByID retrieves an entry by its ID. Returns ErrEntryNotFound if absent.
func (r *ExpenseRepository) GetByID(ctx context.Context, id uuid.UUID) (*expense.Entry, error) {
	collection := r.db.Collection(ExpenseCollectionName)

	var doc entryDocument
	err := collection.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, expense.ErrEntryNotFound{ID: id}
		}
		r.logger.Error("Failed to get expense entry",
			"id", id.String(),
			"error", err)
		return nil, fmt.Errorf("failed to get expense entry: %w", persistence.Unavailable(err))
	}

	return fromDocument(&doc)
}

// FindByFingerprint returns nil when no entry of the user carries the fingerprint
func (r *ExpenseRepository) FindByFingerprint(ctx context.Context, userID, fingerprint string) (*expense.Entry, error) {
	if fingerprint == "" {
		return nil, errors.New("fingerprint cannot be empty")
	}

	collection := r.db.Collection(ExpenseCollectionName)

	var doc entryDocument
	err := collection.FindOne(ctx, bson.M{"user_id": userID, "fingerprint": fingerprint}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		r.logger.Error("Failed to get expense entry by fingerprint",
			"user_id", userID,
			"error", err)
		return nil, fmt.Errorf("failed to get expense entry by fingerprint: %w", persistence.Unavailable(err))
	}

	return fromDocument(&doc)
}

// QueryByUserAndRange returns the user's entries inside [start, end], oldest first
func (r *ExpenseRepository) QueryByUserAndRange(ctx context.Context, userID string, start, end time.Time) ([]*expense.Entry, error) {
	collection := r.db.Collection(ExpenseCollectionName)

	filter := rangeFilter(userID, start, end)
	opts := options.Find().SetSort(bson.D{{Key: "occurred_at", Value: 1}, {Key: "created_at", Value: 1}})

	cursor, err := collection.Find(ctx, filter, opts)
	if err != nil {
		r.logger.Error("Failed to query expense entries",
			"user_id", userID,
			"start", start,
			"end", end,
			"error", err)
		return nil, fmt.Errorf("failed to query expense entries: %w", persistence.Unavailable(err))
	}
	defer cursor.Close(ctx)

	var docs []entryDocument
	if err := cursor.All(ctx, &docs); err != nil {
		r.logger.Error("Failed to decode expense entries",
			"user_id", userID,
			"error", err)
		return nil, fmt.Errorf("failed to decode expense entries: %w", persistence.Unavailable(err))
	}

	entries := make([]*expense.Entry, 0, len(docs))
	for i := range docs {
		e, err := fromDocument(&docs[i])
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func rangeFilter(userID string, start, end time.Time) bson.M {
	return bson.M{
		"user_id": userID,
		"occurred_at": bson.M{
			"$gte": start.UTC(),
			"$lte": end.UTC(),
		},
	}
}

// CountByUser counts all entries of a user
func (r *ExpenseRepository) CountByUser(ctx context.Context, userID string) (int64, error) {
	collection := r.db.Collection(ExpenseCollectionName)

	count, err := collection.CountDocuments(ctx, bson.M{"user_id": userID})
	if err != nil {
		r.logger.Error("Failed to count expense entries",
			"user_id", userID,
			"error", err)
		return 0, fmt.Errorf("failed to count expense entries: %w", persistence.Unavailable(err))
	}

	return count, nil
}

// Update applies the patch to the entry. Returns ErrEntryNotFound if absent.
func (r *ExpenseRepository) Update(ctx context.Context, id uuid.UUID, patch expense.Patch) error {
	if err := patch.Validate(); err != nil {
		return err
	}

	set, err := patchToSet(patch, time.Now())
	if err != nil {
		return err
	}

	collection := r.db.Collection(ExpenseCollectionName)
	result, err := collection.UpdateOne(ctx, bson.M{"_id": id.String()}, bson.M{"$set": set})
	if err != nil {
		r.logger.Error("Failed to update expense entry",
			"id", id.String(),
			"error", err)
		return fmt.Errorf("failed to update expense entry: %w", persistence.Unavailable(err))
	}

	if result.MatchedCount == 0 {
		return expense.ErrEntryNotFound{ID: id}
	}

	return nil
}

func patchToSet(patch expense.Patch, now time.Time) (bson.M, error) {
	set := bson.M{"updated_at": now.UTC()}
	if patch.Amount != nil {
		amount, err := toDecimal128(expense.NormalizeAmount(*patch.Amount))
		if err != nil {
			return nil, fmt.Errorf("failed to encode amount: %w", err)
		}
		set["amount"] = amount
	}
	if patch.Category != nil {
		category := *patch.Category
		if category == "" {
			category = expense.DefaultCategory
		}
		set["category"] = category
	}
	if patch.Description != nil {
		set["description"] = *patch.Description
	}
	if patch.OccurredAt != nil {
		set["occurred_at"] = patch.OccurredAt.UTC()
	}
	return set, nil
}

// Delete removes an entry. Returns ErrEntryNotFound if absent.
func (r *ExpenseRepository) Delete(ctx context.Context, id uuid.UUID) error {
	collection := r.db.Collection(ExpenseCollectionName)

	result, err := collection.DeleteOne(ctx, bson.M{"_id": id.String()})
	if err != nil {
		r.logger.Error("Failed to delete expense entry",
			"id", id.String(),
			"error", err)
		return fmt.Errorf("failed to delete expense entry: %w", persistence.Unavailable(err))
	}

	if result.DeletedCount == 0 {
		return expense.ErrEntryNotFound{ID: id}
	}

	return nil
}
