package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/procureflow/internal/application/port"
	"github.com/garyjia/procureflow/internal/domain/apperr"
	"github.com/garyjia/procureflow/internal/domain/entity"
	"github.com/garyjia/procureflow/internal/infrastructure/persistence/sqlstore"
)

// QuoteRepository implements port.QuoteRepository
type QuoteRepository struct {
	db     *sqlstore.DB
	items  *QuoteItemRepository
	logger *zap.Logger
}

// NewQuoteRepository creates a new quote repository
func NewQuoteRepository(db *sqlstore.DB, logger *zap.Logger) *QuoteRepository {
	return &QuoteRepository{
		db:     db,
		items:  NewQuoteItemRepository(db, logger),
		logger: logger,
	}
}

// Create inserts a quote and its line items
func (r *QuoteRepository) Create(ctx context.Context, quote *entity.Quote) error {
	now := time.Now().UTC()
	if quote.CreatedAt.IsZero() {
		quote.CreatedAt = now
	}
	quote.UpdatedAt = quote.CreatedAt
	if quote.ApprovalStatus == "" {
		quote.ApprovalStatus = entity.ApprovalStatusDraft
	}

	query := r.db.Rebind(`
		INSERT INTO quotes (quote_number, title, created_by, route_id, approval_status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`)
	err := r.db.Executor(ctx).QueryRowxContext(ctx, query,
		quote.QuoteNumber,
		quote.Title,
		quote.CreatedBy,
		quote.RouteID,
		quote.ApprovalStatus,
		quote.CreatedAt,
		quote.UpdatedAt,
	).Scan(&quote.ID)
	if err != nil {
		r.logger.Error("Failed to create quote", zap.String("quote_number", quote.QuoteNumber), zap.Error(err))
		return fmt.Errorf("failed to create quote: %w", sqlstore.Classify(err))
	}

	for i := range quote.Items {
		quote.Items[i].QuoteID = quote.ID
		if err := r.items.Create(ctx, &quote.Items[i]); err != nil {
			return err
		}
	}
	return nil
}

// GetByID retrieves a quote with its items
func (r *QuoteRepository) GetByID(ctx context.Context, id int64) (*entity.Quote, error) {
	query := r.db.Rebind(`
		SELECT id, quote_number, title, created_by, route_id, approval_status, created_at, updated_at
		FROM quotes
		WHERE id = ?
	`)

	var quote entity.Quote
	err := r.db.Executor(ctx).GetContext(ctx, &quote, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get quote", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get quote: %w", sqlstore.Classify(err))
	}

	items, err := r.items.ListByQuote(ctx, id)
	if err != nil {
		return nil, err
	}
	quote.Items = make([]entity.QuoteItem, 0, len(items))
	for _, item := range items {
		quote.Items = append(quote.Items, *item)
	}
	return &quote, nil
}

// SetApprovalStatus writes the approval mirror
func (r *QuoteRepository) SetApprovalStatus(ctx context.Context, id int64, status entity.ApprovalStatus) error {
	query := r.db.Rebind(`UPDATE quotes SET approval_status = ?, updated_at = ? WHERE id = ?`)

	result, err := r.db.Executor(ctx).ExecContext(ctx, query, status, time.Now().UTC(), id)
	if err != nil {
		r.logger.Error("Failed to set quote approval status",
			zap.Int64("id", id),
			zap.String("status", string(status)),
			zap.Error(err))
		return fmt.Errorf("failed to set quote approval status: %w", sqlstore.Classify(err))
	}
	ok, err := affected(result)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Newf(apperr.CodeNotFound, "set quote approval status", "quote %d not found", id)
	}
	return nil
}

// Verify interface compliance
var _ port.QuoteRepository = (*QuoteRepository)(nil)
