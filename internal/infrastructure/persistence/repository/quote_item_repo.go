package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/procureflow/internal/application/port"
	"github.com/garyjia/procureflow/internal/domain/entity"
	"github.com/garyjia/procureflow/internal/infrastructure/persistence/sqlstore"
)

const quoteItemColumns = `id, quote_id, name, quantity, procurement_status, ordered_at, received_at, updated_at`

// QuoteItemRepository implements port.QuoteItemRepository
type QuoteItemRepository struct {
	db     *sqlstore.DB
	logger *zap.Logger
}

// NewQuoteItemRepository creates a new quote item repository
func NewQuoteItemRepository(db *sqlstore.DB, logger *zap.Logger) *QuoteItemRepository {
	return &QuoteItemRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a quote item
func (r *QuoteItemRepository) Create(ctx context.Context, item *entity.QuoteItem) error {
	item.UpdatedAt = time.Now().UTC()
	if item.ProcurementStatus == "" {
		item.ProcurementStatus = entity.ProcurementStatusUnordered
	}

	query := r.db.Rebind(`
		INSERT INTO quote_items (quote_id, name, quantity, procurement_status, ordered_at, received_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`)
	err := r.db.Executor(ctx).QueryRowxContext(ctx, query,
		item.QuoteID,
		item.Name,
		item.Quantity,
		item.ProcurementStatus,
		item.OrderedAt,
		item.ReceivedAt,
		item.UpdatedAt,
	).Scan(&item.ID)
	if err != nil {
		r.logger.Error("Failed to create quote item", zap.Int64("quote_id", item.QuoteID), zap.Error(err))
		return fmt.Errorf("failed to create quote item: %w", sqlstore.Classify(err))
	}
	return nil
}

// GetByID retrieves a quote item
func (r *QuoteItemRepository) GetByID(ctx context.Context, id int64) (*entity.QuoteItem, error) {
	query := r.db.Rebind(`SELECT ` + quoteItemColumns + ` FROM quote_items WHERE id = ?`)

	var item entity.QuoteItem
	err := r.db.Executor(ctx).GetContext(ctx, &item, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get quote item", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get quote item: %w", sqlstore.Classify(err))
	}
	return &item, nil
}

// ListByQuote returns the items of a quote in insertion order
func (r *QuoteItemRepository) ListByQuote(ctx context.Context, quoteID int64) ([]*entity.QuoteItem, error) {
	query := r.db.Rebind(`SELECT ` + quoteItemColumns + ` FROM quote_items WHERE quote_id = ? ORDER BY id`)

	var items []*entity.QuoteItem
	if err := r.db.Executor(ctx).SelectContext(ctx, &items, query, quoteID); err != nil {
		r.logger.Error("Failed to list quote items", zap.Int64("quote_id", quoteID), zap.Error(err))
		return nil, fmt.Errorf("failed to list quote items: %w", sqlstore.Classify(err))
	}
	return items, nil
}

// MarkOrdered sets 発注済 and ordered_at unless the item was already received
func (r *QuoteItemRepository) MarkOrdered(ctx context.Context, id int64, orderedAt time.Time) error {
	query := r.db.Rebind(`
		UPDATE quote_items
		SET procurement_status = ?, ordered_at = ?, updated_at = ?
		WHERE id = ? AND procurement_status <> ?
	`)

	_, err := r.db.Executor(ctx).ExecContext(ctx, query,
		entity.ProcurementStatusOrdered, orderedAt, time.Now().UTC(), id, entity.ProcurementStatusReceived)
	if err != nil {
		r.logger.Error("Failed to mark quote item ordered", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to mark quote item ordered: %w", sqlstore.Classify(err))
	}
	return nil
}

// ResetOrdered sets 未発注 and clears ordered_at if the item is currently 発注済
func (r *QuoteItemRepository) ResetOrdered(ctx context.Context, id int64) error {
	query := r.db.Rebind(`
		UPDATE quote_items
		SET procurement_status = ?, ordered_at = NULL, updated_at = ?
		WHERE id = ? AND procurement_status = ?
	`)

	_, err := r.db.Executor(ctx).ExecContext(ctx, query,
		entity.ProcurementStatusUnordered, time.Now().UTC(), id, entity.ProcurementStatusOrdered)
	if err != nil {
		r.logger.Error("Failed to reset quote item", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to reset quote item: %w", sqlstore.Classify(err))
	}
	return nil
}

// MarkReceived sets 入荷済 if the item is currently 発注済
func (r *QuoteItemRepository) MarkReceived(ctx context.Context, id int64, receivedAt time.Time) (bool, error) {
	query := r.db.Rebind(`
		UPDATE quote_items
		SET procurement_status = ?, received_at = ?, updated_at = ?
		WHERE id = ? AND procurement_status = ?
	`)

	result, err := r.db.Executor(ctx).ExecContext(ctx, query,
		entity.ProcurementStatusReceived, receivedAt, time.Now().UTC(), id, entity.ProcurementStatusOrdered)
	if err != nil {
		r.logger.Error("Failed to mark quote item received", zap.Int64("id", id), zap.Error(err))
		return false, fmt.Errorf("failed to mark quote item received: %w", sqlstore.Classify(err))
	}
	return affected(result)
}

// LatestActiveOrderTime returns the newest ordered_at among other 発注済 orders referencing the item
func (r *QuoteItemRepository) LatestActiveOrderTime(ctx context.Context, id int64, excludeOrderID int64) (*time.Time, error) {
	// ORDER BY ... LIMIT 1 instead of MAX() keeps the column type so sqlite returns a time value
	query := r.db.Rebind(`
		SELECT po.ordered_at
		FROM purchase_orders po
		JOIN purchase_order_items poi ON poi.purchase_order_id = po.id
		WHERE poi.quote_item_id = ?
			AND po.id <> ?
			AND po.status = ?
			AND po.ordered_at IS NOT NULL
		ORDER BY po.ordered_at DESC
		LIMIT 1
	`)

	var orderedAt time.Time
	err := r.db.Executor(ctx).GetContext(ctx, &orderedAt, query, id, excludeOrderID, entity.OrderStatusOrdered)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to find active order for quote item",
			zap.Int64("id", id),
			zap.Int64("exclude_order_id", excludeOrderID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to find active order: %w", sqlstore.Classify(err))
	}
	return &orderedAt, nil
}

// Verify interface compliance
var _ port.QuoteItemRepository = (*QuoteItemRepository)(nil)
