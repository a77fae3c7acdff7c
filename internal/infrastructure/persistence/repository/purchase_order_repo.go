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

const purchaseOrderColumns = `id, order_number, created_by, route_id, approval_status, status,
	order_date, ordered_at, notes, created_at, updated_at`

// PurchaseOrderRepository implements port.PurchaseOrderRepository
type PurchaseOrderRepository struct {
	db     *sqlstore.DB
	logger *zap.Logger
}

// NewPurchaseOrderRepository creates a new purchase order repository
func NewPurchaseOrderRepository(db *sqlstore.DB, logger *zap.Logger) *PurchaseOrderRepository {
	return &PurchaseOrderRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts the order and its line items
func (r *PurchaseOrderRepository) Create(ctx context.Context, order *entity.PurchaseOrder) error {
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}
	order.UpdatedAt = order.CreatedAt
	if order.ApprovalStatus == "" {
		order.ApprovalStatus = entity.ApprovalStatusDraft
	}
	if order.Status == "" {
		order.Status = entity.OrderStatusDraft
	}

	exec := r.db.Executor(ctx)
	query := r.db.Rebind(`
		INSERT INTO purchase_orders (
			order_number, created_by, route_id, approval_status, status,
			order_date, ordered_at, notes, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`)
	err := exec.QueryRowxContext(ctx, query,
		order.OrderNumber,
		order.CreatedBy,
		order.RouteID,
		order.ApprovalStatus,
		order.Status,
		order.OrderDate,
		order.OrderedAt,
		order.Notes,
		order.CreatedAt,
		order.UpdatedAt,
	).Scan(&order.ID)
	if err != nil {
		r.logger.Error("Failed to create purchase order", zap.String("order_number", order.OrderNumber), zap.Error(err))
		return fmt.Errorf("failed to create purchase order: %w", sqlstore.Classify(err))
	}

	itemQuery := r.db.Rebind(`
		INSERT INTO purchase_order_items (purchase_order_id, quote_item_id, quantity)
		VALUES (?, ?, ?)
		RETURNING id
	`)
	for i := range order.Items {
		item := &order.Items[i]
		item.PurchaseOrderID = order.ID
		if err := exec.QueryRowxContext(ctx, itemQuery, item.PurchaseOrderID, item.QuoteItemID, item.Quantity).Scan(&item.ID); err != nil {
			r.logger.Error("Failed to create purchase order item",
				zap.Int64("purchase_order_id", order.ID),
				zap.Int64("quote_item_id", item.QuoteItemID),
				zap.Error(err))
			return fmt.Errorf("failed to create purchase order item: %w", sqlstore.Classify(err))
		}
	}
	return nil
}

// GetByID retrieves a purchase order with its line items
func (r *PurchaseOrderRepository) GetByID(ctx context.Context, id int64) (*entity.PurchaseOrder, error) {
	query := r.db.Rebind(`SELECT ` + purchaseOrderColumns + ` FROM purchase_orders WHERE id = ?`)

	var order entity.PurchaseOrder
	err := r.db.Executor(ctx).GetContext(ctx, &order, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get purchase order", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get purchase order: %w", sqlstore.Classify(err))
	}

	items, err := r.ListItems(ctx, id)
	if err != nil {
		return nil, err
	}
	order.Items = make([]entity.PurchaseOrderItem, 0, len(items))
	for _, item := range items {
		order.Items = append(order.Items, *item)
	}
	return &order, nil
}

// ListItems returns the line items of an order
func (r *PurchaseOrderRepository) ListItems(ctx context.Context, orderID int64) ([]*entity.PurchaseOrderItem, error) {
	query := r.db.Rebind(`
		SELECT id, purchase_order_id, quote_item_id, quantity
		FROM purchase_order_items
		WHERE purchase_order_id = ?
		ORDER BY id
	`)

	var items []*entity.PurchaseOrderItem
	if err := r.db.Executor(ctx).SelectContext(ctx, &items, query, orderID); err != nil {
		r.logger.Error("Failed to list purchase order items", zap.Int64("purchase_order_id", orderID), zap.Error(err))
		return nil, fmt.Errorf("failed to list purchase order items: %w", sqlstore.Classify(err))
	}
	return items, nil
}

// SetApprovalStatus writes the approval mirror
func (r *PurchaseOrderRepository) SetApprovalStatus(ctx context.Context, id int64, status entity.ApprovalStatus) error {
	query := r.db.Rebind(`UPDATE purchase_orders SET approval_status = ?, updated_at = ? WHERE id = ?`)

	result, err := r.db.Executor(ctx).ExecContext(ctx, query, status, time.Now().UTC(), id)
	if err != nil {
		r.logger.Error("Failed to set purchase order approval status",
			zap.Int64("id", id),
			zap.String("status", string(status)),
			zap.Error(err))
		return fmt.Errorf("failed to set purchase order approval status: %w", sqlstore.Classify(err))
	}
	ok, err := affected(result)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Newf(apperr.CodeNotFound, "set purchase order approval status", "purchase order %d not found", id)
	}
	return nil
}

// UpdateStatus writes status, order_date, ordered_at and notes if the stored status still equals `from`
func (r *PurchaseOrderRepository) UpdateStatus(ctx context.Context, order *entity.PurchaseOrder, from entity.OrderStatus) (bool, error) {
	order.UpdatedAt = time.Now().UTC()

	query := r.db.Rebind(`
		UPDATE purchase_orders
		SET status = ?, order_date = ?, ordered_at = ?, notes = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`)
	result, err := r.db.Executor(ctx).ExecContext(ctx, query,
		order.Status,
		order.OrderDate,
		order.OrderedAt,
		order.Notes,
		order.UpdatedAt,
		order.ID,
		from,
	)
	if err != nil {
		r.logger.Error("Failed to update purchase order status",
			zap.Int64("id", order.ID),
			zap.String("status", string(order.Status)),
			zap.Error(err))
		return false, fmt.Errorf("failed to update purchase order status: %w", sqlstore.Classify(err))
	}
	return affected(result)
}

// Verify interface compliance
var _ port.PurchaseOrderRepository = (*PurchaseOrderRepository)(nil)
