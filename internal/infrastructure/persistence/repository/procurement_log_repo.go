package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/procureflow/internal/application/port"
	"github.com/garyjia/procureflow/internal/domain/entity"
	"github.com/garyjia/procureflow/internal/infrastructure/persistence/sqlstore"
)

// ProcurementLogRepository implements port.ProcurementLogRepository.
// The table is append-only; triggers reject UPDATE and DELETE.
type ProcurementLogRepository struct {
	db     *sqlstore.DB
	logger *zap.Logger
}

// NewProcurementLogRepository creates a new procurement log repository
func NewProcurementLogRepository(db *sqlstore.DB, logger *zap.Logger) *ProcurementLogRepository {
	return &ProcurementLogRepository{
		db:     db,
		logger: logger,
	}
}

// Create appends a log row
func (r *ProcurementLogRepository) Create(ctx context.Context, log *entity.ProcurementLog) error {
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}

	query := r.db.Rebind(`
		INSERT INTO procurement_logs (
			quote_item_id, purchase_order_id, action_type, action_date,
			quantity, performed_by, notes, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`)
	err := r.db.Executor(ctx).QueryRowxContext(ctx, query,
		log.QuoteItemID,
		log.PurchaseOrderID,
		log.ActionType,
		log.ActionDate,
		log.Quantity,
		log.PerformedBy,
		log.Notes,
		log.CreatedAt,
	).Scan(&log.ID)
	if err != nil {
		r.logger.Error("Failed to create procurement log",
			zap.Int64("quote_item_id", log.QuoteItemID),
			zap.String("action_type", string(log.ActionType)),
			zap.Error(err))
		return fmt.Errorf("failed to create procurement log: %w", sqlstore.Classify(err))
	}
	return nil
}

// List returns logs matching the filter, oldest first
func (r *ProcurementLogRepository) List(ctx context.Context, filter port.LogFilter) ([]*entity.ProcurementLog, error) {
	var (
		conditions []string
		args       []interface{}
	)
	if filter.QuoteItemID > 0 {
		conditions = append(conditions, "quote_item_id = ?")
		args = append(args, filter.QuoteItemID)
	}
	if filter.PurchaseOrderID > 0 {
		conditions = append(conditions, "purchase_order_id = ?")
		args = append(args, filter.PurchaseOrderID)
	}

	query := `
		SELECT id, quote_item_id, purchase_order_id, action_type, action_date,
			quantity, performed_by, notes, created_at
		FROM procurement_logs
	`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY action_date, id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	var logs []*entity.ProcurementLog
	if err := r.db.Executor(ctx).SelectContext(ctx, &logs, r.db.Rebind(query), args...); err != nil {
		r.logger.Error("Failed to list procurement logs", zap.Error(err))
		return nil, fmt.Errorf("failed to list procurement logs: %w", sqlstore.Classify(err))
	}
	return logs, nil
}

// Verify interface compliance
var _ port.ProcurementLogRepository = (*ProcurementLogRepository)(nil)
