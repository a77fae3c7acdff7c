// Package procurement keeps quote item procurement status in step with the purchase orders that reference them.
package procurement

import (
	"context"
	"errors"
	"io"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/garyjia/procureflow/internal/application/dispatcher"
	"github.com/garyjia/procureflow/internal/application/port"
	"github.com/garyjia/procureflow/internal/domain/apperr"
	"github.com/garyjia/procureflow/internal/domain/entity"
	"github.com/garyjia/procureflow/internal/domain/event"
	domainwf "github.com/garyjia/procureflow/internal/domain/workflow"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// StatusChange is the input of SetPurchaseOrderStatus.
// An empty OrderDate keeps the stored date, or today when none is stored. A nil Notes keeps the stored notes.
type StatusChange struct {
	Status    entity.OrderStatus
	OrderDate string
	Notes     *string
}

// Receipt is the input of MarkItemReceived
type Receipt struct {
	ReceivedDate string
	Notes        string
}

// Reconciler applies purchase order status changes and their quote item effects
type Reconciler struct {
	orders     port.PurchaseOrderRepository
	items      port.QuoteItemRepository
	quotes     port.QuoteRepository
	logs       port.ProcurementLogRepository
	txManager  port.TransactionManager
	exporter   port.ProcurementLogExporter
	dispatcher dispatcher.Dispatcher
	policy     ReversionPolicy
	logger     Logger
	tracer     trace.Tracer
	now        func() time.Time
}

// Option configures the reconciler
type Option func(*Reconciler)

// WithPolicy sets the reversion policy
func WithPolicy(policy ReversionPolicy) Option {
	return func(r *Reconciler) {
		r.policy = policy
	}
}

// WithDispatcher sets the event dispatcher used after commit
func WithDispatcher(d dispatcher.Dispatcher) Option {
	return func(r *Reconciler) {
		r.dispatcher = d
	}
}

// WithExporter sets the workbook writer used by ExportLogs
func WithExporter(exporter port.ProcurementLogExporter) Option {
	return func(r *Reconciler) {
		r.exporter = exporter
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) {
		r.now = now
	}
}

// NewReconciler creates a reconciler with the recompute policy unless overridden
func NewReconciler(
	orders port.PurchaseOrderRepository,
	items port.QuoteItemRepository,
	quotes port.QuoteRepository,
	logs port.ProcurementLogRepository,
	txManager port.TransactionManager,
	logger Logger,
	opts ...Option,
) *Reconciler {
	r := &Reconciler{
		orders:    orders,
		items:     items,
		quotes:    quotes,
		logs:      logs,
		txManager: txManager,
		policy:    ReversionRecompute,
		logger:    logger,
		tracer:    otel.Tracer("github.com/garyjia/procureflow/procurement"),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Policy returns the active reversion policy
func (r *Reconciler) Policy() ReversionPolicy {
	return r.policy
}

// SetPurchaseOrderStatus moves an order to a new status and reconciles its quote items in one transaction
func (r *Reconciler) SetPurchaseOrderStatus(ctx context.Context, orderID int64, change StatusChange, caller entity.Caller) (*entity.PurchaseOrder, error) {
	const op = "set purchase order status"
	ctx, span := r.tracer.Start(ctx, "procurement."+op, trace.WithAttributes(
		attribute.Int64("purchase_order.id", orderID),
		attribute.String("purchase_order.status", string(change.Status)),
		attribute.Int64("caller.id", caller.UserID),
	))
	defer span.End()

	if !change.Status.IsValid() {
		return nil, r.fail(span, op, orderID, apperr.Newf(apperr.CodeValidation, op, "unknown order status %q", change.Status))
	}

	var (
		order  *entity.PurchaseOrder
		events []*event.Event
	)
	err := r.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		current, err := r.loadOrder(txCtx, op, orderID)
		if err != nil {
			return err
		}
		if !caller.CanActFor(current.CreatedBy) {
			return apperr.Unauthorized(op, "only the creator or back office may change the order status")
		}

		events, err = r.transition(txCtx, op, current, change, caller)
		if err != nil {
			return err
		}
		order, err = r.loadOrder(txCtx, op, orderID)
		return err
	})
	if err != nil {
		return nil, r.fail(span, op, orderID, err)
	}

	r.logger.Info("Purchase order status updated",
		"purchase_order_id", orderID,
		"status", change.Status,
		"updated_by", caller.UserID)
	r.publish(ctx, events)
	return order, nil
}

// PlaceApprovedOrder orders a freshly approved purchase order.
// It runs inside the approval transaction, so ownership was already checked by the approver's step.
func (r *Reconciler) PlaceApprovedOrder(ctx context.Context, orderID int64, caller entity.Caller) ([]*event.Event, error) {
	const op = "place approved order"

	var events []*event.Event
	err := r.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		order, err := r.loadOrder(txCtx, op, orderID)
		if err != nil {
			return err
		}
		if order.Status != entity.OrderStatusDraft {
			r.logger.Info("Approved order not placed automatically",
				"purchase_order_id", orderID,
				"status", order.Status)
			return nil
		}

		events, err = r.transition(txCtx, op, order, StatusChange{Status: entity.OrderStatusOrdered}, caller)
		return err
	})
	if err != nil {
		return nil, apperr.Persistence(op, err)
	}
	return events, nil
}

// MarkItemReceived records the receipt of an ordered quote item
func (r *Reconciler) MarkItemReceived(ctx context.Context, itemID int64, receipt Receipt, caller entity.Caller) (*entity.QuoteItem, error) {
	const op = "mark item received"
	ctx, span := r.tracer.Start(ctx, "procurement."+op, trace.WithAttributes(
		attribute.Int64("quote_item.id", itemID),
		attribute.Int64("caller.id", caller.UserID),
	))
	defer span.End()

	var (
		received *entity.QuoteItem
		events   []*event.Event
	)
	err := r.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		item, err := r.items.GetByID(txCtx, itemID)
		if err != nil {
			return err
		}
		if item == nil {
			return apperr.Newf(apperr.CodeNotFound, op, "quote item %d not found", itemID)
		}

		quote, err := r.quotes.GetByID(txCtx, item.QuoteID)
		if err != nil {
			return err
		}
		if quote == nil {
			return apperr.Newf(apperr.CodeNotFound, op, "quote %d not found", item.QuoteID)
		}
		if !caller.CanActFor(quote.CreatedBy) {
			return apperr.Unauthorized(op, "only the quote creator or back office may record a receipt")
		}

		if item.ProcurementStatus != entity.ProcurementStatusOrdered {
			return apperr.Newf(apperr.CodeInvalidState, op, "item is %s, only 発注済 items can be received", item.ProcurementStatus)
		}

		date := NormalizeDate(receipt.ReceivedDate, r.now())
		ok, err := r.items.MarkReceived(txCtx, itemID, date.Timestamp)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.InvalidState(op, "item was modified concurrently")
		}

		if err := r.logs.Create(txCtx, &entity.ProcurementLog{
			QuoteItemID: itemID,
			ActionType:  entity.ProcurementActionReceived,
			ActionDate:  date.Timestamp,
			Quantity:    item.Quantity,
			PerformedBy: caller.UserID,
			Notes:       receipt.Notes,
		}); err != nil {
			return err
		}

		events = append(events, event.NewEvent(event.TypeProcurementReceived, string(entity.DocumentTypeQuote), item.QuoteID, caller.UserID,
			map[string]interface{}{
				"quote_item_id": itemID,
				"received_date": date.Date,
				"quantity":      item.Quantity,
			}))

		received, err = r.items.GetByID(txCtx, itemID)
		return err
	})
	if err != nil {
		return nil, r.fail(span, op, itemID, err)
	}

	r.logger.Info("Quote item received", "quote_item_id", itemID, "received_by", caller.UserID)
	r.publish(ctx, events)
	return received, nil
}

// ListLogs returns procurement logs oldest first
func (r *Reconciler) ListLogs(ctx context.Context, filter port.LogFilter) ([]*entity.ProcurementLog, error) {
	logs, err := r.logs.List(ctx, filter)
	if err != nil {
		r.logger.Error("Failed to list procurement logs",
			"quote_item_id", filter.QuoteItemID,
			"purchase_order_id", filter.PurchaseOrderID,
			"error", err)
		return nil, apperr.Persistence("list procurement logs", err)
	}
	return logs, nil
}

// ExportLogs writes the matching logs as a workbook
func (r *Reconciler) ExportLogs(ctx context.Context, filter port.LogFilter, w io.Writer) error {
	if r.exporter == nil {
		return apperr.Configuration("export procurement logs", "no log exporter configured")
	}
	logs, err := r.ListLogs(ctx, filter)
	if err != nil {
		return err
	}
	if err := r.exporter.WriteWorkbook(w, logs); err != nil {
		r.logger.Error("Failed to write procurement log workbook", "error", err)
		return apperr.Persistence("export procurement logs", err)
	}
	return nil
}

// transition runs the order state machine and the quote item effects of one status change.
// The caller holds the transaction.
func (r *Reconciler) transition(ctx context.Context, op string, order *entity.PurchaseOrder, change StatusChange, caller entity.Caller) ([]*event.Event, error) {
	from := order.Status

	machine, err := BuildOrderStateMachine(from, func() bool {
		return order.ApprovalStatus == entity.ApprovalStatusApproved
	})
	if err != nil {
		return nil, apperr.Newf(apperr.CodeInvalidState, op, "order has unknown status %q", from)
	}
	trigger, err := triggerFor(change.Status)
	if err != nil {
		return nil, apperr.New(apperr.CodeValidation, op, err.Error())
	}
	if err := machine.Fire(ctx, trigger); err != nil {
		if errors.Is(err, domainwf.ErrGuardFailed) {
			return nil, apperr.Newf(apperr.CodeInvalidState, op, "order must be %s before it is placed (approval is %s)",
				entity.ApprovalStatusApproved, order.ApprovalStatus)
		}
		return nil, apperr.Newf(apperr.CodeInvalidState, op, "order cannot move from %s to %s", from, change.Status)
	}

	if change.Notes != nil {
		order.Notes = *change.Notes
	}
	order.Status = entity.OrderStatus(machine.State())

	items, err := r.orders.ListItems(ctx, order.ID)
	if err != nil {
		return nil, err
	}

	var evt *event.Event
	switch {
	case order.Status == entity.OrderStatusOrdered:
		evt, err = r.applyOrdered(ctx, order, from, items, change.OrderDate, caller)
	case from == entity.OrderStatusOrdered:
		order.OrderedAt = nil
		evt, err = r.applyReverted(ctx, order, from, items, caller)
	}
	if err != nil {
		return nil, err
	}

	ok, err := r.orders.UpdateStatus(ctx, order, from)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.InvalidState(op, "order was modified concurrently")
	}

	if evt == nil {
		return nil, nil
	}
	return []*event.Event{evt}, nil
}

// applyOrdered marks every referenced item ordered. Log rows are written only on the edge into 発注済.
func (r *Reconciler) applyOrdered(ctx context.Context, order *entity.PurchaseOrder, from entity.OrderStatus, items []*entity.PurchaseOrderItem, rawDate string, caller entity.Caller) (*event.Event, error) {
	if rawDate == "" && order.OrderDate != nil {
		rawDate = *order.OrderDate
	}
	date := NormalizeDate(rawDate, r.now())
	order.OrderDate = &date.Date
	order.OrderedAt = &date.Timestamp

	edge := from != entity.OrderStatusOrdered
	itemIDs := make([]int64, 0, len(items))
	for _, line := range items {
		if err := r.items.MarkOrdered(ctx, line.QuoteItemID, date.Timestamp); err != nil {
			return nil, err
		}
		itemIDs = append(itemIDs, line.QuoteItemID)

		if !edge {
			continue
		}
		orderID := order.ID
		if err := r.logs.Create(ctx, &entity.ProcurementLog{
			QuoteItemID:     line.QuoteItemID,
			PurchaseOrderID: &orderID,
			ActionType:      entity.ProcurementActionOrdered,
			ActionDate:      date.Timestamp,
			Quantity:        line.Quantity,
			PerformedBy:     caller.UserID,
			Notes:           order.Notes,
		}); err != nil {
			return nil, err
		}
	}

	if !edge {
		return nil, nil
	}
	return event.NewEvent(event.TypeProcurementOrdered, string(entity.DocumentTypePurchaseOrder), order.ID, caller.UserID,
		map[string]interface{}{
			"order_number":   order.OrderNumber,
			"order_date":     date.Date,
			"quote_item_ids": itemIDs,
			"created_by":     order.CreatedBy,
		}), nil
}

// applyReverted reverts the referenced items that are still 発注済. 入荷済 items are left alone.
func (r *Reconciler) applyReverted(ctx context.Context, order *entity.PurchaseOrder, from entity.OrderStatus, items []*entity.PurchaseOrderItem, caller entity.Caller) (*event.Event, error) {
	var reset, kept []int64
	for _, line := range items {
		if r.policy == ReversionRecompute {
			latest, err := r.items.LatestActiveOrderTime(ctx, line.QuoteItemID, order.ID)
			if err != nil {
				return nil, err
			}
			if latest != nil {
				if err := r.keepOrdered(ctx, line.QuoteItemID, *latest); err != nil {
					return nil, err
				}
				kept = append(kept, line.QuoteItemID)
				continue
			}
		}
		if err := r.items.ResetOrdered(ctx, line.QuoteItemID); err != nil {
			return nil, err
		}
		reset = append(reset, line.QuoteItemID)
	}

	return event.NewEvent(event.TypeProcurementReverted, string(entity.DocumentTypePurchaseOrder), order.ID, caller.UserID,
		map[string]interface{}{
			"order_number":   order.OrderNumber,
			"from_status":    string(from),
			"to_status":      string(order.Status),
			"policy":         string(r.policy),
			"reset_item_ids": reset,
			"kept_item_ids":  kept,
		}), nil
}

// keepOrdered points an item that is still 発注済 at the newest remaining order
func (r *Reconciler) keepOrdered(ctx context.Context, itemID int64, orderedAt time.Time) error {
	item, err := r.items.GetByID(ctx, itemID)
	if err != nil {
		return err
	}
	if item == nil || item.ProcurementStatus != entity.ProcurementStatusOrdered {
		return nil
	}
	return r.items.MarkOrdered(ctx, itemID, orderedAt)
}

func (r *Reconciler) loadOrder(ctx context.Context, op string, orderID int64) (*entity.PurchaseOrder, error) {
	order, err := r.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, apperr.Newf(apperr.CodeNotFound, op, "purchase order %d not found", orderID)
	}
	return order, nil
}

// publish hands the events of a committed transition to the dispatcher
func (r *Reconciler) publish(ctx context.Context, events []*event.Event) {
	if r.dispatcher == nil || len(events) == 0 {
		return
	}
	r.dispatcher.PublishCommitted(ctx, events)
}

func (r *Reconciler) fail(span trace.Span, op string, id int64, err error) error {
	err = apperr.Persistence(op, err)
	code := apperr.CodeOf(err)

	span.SetAttributes(attribute.String("error.code", string(code)))
	if code == apperr.CodePersistence {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.logger.Error("Procurement operation failed", "op", op, "id", id, "error", err)
	}
	return err
}
