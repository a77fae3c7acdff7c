package workflow

import (
	"context"

	"github.com/garyjia/procureflow/internal/application/port"
	"github.com/garyjia/procureflow/internal/domain/entity"
	"github.com/garyjia/procureflow/internal/domain/event"
)

// Document is the part of a quote or purchase order the approval engine reads
type Document struct {
	Type           entity.DocumentType
	ID             int64
	CreatedBy      int64
	RouteID        *int64
	ApprovalStatus entity.ApprovalStatus
}

// DocumentAdapter gives the engine uniform access to one document type
type DocumentAdapter interface {
	Type() entity.DocumentType
	// Load returns nil when the document does not exist
	Load(ctx context.Context, id int64) (*Document, error)
	SetApprovalStatus(ctx context.Context, id int64, status entity.ApprovalStatus) error
	// OnApproved runs inside the approval transaction after the mirror turned 承認済み.
	// Returned events are dispatched after commit.
	OnApproved(ctx context.Context, doc *Document, caller entity.Caller) ([]*event.Event, error)
}

// QuoteAdapter adapts quotes to the engine
type QuoteAdapter struct {
	quotes port.QuoteRepository
}

// NewQuoteAdapter creates a quote adapter
func NewQuoteAdapter(quotes port.QuoteRepository) *QuoteAdapter {
	return &QuoteAdapter{quotes: quotes}
}

func (a *QuoteAdapter) Type() entity.DocumentType { return entity.DocumentTypeQuote }

func (a *QuoteAdapter) Load(ctx context.Context, id int64) (*Document, error) {
	quote, err := a.quotes.GetByID(ctx, id)
	if err != nil || quote == nil {
		return nil, err
	}
	return &Document{
		Type:           entity.DocumentTypeQuote,
		ID:             quote.ID,
		CreatedBy:      quote.CreatedBy,
		RouteID:        quote.RouteID,
		ApprovalStatus: quote.ApprovalStatus,
	}, nil
}

func (a *QuoteAdapter) SetApprovalStatus(ctx context.Context, id int64, status entity.ApprovalStatus) error {
	return a.quotes.SetApprovalStatus(ctx, id, status)
}

// OnApproved has no side effects for quotes
func (a *QuoteAdapter) OnApproved(ctx context.Context, doc *Document, caller entity.Caller) ([]*event.Event, error) {
	return nil, nil
}

// ApprovedOrderHook runs when a purchase order reaches final approval
type ApprovedOrderHook func(ctx context.Context, orderID int64, caller entity.Caller) ([]*event.Event, error)

// PurchaseOrderAdapter adapts purchase orders to the engine
type PurchaseOrderAdapter struct {
	orders     port.PurchaseOrderRepository
	onApproved ApprovedOrderHook
}

// PurchaseOrderAdapterOption configures the purchase order adapter
type PurchaseOrderAdapterOption func(*PurchaseOrderAdapter)

// WithApprovedOrderHook places the order automatically once it is approved
func WithApprovedOrderHook(hook ApprovedOrderHook) PurchaseOrderAdapterOption {
	return func(a *PurchaseOrderAdapter) {
		a.onApproved = hook
	}
}

// NewPurchaseOrderAdapter creates a purchase order adapter
func NewPurchaseOrderAdapter(orders port.PurchaseOrderRepository, opts ...PurchaseOrderAdapterOption) *PurchaseOrderAdapter {
	a := &PurchaseOrderAdapter{orders: orders}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *PurchaseOrderAdapter) Type() entity.DocumentType { return entity.DocumentTypePurchaseOrder }

func (a *PurchaseOrderAdapter) Load(ctx context.Context, id int64) (*Document, error) {
	order, err := a.orders.GetByID(ctx, id)
	if err != nil || order == nil {
		return nil, err
	}
	return &Document{
		Type:           entity.DocumentTypePurchaseOrder,
		ID:             order.ID,
		CreatedBy:      order.CreatedBy,
		RouteID:        order.RouteID,
		ApprovalStatus: order.ApprovalStatus,
	}, nil
}

func (a *PurchaseOrderAdapter) SetApprovalStatus(ctx context.Context, id int64, status entity.ApprovalStatus) error {
	return a.orders.SetApprovalStatus(ctx, id, status)
}

// OnApproved runs the approved-order hook when one is configured
func (a *PurchaseOrderAdapter) OnApproved(ctx context.Context, doc *Document, caller entity.Caller) ([]*event.Event, error) {
	if a.onApproved == nil {
		return nil, nil
	}
	return a.onApproved(ctx, doc.ID, caller)
}

// Verify interface compliance
var (
	_ DocumentAdapter = (*QuoteAdapter)(nil)
	_ DocumentAdapter = (*PurchaseOrderAdapter)(nil)
)
