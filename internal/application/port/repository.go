package port

import (
	"context"
	"time"

	"github.com/garyjia/procureflow/internal/domain/entity"
)

// Repositories return (nil, nil) when a single row lookup finds nothing.
// Conditional updates return false when the expected state no longer holds.

// RouteRepository defines persistence operations for ApprovalRoute
type RouteRepository interface {
	Create(ctx context.Context, route *entity.ApprovalRoute) error
	GetByID(ctx context.Context, id int64) (*entity.ApprovalRoute, error)
	GetDefault(ctx context.Context, docType entity.DocumentType) (*entity.ApprovalRoute, error)
	List(ctx context.Context, docType entity.DocumentType) ([]*entity.ApprovalRoute, error)
	ClearDefault(ctx context.Context, docType entity.DocumentType) error
}

// InstanceRepository defines persistence operations for ApprovalInstance and its steps
type InstanceRepository interface {
	// Create inserts the instance and its steps
	Create(ctx context.Context, instance *entity.ApprovalInstance) error
	GetByID(ctx context.Context, id int64) (*entity.ApprovalInstance, error)
	GetPending(ctx context.Context, docType entity.DocumentType, docID int64) (*entity.ApprovalInstance, error)
	GetLatest(ctx context.Context, docType entity.DocumentType, docID int64) (*entity.ApprovalInstance, error)
	ListByDocument(ctx context.Context, docType entity.DocumentType, docID int64) ([]*entity.ApprovalInstance, error)

	// TransitionStep moves a step from one status to another only if it still holds `from`
	TransitionStep(ctx context.Context, stepID int64, from, to entity.StepStatus, decision *entity.StepDecision) (bool, error)
	// MoveCurrentStep advances the pointer of a pending instance that still points at `from`
	MoveCurrentStep(ctx context.Context, instanceID int64, from, to int, at time.Time) (bool, error)
	// Close finishes a pending instance. A non-nil expectedStep also requires the pointer to match.
	Close(ctx context.Context, instanceID int64, expectedStep *int, status entity.InstanceStatus, reason *string, at time.Time) (bool, error)
	// SkipUndecided marks every waiting or pending step of the instance skipped
	SkipUndecided(ctx context.Context, instanceID int64) error
}

// QuoteRepository defines persistence operations for Quote
type QuoteRepository interface {
	Create(ctx context.Context, quote *entity.Quote) error
	GetByID(ctx context.Context, id int64) (*entity.Quote, error)
	SetApprovalStatus(ctx context.Context, id int64, status entity.ApprovalStatus) error
}

// QuoteItemRepository defines persistence operations for QuoteItem procurement fields
type QuoteItemRepository interface {
	Create(ctx context.Context, item *entity.QuoteItem) error
	GetByID(ctx context.Context, id int64) (*entity.QuoteItem, error)
	ListByQuote(ctx context.Context, quoteID int64) ([]*entity.QuoteItem, error)
	// MarkOrdered sets 発注済 and ordered_at unless the item was already received
	MarkOrdered(ctx context.Context, id int64, orderedAt time.Time) error
	// ResetOrdered sets 未発注 and clears ordered_at if the item is currently 発注済
	ResetOrdered(ctx context.Context, id int64) error
	// MarkReceived sets 入荷済 if the item is currently 発注済
	MarkReceived(ctx context.Context, id int64, receivedAt time.Time) (bool, error)
	// LatestActiveOrderTime returns the newest ordered_at among other 発注済 orders referencing the item
	LatestActiveOrderTime(ctx context.Context, id int64, excludeOrderID int64) (*time.Time, error)
}

// PurchaseOrderRepository defines persistence operations for PurchaseOrder
type PurchaseOrderRepository interface {
	// Create inserts the order and its line items
	Create(ctx context.Context, order *entity.PurchaseOrder) error
	GetByID(ctx context.Context, id int64) (*entity.PurchaseOrder, error)
	ListItems(ctx context.Context, orderID int64) ([]*entity.PurchaseOrderItem, error)
	SetApprovalStatus(ctx context.Context, id int64, status entity.ApprovalStatus) error
	// UpdateStatus writes status, order_date, ordered_at and notes if the stored status still equals `from`
	UpdateStatus(ctx context.Context, order *entity.PurchaseOrder, from entity.OrderStatus) (bool, error)
}

// LogFilter selects procurement logs; zero values are ignored
type LogFilter struct {
	QuoteItemID     int64
	PurchaseOrderID int64
	Limit           int
}

// ProcurementLogRepository defines append-only persistence for ProcurementLog
type ProcurementLogRepository interface {
	Create(ctx context.Context, log *entity.ProcurementLog) error
	List(ctx context.Context, filter LogFilter) ([]*entity.ProcurementLog, error)
}

// UserRepository defines read access to users
type UserRepository interface {
	Create(ctx context.Context, user *entity.User) error
	GetByID(ctx context.Context, id int64) (*entity.User, error)
	ListByRole(ctx context.Context, role entity.Role) ([]*entity.User, error)
}

// TransactionManager defines transaction boundary operations
type TransactionManager interface {
	// WithTransaction runs fn inside a transaction. A nested call joins the outer transaction.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
