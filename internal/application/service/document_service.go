package service

import (
	"context"
	"strings"

	"github.com/garyjia/procureflow/internal/application/port"
	"github.com/garyjia/procureflow/internal/domain/apperr"
	"github.com/garyjia/procureflow/internal/domain/entity"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// DocumentService creates and reads the documents that carry approval workflows
type DocumentService interface {
	// ResolveCaller loads the acting user and returns its identity
	ResolveCaller(ctx context.Context, userID int64) (entity.Caller, error)

	CreateQuote(ctx context.Context, quote *entity.Quote, caller entity.Caller) (*entity.Quote, error)
	GetQuote(ctx context.Context, id int64) (*entity.Quote, error)

	CreatePurchaseOrder(ctx context.Context, order *entity.PurchaseOrder, caller entity.Caller) (*entity.PurchaseOrder, error)
	GetPurchaseOrder(ctx context.Context, id int64) (*entity.PurchaseOrder, error)
}

// documentServiceImpl implements DocumentService
type documentServiceImpl struct {
	users     port.UserRepository
	quotes    port.QuoteRepository
	items     port.QuoteItemRepository
	orders    port.PurchaseOrderRepository
	routes    port.RouteRepository
	txManager port.TransactionManager
	logger    Logger
}

// NewDocumentService creates a new document service
func NewDocumentService(
	users port.UserRepository,
	quotes port.QuoteRepository,
	items port.QuoteItemRepository,
	orders port.PurchaseOrderRepository,
	routes port.RouteRepository,
	txManager port.TransactionManager,
	logger Logger,
) DocumentService {
	return &documentServiceImpl{
		users:     users,
		quotes:    quotes,
		items:     items,
		orders:    orders,
		routes:    routes,
		txManager: txManager,
		logger:    logger,
	}
}

// ResolveCaller loads the acting user and returns its identity
func (s *documentServiceImpl) ResolveCaller(ctx context.Context, userID int64) (entity.Caller, error) {
	const op = "ResolveCaller"
	if userID <= 0 {
		return entity.Caller{}, apperr.Unauthorized(op, "missing user")
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		s.logger.Error("Failed to load caller", "error", err, "user_id", userID)
		return entity.Caller{}, apperr.Persistence(op, err)
	}
	if user == nil {
		return entity.Caller{}, apperr.Unauthorized(op, "unknown user")
	}
	return entity.CallerOf(user), nil
}

// CreateQuote stores a new draft quote with its line items
func (s *documentServiceImpl) CreateQuote(ctx context.Context, quote *entity.Quote, caller entity.Caller) (*entity.Quote, error) {
	const op = "CreateQuote"
	if quote == nil {
		return nil, apperr.Validation(op, "quote is required")
	}
	quote.QuoteNumber = strings.TrimSpace(quote.QuoteNumber)
	quote.Title = strings.TrimSpace(quote.Title)
	if quote.QuoteNumber == "" {
		return nil, apperr.Validation(op, "quote_number is required")
	}
	if quote.Title == "" {
		return nil, apperr.Validation(op, "title is required")
	}
	for i := range quote.Items {
		item := &quote.Items[i]
		item.Name = strings.TrimSpace(item.Name)
		if item.Name == "" {
			return nil, apperr.Validation(op, "item name is required")
		}
		if item.Quantity <= 0 {
			return nil, apperr.Validation(op, "item quantity must be positive")
		}
		item.ProcurementStatus = entity.ProcurementStatusUnordered
		item.OrderedAt = nil
		item.ReceivedAt = nil
	}

	quote.ID = 0
	quote.CreatedBy = caller.UserID
	quote.ApprovalStatus = entity.ApprovalStatusDraft

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.checkRoute(txCtx, op, quote.RouteID, entity.DocumentTypeQuote); err != nil {
			return err
		}
		return s.quotes.Create(txCtx, quote)
	})
	if err != nil {
		return nil, s.fail(op, err, "quote_number", quote.QuoteNumber)
	}

	s.logger.Info("Quote created", "id", quote.ID, "quote_number", quote.QuoteNumber, "created_by", caller.UserID)
	return quote, nil
}

// GetQuote retrieves a quote with its items
func (s *documentServiceImpl) GetQuote(ctx context.Context, id int64) (*entity.Quote, error) {
	quote, err := s.quotes.GetByID(ctx, id)
	if err != nil {
		return nil, s.fail("GetQuote", err, "id", id)
	}
	if quote == nil {
		return nil, apperr.Newf(apperr.CodeNotFound, "GetQuote", "quote %d not found", id)
	}
	return quote, nil
}

// CreatePurchaseOrder stores a new draft purchase order for existing quote items
func (s *documentServiceImpl) CreatePurchaseOrder(ctx context.Context, order *entity.PurchaseOrder, caller entity.Caller) (*entity.PurchaseOrder, error) {
	const op = "CreatePurchaseOrder"
	if order == nil {
		return nil, apperr.Validation(op, "purchase order is required")
	}
	order.OrderNumber = strings.TrimSpace(order.OrderNumber)
	if order.OrderNumber == "" {
		return nil, apperr.Validation(op, "order_number is required")
	}
	if len(order.Items) == 0 {
		return nil, apperr.Validation(op, "at least one item is required")
	}
	seen := make(map[int64]bool, len(order.Items))
	for _, line := range order.Items {
		if line.QuoteItemID <= 0 {
			return nil, apperr.Validation(op, "quote_item_id is required")
		}
		if line.Quantity <= 0 {
			return nil, apperr.Validation(op, "item quantity must be positive")
		}
		if seen[line.QuoteItemID] {
			return nil, apperr.Newf(apperr.CodeValidation, op, "quote item %d listed twice", line.QuoteItemID)
		}
		seen[line.QuoteItemID] = true
	}

	order.ID = 0
	order.CreatedBy = caller.UserID
	order.ApprovalStatus = entity.ApprovalStatusDraft
	order.Status = entity.OrderStatusDraft
	order.OrderDate = nil
	order.OrderedAt = nil

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.checkRoute(txCtx, op, order.RouteID, entity.DocumentTypePurchaseOrder); err != nil {
			return err
		}
		for _, line := range order.Items {
			item, err := s.items.GetByID(txCtx, line.QuoteItemID)
			if err != nil {
				return err
			}
			if item == nil {
				return apperr.Newf(apperr.CodeNotFound, op, "quote item %d not found", line.QuoteItemID)
			}
		}
		return s.orders.Create(txCtx, order)
	})
	if err != nil {
		return nil, s.fail(op, err, "order_number", order.OrderNumber)
	}

	s.logger.Info("Purchase order created", "id", order.ID, "order_number", order.OrderNumber, "created_by", caller.UserID)
	return order, nil
}

// GetPurchaseOrder retrieves a purchase order with its line items
func (s *documentServiceImpl) GetPurchaseOrder(ctx context.Context, id int64) (*entity.PurchaseOrder, error) {
	order, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, s.fail("GetPurchaseOrder", err, "id", id)
	}
	if order == nil {
		return nil, apperr.Newf(apperr.CodeNotFound, "GetPurchaseOrder", "purchase order %d not found", id)
	}
	return order, nil
}

// checkRoute verifies that an explicitly attached route exists and targets the document type
func (s *documentServiceImpl) checkRoute(ctx context.Context, op string, routeID *int64, docType entity.DocumentType) error {
	if routeID == nil {
		return nil
	}
	route, err := s.routes.GetByID(ctx, *routeID)
	if err != nil {
		return err
	}
	if route == nil {
		return apperr.Newf(apperr.CodeNotFound, op, "route %d not found", *routeID)
	}
	if route.DocumentType != docType {
		return apperr.Newf(apperr.CodeValidation, op, "route %d is for %s", *routeID, route.DocumentType)
	}
	return nil
}

func (s *documentServiceImpl) fail(op string, err error, keysAndValues ...interface{}) error {
	err = apperr.Persistence(op, err)
	if apperr.IsCode(err, apperr.CodePersistence) {
		s.logger.Error("Document operation failed", append([]interface{}{"op", op, "error", err}, keysAndValues...)...)
	}
	return err
}
