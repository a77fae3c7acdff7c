// Package route manages approval route templates and resolves the route a document is approved under.
package route

import (
	"context"

	"github.com/garyjia/procureflow/internal/application/port"
	"github.com/garyjia/procureflow/internal/domain/apperr"
	"github.com/garyjia/procureflow/internal/domain/entity"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Service reads and creates approval routes
type Service struct {
	routes    port.RouteRepository
	txManager port.TransactionManager
	logger    Logger
}

// NewService creates a new route service
func NewService(routes port.RouteRepository, txManager port.TransactionManager, logger Logger) *Service {
	return &Service{
		routes:    routes,
		txManager: txManager,
		logger:    logger,
	}
}

// GetRoute returns a route with its steps ordered by step_order
func (s *Service) GetRoute(ctx context.Context, id int64) (*entity.ApprovalRoute, error) {
	route, err := s.routes.GetByID(ctx, id)
	if err != nil {
		s.logger.Error("Failed to load route", "route_id", id, "error", err)
		return nil, apperr.Persistence("get route", err)
	}
	if route == nil {
		return nil, apperr.Newf(apperr.CodeNotFound, "get route", "route %d not found", id)
	}
	route.SortSteps()
	return route, nil
}

// ListRoutes returns the routes of a document type, or every route when docType is empty
func (s *Service) ListRoutes(ctx context.Context, docType entity.DocumentType) ([]*entity.ApprovalRoute, error) {
	if docType != "" && !docType.IsValid() {
		return nil, apperr.Newf(apperr.CodeValidation, "list routes", "unknown document type %q", docType)
	}
	routes, err := s.routes.List(ctx, docType)
	if err != nil {
		s.logger.Error("Failed to list routes", "document_type", docType, "error", err)
		return nil, apperr.Persistence("list routes", err)
	}
	return routes, nil
}

// CreateRoute validates and stores a new route.
// A default route replaces the previous default of the same document type.
func (s *Service) CreateRoute(ctx context.Context, route *entity.ApprovalRoute) (*entity.ApprovalRoute, error) {
	if err := route.Validate(); err != nil {
		return nil, apperr.New(apperr.CodeConfiguration, "create route", err.Error())
	}
	route.SortSteps()

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if route.IsDefault {
			if err := s.routes.ClearDefault(txCtx, route.DocumentType); err != nil {
				return err
			}
		}
		return s.routes.Create(txCtx, route)
	})
	if err != nil {
		if apperr.CodeOf(err) == apperr.CodePersistence {
			s.logger.Error("Failed to create route", "name", route.Name, "error", err)
		}
		return nil, apperr.Persistence("create route", err)
	}

	s.logger.Info("Approval route created",
		"route_id", route.ID,
		"document_type", route.DocumentType,
		"steps", len(route.Steps),
		"is_default", route.IsDefault)
	return route, nil
}

// ResolveRoute picks the route a document is approved under: its own route when set,
// else the default route of its document type. A missing route, a route of another
// document type or a route without steps is a configuration error.
func (s *Service) ResolveRoute(ctx context.Context, docType entity.DocumentType, routeID *int64) (*entity.ApprovalRoute, error) {
	const op = "resolve route"

	var (
		route *entity.ApprovalRoute
		err   error
	)
	if routeID != nil {
		route, err = s.routes.GetByID(ctx, *routeID)
	} else {
		route, err = s.routes.GetDefault(ctx, docType)
	}
	if err != nil {
		s.logger.Error("Failed to resolve route", "document_type", docType, "error", err)
		return nil, apperr.Persistence(op, err)
	}

	switch {
	case route == nil && routeID != nil:
		return nil, apperr.Newf(apperr.CodeConfiguration, op, "approval route %d does not exist", *routeID)
	case route == nil:
		return nil, apperr.Newf(apperr.CodeConfiguration, op, "no default approval route for %s", docType)
	case route.DocumentType != docType:
		return nil, apperr.Newf(apperr.CodeConfiguration, op, "approval route %d is for %s, not %s", route.ID, route.DocumentType, docType)
	case len(route.Steps) == 0:
		return nil, apperr.Newf(apperr.CodeConfiguration, op, "approval route %d has no steps", route.ID)
	}

	route.SortSteps()
	return route, nil
}
