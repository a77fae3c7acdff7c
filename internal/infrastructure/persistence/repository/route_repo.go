package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/garyjia/procureflow/internal/application/port"
	"github.com/garyjia/procureflow/internal/domain/entity"
	"github.com/garyjia/procureflow/internal/infrastructure/persistence/sqlstore"
)

const routeColumns = `id, name, document_type, is_default, created_at`

// RouteRepository implements port.RouteRepository
type RouteRepository struct {
	db     *sqlstore.DB
	logger *zap.Logger
}

// NewRouteRepository creates a new route repository
func NewRouteRepository(db *sqlstore.DB, logger *zap.Logger) *RouteRepository {
	return &RouteRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts the route and its steps. Callers wrap it in a transaction.
func (r *RouteRepository) Create(ctx context.Context, route *entity.ApprovalRoute) error {
	if route.CreatedAt.IsZero() {
		route.CreatedAt = time.Now().UTC()
	}

	exec := r.db.Executor(ctx)
	query := r.db.Rebind(`
		INSERT INTO approval_routes (name, document_type, is_default, created_at)
		VALUES (?, ?, ?, ?)
		RETURNING id
	`)
	err := exec.QueryRowxContext(ctx, query,
		route.Name,
		route.DocumentType,
		route.IsDefault,
		route.CreatedAt,
	).Scan(&route.ID)
	if err != nil {
		r.logger.Error("Failed to create route", zap.String("name", route.Name), zap.Error(err))
		return fmt.Errorf("failed to create route: %w", sqlstore.Classify(err))
	}

	stepQuery := r.db.Rebind(`
		INSERT INTO approval_route_steps (route_id, step_order, approver_role)
		VALUES (?, ?, ?)
		RETURNING id
	`)
	for i := range route.Steps {
		step := &route.Steps[i]
		step.RouteID = route.ID
		if err := exec.QueryRowxContext(ctx, stepQuery, step.RouteID, step.StepOrder, step.ApproverRole).Scan(&step.ID); err != nil {
			r.logger.Error("Failed to create route step",
				zap.Int64("route_id", route.ID),
				zap.Int("step_order", step.StepOrder),
				zap.Error(err))
			return fmt.Errorf("failed to create route step: %w", sqlstore.Classify(err))
		}
	}

	return nil
}

// GetByID retrieves a route with its steps
func (r *RouteRepository) GetByID(ctx context.Context, id int64) (*entity.ApprovalRoute, error) {
	query := r.db.Rebind(`SELECT ` + routeColumns + ` FROM approval_routes WHERE id = ?`)

	var route entity.ApprovalRoute
	err := r.db.Executor(ctx).GetContext(ctx, &route, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get route", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get route: %w", sqlstore.Classify(err))
	}

	if err := r.attachSteps(ctx, []*entity.ApprovalRoute{&route}); err != nil {
		return nil, err
	}
	return &route, nil
}

// GetDefault retrieves the default route of a document type
func (r *RouteRepository) GetDefault(ctx context.Context, docType entity.DocumentType) (*entity.ApprovalRoute, error) {
	query := r.db.Rebind(`
		SELECT ` + routeColumns + `
		FROM approval_routes
		WHERE document_type = ? AND is_default = ?
		ORDER BY id DESC
		LIMIT 1
	`)

	var route entity.ApprovalRoute
	err := r.db.Executor(ctx).GetContext(ctx, &route, query, docType, true)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get default route", zap.String("document_type", string(docType)), zap.Error(err))
		return nil, fmt.Errorf("failed to get default route: %w", sqlstore.Classify(err))
	}

	if err := r.attachSteps(ctx, []*entity.ApprovalRoute{&route}); err != nil {
		return nil, err
	}
	return &route, nil
}

// List returns the routes of a document type, or all routes when docType is empty
func (r *RouteRepository) List(ctx context.Context, docType entity.DocumentType) ([]*entity.ApprovalRoute, error) {
	query := `SELECT ` + routeColumns + ` FROM approval_routes`
	var args []interface{}
	if docType != "" {
		query += ` WHERE document_type = ?`
		args = append(args, docType)
	}
	query += ` ORDER BY id`

	var routes []*entity.ApprovalRoute
	if err := r.db.Executor(ctx).SelectContext(ctx, &routes, r.db.Rebind(query), args...); err != nil {
		r.logger.Error("Failed to list routes", zap.String("document_type", string(docType)), zap.Error(err))
		return nil, fmt.Errorf("failed to list routes: %w", sqlstore.Classify(err))
	}

	if err := r.attachSteps(ctx, routes); err != nil {
		return nil, err
	}
	return routes, nil
}

// ClearDefault unsets the default flag on every route of the document type
func (r *RouteRepository) ClearDefault(ctx context.Context, docType entity.DocumentType) error {
	query := r.db.Rebind(`UPDATE approval_routes SET is_default = ? WHERE document_type = ? AND is_default = ?`)

	if _, err := r.db.Executor(ctx).ExecContext(ctx, query, false, docType, true); err != nil {
		r.logger.Error("Failed to clear default route", zap.String("document_type", string(docType)), zap.Error(err))
		return fmt.Errorf("failed to clear default route: %w", sqlstore.Classify(err))
	}
	return nil
}

// attachSteps loads the steps of all given routes in one query
func (r *RouteRepository) attachSteps(ctx context.Context, routes []*entity.ApprovalRoute) error {
	if len(routes) == 0 {
		return nil
	}

	ids := make([]int64, 0, len(routes))
	byID := make(map[int64]*entity.ApprovalRoute, len(routes))
	for _, route := range routes {
		ids = append(ids, route.ID)
		byID[route.ID] = route
		route.Steps = []entity.ApprovalRouteStep{}
	}

	query, args, err := sqlx.In(`
		SELECT id, route_id, step_order, approver_role
		FROM approval_route_steps
		WHERE route_id IN (?)
		ORDER BY route_id, step_order
	`, ids)
	if err != nil {
		return fmt.Errorf("failed to build route step query: %w", err)
	}

	var steps []entity.ApprovalRouteStep
	if err := r.db.Executor(ctx).SelectContext(ctx, &steps, r.db.Rebind(query), args...); err != nil {
		r.logger.Error("Failed to load route steps", zap.Int64s("route_ids", ids), zap.Error(err))
		return fmt.Errorf("failed to load route steps: %w", sqlstore.Classify(err))
	}

	for _, step := range steps {
		if route, ok := byID[step.RouteID]; ok {
			route.Steps = append(route.Steps, step)
		}
	}
	return nil
}

// Verify interface compliance
var _ port.RouteRepository = (*RouteRepository)(nil)
