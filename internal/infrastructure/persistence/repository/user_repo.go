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

// UserRepository implements port.UserRepository
type UserRepository struct {
	db     *sqlstore.DB
	logger *zap.Logger
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *sqlstore.DB, logger *zap.Logger) *UserRepository {
	return &UserRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a user
func (r *UserRepository) Create(ctx context.Context, user *entity.User) error {
	query := r.db.Rebind(`
		INSERT INTO users (name, role, lark_open_id, created_at)
		VALUES (?, ?, ?, ?)
		RETURNING id
	`)

	err := r.db.Executor(ctx).QueryRowxContext(ctx, query,
		user.Name,
		user.Role,
		user.LarkOpenID,
		time.Now().UTC(),
	).Scan(&user.ID)
	if err != nil {
		r.logger.Error("Failed to create user", zap.String("name", user.Name), zap.Error(err))
		return fmt.Errorf("failed to create user: %w", sqlstore.Classify(err))
	}
	return nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*entity.User, error) {
	query := r.db.Rebind(`SELECT id, name, role, lark_open_id FROM users WHERE id = ?`)

	var user entity.User
	err := r.db.Executor(ctx).GetContext(ctx, &user, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get user", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get user: %w", sqlstore.Classify(err))
	}
	return &user, nil
}

// ListByRole returns every user holding the role
func (r *UserRepository) ListByRole(ctx context.Context, role entity.Role) ([]*entity.User, error) {
	query := r.db.Rebind(`SELECT id, name, role, lark_open_id FROM users WHERE role = ? ORDER BY id`)

	var users []*entity.User
	if err := r.db.Executor(ctx).SelectContext(ctx, &users, query, role); err != nil {
		r.logger.Error("Failed to list users by role", zap.String("role", string(role)), zap.Error(err))
		return nil, fmt.Errorf("failed to list users: %w", sqlstore.Classify(err))
	}
	return users, nil
}

// Verify interface compliance
var _ port.UserRepository = (*UserRepository)(nil)
