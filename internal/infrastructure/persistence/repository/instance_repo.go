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

const instanceColumns = `id, document_type, document_id, route_id, status, current_step,
	requested_by, requested_at, rejection_reason, updated_at`

const instanceStepColumns = `id, instance_id, step_order, approver_role, status,
	decided_by, decided_at, notes`

// InstanceRepository implements port.InstanceRepository
type InstanceRepository struct {
	db     *sqlstore.DB
	logger *zap.Logger
}

// NewInstanceRepository creates a new instance repository
func NewInstanceRepository(db *sqlstore.DB, logger *zap.Logger) *InstanceRepository {
	return &InstanceRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts an approval instance and its steps.
// A second pending instance for the same document violates uq_approval_instances_active.
func (r *InstanceRepository) Create(ctx context.Context, instance *entity.ApprovalInstance) error {
	exec := r.db.Executor(ctx)

	query := r.db.Rebind(`
		INSERT INTO approval_instances (
			document_type, document_id, route_id, status, current_step,
			requested_by, requested_at, rejection_reason, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`)
	err := exec.QueryRowxContext(ctx, query,
		instance.DocumentType,
		instance.DocumentID,
		instance.RouteID,
		instance.Status,
		instance.CurrentStep,
		instance.RequestedBy,
		instance.RequestedAt,
		instance.RejectionReason,
		instance.UpdatedAt,
	).Scan(&instance.ID)
	if err != nil {
		r.logger.Error("Failed to create approval instance",
			zap.String("document_type", string(instance.DocumentType)),
			zap.Int64("document_id", instance.DocumentID),
			zap.Error(err))
		return fmt.Errorf("failed to create approval instance: %w", sqlstore.Classify(err))
	}

	stepQuery := r.db.Rebind(`
		INSERT INTO approval_instance_steps (
			instance_id, step_order, approver_role, status, decided_by, decided_at, notes
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`)
	for i := range instance.Steps {
		step := &instance.Steps[i]
		step.InstanceID = instance.ID
		err := exec.QueryRowxContext(ctx, stepQuery,
			step.InstanceID,
			step.StepOrder,
			step.ApproverRole,
			step.Status,
			step.DecidedBy,
			step.DecidedAt,
			step.Notes,
		).Scan(&step.ID)
		if err != nil {
			r.logger.Error("Failed to create approval instance step",
				zap.Int64("instance_id", instance.ID),
				zap.Int("step_order", step.StepOrder),
				zap.Error(err))
			return fmt.Errorf("failed to create approval instance step: %w", sqlstore.Classify(err))
		}
	}

	return nil
}

// GetByID retrieves an approval instance with its steps
func (r *InstanceRepository) GetByID(ctx context.Context, id int64) (*entity.ApprovalInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM approval_instances WHERE id = ?`
	return r.getOne(ctx, "get approval instance", query, id)
}

// GetPending retrieves the pending instance of a document
func (r *InstanceRepository) GetPending(ctx context.Context, docType entity.DocumentType, docID int64) (*entity.ApprovalInstance, error) {
	query := `
		SELECT ` + instanceColumns + `
		FROM approval_instances
		WHERE document_type = ? AND document_id = ? AND status = ?
	`
	return r.getOne(ctx, "get pending approval instance", query, docType, docID, entity.InstanceStatusPending)
}

// GetLatest retrieves the most recently requested instance of a document
func (r *InstanceRepository) GetLatest(ctx context.Context, docType entity.DocumentType, docID int64) (*entity.ApprovalInstance, error) {
	query := `
		SELECT ` + instanceColumns + `
		FROM approval_instances
		WHERE document_type = ? AND document_id = ?
		ORDER BY requested_at DESC, id DESC
		LIMIT 1
	`
	return r.getOne(ctx, "get latest approval instance", query, docType, docID)
}

// ListByDocument returns every instance of a document, oldest first
func (r *InstanceRepository) ListByDocument(ctx context.Context, docType entity.DocumentType, docID int64) ([]*entity.ApprovalInstance, error) {
	query := r.db.Rebind(`
		SELECT ` + instanceColumns + `
		FROM approval_instances
		WHERE document_type = ? AND document_id = ?
		ORDER BY requested_at, id
	`)

	var instances []*entity.ApprovalInstance
	if err := r.db.Executor(ctx).SelectContext(ctx, &instances, query, docType, docID); err != nil {
		r.logger.Error("Failed to list approval instances",
			zap.String("document_type", string(docType)),
			zap.Int64("document_id", docID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to list approval instances: %w", sqlstore.Classify(err))
	}

	if err := r.attachSteps(ctx, instances); err != nil {
		return nil, err
	}
	return instances, nil
}

// TransitionStep moves a step from one status to another only if it still holds `from`
func (r *InstanceRepository) TransitionStep(ctx context.Context, stepID int64, from, to entity.StepStatus, decision *entity.StepDecision) (bool, error) {
	var (
		query string
		args  []interface{}
	)
	if decision != nil {
		query = `
			UPDATE approval_instance_steps
			SET status = ?, decided_by = ?, decided_at = ?, notes = ?
			WHERE id = ? AND status = ?
		`
		args = []interface{}{to, decision.DecidedBy, decision.DecidedAt, decision.Notes, stepID, from}
	} else {
		query = `UPDATE approval_instance_steps SET status = ? WHERE id = ? AND status = ?`
		args = []interface{}{to, stepID, from}
	}

	result, err := r.db.Executor(ctx).ExecContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		r.logger.Error("Failed to transition approval step",
			zap.Int64("step_id", stepID),
			zap.String("from", string(from)),
			zap.String("to", string(to)),
			zap.Error(err))
		return false, fmt.Errorf("failed to transition approval step: %w", sqlstore.Classify(err))
	}
	return affected(result)
}

// MoveCurrentStep advances the pointer of a pending instance that still points at `from`
func (r *InstanceRepository) MoveCurrentStep(ctx context.Context, instanceID int64, from, to int, at time.Time) (bool, error) {
	query := r.db.Rebind(`
		UPDATE approval_instances
		SET current_step = ?, updated_at = ?
		WHERE id = ? AND status = ? AND current_step = ?
	`)

	result, err := r.db.Executor(ctx).ExecContext(ctx, query, to, at, instanceID, entity.InstanceStatusPending, from)
	if err != nil {
		r.logger.Error("Failed to move current step",
			zap.Int64("instance_id", instanceID),
			zap.Int("from", from),
			zap.Int("to", to),
			zap.Error(err))
		return false, fmt.Errorf("failed to move current step: %w", sqlstore.Classify(err))
	}
	return affected(result)
}

// Close finishes a pending instance and clears its pointer.
// A non-nil expectedStep also requires the pointer to still match.
func (r *InstanceRepository) Close(ctx context.Context, instanceID int64, expectedStep *int, status entity.InstanceStatus, reason *string, at time.Time) (bool, error) {
	query := `
		UPDATE approval_instances
		SET status = ?, current_step = NULL, rejection_reason = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`
	args := []interface{}{status, reason, at, instanceID, entity.InstanceStatusPending}
	if expectedStep != nil {
		query += ` AND current_step = ?`
		args = append(args, *expectedStep)
	}

	result, err := r.db.Executor(ctx).ExecContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		r.logger.Error("Failed to close approval instance",
			zap.Int64("instance_id", instanceID),
			zap.String("status", string(status)),
			zap.Error(err))
		return false, fmt.Errorf("failed to close approval instance: %w", sqlstore.Classify(err))
	}
	return affected(result)
}

// SkipUndecided marks every waiting or pending step of the instance skipped
func (r *InstanceRepository) SkipUndecided(ctx context.Context, instanceID int64) error {
	query := r.db.Rebind(`
		UPDATE approval_instance_steps
		SET status = ?
		WHERE instance_id = ? AND status IN (?, ?)
	`)

	_, err := r.db.Executor(ctx).ExecContext(ctx, query,
		entity.StepStatusSkipped, instanceID, entity.StepStatusWaiting, entity.StepStatusPending)
	if err != nil {
		r.logger.Error("Failed to skip undecided steps", zap.Int64("instance_id", instanceID), zap.Error(err))
		return fmt.Errorf("failed to skip undecided steps: %w", sqlstore.Classify(err))
	}
	return nil
}

func (r *InstanceRepository) getOne(ctx context.Context, op, query string, args ...interface{}) (*entity.ApprovalInstance, error) {
	var instance entity.ApprovalInstance
	err := r.db.Executor(ctx).GetContext(ctx, &instance, r.db.Rebind(query), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to "+op, zap.Error(err))
		return nil, fmt.Errorf("failed to %s: %w", op, sqlstore.Classify(err))
	}

	if err := r.attachSteps(ctx, []*entity.ApprovalInstance{&instance}); err != nil {
		return nil, err
	}
	return &instance, nil
}

// attachSteps loads the steps of all given instances in one query
func (r *InstanceRepository) attachSteps(ctx context.Context, instances []*entity.ApprovalInstance) error {
	if len(instances) == 0 {
		return nil
	}

	ids := make([]int64, 0, len(instances))
	byID := make(map[int64]*entity.ApprovalInstance, len(instances))
	for _, inst := range instances {
		ids = append(ids, inst.ID)
		byID[inst.ID] = inst
		inst.Steps = []entity.ApprovalInstanceStep{}
	}

	query, args, err := sqlx.In(`
		SELECT `+instanceStepColumns+`
		FROM approval_instance_steps
		WHERE instance_id IN (?)
		ORDER BY instance_id, step_order
	`, ids)
	if err != nil {
		return fmt.Errorf("failed to build instance step query: %w", err)
	}

	var steps []entity.ApprovalInstanceStep
	if err := r.db.Executor(ctx).SelectContext(ctx, &steps, r.db.Rebind(query), args...); err != nil {
		r.logger.Error("Failed to load approval instance steps", zap.Int64s("instance_ids", ids), zap.Error(err))
		return fmt.Errorf("failed to load approval instance steps: %w", sqlstore.Classify(err))
	}

	for _, step := range steps {
		if inst, ok := byID[step.InstanceID]; ok {
			inst.Steps = append(inst.Steps, step)
		}
	}
	return nil
}

// Verify interface compliance
var _ port.InstanceRepository = (*InstanceRepository)(nil)
