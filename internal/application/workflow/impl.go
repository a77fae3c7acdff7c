package workflow

import (
	"context"
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

// RouteResolver picks the route a document is approved under
type RouteResolver interface {
	ResolveRoute(ctx context.Context, docType entity.DocumentType, routeID *int64) (*entity.ApprovalRoute, error)
}

// engineImpl is the concrete implementation of ApprovalEngine
type engineImpl struct {
	instanceRepo port.InstanceRepository
	routes       RouteResolver
	txManager    port.TransactionManager
	adapters     map[entity.DocumentType]DocumentAdapter
	dispatcher   dispatcher.Dispatcher
	logger       Logger
	tracer       trace.Tracer
	now          func() time.Time
}

// EngineOption configures the approval engine
type EngineOption func(*engineImpl)

// WithDispatcher sets the event dispatcher used after commit
func WithDispatcher(d dispatcher.Dispatcher) EngineOption {
	return func(e *engineImpl) {
		e.dispatcher = d
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) EngineOption {
	return func(e *engineImpl) {
		e.now = now
	}
}

// WithTracer overrides the tracer used for operation spans
func WithTracer(tracer trace.Tracer) EngineOption {
	return func(e *engineImpl) {
		e.tracer = tracer
	}
}

// NewEngine creates a new approval engine over the given document adapters
func NewEngine(
	instanceRepo port.InstanceRepository,
	routes RouteResolver,
	txManager port.TransactionManager,
	adapters []DocumentAdapter,
	logger Logger,
	opts ...EngineOption,
) ApprovalEngine {
	e := &engineImpl{
		instanceRepo: instanceRepo,
		routes:       routes,
		txManager:    txManager,
		adapters:     make(map[entity.DocumentType]DocumentAdapter, len(adapters)),
		logger:       logger,
		tracer:       otel.Tracer("github.com/garyjia/procureflow/approval"),
		now:          func() time.Time { return time.Now().UTC() },
	}
	for _, a := range adapters {
		e.adapters[a.Type()] = a
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// RequestApproval snapshots the document's route into a new pending instance
func (e *engineImpl) RequestApproval(ctx context.Context, docType entity.DocumentType, docID int64, caller entity.Caller) (*entity.ApprovalInstance, error) {
	const op = "request approval"
	ctx, span := e.startSpan(ctx, op, docType, docID, caller)
	defer span.End()

	var (
		instance *entity.ApprovalInstance
		events   []*event.Event
	)
	err := e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		adapter, doc, err := e.loadDocument(txCtx, op, docType, docID)
		if err != nil {
			return err
		}

		if !caller.CanActFor(doc.CreatedBy) {
			return apperr.Unauthorized(op, "only the creator or back office may request approval")
		}

		mirror, err := BuildMirrorStateMachine(doc.ApprovalStatus)
		if err != nil {
			return apperr.Newf(apperr.CodeInvalidState, op, "document has unknown approval status %q", doc.ApprovalStatus)
		}
		if !mirror.CanFire(domainwf.TriggerRequest) {
			return apperr.Newf(apperr.CodeInvalidState, op, "approval cannot be requested while %s", doc.ApprovalStatus)
		}

		active, err := e.instanceRepo.GetPending(txCtx, docType, docID)
		if err != nil {
			return err
		}
		if active != nil {
			return apperr.InvalidState(op, "an approval request is already in progress")
		}

		route, err := e.routes.ResolveRoute(txCtx, docType, doc.RouteID)
		if err != nil {
			return err
		}

		instance = entity.NewInstanceFromRoute(route, docType, docID, caller.UserID, e.now())
		if err := e.instanceRepo.Create(txCtx, instance); err != nil {
			return err
		}

		if err := mirror.Fire(txCtx, domainwf.TriggerRequest); err != nil {
			return apperr.New(apperr.CodeInvalidState, op, err.Error())
		}
		if err := adapter.SetApprovalStatus(txCtx, docID, entity.ApprovalStatus(mirror.State())); err != nil {
			return err
		}

		first := instance.PendingStep()
		events = append(events, event.NewEvent(event.TypeApprovalRequested, string(docType), docID, caller.UserID,
			map[string]interface{}{
				"instance_id":   instance.ID,
				"route_id":      route.ID,
				"step_order":    first.StepOrder,
				"approver_role": string(first.ApproverRole),
				"total_steps":   len(instance.Steps),
			}))
		return nil
	})
	if err != nil {
		return nil, e.fail(span, op, docType, docID, err)
	}

	e.logger.Info("Approval requested",
		"document_type", docType,
		"document_id", docID,
		"instance_id", instance.ID,
		"requested_by", caller.UserID)
	e.publish(ctx, events)
	return instance, nil
}

// Approve decides the pending step and advances the pointer or approves the instance
func (e *engineImpl) Approve(ctx context.Context, docType entity.DocumentType, docID int64, caller entity.Caller, opts DecisionOptions) (*entity.ApprovalInstance, error) {
	const op = "approve"
	ctx, span := e.startSpan(ctx, op, docType, docID, caller)
	defer span.End()

	var (
		instance *entity.ApprovalInstance
		events   []*event.Event
	)
	err := e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		d, err := e.prepareDecision(txCtx, op, docType, docID, caller, opts)
		if err != nil {
			return err
		}

		next := d.instance.NextStep(d.step.StepOrder)
		machine, err := BuildInstanceStateMachine(d.instance.Status, func() bool { return next != nil })
		if err != nil {
			return apperr.New(apperr.CodeInvalidState, op, err.Error())
		}
		if err := machine.Fire(txCtx, domainwf.TriggerApprove); err != nil {
			return apperr.New(apperr.CodeInvalidState, op, err.Error())
		}

		now := e.now()
		decision := &entity.StepDecision{DecidedBy: caller.UserID, DecidedAt: now, Notes: opts.Notes}
		if err := e.casStep(txCtx, op, d.step.ID, entity.StepStatusPending, entity.StepStatusApproved, decision); err != nil {
			return err
		}

		if entity.InstanceStatus(machine.State()) == entity.InstanceStatusPending {
			if err := e.casStep(txCtx, op, next.ID, entity.StepStatusWaiting, entity.StepStatusPending, nil); err != nil {
				return err
			}
			moved, err := e.instanceRepo.MoveCurrentStep(txCtx, d.instance.ID, d.step.StepOrder, next.StepOrder, now)
			if err != nil {
				return err
			}
			if !moved {
				return apperr.InvalidState(op, "approval was modified concurrently")
			}

			events = append(events, event.NewEvent(event.TypeApprovalStepAdvanced, string(docType), docID, caller.UserID,
				map[string]interface{}{
					"instance_id":   d.instance.ID,
					"decided_step":  d.step.StepOrder,
					"step_order":    next.StepOrder,
					"approver_role": string(next.ApproverRole),
					"requested_by":  d.instance.RequestedBy,
				}))
			instance, err = e.instanceRepo.GetByID(txCtx, d.instance.ID)
			return err
		}

		if err := e.closeInstance(txCtx, op, d.instance.ID, &d.step.StepOrder, entity.InstanceStatusApproved, nil, now); err != nil {
			return err
		}
		if err := d.mirror.Fire(txCtx, domainwf.TriggerApprove); err != nil {
			return apperr.New(apperr.CodeInvalidState, op, err.Error())
		}
		if err := d.adapter.SetApprovalStatus(txCtx, docID, entity.ApprovalStatus(d.mirror.State())); err != nil {
			return err
		}

		events = append(events, event.NewEvent(event.TypeApprovalApproved, string(docType), docID, caller.UserID,
			map[string]interface{}{
				"instance_id":  d.instance.ID,
				"decided_step": d.step.StepOrder,
				"requested_by": d.instance.RequestedBy,
			}))

		sideEffects, err := d.adapter.OnApproved(txCtx, d.doc, caller)
		if err != nil {
			return err
		}
		events = append(events, sideEffects...)
		instance, err = e.instanceRepo.GetByID(txCtx, d.instance.ID)
		return err
	})
	if err != nil {
		return nil, e.fail(span, op, docType, docID, err)
	}

	e.logger.Info("Approval step approved",
		"document_type", docType,
		"document_id", docID,
		"instance_id", instance.ID,
		"status", instance.Status,
		"approved_by", caller.UserID)
	e.publish(ctx, events)
	return instance, nil
}

// Reject decides the pending step and rejects the instance
func (e *engineImpl) Reject(ctx context.Context, docType entity.DocumentType, docID int64, caller entity.Caller, opts DecisionOptions) (*entity.ApprovalInstance, error) {
	const op = "reject"
	ctx, span := e.startSpan(ctx, op, docType, docID, caller)
	defer span.End()

	var (
		instance *entity.ApprovalInstance
		events   []*event.Event
	)
	err := e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		d, err := e.prepareDecision(txCtx, op, docType, docID, caller, opts)
		if err != nil {
			return err
		}

		machine, err := BuildInstanceStateMachine(d.instance.Status, nil)
		if err != nil {
			return apperr.New(apperr.CodeInvalidState, op, err.Error())
		}
		if err := machine.Fire(txCtx, domainwf.TriggerReject); err != nil {
			return apperr.New(apperr.CodeInvalidState, op, err.Error())
		}

		notes := opts.Notes
		if notes == "" {
			notes = opts.Reason
		}
		var reason *string
		if opts.Reason != "" {
			r := opts.Reason
			reason = &r
		}

		now := e.now()
		decision := &entity.StepDecision{DecidedBy: caller.UserID, DecidedAt: now, Notes: notes}
		if err := e.casStep(txCtx, op, d.step.ID, entity.StepStatusPending, entity.StepStatusRejected, decision); err != nil {
			return err
		}
		if err := e.closeInstance(txCtx, op, d.instance.ID, &d.step.StepOrder, entity.InstanceStatusRejected, reason, now); err != nil {
			return err
		}
		if err := e.instanceRepo.SkipUndecided(txCtx, d.instance.ID); err != nil {
			return err
		}

		if err := d.mirror.Fire(txCtx, domainwf.TriggerReject); err != nil {
			return apperr.New(apperr.CodeInvalidState, op, err.Error())
		}
		if err := d.adapter.SetApprovalStatus(txCtx, docID, entity.ApprovalStatus(d.mirror.State())); err != nil {
			return err
		}

		events = append(events, event.NewEvent(event.TypeApprovalRejected, string(docType), docID, caller.UserID,
			map[string]interface{}{
				"instance_id":  d.instance.ID,
				"decided_step": d.step.StepOrder,
				"reason":       opts.Reason,
				"requested_by": d.instance.RequestedBy,
			}))
		instance, err = e.instanceRepo.GetByID(txCtx, d.instance.ID)
		return err
	})
	if err != nil {
		return nil, e.fail(span, op, docType, docID, err)
	}

	e.logger.Info("Approval rejected",
		"document_type", docType,
		"document_id", docID,
		"instance_id", instance.ID,
		"rejected_by", caller.UserID)
	e.publish(ctx, events)
	return instance, nil
}

// CancelApproval aborts a pending request or returns a rejected document to draft.
// A rejected instance stays rejected as history; only the mirror moves back to 下書き.
func (e *engineImpl) CancelApproval(ctx context.Context, docType entity.DocumentType, docID int64, caller entity.Caller) error {
	const op = "cancel approval"
	ctx, span := e.startSpan(ctx, op, docType, docID, caller)
	defer span.End()

	var events []*event.Event
	err := e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		adapter, doc, err := e.loadDocument(txCtx, op, docType, docID)
		if err != nil {
			return err
		}

		if !caller.CanActFor(doc.CreatedBy) {
			return apperr.Unauthorized(op, "only the creator or back office may cancel approval")
		}

		latest, err := e.instanceRepo.GetLatest(txCtx, docType, docID)
		if err != nil {
			return err
		}
		if latest == nil {
			return apperr.InvalidState(op, "approval has not been requested")
		}

		switch latest.Status {
		case entity.InstanceStatusPending:
			machine, err := BuildInstanceStateMachine(latest.Status, nil)
			if err != nil {
				return apperr.New(apperr.CodeInvalidState, op, err.Error())
			}
			if err := machine.Fire(txCtx, domainwf.TriggerCancel); err != nil {
				return apperr.New(apperr.CodeInvalidState, op, err.Error())
			}
			if err := e.closeInstance(txCtx, op, latest.ID, nil, entity.InstanceStatusCancelled, nil, e.now()); err != nil {
				return err
			}
			if err := e.instanceRepo.SkipUndecided(txCtx, latest.ID); err != nil {
				return err
			}
		case entity.InstanceStatusRejected:
		default:
			return apperr.Newf(apperr.CodeInvalidState, op, "approval is already %s", latest.Status)
		}

		mirror, err := BuildMirrorStateMachine(doc.ApprovalStatus)
		if err != nil {
			return apperr.Newf(apperr.CodeInvalidState, op, "document has unknown approval status %q", doc.ApprovalStatus)
		}
		if err := mirror.Fire(txCtx, domainwf.TriggerCancel); err != nil {
			return apperr.Newf(apperr.CodeInvalidState, op, "approval cannot be cancelled while %s", doc.ApprovalStatus)
		}
		if err := adapter.SetApprovalStatus(txCtx, docID, entity.ApprovalStatus(mirror.State())); err != nil {
			return err
		}

		events = append(events, event.NewEvent(event.TypeApprovalCancelled, string(docType), docID, caller.UserID,
			map[string]interface{}{
				"instance_id":     latest.ID,
				"instance_status": string(latest.Status),
			}))
		return nil
	})
	if err != nil {
		return e.fail(span, op, docType, docID, err)
	}

	e.logger.Info("Approval cancelled",
		"document_type", docType,
		"document_id", docID,
		"cancelled_by", caller.UserID)
	e.publish(ctx, events)
	return nil
}

// GetActiveInstance returns the pending instance of a document, or nil
func (e *engineImpl) GetActiveInstance(ctx context.Context, docType entity.DocumentType, docID int64) (*entity.ApprovalInstance, error) {
	if _, err := e.adapter("get active instance", docType); err != nil {
		return nil, err
	}
	instance, err := e.instanceRepo.GetPending(ctx, docType, docID)
	if err != nil {
		e.logger.Error("Failed to load active instance", "document_type", docType, "document_id", docID, "error", err)
		return nil, apperr.Persistence("get active instance", err)
	}
	return instance, nil
}

// GetLatestInstance returns the most recently requested instance of a document, or nil
func (e *engineImpl) GetLatestInstance(ctx context.Context, docType entity.DocumentType, docID int64) (*entity.ApprovalInstance, error) {
	if _, err := e.adapter("get latest instance", docType); err != nil {
		return nil, err
	}
	instance, err := e.instanceRepo.GetLatest(ctx, docType, docID)
	if err != nil {
		e.logger.Error("Failed to load latest instance", "document_type", docType, "document_id", docID, "error", err)
		return nil, apperr.Persistence("get latest instance", err)
	}
	return instance, nil
}

// ListInstances returns the approval history of a document, oldest first
func (e *engineImpl) ListInstances(ctx context.Context, docType entity.DocumentType, docID int64) ([]*entity.ApprovalInstance, error) {
	if _, err := e.adapter("list instances", docType); err != nil {
		return nil, err
	}
	instances, err := e.instanceRepo.ListByDocument(ctx, docType, docID)
	if err != nil {
		e.logger.Error("Failed to list instances", "document_type", docType, "document_id", docID, "error", err)
		return nil, apperr.Persistence("list instances", err)
	}
	return instances, nil
}

// decisionContext is what Approve and Reject share after their preconditions hold
type decisionContext struct {
	adapter  DocumentAdapter
	doc      *Document
	instance *entity.ApprovalInstance
	step     *entity.ApprovalInstanceStep
	mirror   domainwf.StateMachine
}

// prepareDecision checks the preconditions common to Approve and Reject.
// The expected step is checked before the role so a caller acting on a step
// that was decided meanwhile sees invalid_state rather than unauthorized.
func (e *engineImpl) prepareDecision(ctx context.Context, op string, docType entity.DocumentType, docID int64, caller entity.Caller, opts DecisionOptions) (*decisionContext, error) {
	adapter, doc, err := e.loadDocument(ctx, op, docType, docID)
	if err != nil {
		return nil, err
	}

	instance, err := e.instanceRepo.GetPending(ctx, docType, docID)
	if err != nil {
		return nil, err
	}
	if instance == nil {
		latest, err := e.instanceRepo.GetLatest(ctx, docType, docID)
		if err != nil {
			return nil, err
		}
		if latest == nil {
			return nil, apperr.NotFound(op, "approval has not been requested")
		}
		return nil, apperr.Newf(apperr.CodeInvalidState, op, "approval is already %s", latest.Status)
	}

	step := instance.PendingStep()
	if step == nil || instance.CurrentStep == nil || step.StepOrder != *instance.CurrentStep {
		e.logger.Error("Pending instance without matching pending step",
			"instance_id", instance.ID,
			"current_step", instance.CurrentStep)
		return nil, apperr.InvalidState(op, "pending approval has no matching pending step")
	}

	if opts.ExpectedStep != nil && *opts.ExpectedStep != step.StepOrder {
		return nil, apperr.Newf(apperr.CodeInvalidState, op, "step %d is no longer pending", *opts.ExpectedStep)
	}

	if caller.Role != step.ApproverRole {
		return nil, apperr.Newf(apperr.CodeUnauthorized, op, "step %d must be decided by %s", step.StepOrder, step.ApproverRole)
	}

	mirror, err := BuildMirrorStateMachine(doc.ApprovalStatus)
	if err != nil || !mirror.CanFire(domainwf.TriggerApprove) {
		e.logger.Error("Approval mirror out of sync with pending instance",
			"document_type", docType,
			"document_id", docID,
			"approval_status", doc.ApprovalStatus)
		return nil, apperr.Newf(apperr.CodeInvalidState, op, "document approval status is %s", doc.ApprovalStatus)
	}

	return &decisionContext{
		adapter:  adapter,
		doc:      doc,
		instance: instance,
		step:     step,
		mirror:   mirror,
	}, nil
}

func (e *engineImpl) adapter(op string, docType entity.DocumentType) (DocumentAdapter, error) {
	adapter, ok := e.adapters[docType]
	if !ok {
		return nil, apperr.Newf(apperr.CodeValidation, op, "unknown document type %q", docType)
	}
	return adapter, nil
}

func (e *engineImpl) loadDocument(ctx context.Context, op string, docType entity.DocumentType, docID int64) (DocumentAdapter, *Document, error) {
	adapter, err := e.adapter(op, docType)
	if err != nil {
		return nil, nil, err
	}
	doc, err := adapter.Load(ctx, docID)
	if err != nil {
		return nil, nil, err
	}
	if doc == nil {
		return nil, nil, apperr.Newf(apperr.CodeNotFound, op, "%s %d not found", docType, docID)
	}
	return adapter, doc, nil
}

// casStep moves a step only if it still holds `from`; losing the race is invalid_state
func (e *engineImpl) casStep(ctx context.Context, op string, stepID int64, from, to entity.StepStatus, decision *entity.StepDecision) error {
	ok, err := e.instanceRepo.TransitionStep(ctx, stepID, from, to, decision)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.InvalidState(op, "step was decided concurrently")
	}
	return nil
}

func (e *engineImpl) closeInstance(ctx context.Context, op string, instanceID int64, expectedStep *int, status entity.InstanceStatus, reason *string, at time.Time) error {
	ok, err := e.instanceRepo.Close(ctx, instanceID, expectedStep, status, reason, at)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.InvalidState(op, "approval was modified concurrently")
	}
	return nil
}

// publish hands the events of a committed transition to the dispatcher
func (e *engineImpl) publish(ctx context.Context, events []*event.Event) {
	if e.dispatcher == nil || len(events) == 0 {
		return
	}
	e.dispatcher.PublishCommitted(ctx, events)
}

func (e *engineImpl) startSpan(ctx context.Context, op string, docType entity.DocumentType, docID int64, caller entity.Caller) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, "approval."+op, trace.WithAttributes(
		attribute.String("document.type", string(docType)),
		attribute.Int64("document.id", docID),
		attribute.Int64("caller.id", caller.UserID),
		attribute.String("caller.role", string(caller.Role)),
	))
}

// fail normalises err into the taxonomy. Only persistence failures are logged at error level.
func (e *engineImpl) fail(span trace.Span, op string, docType entity.DocumentType, docID int64, err error) error {
	err = apperr.Persistence(op, err)
	code := apperr.CodeOf(err)

	span.SetAttributes(attribute.String("error.code", string(code)))
	if code == apperr.CodePersistence {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.logger.Error("Approval operation failed",
			"op", op,
			"document_type", docType,
			"document_id", docID,
			"error", err)
	}
	return err
}
