package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/procureflow/internal/application/dispatcher"
	"github.com/garyjia/procureflow/internal/domain/apperr"
	"github.com/garyjia/procureflow/internal/domain/entity"
	"github.com/garyjia/procureflow/internal/domain/event"
	domainwf "github.com/garyjia/procureflow/internal/domain/workflow"
)

// mockInstanceRepo keeps a single instance in memory
type mockInstanceRepo struct {
	instance  *entity.ApprovalInstance
	getErr    error
	reloadErr error
	casResult bool
	created   int
}

func (m *mockInstanceRepo) Create(ctx context.Context, instance *entity.ApprovalInstance) error {
	m.created++
	instance.ID = int64(m.created)
	m.instance = instance
	return nil
}

func (m *mockInstanceRepo) GetByID(ctx context.Context, id int64) (*entity.ApprovalInstance, error) {
	if m.reloadErr != nil {
		return nil, m.reloadErr
	}
	return m.instance, m.getErr
}

func (m *mockInstanceRepo) GetPending(ctx context.Context, docType entity.DocumentType, docID int64) (*entity.ApprovalInstance, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	if m.instance != nil && m.instance.Status == entity.InstanceStatusPending {
		return m.instance, nil
	}
	return nil, nil
}

func (m *mockInstanceRepo) GetLatest(ctx context.Context, docType entity.DocumentType, docID int64) (*entity.ApprovalInstance, error) {
	return m.instance, m.getErr
}

func (m *mockInstanceRepo) ListByDocument(ctx context.Context, docType entity.DocumentType, docID int64) ([]*entity.ApprovalInstance, error) {
	if m.instance == nil {
		return nil, m.getErr
	}
	return []*entity.ApprovalInstance{m.instance}, m.getErr
}

func (m *mockInstanceRepo) TransitionStep(ctx context.Context, stepID int64, from, to entity.StepStatus, decision *entity.StepDecision) (bool, error) {
	return m.casResult, nil
}

func (m *mockInstanceRepo) MoveCurrentStep(ctx context.Context, instanceID int64, from, to int, at time.Time) (bool, error) {
	return m.casResult, nil
}

func (m *mockInstanceRepo) Close(ctx context.Context, instanceID int64, expectedStep *int, status entity.InstanceStatus, reason *string, at time.Time) (bool, error) {
	return m.casResult, nil
}

func (m *mockInstanceRepo) SkipUndecided(ctx context.Context, instanceID int64) error {
	return nil
}

type mockResolver struct {
	route *entity.ApprovalRoute
	err   error
}

func (m *mockResolver) ResolveRoute(ctx context.Context, docType entity.DocumentType, routeID *int64) (*entity.ApprovalRoute, error) {
	return m.route, m.err
}

// mockTxManager runs fn inline and remembers whether it would have rolled back
type mockTxManager struct {
	rolledBack bool
}

func (m *mockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	err := fn(ctx)
	m.rolledBack = err != nil
	return err
}

// mockAdapter serves one quote-like document
type mockAdapter struct {
	doc         *Document
	statuses    []entity.ApprovalStatus
	approvedErr error
	approvedEvt []*event.Event
}

func (m *mockAdapter) Type() entity.DocumentType { return entity.DocumentTypeQuote }

func (m *mockAdapter) Load(ctx context.Context, id int64) (*Document, error) {
	if m.doc == nil || m.doc.ID != id {
		return nil, nil
	}
	cp := *m.doc
	return &cp, nil
}

func (m *mockAdapter) SetApprovalStatus(ctx context.Context, id int64, status entity.ApprovalStatus) error {
	m.statuses = append(m.statuses, status)
	m.doc.ApprovalStatus = status
	return nil
}

func (m *mockAdapter) OnApproved(ctx context.Context, doc *Document, caller entity.Caller) ([]*event.Event, error) {
	return m.approvedEvt, m.approvedErr
}

type mockLogger struct {
	mu     sync.Mutex
	errors []string
}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{}) {}

func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, msg)
}

type mockDispatcher struct {
	dispatcher.Dispatcher
	events []*event.Event
}

func (m *mockDispatcher) PublishCommitted(ctx context.Context, events []*event.Event) {
	m.events = append(m.events, events...)
}

type engineFixture struct {
	engine     ApprovalEngine
	repo       *mockInstanceRepo
	adapter    *mockAdapter
	logger     *mockLogger
	dispatcher *mockDispatcher
	tx         *mockTxManager
}

func newEngineFixture(status entity.ApprovalStatus) *engineFixture {
	f := &engineFixture{
		repo: &mockInstanceRepo{casResult: true},
		adapter: &mockAdapter{doc: &Document{
			Type:           entity.DocumentTypeQuote,
			ID:             10,
			CreatedBy:      1,
			ApprovalStatus: status,
		}},
		logger:     &mockLogger{},
		dispatcher: &mockDispatcher{},
		tx:         &mockTxManager{},
	}
	resolver := &mockResolver{route: &entity.ApprovalRoute{
		ID:           3,
		DocumentType: entity.DocumentTypeQuote,
		Steps:        []entity.ApprovalRouteStep{{StepOrder: 1, ApproverRole: entity.RoleManager}},
	}}
	f.engine = NewEngine(f.repo, resolver, f.tx, []DocumentAdapter{f.adapter}, f.logger,
		WithDispatcher(f.dispatcher))
	return f
}

func pendingInstance() *entity.ApprovalInstance {
	step := 1
	return &entity.ApprovalInstance{
		ID:           7,
		DocumentType: entity.DocumentTypeQuote,
		DocumentID:   10,
		Status:       entity.InstanceStatusPending,
		CurrentStep:  &step,
		Steps: []entity.ApprovalInstanceStep{
			{ID: 70, StepOrder: 1, ApproverRole: entity.RoleManager, Status: entity.StepStatusPending},
		},
	}
}

var manager = entity.Caller{UserID: 2, Role: entity.RoleManager}

func TestEngine_PersistenceErrorsAreLogged(t *testing.T) {
	f := newEngineFixture(entity.ApprovalStatusPending)
	f.repo.getErr = errors.New("disk I/O error")

	_, err := f.engine.Approve(context.Background(), entity.DocumentTypeQuote, 10, manager, DecisionOptions{})
	require.Error(t, err)
	assert.Equal(t, apperr.CodePersistence, apperr.CodeOf(err))
	assert.Len(t, f.logger.errors, 1)
	assert.Empty(t, f.dispatcher.events)
}

func TestEngine_BusinessErrorsAreNotLogged(t *testing.T) {
	f := newEngineFixture(entity.ApprovalStatusPending)
	f.repo.instance = pendingInstance()

	_, err := f.engine.Approve(context.Background(), entity.DocumentTypeQuote, 10, entity.Caller{UserID: 3, Role: entity.RoleDirector}, DecisionOptions{})
	assert.True(t, apperr.IsCode(err, apperr.CodeUnauthorized))
	assert.Empty(t, f.logger.errors)
}

func TestEngine_PendingInstanceWithoutMatchingStep(t *testing.T) {
	f := newEngineFixture(entity.ApprovalStatusPending)
	inst := pendingInstance()
	two := 2
	inst.CurrentStep = &two
	f.repo.instance = inst

	_, err := f.engine.Approve(context.Background(), entity.DocumentTypeQuote, 10, manager, DecisionOptions{})
	assert.True(t, apperr.IsCode(err, apperr.CodeInvalidState))
}

func TestEngine_MirrorOutOfSync(t *testing.T) {
	f := newEngineFixture(entity.ApprovalStatusDraft)
	f.repo.instance = pendingInstance()

	_, err := f.engine.Reject(context.Background(), entity.DocumentTypeQuote, 10, manager, DecisionOptions{})
	assert.True(t, apperr.IsCode(err, apperr.CodeInvalidState))
	assert.Empty(t, f.adapter.statuses)
}

func TestEngine_LostCASIsInvalidState(t *testing.T) {
	f := newEngineFixture(entity.ApprovalStatusPending)
	f.repo.instance = pendingInstance()
	f.repo.casResult = false

	_, err := f.engine.Approve(context.Background(), entity.DocumentTypeQuote, 10, manager, DecisionOptions{})
	assert.True(t, apperr.IsCode(err, apperr.CodeInvalidState))
	assert.Empty(t, f.adapter.statuses)
	assert.Empty(t, f.dispatcher.events)
}

func TestEngine_OnApprovedFailureAbortsApproval(t *testing.T) {
	f := newEngineFixture(entity.ApprovalStatusPending)
	f.repo.instance = pendingInstance()
	f.adapter.approvedErr = apperr.InvalidState("place approved order", "order cannot be placed")

	_, err := f.engine.Approve(context.Background(), entity.DocumentTypeQuote, 10, manager, DecisionOptions{})
	assert.True(t, apperr.IsCode(err, apperr.CodeInvalidState))
	assert.Empty(t, f.dispatcher.events)
}

func TestEngine_ReloadFailureRollsBackWithoutEvents(t *testing.T) {
	for _, tt := range []struct {
		name   string
		decide func(ApprovalEngine) error
	}{
		{"approve", func(e ApprovalEngine) error {
			_, err := e.Approve(context.Background(), entity.DocumentTypeQuote, 10, manager, DecisionOptions{})
			return err
		}},
		{"reject", func(e ApprovalEngine) error {
			_, err := e.Reject(context.Background(), entity.DocumentTypeQuote, 10, manager, DecisionOptions{Reason: "price"})
			return err
		}},
	} {
		t.Run(tt.name, func(t *testing.T) {
			f := newEngineFixture(entity.ApprovalStatusPending)
			f.repo.instance = pendingInstance()
			f.repo.reloadErr = errors.New("database is locked")

			err := tt.decide(f.engine)
			require.Error(t, err)
			assert.Equal(t, apperr.CodePersistence, apperr.CodeOf(err))
			assert.True(t, f.tx.rolledBack, "the decision is not committed when its result cannot be read")
			assert.Empty(t, f.dispatcher.events)
		})
	}
}

func TestEngine_OnApprovedEventsArePublished(t *testing.T) {
	f := newEngineFixture(entity.ApprovalStatusPending)
	f.repo.instance = pendingInstance()
	extra := event.NewEvent(event.TypeProcurementOrdered, string(entity.DocumentTypePurchaseOrder), 10, 2, nil)
	f.adapter.approvedEvt = []*event.Event{extra}

	_, err := f.engine.Approve(context.Background(), entity.DocumentTypeQuote, 10, manager, DecisionOptions{Notes: "ok"})
	require.NoError(t, err)

	assert.Equal(t, []entity.ApprovalStatus{entity.ApprovalStatusApproved}, f.adapter.statuses)
	require.Len(t, f.dispatcher.events, 2)
	assert.Equal(t, event.TypeApprovalApproved, f.dispatcher.events[0].Type)
	assert.Equal(t, int64(7), f.dispatcher.events[0].GetPayloadInt("instance_id"))
	assert.Same(t, extra, f.dispatcher.events[1])
}

func TestEngine_RequestApprovalPayload(t *testing.T) {
	f := newEngineFixture(entity.ApprovalStatusDraft)

	inst, err := f.engine.RequestApproval(context.Background(), entity.DocumentTypeQuote, 10, entity.Caller{UserID: 1, Role: entity.RoleSales})
	require.NoError(t, err)
	assert.Equal(t, int64(1), inst.ID)
	assert.Equal(t, []entity.ApprovalStatus{entity.ApprovalStatusPending}, f.adapter.statuses)

	require.Len(t, f.dispatcher.events, 1)
	evt := f.dispatcher.events[0]
	assert.Equal(t, event.TypeApprovalRequested, evt.Type)
	assert.Equal(t, "quote", evt.DocumentType)
	assert.Equal(t, int64(10), evt.DocumentID)
	assert.Equal(t, "manager", evt.GetPayloadString("approver_role"))
	assert.Equal(t, int64(1), evt.GetPayloadInt("total_steps"))
}

func TestEngine_ReadHelpersRejectUnknownType(t *testing.T) {
	f := newEngineFixture(entity.ApprovalStatusDraft)
	ctx := context.Background()

	_, err := f.engine.GetActiveInstance(ctx, "invoice", 1)
	assert.True(t, apperr.IsCode(err, apperr.CodeValidation))
	_, err = f.engine.GetLatestInstance(ctx, "invoice", 1)
	assert.True(t, apperr.IsCode(err, apperr.CodeValidation))
	_, err = f.engine.ListInstances(ctx, "invoice", 1)
	assert.True(t, apperr.IsCode(err, apperr.CodeValidation))
}

func TestBuildInstanceStateMachine(t *testing.T) {
	tests := []struct {
		name    string
		hasNext bool
		trigger domainwf.Trigger
		want    entity.InstanceStatus
	}{
		{"approve with more steps", true, domainwf.TriggerApprove, entity.InstanceStatusPending},
		{"approve last step", false, domainwf.TriggerApprove, entity.InstanceStatusApproved},
		{"reject", true, domainwf.TriggerReject, entity.InstanceStatusRejected},
		{"cancel", true, domainwf.TriggerCancel, entity.InstanceStatusCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hasNext := tt.hasNext
			machine, err := BuildInstanceStateMachine(entity.InstanceStatusPending, func() bool { return hasNext })
			require.NoError(t, err)
			require.NoError(t, machine.Fire(context.Background(), tt.trigger))
			assert.Equal(t, domainwf.State(tt.want), machine.State())
		})
	}

	for _, terminal := range []entity.InstanceStatus{entity.InstanceStatusApproved, entity.InstanceStatusRejected, entity.InstanceStatusCancelled} {
		machine, err := BuildInstanceStateMachine(terminal, nil)
		require.NoError(t, err)
		assert.Empty(t, machine.PermittedTriggers(), "%s is terminal", terminal)
	}
}

func TestBuildMirrorStateMachine(t *testing.T) {
	tests := []struct {
		from    entity.ApprovalStatus
		trigger domainwf.Trigger
		want    entity.ApprovalStatus
		ok      bool
	}{
		{entity.ApprovalStatusDraft, domainwf.TriggerRequest, entity.ApprovalStatusPending, true},
		{entity.ApprovalStatusDraft, domainwf.TriggerApprove, "", false},
		{entity.ApprovalStatusPending, domainwf.TriggerApprove, entity.ApprovalStatusApproved, true},
		{entity.ApprovalStatusPending, domainwf.TriggerReject, entity.ApprovalStatusRejected, true},
		{entity.ApprovalStatusPending, domainwf.TriggerCancel, entity.ApprovalStatusDraft, true},
		{entity.ApprovalStatusPending, domainwf.TriggerRequest, "", false},
		{entity.ApprovalStatusRejected, domainwf.TriggerRequest, entity.ApprovalStatusPending, true},
		{entity.ApprovalStatusRejected, domainwf.TriggerCancel, entity.ApprovalStatusDraft, true},
		{entity.ApprovalStatusApproved, domainwf.TriggerCancel, "", false},
		{entity.ApprovalStatusApproved, domainwf.TriggerRequest, "", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+" "+tt.trigger.String(), func(t *testing.T) {
			machine, err := BuildMirrorStateMachine(tt.from)
			require.NoError(t, err)

			err = machine.Fire(context.Background(), tt.trigger)
			if !tt.ok {
				assert.ErrorIs(t, err, domainwf.ErrInvalidTransition)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, domainwf.State(tt.want), machine.State())
		})
	}

	_, err := BuildMirrorStateMachine("unknown")
	assert.ErrorIs(t, err, domainwf.ErrInvalidState)
}
