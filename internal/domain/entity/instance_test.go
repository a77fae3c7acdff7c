package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func twoStepRoute() *ApprovalRoute {
	return &ApprovalRoute{
		ID:           5,
		Name:         "standard quote",
		DocumentType: DocumentTypeQuote,
		Steps: []ApprovalRouteStep{
			{StepOrder: 2, ApproverRole: RoleDirector},
			{StepOrder: 1, ApproverRole: RoleManager},
		},
	}
}

func TestNewInstanceFromRoute(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	inst := NewInstanceFromRoute(twoStepRoute(), DocumentTypeQuote, 11, 3, now)

	assert.Equal(t, InstanceStatusPending, inst.Status)
	assert.Equal(t, int64(5), inst.RouteID)
	assert.Equal(t, int64(11), inst.DocumentID)
	assert.Equal(t, int64(3), inst.RequestedBy)
	assert.Equal(t, now, inst.RequestedAt)
	require.NotNil(t, inst.CurrentStep)
	assert.Equal(t, 1, *inst.CurrentStep)

	require.Len(t, inst.Steps, 2)
	assert.Equal(t, 1, inst.Steps[0].StepOrder)
	assert.Equal(t, RoleManager, inst.Steps[0].ApproverRole)
	assert.Equal(t, StepStatusPending, inst.Steps[0].Status)
	assert.Equal(t, 2, inst.Steps[1].StepOrder)
	assert.Equal(t, StepStatusWaiting, inst.Steps[1].Status)
}

func TestApprovalInstance_PendingAndNextStep(t *testing.T) {
	inst := NewInstanceFromRoute(twoStepRoute(), DocumentTypeQuote, 1, 1, time.Now())

	pending := inst.PendingStep()
	require.NotNil(t, pending)
	assert.Equal(t, 1, pending.StepOrder)

	next := inst.NextStep(pending.StepOrder)
	require.NotNil(t, next)
	assert.Equal(t, 2, next.StepOrder)

	assert.Nil(t, inst.NextStep(2))

	inst.Steps[0].Status = StepStatusApproved
	inst.Steps[1].Status = StepStatusApproved
	assert.Nil(t, inst.PendingStep())
}

func TestApprovalRoute_Validate(t *testing.T) {
	tests := []struct {
		name    string
		route   ApprovalRoute
		wantErr string
	}{
		{
			name:  "valid",
			route: *twoStepRoute(),
		},
		{
			name:    "missing name",
			route:   ApprovalRoute{DocumentType: DocumentTypeQuote, Steps: []ApprovalRouteStep{{StepOrder: 1, ApproverRole: RoleManager}}},
			wantErr: "name is required",
		},
		{
			name:    "unknown document type",
			route:   ApprovalRoute{Name: "x", DocumentType: "invoice", Steps: []ApprovalRouteStep{{StepOrder: 1, ApproverRole: RoleManager}}},
			wantErr: "unknown document type",
		},
		{
			name:    "no steps",
			route:   ApprovalRoute{Name: "x", DocumentType: DocumentTypePurchaseOrder},
			wantErr: "has no steps",
		},
		{
			name: "gap in step orders",
			route: ApprovalRoute{Name: "x", DocumentType: DocumentTypeQuote, Steps: []ApprovalRouteStep{
				{StepOrder: 1, ApproverRole: RoleManager},
				{StepOrder: 3, ApproverRole: RoleDirector},
			}},
			wantErr: "contiguous",
		},
		{
			name: "duplicate step order",
			route: ApprovalRoute{Name: "x", DocumentType: DocumentTypeQuote, Steps: []ApprovalRouteStep{
				{StepOrder: 1, ApproverRole: RoleManager},
				{StepOrder: 1, ApproverRole: RoleDirector},
			}},
			wantErr: "contiguous",
		},
		{
			name: "unknown role",
			route: ApprovalRoute{Name: "x", DocumentType: DocumentTypeQuote, Steps: []ApprovalRouteStep{
				{StepOrder: 1, ApproverRole: "ceo"},
			}},
			wantErr: "unknown approver role",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.route.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestMirrorOf(t *testing.T) {
	assert.Equal(t, ApprovalStatusPending, MirrorOf(InstanceStatusPending))
	assert.Equal(t, ApprovalStatusApproved, MirrorOf(InstanceStatusApproved))
	assert.Equal(t, ApprovalStatusRejected, MirrorOf(InstanceStatusRejected))
	assert.Equal(t, ApprovalStatusDraft, MirrorOf(InstanceStatusCancelled))
}

func TestCaller_CanActFor(t *testing.T) {
	assert.True(t, Caller{UserID: 4, Role: RoleSales}.CanActFor(4))
	assert.False(t, Caller{UserID: 5, Role: RoleManager}.CanActFor(4))
	assert.True(t, Caller{UserID: 5, Role: RoleBackOffice}.CanActFor(4))
	assert.True(t, Caller{UserID: 5, Role: RoleAdmin}.CanActFor(4))
}

func TestMirrorConsistent(t *testing.T) {
	rejected := &ApprovalInstance{Status: InstanceStatusRejected}
	pending := &ApprovalInstance{Status: InstanceStatusPending}

	assert.True(t, MirrorConsistent(ApprovalStatusDraft, nil))
	assert.False(t, MirrorConsistent(ApprovalStatusPending, nil))
	assert.True(t, MirrorConsistent(ApprovalStatusPending, pending))
	assert.False(t, MirrorConsistent(ApprovalStatusApproved, pending))
	assert.True(t, MirrorConsistent(ApprovalStatusRejected, rejected))
	assert.True(t, MirrorConsistent(ApprovalStatusDraft, rejected))
}
