package workflow

import (
	"context"

	"github.com/garyjia/procureflow/internal/domain/entity"
	domainwf "github.com/garyjia/procureflow/internal/domain/workflow"
)

var (
	instancePending   = domainwf.State(entity.InstanceStatusPending)
	instanceApproved  = domainwf.State(entity.InstanceStatusApproved)
	instanceRejected  = domainwf.State(entity.InstanceStatusRejected)
	instanceCancelled = domainwf.State(entity.InstanceStatusCancelled)

	mirrorDraft    = domainwf.State(entity.ApprovalStatusDraft)
	mirrorPending  = domainwf.State(entity.ApprovalStatusPending)
	mirrorApproved = domainwf.State(entity.ApprovalStatusApproved)
	mirrorRejected = domainwf.State(entity.ApprovalStatusRejected)
)

// BuildInstanceStateMachine creates the machine of one approval instance.
// hasNextStep decides whether an approval keeps the instance pending or approves it.
func BuildInstanceStateMachine(status entity.InstanceStatus, hasNextStep func() bool) (domainwf.StateMachine, error) {
	builder := domainwf.NewBuilder(instancePending, instanceApproved, instanceRejected, instanceCancelled)

	builder.Configure(instancePending).
		PermitIf(domainwf.TriggerApprove, instancePending, func(ctx context.Context) bool {
			return hasNextStep != nil && hasNextStep()
		}).
		Permit(domainwf.TriggerApprove, instanceApproved).
		Permit(domainwf.TriggerReject, instanceRejected).
		Permit(domainwf.TriggerCancel, instanceCancelled)

	// APPROVED, REJECTED and CANCELLED are terminal

	return builder.Build(domainwf.State(status))
}

// BuildMirrorStateMachine creates the machine of a document's approval_status mirror
func BuildMirrorStateMachine(status entity.ApprovalStatus) (domainwf.StateMachine, error) {
	builder := domainwf.NewBuilder(mirrorDraft, mirrorPending, mirrorApproved, mirrorRejected)

	builder.Configure(mirrorDraft).
		Permit(domainwf.TriggerRequest, mirrorPending)

	builder.Configure(mirrorPending).
		Permit(domainwf.TriggerApprove, mirrorApproved).
		Permit(domainwf.TriggerReject, mirrorRejected).
		Permit(domainwf.TriggerCancel, mirrorDraft)

	builder.Configure(mirrorRejected).
		Permit(domainwf.TriggerRequest, mirrorPending).
		Permit(domainwf.TriggerCancel, mirrorDraft)

	// 承認済み is final

	return builder.Build(domainwf.State(status))
}
