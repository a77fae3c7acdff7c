package procurement

import (
	"context"
	"fmt"

	"github.com/garyjia/procureflow/internal/domain/entity"
	domainwf "github.com/garyjia/procureflow/internal/domain/workflow"
)

var (
	orderDraft     = domainwf.State(entity.OrderStatusDraft)
	orderOrdered   = domainwf.State(entity.OrderStatusOrdered)
	orderCancelled = domainwf.State(entity.OrderStatusCancelled)
)

// BuildOrderStateMachine creates the lifecycle machine of a purchase order.
// isApproved gates the first move into 発注済. Saving an order in its current status is allowed.
func BuildOrderStateMachine(status entity.OrderStatus, isApproved func() bool) (domainwf.StateMachine, error) {
	builder := domainwf.NewBuilder(orderDraft, orderOrdered, orderCancelled)

	builder.Configure(orderDraft).
		PermitIf(domainwf.TriggerPlaceOrder, orderOrdered, func(ctx context.Context) bool {
			return isApproved != nil && isApproved()
		}).
		Permit(domainwf.TriggerReturnToDraft, orderDraft).
		Permit(domainwf.TriggerCancelOrder, orderCancelled)

	builder.Configure(orderOrdered).
		Permit(domainwf.TriggerPlaceOrder, orderOrdered).
		Permit(domainwf.TriggerReturnToDraft, orderDraft).
		Permit(domainwf.TriggerCancelOrder, orderCancelled)

	builder.Configure(orderCancelled).
		Permit(domainwf.TriggerReturnToDraft, orderDraft).
		Permit(domainwf.TriggerCancelOrder, orderCancelled)

	return builder.Build(domainwf.State(status))
}

// triggerFor maps a target order status to the trigger that reaches it
func triggerFor(status entity.OrderStatus) (domainwf.Trigger, error) {
	switch status {
	case entity.OrderStatusOrdered:
		return domainwf.TriggerPlaceOrder, nil
	case entity.OrderStatusDraft:
		return domainwf.TriggerReturnToDraft, nil
	case entity.OrderStatusCancelled:
		return domainwf.TriggerCancelOrder, nil
	default:
		return "", fmt.Errorf("unknown order status %q", status)
	}
}
