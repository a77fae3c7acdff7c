package workflow

// Trigger represents an event that can cause a state transition
type Trigger string

const (
	// Approval lifecycle
	TriggerRequest Trigger = "REQUEST"
	TriggerApprove Trigger = "APPROVE"
	TriggerReject  Trigger = "REJECT"
	TriggerCancel  Trigger = "CANCEL"

	// Purchase order lifecycle
	TriggerPlaceOrder    Trigger = "PLACE_ORDER"
	TriggerReturnToDraft Trigger = "RETURN_TO_DRAFT"
	TriggerCancelOrder   Trigger = "CANCEL_ORDER"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
