package event

// Type identifies the type of domain event
type Type string

const (
	TypeApprovalRequested    Type = "approval.requested"
	TypeApprovalStepAdvanced Type = "approval.step_advanced"
	TypeApprovalApproved     Type = "approval.approved"
	TypeApprovalRejected     Type = "approval.rejected"
	TypeApprovalCancelled    Type = "approval.cancelled"
	TypeProcurementOrdered   Type = "procurement.ordered"
	TypeProcurementReverted  Type = "procurement.reverted"
	TypeProcurementReceived  Type = "procurement.received"
)

// AllTypes lists every defined event type
var AllTypes = []Type{
	TypeApprovalRequested,
	TypeApprovalStepAdvanced,
	TypeApprovalApproved,
	TypeApprovalRejected,
	TypeApprovalCancelled,
	TypeProcurementOrdered,
	TypeProcurementReverted,
	TypeProcurementReceived,
}

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	for _, known := range AllTypes {
		if t == known {
			return true
		}
	}
	return false
}
