package entity

// DocumentType identifies which kind of document carries an approval workflow
type DocumentType string

const (
	DocumentTypeQuote         DocumentType = "quote"
	DocumentTypePurchaseOrder DocumentType = "purchase_order"
)

// IsValid returns true if the document type is known
func (t DocumentType) IsValid() bool {
	switch t {
	case DocumentTypeQuote, DocumentTypePurchaseOrder:
		return true
	default:
		return false
	}
}

// Role is the approver role held by a user
type Role string

const (
	RoleSales      Role = "sales"
	RoleManager    Role = "manager"
	RoleDirector   Role = "director"
	RoleBackOffice Role = "back_office"
	RoleAdmin      Role = "admin"
)

// IsValid returns true if the role is one of the fixed roles
func (r Role) IsValid() bool {
	switch r {
	case RoleSales, RoleManager, RoleDirector, RoleBackOffice, RoleAdmin:
		return true
	default:
		return false
	}
}

// IsElevated reports whether the role may act on behalf of a document's creator
func (r Role) IsElevated() bool {
	return r == RoleBackOffice || r == RoleAdmin
}

// InstanceStatus is the overall status of an approval instance
type InstanceStatus string

const (
	InstanceStatusPending   InstanceStatus = "pending"
	InstanceStatusApproved  InstanceStatus = "approved"
	InstanceStatusRejected  InstanceStatus = "rejected"
	InstanceStatusCancelled InstanceStatus = "cancelled"
)

// IsValid returns true if the instance status is known
func (s InstanceStatus) IsValid() bool {
	switch s {
	case InstanceStatusPending, InstanceStatusApproved, InstanceStatusRejected, InstanceStatusCancelled:
		return true
	default:
		return false
	}
}

// StepStatus is the decision state of one instance step.
// Steps not yet reached are waiting; undecided steps of a closed instance are skipped.
type StepStatus string

const (
	StepStatusWaiting  StepStatus = "waiting"
	StepStatusPending  StepStatus = "pending"
	StepStatusApproved StepStatus = "approved"
	StepStatusRejected StepStatus = "rejected"
	StepStatusSkipped  StepStatus = "skipped"
)

// IsValid returns true if the step status is known
func (s StepStatus) IsValid() bool {
	switch s {
	case StepStatusWaiting, StepStatusPending, StepStatusApproved, StepStatusRejected, StepStatusSkipped:
		return true
	default:
		return false
	}
}

// ApprovalStatus is the denormalized approval mirror stored on quotes and purchase orders
type ApprovalStatus string

const (
	ApprovalStatusDraft    ApprovalStatus = "下書き"
	ApprovalStatusPending  ApprovalStatus = "承認待ち"
	ApprovalStatusApproved ApprovalStatus = "承認済み"
	ApprovalStatusRejected ApprovalStatus = "却下"
)

// IsValid returns true if the approval status is known
func (s ApprovalStatus) IsValid() bool {
	switch s {
	case ApprovalStatusDraft, ApprovalStatusPending, ApprovalStatusApproved, ApprovalStatusRejected:
		return true
	default:
		return false
	}
}

// MirrorOf returns the document approval status that corresponds to an instance status
func MirrorOf(s InstanceStatus) ApprovalStatus {
	switch s {
	case InstanceStatusPending:
		return ApprovalStatusPending
	case InstanceStatusApproved:
		return ApprovalStatusApproved
	case InstanceStatusRejected:
		return ApprovalStatusRejected
	default:
		return ApprovalStatusDraft
	}
}

// OrderStatus is the lifecycle status of a purchase order
type OrderStatus string

const (
	OrderStatusDraft     OrderStatus = "下書き"
	OrderStatusOrdered   OrderStatus = "発注済"
	OrderStatusCancelled OrderStatus = "キャンセル"
)

// IsValid returns true if the order status is known
func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusDraft, OrderStatusOrdered, OrderStatusCancelled:
		return true
	default:
		return false
	}
}

// ProcurementStatus is the fulfillment state of a quote line item
type ProcurementStatus string

const (
	ProcurementStatusUnordered ProcurementStatus = "未発注"
	ProcurementStatusOrdered   ProcurementStatus = "発注済"
	ProcurementStatusReceived  ProcurementStatus = "入荷済"
)

// IsValid returns true if the procurement status is known
func (s ProcurementStatus) IsValid() bool {
	switch s {
	case ProcurementStatusUnordered, ProcurementStatusOrdered, ProcurementStatusReceived:
		return true
	default:
		return false
	}
}

// ProcurementAction is the action recorded by a procurement log row
type ProcurementAction string

const (
	ProcurementActionOrdered  ProcurementAction = "発注"
	ProcurementActionReceived ProcurementAction = "入荷"
)
