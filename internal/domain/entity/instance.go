package entity

import "time"

// ApprovalInstance is the live approval process attached to one document.
// Steps are copied from the route at request time so later route changes do not rewrite history.
type ApprovalInstance struct {
	ID              int64                  `json:"id" db:"id"`
	DocumentType    DocumentType           `json:"document_type" db:"document_type"`
	DocumentID      int64                  `json:"document_id" db:"document_id"`
	RouteID         int64                  `json:"route_id" db:"route_id"`
	Status          InstanceStatus         `json:"status" db:"status"`
	CurrentStep     *int                   `json:"current_step" db:"current_step"`
	RequestedBy     int64                  `json:"requested_by" db:"requested_by"`
	RequestedAt     time.Time              `json:"requested_at" db:"requested_at"`
	RejectionReason *string                `json:"rejection_reason,omitempty" db:"rejection_reason"`
	UpdatedAt       time.Time              `json:"updated_at" db:"updated_at"`
	Steps           []ApprovalInstanceStep `json:"steps" db:"-"`
}

// ApprovalInstanceStep is the per-step decision record of an instance
type ApprovalInstanceStep struct {
	ID           int64      `json:"id" db:"id"`
	InstanceID   int64      `json:"instance_id" db:"instance_id"`
	StepOrder    int        `json:"step_order" db:"step_order"`
	ApproverRole Role       `json:"approver_role" db:"approver_role"`
	Status       StepStatus `json:"status" db:"status"`
	DecidedBy    *int64     `json:"decided_by,omitempty" db:"decided_by"`
	DecidedAt    *time.Time `json:"decided_at,omitempty" db:"decided_at"`
	Notes        string     `json:"notes" db:"notes"`
}

// StepDecision carries who decided a step and when
type StepDecision struct {
	DecidedBy int64
	DecidedAt time.Time
	Notes     string
}

// NewInstanceFromRoute copies a route into a new pending instance.
// The lowest step becomes pending, the rest wait until the pointer reaches them.
func NewInstanceFromRoute(route *ApprovalRoute, docType DocumentType, docID, requestedBy int64, now time.Time) *ApprovalInstance {
	route.SortSteps()

	inst := &ApprovalInstance{
		DocumentType: docType,
		DocumentID:   docID,
		RouteID:      route.ID,
		Status:       InstanceStatusPending,
		RequestedBy:  requestedBy,
		RequestedAt:  now,
		UpdatedAt:    now,
		Steps:        make([]ApprovalInstanceStep, 0, len(route.Steps)),
	}

	for i, s := range route.Steps {
		status := StepStatusWaiting
		if i == 0 {
			status = StepStatusPending
			first := s.StepOrder
			inst.CurrentStep = &first
		}
		inst.Steps = append(inst.Steps, ApprovalInstanceStep{
			StepOrder:    s.StepOrder,
			ApproverRole: s.ApproverRole,
			Status:       status,
		})
	}

	return inst
}

// PendingStep returns the single step awaiting a decision, or nil
func (i *ApprovalInstance) PendingStep() *ApprovalInstanceStep {
	for idx := range i.Steps {
		if i.Steps[idx].Status == StepStatusPending {
			return &i.Steps[idx]
		}
	}
	return nil
}

// NextStep returns the first step ordered after the given step order, or nil when it is the last
func (i *ApprovalInstance) NextStep(after int) *ApprovalInstanceStep {
	var next *ApprovalInstanceStep
	for idx := range i.Steps {
		s := &i.Steps[idx]
		if s.StepOrder > after && (next == nil || s.StepOrder < next.StepOrder) {
			next = s
		}
	}
	return next
}

// IsActive reports whether the instance still awaits decisions
func (i *ApprovalInstance) IsActive() bool {
	return i.Status == InstanceStatusPending
}

// MirrorConsistent reports whether a document's approval_status agrees with its latest instance.
// A rejected instance may also sit behind a 下書き mirror once the document was returned to draft.
func MirrorConsistent(mirror ApprovalStatus, latest *ApprovalInstance) bool {
	if latest == nil {
		return mirror == ApprovalStatusDraft
	}
	if latest.Status == InstanceStatusRejected && mirror == ApprovalStatusDraft {
		return true
	}
	return MirrorOf(latest.Status) == mirror
}
