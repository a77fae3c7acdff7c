package workflow

import (
	"context"

	"github.com/garyjia/procureflow/internal/domain/entity"
)

// DecisionOptions carries the optional inputs of Approve and Reject
type DecisionOptions struct {
	// ExpectedStep guards against stale intent: the decision only applies while this step is pending
	ExpectedStep *int
	// Reason is stored as the rejection reason and as the step notes
	Reason string
	Notes  string
}

// ApprovalEngine drives the approval instance of quotes and purchase orders.
// Every mutating call runs in one transaction and keeps the document's approval_status in lockstep.
type ApprovalEngine interface {
	// RequestApproval snapshots the document's route into a new pending instance
	RequestApproval(ctx context.Context, docType entity.DocumentType, docID int64, caller entity.Caller) (*entity.ApprovalInstance, error)

	// Approve decides the pending step and advances the pointer or approves the instance
	Approve(ctx context.Context, docType entity.DocumentType, docID int64, caller entity.Caller, opts DecisionOptions) (*entity.ApprovalInstance, error)

	// Reject decides the pending step and rejects the instance
	Reject(ctx context.Context, docType entity.DocumentType, docID int64, caller entity.Caller, opts DecisionOptions) (*entity.ApprovalInstance, error)

	// CancelApproval aborts a pending request or returns a rejected document to draft
	CancelApproval(ctx context.Context, docType entity.DocumentType, docID int64, caller entity.Caller) error

	// GetActiveInstance returns the pending instance of a document, or nil
	GetActiveInstance(ctx context.Context, docType entity.DocumentType, docID int64) (*entity.ApprovalInstance, error)

	// GetLatestInstance returns the most recently requested instance of a document, or nil
	GetLatestInstance(ctx context.Context, docType entity.DocumentType, docID int64) (*entity.ApprovalInstance, error)

	// ListInstances returns the approval history of a document, oldest first
	ListInstances(ctx context.Context, docType entity.DocumentType, docID int64) ([]*entity.ApprovalInstance, error)
}
