package entity

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// ApprovalRoute is a named, ordered template of approval steps for one document type.
// Routes are immutable once created; changes are made by creating a new route.
type ApprovalRoute struct {
	ID           int64               `json:"id" db:"id"`
	Name         string              `json:"name" db:"name"`
	DocumentType DocumentType        `json:"document_type" db:"document_type"`
	IsDefault    bool                `json:"is_default" db:"is_default"`
	CreatedAt    time.Time           `json:"created_at" db:"created_at"`
	Steps        []ApprovalRouteStep `json:"steps" db:"-"`
}

// ApprovalRouteStep is one approver step of a route
type ApprovalRouteStep struct {
	ID           int64 `json:"id" db:"id"`
	RouteID      int64 `json:"route_id" db:"route_id"`
	StepOrder    int   `json:"step_order" db:"step_order"`
	ApproverRole Role  `json:"approver_role" db:"approver_role"`
}

// SortSteps orders the steps by step_order ascending
func (r *ApprovalRoute) SortSteps() {
	sort.SliceStable(r.Steps, func(i, j int) bool {
		return r.Steps[i].StepOrder < r.Steps[j].StepOrder
	})
}

// Validate checks the route's structural invariants: a name, a known document type,
// at least one step, contiguous step orders starting at 1 and valid roles.
func (r *ApprovalRoute) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("route name is required")
	}
	if !r.DocumentType.IsValid() {
		return fmt.Errorf("unknown document type %q", r.DocumentType)
	}
	if len(r.Steps) == 0 {
		return fmt.Errorf("route %q has no steps", r.Name)
	}

	steps := append([]ApprovalRouteStep(nil), r.Steps...)
	sort.SliceStable(steps, func(i, j int) bool { return steps[i].StepOrder < steps[j].StepOrder })
	for i, step := range steps {
		if step.StepOrder != i+1 {
			return fmt.Errorf("step orders must be contiguous from 1: got %d at position %d", step.StepOrder, i+1)
		}
		if !step.ApproverRole.IsValid() {
			return fmt.Errorf("step %d has unknown approver role %q", step.StepOrder, step.ApproverRole)
		}
	}
	return nil
}
