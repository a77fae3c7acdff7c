// Package workflow provides a small guarded state machine used for approval instances,
// document approval mirrors and purchase order lifecycles.
package workflow

import "context"

// StateMachine tracks a current state and validates transitions against its configuration
type StateMachine interface {
	// State returns the current state
	State() State

	// CanFire returns true if the trigger is configured for the current state
	CanFire(trigger Trigger) bool

	// Fire executes the trigger, moving to the first transition whose guard passes
	Fire(ctx context.Context, trigger Trigger) error

	// PermittedTriggers returns all triggers configured for the current state
	PermittedTriggers() []Trigger
}
