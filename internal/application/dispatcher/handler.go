package dispatcher

import (
	"context"
	"fmt"

	"github.com/garyjia/procureflow/internal/domain/entity"
	"github.com/garyjia/procureflow/internal/domain/event"
)

// Handler reacts to a committed approval or procurement event
type Handler func(ctx context.Context, evt *event.Event) error

// Filter decides whether a subscription receives an event
type Filter func(evt *event.Event) bool

// ForDocuments restricts a subscription to events about the given document types
func ForDocuments(types ...entity.DocumentType) Filter {
	allowed := make(map[string]struct{}, len(types))
	for _, t := range types {
		allowed[string(t)] = struct{}{}
	}
	return func(evt *event.Event) bool {
		_, ok := allowed[evt.DocumentType]
		return ok
	}
}

// Subscription describes one registered subscriber of one event type
type Subscription struct {
	Name      string
	EventType event.Type
	Filtered  bool

	handler Handler
	filters []Filter
}

func (s Subscription) matches(evt *event.Event) bool {
	for _, f := range s.filters {
		if !f(evt) {
			return false
		}
	}
	return true
}

// DeliveryError reports one subscriber that failed on one event.
// The transition that produced the event stays committed.
type DeliveryError struct {
	Subscriber string
	EventType  event.Type
	EventID    string
	Err        error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("subscriber %s failed on %s %s: %v", e.Subscriber, e.EventType, e.EventID, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}
