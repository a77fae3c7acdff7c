package service

import (
	"context"
	"fmt"

	"github.com/garyjia/procureflow/internal/application/dispatcher"
	"github.com/garyjia/procureflow/internal/application/port"
	"github.com/garyjia/procureflow/internal/domain/event"
)

// EventForwarder publishes every committed domain event to an external broker
type EventForwarder struct {
	publisher port.EventPublisher
	logger    Logger
}

// NewEventForwarder creates a new EventForwarder
func NewEventForwarder(publisher port.EventPublisher, logger Logger) *EventForwarder {
	return &EventForwarder{
		publisher: publisher,
		logger:    logger,
	}
}

// Register subscribes the forwarder to all event types
func (f *EventForwarder) Register(d dispatcher.Dispatcher) {
	d.SubscribeAll("event-forwarder", f.Forward)
}

// Forward publishes one event
func (f *EventForwarder) Forward(ctx context.Context, evt *event.Event) error {
	if err := f.publisher.Publish(ctx, evt); err != nil {
		f.logger.Error("Failed to forward event",
			"error", err,
			"event_id", evt.ID,
			"event_type", evt.Type.String(),
		)
		return fmt.Errorf("publish event %s: %w", evt.ID, err)
	}
	return nil
}
