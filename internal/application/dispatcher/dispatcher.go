// Package dispatcher delivers committed approval and procurement events to their subscribers.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/garyjia/procureflow/internal/domain/event"
)

// Dispatcher delivers events after the transaction that produced them has committed.
// Subscriber failures are logged and reported; they never reach the transition that emitted the event.
type Dispatcher interface {
	// Subscribe registers a named subscriber for one event type.
	// Filters narrow the events it receives, for example to one document type.
	Subscribe(eventType event.Type, name string, handler Handler, filters ...Filter)

	// SubscribeAll registers a named subscriber for every event type
	SubscribeAll(name string, handler Handler, filters ...Filter)

	// Unsubscribe removes a subscriber from every event type
	Unsubscribe(name string)

	// Dispatch delivers one event to every matching subscriber in registration order.
	// Every subscriber runs; the returned error joins one *DeliveryError per failure.
	Dispatch(ctx context.Context, evt *event.Event) error

	// PublishCommitted delivers the events of one committed transition in the background.
	// Each subscriber receives its share of the batch in order, detached from the caller's cancellation.
	PublishCommitted(ctx context.Context, events []*event.Event)

	// Subscriptions lists the subscribers of an event type
	Subscriptions(eventType event.Type) []Subscription

	// Close stops accepting batches and waits for in-flight deliveries
	Close() error
}

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

type eventDispatcher struct {
	mu     sync.RWMutex
	subs   map[event.Type][]Subscription
	logger Logger

	wg     sync.WaitGroup
	closed bool
}

// Option configures the dispatcher
type Option func(*eventDispatcher)

// WithLogger sets a logger for the dispatcher
func WithLogger(logger Logger) Option {
	return func(d *eventDispatcher) {
		d.logger = logger
	}
}

// NewDispatcher creates a new event dispatcher
func NewDispatcher(opts ...Option) Dispatcher {
	d := &eventDispatcher{
		subs: make(map[event.Type][]Subscription),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *eventDispatcher) Subscribe(eventType event.Type, name string, handler Handler, filters ...Filter) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.subs[eventType] = append(d.subs[eventType], Subscription{
		Name:      name,
		EventType: eventType,
		Filtered:  len(filters) > 0,
		handler:   handler,
		filters:   filters,
	})
	d.logInfo("Subscriber registered", "event_type", eventType, "subscriber", name)
}

func (d *eventDispatcher) SubscribeAll(name string, handler Handler, filters ...Filter) {
	for _, eventType := range event.AllTypes {
		d.Subscribe(eventType, name, handler, filters...)
	}
}

func (d *eventDispatcher) Unsubscribe(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for eventType, subs := range d.subs {
		kept := subs[:0:0]
		for _, s := range subs {
			if s.Name != name {
				kept = append(kept, s)
			}
		}
		d.subs[eventType] = kept
	}
	d.logInfo("Subscriber removed", "subscriber", name)
}

func (d *eventDispatcher) Dispatch(ctx context.Context, evt *event.Event) error {
	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		return fmt.Errorf("dispatcher is closed")
	}
	subs := d.matching(evt)
	d.mu.RUnlock()

	var errs []error
	for _, s := range subs {
		if err := d.deliver(ctx, evt, s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PublishCommitted groups the batch per subscriber so a subscriber sees
// approval.step_advanced after the approval.requested that preceded it.
func (d *eventDispatcher) PublishCommitted(ctx context.Context, events []*event.Event) {
	if len(events) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)

	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		for _, evt := range events {
			d.logError("Dropping committed event, dispatcher is closed",
				"event_type", evt.Type,
				"event_id", evt.ID,
				"document_type", evt.DocumentType,
				"document_id", evt.DocumentID)
		}
		return
	}

	type delivery struct {
		evt *event.Event
		sub Subscription
	}
	var order []string
	queues := make(map[string][]delivery)
	for _, evt := range events {
		for _, s := range d.matching(evt) {
			if _, seen := queues[s.Name]; !seen {
				order = append(order, s.Name)
			}
			queues[s.Name] = append(queues[s.Name], delivery{evt: evt, sub: s})
		}
	}

	d.logInfo("Publishing committed events",
		"event_count", len(events),
		"subscriber_count", len(order),
		"document_type", events[0].DocumentType,
		"document_id", events[0].DocumentID)

	for _, name := range order {
		queue := queues[name]
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for _, item := range queue {
				_ = d.deliver(ctx, item.evt, item.sub)
			}
		}()
	}
}

func (d *eventDispatcher) Subscriptions(eventType event.Type) []Subscription {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]Subscription, len(d.subs[eventType]))
	for i, s := range d.subs[eventType] {
		out[i] = Subscription{Name: s.Name, EventType: s.EventType, Filtered: s.Filtered}
	}
	return out
}

func (d *eventDispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return fmt.Errorf("dispatcher already closed")
	}
	d.closed = true
	d.mu.Unlock()

	d.logInfo("Closing dispatcher, waiting for in-flight deliveries")
	d.wg.Wait()
	d.logInfo("Dispatcher closed")
	return nil
}

// matching returns the subscribers of evt; the caller holds d.mu
func (d *eventDispatcher) matching(evt *event.Event) []Subscription {
	var out []Subscription
	for _, s := range d.subs[evt.Type] {
		if s.matches(evt) {
			out = append(out, s)
		}
	}
	return out
}

// deliver runs one subscriber with panic recovery and logs its failure
func (d *eventDispatcher) deliver(ctx context.Context, evt *event.Event, s Subscription) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		if err != nil {
			err = &DeliveryError{Subscriber: s.Name, EventType: evt.Type, EventID: evt.ID, Err: err}
			d.logError("Event delivery failed",
				"event_type", evt.Type,
				"event_id", evt.ID,
				"document_type", evt.DocumentType,
				"document_id", evt.DocumentID,
				"subscriber", s.Name,
				"error", err)
		}
	}()
	return s.handler(ctx, evt)
}

func (d *eventDispatcher) logInfo(msg string, kv ...interface{}) {
	if d.logger != nil {
		d.logger.Info(msg, kv...)
	}
}

func (d *eventDispatcher) logError(msg string, kv ...interface{}) {
	if d.logger != nil {
		d.logger.Error(msg, kv...)
	}
}
