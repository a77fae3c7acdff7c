package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/procureflow/internal/application/dispatcher"
	"github.com/garyjia/procureflow/internal/domain/event"
)

type mockPublisher struct {
	mu          sync.Mutex
	published   []*event.Event
	publishFunc func(ctx context.Context, evt *event.Event) error
}

func (m *mockPublisher) Publish(ctx context.Context, evt *event.Event) error {
	if m.publishFunc != nil {
		return m.publishFunc(ctx, evt)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, evt)
	return nil
}

func (m *mockPublisher) Close() error { return nil }

func TestEventForwarder_ForwardsEveryType(t *testing.T) {
	pub := &mockPublisher{}
	d := dispatcher.NewDispatcher()
	defer d.Close()

	NewEventForwarder(pub, &mockLogger{}).Register(d)

	for _, eventType := range event.AllTypes {
		require.NoError(t, d.Dispatch(context.Background(), event.NewEvent(eventType, "quote", 1, 1, nil)))
	}

	require.Len(t, pub.published, len(event.AllTypes))
	for i, eventType := range event.AllTypes {
		assert.Equal(t, eventType, pub.published[i].Type)
	}
}

func TestEventForwarder_PublishFailure(t *testing.T) {
	pub := &mockPublisher{
		publishFunc: func(ctx context.Context, evt *event.Event) error {
			return errors.New("broker down")
		},
	}
	logger := &mockLogger{}

	err := NewEventForwarder(pub, logger).Forward(context.Background(), event.NewEvent(event.TypeApprovalApproved, "quote", 1, 1, nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
	assert.Equal(t, []string{"Failed to forward event"}, logger.errors)
}
