package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/Shopify/sarama"
	"github.com/Shopify/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/procureflow/internal/domain/event"
)

func TestPublisher_Publish(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	evt := event.NewEvent(event.TypeApprovalApproved, "quote", 42, 7, map[string]interface{}{"instance_id": 3})

	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var got event.Event
		if err := json.Unmarshal(val, &got); err != nil {
			return err
		}
		if got.ID != evt.ID || got.Type != event.TypeApprovalApproved || got.DocumentID != 42 {
			return errors.New("unexpected event body")
		}
		return nil
	})

	p := NewPublisherWithProducer(producer, "procureflow.events", zap.NewNop())
	require.NoError(t, p.Publish(context.Background(), evt))
	require.NoError(t, p.Close())
}

func TestPublisher_PublishFailure(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := NewPublisherWithProducer(producer, "procureflow.events", zap.NewNop())
	err := p.Publish(context.Background(), event.NewEvent(event.TypeProcurementOrdered, "purchase_order", 1, 1, nil))
	require.Error(t, err)
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, p.Close())
}

func TestPublisher_CancelledContext(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	p := NewPublisherWithProducer(producer, "procureflow.events", zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, p.Publish(ctx, event.NewEvent(event.TypeApprovalRequested, "quote", 1, 1, nil)), context.Canceled)
	require.NoError(t, p.Close())
}

func TestToKafkaMessage(t *testing.T) {
	evt := event.NewEvent(event.TypeProcurementReverted, "purchase_order", 9, 2, nil)

	msg, err := toKafkaMessage(evt, "events")
	require.NoError(t, err)
	assert.Equal(t, "events", msg.Topic)

	key, err := msg.Key.Encode()
	require.NoError(t, err)
	assert.Equal(t, "purchase_order:9", string(key))

	require.Len(t, msg.Headers, 2)
	assert.Equal(t, "procurement.reverted", string(msg.Headers[0].Value))
	assert.Equal(t, evt.ID, string(msg.Headers[1].Value))
}

func TestNewPublisher_RequiresConfig(t *testing.T) {
	_, err := NewPublisher(Config{Topic: "events"}, zap.NewNop())
	assert.Error(t, err)

	_, err = NewPublisher(Config{Brokers: []string{"localhost:9092"}}, zap.NewNop())
	assert.Error(t, err)
}
