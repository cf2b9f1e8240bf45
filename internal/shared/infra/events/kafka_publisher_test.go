package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	sharedEvents "github.com/damian-zhang-1027/order-service/internal/shared/domain/events"
)

func TestKafkaPublisher_UsesEventTopicAndKey(t *testing.T) {
	writer := &fakeWriter{}
	pub := NewKafkaPublisher(writer, "fallback", zap.NewNop())

	evt := sharedEvents.IntegrationEvent{
		EventID:       "e1",
		AggregateType: "orders",
		AggregateID:   "42",
		EventType:     "ORDER_CREATED",
		Payload:       sharedEvents.EmbeddedJSON(`{"orderId":42}`),
	}
	require.NoError(t, pub.Publish(context.Background(), evt))

	require.Len(t, writer.messages, 1)
	msg := writer.messages[0]
	assert.Equal(t, "orders", msg.Topic)
	assert.Equal(t, []byte("42"), msg.Key)

	var decoded sharedEvents.IntegrationEvent
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "ORDER_CREATED", decoded.EventType)
}

func TestKafkaPublisher_FallsBackToDefaultTopic(t *testing.T) {
	writer := &fakeWriter{}
	pub := NewKafkaPublisher(writer, "fallback", zap.NewNop())

	require.NoError(t, pub.Publish(context.Background(), map[string]string{"hello": "world"}))
	require.Len(t, writer.messages, 1)
	assert.Equal(t, "fallback", writer.messages[0].Topic)
	assert.Nil(t, writer.messages[0].Key)
}

func TestKafkaPublisher_ErrorsWithoutTopic(t *testing.T) {
	pub := NewKafkaPublisher(&fakeWriter{}, "", zap.NewNop())
	assert.Error(t, pub.Publish(context.Background(), map[string]string{}))
}

func TestInMemoryEventBus_DeliversToSubscribers(t *testing.T) {
	bus := NewInMemoryEventBus("orders")
	ch := bus.Subscribe(1)

	require.NoError(t, bus.Publish(context.Background(), sharedEvents.IntegrationEvent{EventID: "e1", EventType: "ORDER_CREATED"}))

	select {
	case msg := <-ch:
		payload, ok := msg.([]byte)
		require.True(t, ok)
		var decoded sharedEvents.IntegrationEvent
		require.NoError(t, json.Unmarshal(payload, &decoded))
		assert.Equal(t, "e1", decoded.EventID)
	case <-time.After(time.Second):
		t.Fatal("no message delivered")
	}
}
