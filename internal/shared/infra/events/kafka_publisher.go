package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	sharedBus "github.com/damian-zhang-1027/order-service/internal/shared/infra/platform/bus"
)

// MessageWriter es la parte de *kafka.Writer que usan el publisher y la DLQ.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaPublisher publica eventos JSON. El writer no debe fijar Topic:
// el topic va en cada mensaje (Topicer o defaultTopic).
type KafkaPublisher struct {
	writer       MessageWriter
	defaultTopic string
	log          *zap.Logger
}

func NewKafkaPublisher(writer MessageWriter, defaultTopic string, log *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{writer: writer, defaultTopic: defaultTopic, log: log}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	topic := p.defaultTopic
	if t, ok := event.(sharedBus.Topicer); ok && t.Topic() != "" {
		topic = t.Topic()
	}
	if topic == "" {
		return fmt.Errorf("no topic for event %T", event)
	}

	// La key fija la partición: mismo agregado, mismo orden.
	var key []byte
	if keyer, ok := event.(sharedBus.Keyer); ok {
		key = []byte(keyer.PartitionKey())
	}

	msg := kafka.Message{
		Topic: topic,
		Key:   key,
		Value: data,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.log.Error("Error publishing to Kafka", zap.String("topic", topic), zap.Error(err))
		return err
	}

	p.log.Debug("Event published successfully", zap.String("topic", topic), zap.ByteString("key", key))
	return nil
}

// Verificación estática
var _ sharedBus.EventBus = (*KafkaPublisher)(nil)
