package events

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	sharedBus "github.com/damian-zhang-1027/order-service/internal/shared/infra/platform/bus"
)

// InMemoryEventBus implementa un bus de eventos para UN solo topic.
// Entrega best-effort: si el buffer de un suscriptor está lleno el mensaje se descarta.
type InMemoryEventBus struct {
	subscribers []chan interface{}
	mu          sync.RWMutex
	topic       string
}

var _ sharedBus.EventBus = (*InMemoryEventBus)(nil)

func NewInMemoryEventBus(topic string) *InMemoryEventBus {
	return &InMemoryEventBus{
		subscribers: make([]chan interface{}, 0),
		topic:       topic,
	}
}

func (b *InMemoryEventBus) Topic() string {
	return b.topic
}

// Publish serializa el evento y lo reparte a todos los suscriptores.
func (b *InMemoryEventBus) Publish(ctx context.Context, event interface{}) error {
	payloadBytes, err := json.Marshal(event)
	if err != nil {
		return err
	}

	b.mu.RLock()
	subs := make([]chan interface{}, len(b.subscribers))
	copy(subs, b.subscribers)
	b.mu.RUnlock()

	if len(subs) > 0 {
		go b.distribute(subs, payloadBytes)
	}
	return nil
}

func (b *InMemoryEventBus) distribute(subs []chan interface{}, event interface{}) {
	for _, subChan := range subs {
		select {
		case subChan <- event:
		default:
		}
	}
}

// Subscribe suscribe un nuevo oyente a este bus.
func (b *InMemoryEventBus) Subscribe(bufferSize int) <-chan interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()

	subChan := make(chan interface{}, bufferSize)
	b.subscribers = append(b.subscribers, subChan)
	return subChan
}

// BackgroundConsumerChan consume un canal del bus en memoria con el mismo handler que usa Kafka.
// No hay reentrega: los errores solo se registran.
func BackgroundConsumerChan(ctx context.Context, ch <-chan interface{}, handler MessageHandler, log *zap.Logger) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				log.Info("In-memory consumer stopped")
				return
			case msg := <-ch:
				payload, ok := msg.([]byte)
				if !ok {
					continue
				}
				if err := handler.HandleMessage(ctx, "", payload); err != nil {
					log.Warn("In-memory event handling failed", zap.Error(err))
				}
			}
		}
	}()
}
