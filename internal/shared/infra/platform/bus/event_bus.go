package bus

import "context"

type Keyer interface {
	PartitionKey() string
}

// Topicer permite que el evento elija su topic; si no lo implementa se usa el del adapter.
type Topicer interface {
	Topic() string
}

// La semántica de topic/nombre y formato del payload la decides en los adapters.
type EventBus interface {
	Publish(ctx context.Context, event interface{}) error
}
