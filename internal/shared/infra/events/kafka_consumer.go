package events

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	sharedUtils "github.com/damian-zhang-1027/order-service/internal/shared/infra/utils"
)

const (
	HeaderError         = "x-error"
	HeaderOriginalTopic = "x-original-topic"
	HeaderAttempts      = "x-attempts"
)

// MessageHandler define lo que debe cumplir cualquier consumidor de eventos.
// Devolver nil significa "se puede hacer commit del offset".
type MessageHandler interface {
	HandleMessage(ctx context.Context, key string, payload []byte) error
}

// MessageReader es la parte de *kafka.Reader (con GroupID) que usa el adapter.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 5, Backoff: 500 * time.Millisecond}

type ConsumerOption func(*ConsumerAdapter)

// WithDeadLetter envía a topic los mensajes que agotan los reintentos o son permanentes.
func WithDeadLetter(writer MessageWriter, topic string) ConsumerOption {
	return func(c *ConsumerAdapter) {
		c.dlq = writer
		c.dlqTopic = topic
	}
}

func WithRetryPolicy(policy RetryPolicy) ConsumerOption {
	return func(c *ConsumerAdapter) { c.policy = policy }
}

// WithName etiqueta los logs (útil con varios workers en el mismo grupo).
func WithName(name string) ConsumerOption {
	return func(c *ConsumerAdapter) { c.name = name }
}

// ConsumerAdapter es el "oído" que escucha en Kafka con commit manual.
// Un offset solo se confirma tras un handler exitoso o tras dejar el mensaje en la DLQ.
type ConsumerAdapter struct {
	reader   MessageReader
	handler  MessageHandler
	dlq      MessageWriter
	dlqTopic string
	policy   RetryPolicy
	name     string
	log      *zap.Logger
}

func NewConsumerAdapter(reader MessageReader, handler MessageHandler, log *zap.Logger, opts ...ConsumerOption) *ConsumerAdapter {
	c := &ConsumerAdapter{
		reader:  reader,
		handler: handler,
		policy:  DefaultRetryPolicy,
		name:    "consumer",
		log:     log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start inicia el bucle de consumo en una goroutine.
func (c *ConsumerAdapter) Start(ctx context.Context) {
	c.log.Info("🎧 Iniciando consumidor de Kafka...", zap.String("consumer", c.name))
	go c.Run(ctx)
}

// Run bloquea hasta que el contexto se cancela.
func (c *ConsumerAdapter) Run(ctx context.Context) {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.log.Info("Consumidor de Kafka detenido.", zap.String("consumer", c.name))
				return
			}
			c.log.Error("Error al leer mensaje de Kafka", zap.String("consumer", c.name), zap.Error(err))
			if !c.pause(ctx) {
				return
			}
			continue
		}

		// Sin ack no avanzamos: un commit posterior confirmaría también este offset.
		for {
			err := c.Process(ctx, msg)
			if err == nil {
				break
			}
			if ctx.Err() != nil {
				return
			}
			c.log.Error("⛔ Mensaje retenido sin commit",
				zap.String("consumer", c.name),
				zap.String("topic", msg.Topic),
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
				zap.Error(err),
			)
			if !c.pause(ctx) {
				return
			}
		}
	}
}

// pause espera un backoff; devuelve false si el contexto se cancela antes.
func (c *ConsumerAdapter) pause(ctx context.Context) bool {
	select {
	case <-time.After(c.policy.Backoff):
		return true
	case <-ctx.Done():
		return false
	}
}

// Process entrega el mensaje al handler con reintentos, lo desvía a la DLQ si no hay manera
// y confirma el offset. Devuelve error cuando el mensaje no puede confirmarse.
func (c *ConsumerAdapter) Process(ctx context.Context, msg kafka.Message) error {
	attempts := 0
	err := sharedUtils.Retry(ctx, c.policy.MaxAttempts, c.policy.Backoff, func() error {
		attempts++
		return c.handler.HandleMessage(ctx, string(msg.Key), msg.Value)
	})

	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if c.dlq == nil {
			return fmt.Errorf("handler failed after %d attempts: %w", attempts, err)
		}
		if dlqErr := c.deadLetter(ctx, msg, err, attempts); dlqErr != nil {
			return fmt.Errorf("dead-letter publish failed: %w (handler error: %v)", dlqErr, err)
		}
		c.log.Warn("☠️ Mensaje enviado a DLQ",
			zap.String("consumer", c.name),
			zap.String("dlq_topic", c.dlqTopic),
			zap.Int64("offset", msg.Offset),
			zap.Int("attempts", attempts),
			zap.Bool("permanent", sharedUtils.IsPermanent(err)),
			zap.Error(err),
		)
	}

	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		return fmt.Errorf("commit failed: %w", err)
	}
	return nil
}

func (c *ConsumerAdapter) deadLetter(ctx context.Context, msg kafka.Message, cause error, attempts int) error {
	headers := append([]kafka.Header{}, msg.Headers...)
	headers = append(headers,
		kafka.Header{Key: HeaderError, Value: []byte(cause.Error())},
		kafka.Header{Key: HeaderOriginalTopic, Value: []byte(msg.Topic)},
		kafka.Header{Key: HeaderAttempts, Value: []byte(strconv.Itoa(attempts))},
	)

	return c.dlq.WriteMessages(ctx, kafka.Message{
		Topic:   c.dlqTopic,
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: headers,
	})
}
