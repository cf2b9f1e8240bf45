package events

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	orderDomain "github.com/damian-zhang-1027/order-service/internal/order/domain"
	sharedEvents "github.com/damian-zhang-1027/order-service/internal/shared/domain/events"
	sharedInfraEvents "github.com/damian-zhang-1027/order-service/internal/shared/infra/events"
	sharedUtils "github.com/damian-zhang-1027/order-service/internal/shared/infra/utils"
)

// PaymentResultProcessor es lo que el consumidor necesita del servicio de saga.
type PaymentResultProcessor interface {
	ProcessPaymentResult(ctx context.Context, incoming sharedEvents.IntegrationEvent) error
}

// PaymentConsumer traduce mensajes del topic de pagos en pasos de la saga.
type PaymentConsumer struct {
	processor PaymentResultProcessor
	timeout   time.Duration
	log       *zap.Logger
}

func NewPaymentConsumer(processor PaymentResultProcessor, timeout time.Duration, log *zap.Logger) *PaymentConsumer {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &PaymentConsumer{processor: processor, timeout: timeout, log: log}
}

// HandleMessage: nil => commit. Permanente => DLQ sin reintentos. Otro error => reintento.
func (c *PaymentConsumer) HandleMessage(ctx context.Context, key string, payload []byte) error {
	return sharedUtils.UnmarshalAndHandle(payload, func(evt sharedEvents.IntegrationEvent) error {
		ctxStep, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		err := c.processor.ProcessPaymentResult(ctxStep, evt)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, orderDomain.ErrMalformedEvent):
			c.log.Warn("Malformed payment event",
				zap.String("key", key),
				zap.String("event_id", evt.EventID),
				zap.Error(err),
			)
			return sharedUtils.Permanent(err)
		case errors.Is(err, orderDomain.ErrOrderNotFound):
			c.log.Warn("⚠️ Payment result for unknown order dropped",
				zap.String("key", key),
				zap.String("event_id", evt.EventID),
				zap.Error(err),
			)
			return nil
		default:
			return err
		}
	})
}

var _ sharedInfraEvents.MessageHandler = (*PaymentConsumer)(nil)
