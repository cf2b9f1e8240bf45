package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/damian-zhang-1027/order-service/internal/order/domain"
	sharedDomain "github.com/damian-zhang-1027/order-service/internal/shared/domain"
	sharedEvents "github.com/damian-zhang-1027/order-service/internal/shared/domain/events"
	sharedCache "github.com/damian-zhang-1027/order-service/internal/shared/infra/platform/cache"
	"github.com/damian-zhang-1027/order-service/internal/shared/infra/platform/tracing"
)

// OrderSagaService avanza la saga con los resultados del servicio de pagos.
type OrderSagaService struct {
	repo  domain.OrderRepository
	cache sharedCache.Cache
	log   *zap.Logger
	now   func() time.Time
}

func NewOrderSagaService(repo domain.OrderRepository, cache sharedCache.Cache, log *zap.Logger) *OrderSagaService {
	return &OrderSagaService{
		repo:  repo,
		cache: cache,
		log:   log,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// ProcessPaymentResult devuelve nil cuando el evento queda resuelto (aplicado, ignorado o duplicado).
// ErrMalformedEvent y ErrOrderNotFound no se arreglan reintentando; cualquier otro error sí.
func (s *OrderSagaService) ProcessPaymentResult(ctx context.Context, incoming sharedEvents.IntegrationEvent) error {
	next, outType, ok := domain.ResolvePaymentOutcome(incoming.EventType)
	if !ok {
		s.log.Info("Ignoring event with no saga step",
			zap.String("event_type", incoming.EventType),
			zap.String("event_id", incoming.EventID),
		)
		return nil
	}

	if incoming.EventID == "" {
		return fmt.Errorf("%w: missing eventId", domain.ErrMalformedEvent)
	}

	var payload domain.PaymentResultPayload
	if len(incoming.Payload) == 0 {
		return fmt.Errorf("%w: event %s has no payload", domain.ErrMalformedEvent, incoming.EventID)
	}
	if err := json.Unmarshal(incoming.Payload, &payload); err != nil || payload.OrderID <= 0 {
		return fmt.Errorf("%w: event %s has no usable orderId", domain.ErrMalformedEvent, incoming.EventID)
	}

	inMeta, err := incoming.DecodeMetadata()
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMalformedEvent, err)
	}

	log := s.log.With(
		zap.Int64("order_id", payload.OrderID),
		zap.String("event_id", incoming.EventID),
		zap.String("event_type", incoming.EventType),
		zap.String("trace_id", inMeta.TraceID),
	)

	order, err := s.repo.GetByID(ctx, payload.OrderID)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			log.Warn("⚠️ Saga target order not found")
			return fmt.Errorf("%w: %d", domain.ErrOrderNotFound, payload.OrderID)
		}
		return fmt.Errorf("failed to load order %d: %w", payload.OrderID, err)
	}

	from := order.Status
	if err := order.TransitionTo(next); err != nil {
		if errors.Is(err, domain.ErrOrderAlreadyFinalized) {
			log.Info("🔁 Order already finalized, event ignored", zap.String("status", string(from)))
			return nil
		}
		return fmt.Errorf("%w: %v", domain.ErrMalformedEvent, err)
	}

	now := s.now()
	causation := incoming.EventID
	meta := sharedDomain.NewEventMetadata(tracing.OrDefault(inMeta.TraceID), &causation, inMeta.UserID, now)

	// El payload de pagos se reenvía byte a byte.
	evt, err := sharedDomain.NewOutboxEvent(
		domain.OrderAggregate,
		order.PartitionKey(),
		outType,
		json.RawMessage(incoming.Payload),
		meta,
		now,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMalformedEvent, err)
	}

	err = s.repo.ApplyTransition(ctx, domain.SagaTransition{
		OrderID:         order.ID,
		From:            from,
		To:              order.Status,
		IncomingEventID: incoming.EventID,
		Event:           evt,
	})
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrOrderAlreadyFinalized), errors.Is(err, domain.ErrEventAlreadyProcessed):
		log.Info("🔁 Duplicate saga step ignored", zap.Error(err))
		return nil
	case errors.Is(err, domain.ErrOrderNotFound):
		log.Warn("⚠️ Saga target order disappeared")
		return err
	default:
		log.Error("❌ Failed to apply saga step", zap.Error(err))
		return fmt.Errorf("failed to apply saga step for order %d: %w", order.ID, err)
	}

	s.invalidate(ctx, order.ID)

	log.Info("✅ Saga step applied",
		zap.String("status", string(next)),
		zap.String("emitted_event_id", evt.ID.String()),
		zap.String("emitted_event_type", outType),
	)
	return nil
}

// invalidate borra la instantánea tras el commit, antes de confirmar el mensaje.
func (s *OrderSagaService) invalidate(ctx context.Context, orderID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, domain.OrderCacheKeyByID(orderID)); err != nil {
		s.log.Warn("Cache deletion failed", zap.Int64("order_id", orderID), zap.Error(err))
	}
}
