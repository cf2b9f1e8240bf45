package events

import (
	"context"
	"encoding/json"
	"strconv"

	"go.uber.org/zap"

	orderDomain "github.com/damian-zhang-1027/order-service/internal/order/domain"
	sharedEvents "github.com/damian-zhang-1027/order-service/internal/shared/domain/events"
	sharedInfraEvents "github.com/damian-zhang-1027/order-service/internal/shared/infra/events"
	sharedUtils "github.com/damian-zhang-1027/order-service/internal/shared/infra/utils"
)

// OutcomeProjector escucha el topic de órdenes y deja los resultados terminales en analítica.
type OutcomeProjector struct {
	repo orderDomain.SalesAnalyticsRepository
	log  *zap.Logger
}

func NewOutcomeProjector(repo orderDomain.SalesAnalyticsRepository, log *zap.Logger) *OutcomeProjector {
	return &OutcomeProjector{repo: repo, log: log}
}

func (p *OutcomeProjector) HandleMessage(ctx context.Context, key string, payload []byte) error {
	return sharedUtils.UnmarshalAndHandle(payload, func(evt sharedEvents.IntegrationEvent) error {
		status, ok := orderDomain.TerminalStatusFor(evt.EventType)
		if !ok {
			return nil
		}

		var body orderDomain.PaymentResultPayload
		if err := json.Unmarshal(evt.Payload, &body); err != nil || body.OrderID <= 0 {
			// el id de la orden también viaja como clave del mensaje
			id, convErr := strconv.ParseInt(evt.AggregateID, 10, 64)
			if convErr != nil {
				return sharedUtils.Permanent(orderDomain.ErrMalformedEvent)
			}
			body.OrderID = id
		}

		meta, err := evt.DecodeMetadata()
		if err != nil {
			return sharedUtils.Permanent(err)
		}

		outcome := orderDomain.OrderOutcome{
			EventID:     evt.EventID,
			OrderID:     body.OrderID,
			BuyerUserID: meta.UserID,
			Status:      status,
			TotalAmount: body.TotalAmount,
			TraceID:     meta.TraceID,
			OccurredAt:  meta.Timestamp,
		}
		if err := p.repo.LogBatch(ctx, []orderDomain.OrderOutcome{outcome}); err != nil {
			p.log.Warn("Failed to record order outcome", zap.Int64("order_id", outcome.OrderID), zap.Error(err))
			return err
		}

		p.log.Debug("📈 Order outcome recorded",
			zap.Int64("order_id", outcome.OrderID),
			zap.String("status", string(status)),
		)
		return nil
	})
}

var _ sharedInfraEvents.MessageHandler = (*OutcomeProjector)(nil)
