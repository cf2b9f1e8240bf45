package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/damian-zhang-1027/order-service/internal/mocks"
	"github.com/damian-zhang-1027/order-service/internal/order/domain"
	sharedEvents "github.com/damian-zhang-1027/order-service/internal/shared/domain/events"
	"github.com/damian-zhang-1027/order-service/internal/shared/infra/platform/tracing"
)

func seededSaga(t *testing.T) (*mocks.InMemoryOrderRepo, *mocks.DummyCache, *OrderSagaService, *domain.Order) {
	t.Helper()
	repo := mocks.NewInMemoryOrderRepo()
	cache := mocks.NewDummyCache()
	order := domain.NewOrder(42, 1, []domain.OrderItem{{ProductID: 101, SellerID: 2, Quantity: 2, UnitPrice: 1500}}, time.Now())
	repo.Seed(order)
	return repo, cache, NewOrderSagaService(repo, cache, zap.NewNop()), order
}

func paymentEvent(eventID, eventType, payload string) sharedEvents.IntegrationEvent {
	return sharedEvents.IntegrationEvent{
		EventID:       eventID,
		AggregateType: "payments",
		AggregateID:   "42",
		EventType:     eventType,
		Payload:       sharedEvents.EmbeddedJSON(payload),
		Metadata:      sharedEvents.EmbeddedJSON(`{"traceId":"trace-abc","causationId":"evt-created","userId":"1","timestamp":1700000000000}`),
	}
}

func TestProcessPaymentResult_Succeeded(t *testing.T) {
	// Arrange
	repo, _, service, order := seededSaga(t)
	incoming := paymentEvent("pay-1", domain.PaymentSucceeded, `{"orderId":42,"amount":3000}`)

	// Act
	err := service.ProcessPaymentResult(context.Background(), incoming)

	// Assert
	require.NoError(t, err)
	got, _ := repo.GetByID(context.Background(), order.ID)
	assert.Equal(t, domain.OrderSucceeded, got.Status)

	outbox := repo.OutboxSnapshot()
	require.Len(t, outbox, 1)
	evt := outbox[0]
	assert.Equal(t, domain.OrderSucceededEv, evt.EventType)
	assert.Equal(t, domain.OrderAggregate, evt.AggregateType)
	assert.Equal(t, "42", evt.AggregateID)
	require.NotNil(t, evt.Metadata.CausationID)
	assert.Equal(t, "pay-1", *evt.Metadata.CausationID)
	assert.Equal(t, "trace-abc", evt.Metadata.TraceID)
	assert.Equal(t, "1", evt.Metadata.UserID)
	assert.JSONEq(t, `{"orderId":42,"amount":3000}`, string(evt.Payload))
	assert.Equal(t, int64(42), repo.Processed["pay-1"])
}

func TestProcessPaymentResult_Failed(t *testing.T) {
	repo, _, service, order := seededSaga(t)

	err := service.ProcessPaymentResult(context.Background(), paymentEvent("pay-2", domain.PaymentFailed, `{"orderId":42,"reason":"card declined"}`))

	require.NoError(t, err)
	got, _ := repo.GetByID(context.Background(), order.ID)
	assert.Equal(t, domain.OrderFailed, got.Status)
	outbox := repo.OutboxSnapshot()
	require.Len(t, outbox, 1)
	assert.Equal(t, domain.OrderFailedEv, outbox[0].EventType)
	assert.JSONEq(t, `{"orderId":42,"reason":"card declined"}`, string(outbox[0].Payload))
}

func TestProcessPaymentResult_TerminalOrderIsNotReverted(t *testing.T) {
	repo, _, service, order := seededSaga(t)
	require.NoError(t, service.ProcessPaymentResult(context.Background(), paymentEvent("pay-1", domain.PaymentSucceeded, `{"orderId":42}`)))

	// Llega después un fallo de pago para la misma orden
	err := service.ProcessPaymentResult(context.Background(), paymentEvent("pay-9", domain.PaymentFailed, `{"orderId":42}`))

	require.NoError(t, err)
	got, _ := repo.GetByID(context.Background(), order.ID)
	assert.Equal(t, domain.OrderSucceeded, got.Status)
	assert.Len(t, repo.OutboxSnapshot(), 1)
}

func TestProcessPaymentResult_RedeliveryIsNoOp(t *testing.T) {
	repo, _, service, _ := seededSaga(t)
	incoming := paymentEvent("pay-1", domain.PaymentSucceeded, `{"orderId":42}`)

	require.NoError(t, service.ProcessPaymentResult(context.Background(), incoming))
	require.NoError(t, service.ProcessPaymentResult(context.Background(), incoming))

	assert.Len(t, repo.OutboxSnapshot(), 1)
}

func TestProcessPaymentResult_UnknownEventTypeIgnored(t *testing.T) {
	repo, _, service, order := seededSaga(t)

	err := service.ProcessPaymentResult(context.Background(), paymentEvent("x-1", "PAYMENT_REFUNDED", `{"orderId":42}`))

	require.NoError(t, err)
	got, _ := repo.GetByID(context.Background(), order.ID)
	assert.Equal(t, domain.OrderPending, got.Status)
	assert.Empty(t, repo.OutboxSnapshot())
}

func TestProcessPaymentResult_OrderNotFound(t *testing.T) {
	repo, _, service, _ := seededSaga(t)

	err := service.ProcessPaymentResult(context.Background(), paymentEvent("pay-1", domain.PaymentSucceeded, `{"orderId":777}`))

	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
	assert.Empty(t, repo.OutboxSnapshot())
}

func TestProcessPaymentResult_MalformedPayload(t *testing.T) {
	cases := map[string]sharedEvents.IntegrationEvent{
		"no order id":   paymentEvent("pay-1", domain.PaymentSucceeded, `{"amount":1}`),
		"wrong type":    paymentEvent("pay-1", domain.PaymentSucceeded, `{"orderId":"abc"}`),
		"empty payload": paymentEvent("pay-1", domain.PaymentSucceeded, ``),
		"no event id":   paymentEvent("", domain.PaymentSucceeded, `{"orderId":42}`),
	}
	for name, incoming := range cases {
		t.Run(name, func(t *testing.T) {
			repo, _, service, _ := seededSaga(t)

			err := service.ProcessPaymentResult(context.Background(), incoming)

			assert.ErrorIs(t, err, domain.ErrMalformedEvent)
			assert.Empty(t, repo.OutboxSnapshot())
		})
	}
}

func TestProcessPaymentResult_StorageFailurePropagates(t *testing.T) {
	repo, _, service, order := seededSaga(t)
	boom := errors.New("connection reset")
	repo.TransitionErr = boom

	err := service.ProcessPaymentResult(context.Background(), paymentEvent("pay-1", domain.PaymentSucceeded, `{"orderId":42}`))

	assert.ErrorIs(t, err, boom)
	got, _ := repo.GetByID(context.Background(), order.ID)
	assert.Equal(t, domain.OrderPending, got.Status)
	assert.Empty(t, repo.OutboxSnapshot())
}

func TestProcessPaymentResult_MissingTraceUsesSentinel(t *testing.T) {
	repo, _, service, _ := seededSaga(t)
	incoming := paymentEvent("pay-1", domain.PaymentSucceeded, `{"orderId":42}`)
	incoming.Metadata = nil

	require.NoError(t, service.ProcessPaymentResult(context.Background(), incoming))

	outbox := repo.OutboxSnapshot()
	require.Len(t, outbox, 1)
	assert.Equal(t, tracing.NoTraceID, outbox[0].Metadata.TraceID)
	assert.Equal(t, "pay-1", *outbox[0].Metadata.CausationID)
}

func TestProcessPaymentResult_InvalidatesCache(t *testing.T) {
	_, cache, service, order := seededSaga(t)
	key := domain.OrderCacheKeyByID(order.ID)
	require.NoError(t, cache.Set(context.Background(), key, order, 60))

	require.NoError(t, service.ProcessPaymentResult(context.Background(), paymentEvent("pay-1", domain.PaymentSucceeded, `{"orderId":42}`)))

	assert.False(t, cache.Has(key), "snapshot must be gone once the step returns")
}

func TestProcessPaymentResult_LostCompareAndSetIsNoOp(t *testing.T) {
	repo, _, service, _ := seededSaga(t)
	// Otro consumidor finalizó la orden entre la lectura y la escritura
	repo.TransitionErr = domain.ErrOrderAlreadyFinalized

	err := service.ProcessPaymentResult(context.Background(), paymentEvent("pay-1", domain.PaymentSucceeded, `{"orderId":42}`))

	require.NoError(t, err)
	assert.Empty(t, repo.OutboxSnapshot())
}
