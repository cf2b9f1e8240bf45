package relayer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"github.com/damian-zhang-1027/order-service/internal/mocks"
	sharedDomain "github.com/damian-zhang-1027/order-service/internal/shared/domain"
	sharedEvents "github.com/damian-zhang-1027/order-service/internal/shared/domain/events"
	sharedBus "github.com/damian-zhang-1027/order-service/internal/shared/infra/platform/bus"
)

func pendingEvent(t *testing.T, eventType string) sharedDomain.OutboxEvent {
	t.Helper()
	meta := sharedDomain.NewEventMetadata("trace-1", nil, "7", time.Now())
	evt, err := sharedDomain.NewOutboxEvent("orders", "42", eventType, json.RawMessage(`{"orderId":42}`), meta, time.Now())
	assert.NoError(t, err)
	return evt
}

func TestOutboxWorker_ProcessBatch_Success(t *testing.T) {
	// ARRANGE
	repo := new(mocks.MockOutboxRepository)
	publisher := new(mocks.MockPublisher)
	evt := pendingEvent(t, "ORDER_CREATED")

	repo.On("FetchPendingOutbox", mock.Anything, 10).Return([]sharedDomain.OutboxEvent{evt}, nil).Once()
	publisher.On("Publish", mock.Anything, mock.MatchedBy(func(e sharedEvents.IntegrationEvent) bool {
		return e.EventID == evt.ID.String() && e.Topic() == "orders" && e.PartitionKey() == "42"
	})).Return(nil).Once()
	repo.On("MarkOutboxSent", mock.Anything, evt.ID).Return(nil).Once()

	worker := NewOutboxWorker(repo, publisher, time.Second, 10, zap.NewNop())

	// ACT
	sent := worker.ProcessBatch(context.Background())

	// ASSERT
	assert.Equal(t, 1, sent)
	repo.AssertExpectations(t)
	publisher.AssertExpectations(t)
}

func TestOutboxWorker_ProcessBatch_PublisherFails(t *testing.T) {
	repo := new(mocks.MockOutboxRepository)
	publisher := new(mocks.MockPublisher)
	evt := pendingEvent(t, "ORDER_CREATED")

	repo.On("FetchPendingOutbox", mock.Anything, 10).Return([]sharedDomain.OutboxEvent{evt}, nil).Once()
	publisher.On("Publish", mock.Anything, mock.Anything).Return(errors.New("kafka is down")).Once()

	worker := NewOutboxWorker(repo, publisher, time.Second, 10, zap.NewNop())

	sent := worker.ProcessBatch(context.Background())

	// La fila sigue PENDING: no se marca.
	assert.Equal(t, 0, sent)
	publisher.AssertExpectations(t)
	repo.AssertNotCalled(t, "MarkOutboxSent", mock.Anything, mock.Anything)
}

func TestOutboxWorker_ProcessBatch_FetchFails(t *testing.T) {
	repo := new(mocks.MockOutboxRepository)
	publisher := new(mocks.MockPublisher)

	repo.On("FetchPendingOutbox", mock.Anything, 10).Return(nil, errors.New("db gone")).Once()

	worker := NewOutboxWorker(repo, publisher, time.Second, 10, zap.NewNop())

	assert.Equal(t, 0, worker.ProcessBatch(context.Background()))
	publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
}

func TestOutboxWorker_ProcessBatch_MarkFailureDoesNotStopBatch(t *testing.T) {
	repo := new(mocks.MockOutboxRepository)
	publisher := new(mocks.MockPublisher)
	first := pendingEvent(t, "ORDER_CREATED")
	second := pendingEvent(t, "ORDER_SUCCEEDED")

	repo.On("FetchPendingOutbox", mock.Anything, 10).Return([]sharedDomain.OutboxEvent{first, second}, nil).Once()
	publisher.On("Publish", mock.Anything, mock.Anything).Return(nil).Twice()
	repo.On("MarkOutboxSent", mock.Anything, first.ID).Return(errors.New("locked")).Once()
	repo.On("MarkOutboxSent", mock.Anything, second.ID).Return(nil).Once()

	worker := NewOutboxWorker(repo, publisher, time.Second, 10, zap.NewNop())

	assert.Equal(t, 1, worker.ProcessBatch(context.Background()))
	repo.AssertExpectations(t)
	publisher.AssertExpectations(t)
}

// Verificación estática de que los mocks cumplen las interfaces.
var _ sharedDomain.OutboxRepository = (*mocks.MockOutboxRepository)(nil)
var _ sharedBus.EventBus = (*mocks.MockPublisher)(nil)
