package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type OutboxStatus string

const (
	OutboxPending OutboxStatus = "PENDING"
	OutboxSent    OutboxStatus = "SENT"
)

// EventMetadata viaja junto a cada evento y permite reconstruir la cadena causal.
type EventMetadata struct {
	TraceID     string  `json:"traceId"`
	CausationID *string `json:"causationId"` // nil en el evento raíz de una saga
	UserID      string  `json:"userId"`
	Timestamp   int64   `json:"timestamp"` // epoch millis
}

// NewEventMetadata construye la metadata con el timestamp en milisegundos.
func NewEventMetadata(traceID string, causationID *string, userID string, at time.Time) EventMetadata {
	return EventMetadata{
		TraceID:     traceID,
		CausationID: causationID,
		UserID:      userID,
		Timestamp:   at.UnixMilli(),
	}
}

// OutboxEvent representa un evento pendiente de publicar en el broker.
type OutboxEvent struct {
	ID            uuid.UUID       `json:"eventId"`
	AggregateType string          `json:"aggregateType"` // ej. "orders"
	AggregateID   string          `json:"aggregateId"`
	EventType     string          `json:"eventType"` // ej. "ORDER_CREATED"
	Payload       json.RawMessage `json:"payload"`
	Metadata      EventMetadata   `json:"metadata"`
	Status        OutboxStatus    `json:"status"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// NewOutboxEvent serializa el payload (salvo que ya sea JSON crudo) y deja el evento en PENDING.
func NewOutboxEvent(aggregateType, aggregateID, eventType string, payload interface{}, meta EventMetadata, now time.Time) (OutboxEvent, error) {
	var raw json.RawMessage
	switch p := payload.(type) {
	case json.RawMessage:
		raw = p
	case []byte:
		raw = json.RawMessage(p)
	default:
		b, err := json.Marshal(payload)
		if err != nil {
			return OutboxEvent{}, fmt.Errorf("failed to marshal outbox payload: %w", err)
		}
		raw = b
	}
	if !json.Valid(raw) {
		return OutboxEvent{}, fmt.Errorf("outbox payload for %s is not valid JSON", eventType)
	}

	return OutboxEvent{
		ID:            uuid.New(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       raw,
		Metadata:      meta,
		Status:        OutboxPending,
		CreatedAt:     now,
	}, nil
}

// OutboxRepository define el contrato para acceder a la tabla outbox.
// Es una interfaz más pequeña que la de un repositorio de dominio completo,
// conteniendo solo los métodos que el relay necesita.
type OutboxRepository interface {
	FetchPendingOutbox(ctx context.Context, limit int) ([]OutboxEvent, error)
	MarkOutboxSent(ctx context.Context, id uuid.UUID) error
}
