package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	sharedDomain "github.com/damian-zhang-1027/order-service/internal/shared/domain"
)

// EmbeddedJSON acepta tanto un objeto JSON como un string que contiene JSON.
// Algunos productores serializan payload y metadata como strings.
type EmbeddedJSON json.RawMessage

func (j EmbeddedJSON) MarshalJSON() ([]byte, error) {
	if len(j) == 0 {
		return []byte("null"), nil
	}
	return j, nil
}

func (j *EmbeddedJSON) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*j = nil
		return nil
	}

	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		if s == "" {
			*j = nil
			return nil
		}
		if !json.Valid([]byte(s)) {
			return errors.New("embedded field is not valid JSON")
		}
		*j = append((*j)[0:0], s...)
		return nil
	}

	*j = append((*j)[0:0], trimmed...)
	return nil
}

// IntegrationEvent es el sobre que viaja por el bus, con la misma forma que una fila de outbox.
type IntegrationEvent struct {
	EventID       string       `json:"eventId"`
	AggregateType string       `json:"aggregateType,omitempty"`
	AggregateID   string       `json:"aggregateId,omitempty"`
	EventType     string       `json:"eventType"`
	Payload       EmbeddedJSON `json:"payload"`
	Metadata      EmbeddedJSON `json:"metadata,omitempty"`
	Status        string       `json:"status,omitempty"`
}

func (e IntegrationEvent) PartitionKey() string {
	return e.AggregateID
}

// Topic: el tipo de agregado nombra el topic de destino.
func (e IntegrationEvent) Topic() string {
	return e.AggregateType
}

// DecodeMetadata devuelve metadata vacía si el evento no trae ninguna.
func (e IntegrationEvent) DecodeMetadata() (sharedDomain.EventMetadata, error) {
	var meta sharedDomain.EventMetadata
	if len(e.Metadata) == 0 {
		return meta, nil
	}
	if err := json.Unmarshal(e.Metadata, &meta); err != nil {
		return meta, fmt.Errorf("invalid event metadata: %w", err)
	}
	return meta, nil
}

// FromOutbox convierte una fila de outbox en el sobre publicado.
func FromOutbox(evt sharedDomain.OutboxEvent) (IntegrationEvent, error) {
	meta, err := json.Marshal(evt.Metadata)
	if err != nil {
		return IntegrationEvent{}, fmt.Errorf("failed to marshal metadata of %s: %w", evt.ID, err)
	}
	return IntegrationEvent{
		EventID:       evt.ID.String(),
		AggregateType: evt.AggregateType,
		AggregateID:   evt.AggregateID,
		EventType:     evt.EventType,
		Payload:       EmbeddedJSON(evt.Payload),
		Metadata:      EmbeddedJSON(meta),
		Status:        string(sharedDomain.OutboxSent),
	}, nil
}
