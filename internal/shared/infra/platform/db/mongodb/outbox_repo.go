package mongodb

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	sharedDomain "github.com/damian-zhang-1027/order-service/internal/shared/domain"
)

const OutboxCollection = "outbox"

// OutboxRepoMongoDB implementa la interfaz sharedDomain.OutboxRepository.
type OutboxRepoMongoDB struct {
	outboxColl *mongo.Collection
}

func NewOutboxRepoMongoDB(client *mongo.Client, dbName string) *OutboxRepoMongoDB {
	return &OutboxRepoMongoDB{outboxColl: client.Database(dbName).Collection(OutboxCollection)}
}

// --- Structs de BSON para el mapeo ---

type mongoEventMetadata struct {
	TraceID     string  `bson:"traceId"`
	CausationID *string `bson:"causationId"`
	UserID      string  `bson:"userId"`
	Timestamp   int64   `bson:"timestamp"`
}

// OutboxDocument: el payload se guarda como texto JSON para conservar los bytes tal cual.
type OutboxDocument struct {
	ID            string             `bson:"_id"`
	AggregateType string             `bson:"aggregateType"`
	AggregateID   string             `bson:"aggregateId"`
	EventType     string             `bson:"eventType"`
	Payload       string             `bson:"payload"`
	Metadata      mongoEventMetadata `bson:"metadata"`
	Status        string             `bson:"status"`
	CreatedAt     time.Time          `bson:"createdAt"`
}

func ToOutboxDocument(evt sharedDomain.OutboxEvent) OutboxDocument {
	status := evt.Status
	if status == "" {
		status = sharedDomain.OutboxPending
	}
	return OutboxDocument{
		ID:            evt.ID.String(),
		AggregateType: evt.AggregateType,
		AggregateID:   evt.AggregateID,
		EventType:     evt.EventType,
		Payload:       string(evt.Payload),
		Metadata: mongoEventMetadata{
			TraceID:     evt.Metadata.TraceID,
			CausationID: evt.Metadata.CausationID,
			UserID:      evt.Metadata.UserID,
			Timestamp:   evt.Metadata.Timestamp,
		},
		Status:    string(status),
		CreatedAt: evt.CreatedAt,
	}
}

func FromOutboxDocument(doc OutboxDocument) (sharedDomain.OutboxEvent, error) {
	id, err := uuid.Parse(doc.ID)
	if err != nil {
		return sharedDomain.OutboxEvent{}, fmt.Errorf("invalid UUID in outbox document: %w", err)
	}
	return sharedDomain.OutboxEvent{
		ID:            id,
		AggregateType: doc.AggregateType,
		AggregateID:   doc.AggregateID,
		EventType:     doc.EventType,
		Payload:       json.RawMessage(doc.Payload),
		Metadata: sharedDomain.EventMetadata{
			TraceID:     doc.Metadata.TraceID,
			CausationID: doc.Metadata.CausationID,
			UserID:      doc.Metadata.UserID,
			Timestamp:   doc.Metadata.Timestamp,
		},
		Status:    sharedDomain.OutboxStatus(doc.Status),
		CreatedAt: doc.CreatedAt,
	}, nil
}

// InsertOutbox se llama con el SessionContext de la transacción del agregado.
func InsertOutbox(ctx context.Context, coll *mongo.Collection, evt sharedDomain.OutboxEvent) error {
	if _, err := coll.InsertOne(ctx, ToOutboxDocument(evt)); err != nil {
		return fmt.Errorf("failed to insert outbox event: %w", err)
	}
	return nil
}

// FetchPendingOutbox obtiene los eventos PENDING por orden de creación.
func (r *OutboxRepoMongoDB) FetchPendingOutbox(ctx context.Context, limit int) ([]sharedDomain.OutboxEvent, error) {
	filter := bson.M{"status": string(sharedDomain.OutboxPending)}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}).SetLimit(int64(limit))

	cursor, err := r.outboxColl.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var events []sharedDomain.OutboxEvent
	for cursor.Next(ctx) {
		var doc OutboxDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		evt, err := FromOutboxDocument(doc)
		if err != nil {
			return nil, err
		}
		events = append(events, evt)
	}
	return events, cursor.Err()
}

func (r *OutboxRepoMongoDB) MarkOutboxSent(ctx context.Context, id uuid.UUID) error {
	res, err := r.outboxColl.UpdateOne(ctx,
		bson.M{"_id": id.String()},
		bson.M{"$set": bson.M{"status": string(sharedDomain.OutboxSent)}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("outbox event not found: %s", id)
	}
	return nil
}

// EnsureOutboxIndexes crea el índice que usa el relay.
func EnsureOutboxIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(OutboxCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: 1}},
	})
	return err
}

// Verificación en tiempo de compilación.
var _ sharedDomain.OutboxRepository = (*OutboxRepoMongoDB)(nil)
