package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	orderDomain "github.com/damian-zhang-1027/order-service/internal/order/domain"
	sharedDomain "github.com/damian-zhang-1027/order-service/internal/shared/domain"
	sharedMongo "github.com/damian-zhang-1027/order-service/internal/shared/infra/platform/db/mongodb"
	sharedQuery "github.com/damian-zhang-1027/order-service/internal/shared/infra/platform/query"
)

// OrderRepoMongoDB guarda la orden con sus líneas embebidas. Requiere replica set (transacciones).
type OrderRepoMongoDB struct {
	client        *mongo.Client
	ordersColl    *mongo.Collection
	processedColl *mongo.Collection
	outboxColl    *mongo.Collection
}

func NewOrderRepoMongoDB(ctx context.Context, client *mongo.Client, dbName string) (*OrderRepoMongoDB, error) {
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("could not ping mongoDB: %w", err)
	}

	db := client.Database(dbName)
	return &OrderRepoMongoDB{
		client:        client,
		ordersColl:    db.Collection("orders"),
		processedColl: db.Collection("processed_events"),
		outboxColl:    db.Collection(sharedMongo.OutboxCollection),
	}, nil
}

// --- Structs de BSON para el mapeo ---

type mongoOrderItem struct {
	ProductID int64 `bson:"productId"`
	SellerID  int64 `bson:"sellerId"`
	Quantity  int   `bson:"quantity"`
	UnitPrice int64 `bson:"unitPrice"`
}

type mongoOrder struct {
	ID          int64            `bson:"_id"`
	BuyerUserID int64            `bson:"buyer_user_id"`
	Status      string           `bson:"status"`
	TotalAmount int64            `bson:"total_amount"`
	CreatedAt   time.Time        `bson:"created_at"`
	UpdatedAt   time.Time        `bson:"updated_at"`
	Items       []mongoOrderItem `bson:"items,omitempty"`
}

type mongoProcessedEvent struct {
	EventID     string    `bson:"_id"`
	OrderID     int64     `bson:"orderId"`
	ProcessedAt time.Time `bson:"processedAt"`
}

// --- Escrituras transaccionales ---

func (r *OrderRepoMongoDB) Create(ctx context.Context, o *orderDomain.Order, evt sharedDomain.OutboxEvent) error {
	session, err := r.client.StartSession()
	if err != nil {
		return err
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
		if _, err := r.ordersColl.InsertOne(sessCtx, toMongoOrder(o)); err != nil {
			return nil, fmt.Errorf("failed to insert order: %w", err)
		}
		return nil, sharedMongo.InsertOutbox(sessCtx, r.outboxColl, evt)
	})
	return err
}

func (r *OrderRepoMongoDB) ApplyTransition(ctx context.Context, t orderDomain.SagaTransition) error {
	session, err := r.client.StartSession()
	if err != nil {
		return err
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
		now := time.Now().UTC()

		_, err := r.processedColl.InsertOne(sessCtx, mongoProcessedEvent{
			EventID: t.IncomingEventID, OrderID: t.OrderID, ProcessedAt: now,
		})
		if mongo.IsDuplicateKeyError(err) {
			return nil, orderDomain.ErrEventAlreadyProcessed
		}
		if err != nil {
			return nil, fmt.Errorf("failed to record processed event: %w", err)
		}

		res, err := r.ordersColl.UpdateOne(sessCtx,
			bson.M{"_id": t.OrderID, "status": string(t.From)},
			bson.M{"$set": bson.M{"status": string(t.To), "updated_at": now}},
		)
		if err != nil {
			return nil, err
		}
		if res.MatchedCount == 0 {
			n, err := r.ordersColl.CountDocuments(sessCtx, bson.M{"_id": t.OrderID})
			if err != nil {
				return nil, err
			}
			if n == 0 {
				return nil, orderDomain.ErrOrderNotFound
			}
			return nil, fmt.Errorf("%w: order %d", orderDomain.ErrOrderAlreadyFinalized, t.OrderID)
		}

		return nil, sharedMongo.InsertOutbox(sessCtx, r.outboxColl, t.Event)
	})
	return err
}

// --- Lectura ---

func (r *OrderRepoMongoDB) GetByID(ctx context.Context, id int64) (*orderDomain.Order, error) {
	var mo mongoOrder
	err := r.ordersColl.FindOne(ctx, bson.M{"_id": id}).Decode(&mo)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, orderDomain.ErrOrderNotFound
		}
		return nil, err
	}
	return fromMongoOrder(&mo, true), nil
}

func (r *OrderRepoMongoDB) ListByCriteria(ctx context.Context, criteria sharedDomain.Criteria, pagination sharedQuery.Pagination, sort sharedQuery.Sort) ([]*orderDomain.Order, error) {
	filter, err := criteriaToMongoFilter(criteria)
	if err != nil {
		return nil, err
	}

	opts := options.Find().SetProjection(bson.M{"items": 0})
	if p, ok := pagination.(sharedQuery.OffsetPagination); ok && p.Limit > 0 {
		opts.SetSkip(int64(p.Offset))
		opts.SetLimit(int64(p.Limit))
	}

	sortField, sortDir := "created_at", -1
	if sort.Field != "" {
		if !orderDomain.AllowedOrderFields[sort.Field] {
			return nil, fmt.Errorf("unsupported sort field %q", sort.Field)
		}
		sortField, sortDir = mongoField(sort.Field), 1
		if sort.Desc {
			sortDir = -1
		}
	}
	opts.SetSort(bson.D{{Key: sortField, Value: sortDir}, {Key: "_id", Value: sortDir}})

	cursor, err := r.ordersColl.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	orders := []*orderDomain.Order{}
	for cursor.Next(ctx) {
		var mo mongoOrder
		if err := cursor.Decode(&mo); err != nil {
			return nil, err
		}
		orders = append(orders, fromMongoOrder(&mo, false))
	}
	return orders, cursor.Err()
}

func (r *OrderRepoMongoDB) CountByCriteria(ctx context.Context, criteria sharedDomain.Criteria) (int, error) {
	filter, err := criteriaToMongoFilter(criteria)
	if err != nil {
		return 0, err
	}
	n, err := r.ordersColl.CountDocuments(ctx, filter)
	return int(n), err
}

// EnsureIndexes crea los índices de consulta y los del relay.
func (r *OrderRepoMongoDB) EnsureIndexes(ctx context.Context) error {
	if _, err := r.ordersColl.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "buyer_user_id", Value: 1}, {Key: "created_at", Value: -1}},
	}); err != nil {
		return err
	}
	return sharedMongo.EnsureOutboxIndexes(ctx, r.ordersColl.Database())
}

// --- Helpers de Mapeo y Conversión ---

func toMongoOrder(o *orderDomain.Order) *mongoOrder {
	mo := &mongoOrder{
		ID: o.ID, BuyerUserID: o.BuyerUserID, Status: string(o.Status),
		TotalAmount: o.TotalAmount, CreatedAt: o.CreatedAt, UpdatedAt: o.CreatedAt,
	}
	for _, it := range o.Items {
		mo.Items = append(mo.Items, mongoOrderItem{
			ProductID: it.ProductID, SellerID: it.SellerID, Quantity: it.Quantity, UnitPrice: it.UnitPrice,
		})
	}
	return mo
}

func fromMongoOrder(mo *mongoOrder, withItems bool) *orderDomain.Order {
	o := &orderDomain.Order{
		ID: mo.ID, BuyerUserID: mo.BuyerUserID, Status: orderDomain.OrderStatus(mo.Status),
		TotalAmount: mo.TotalAmount, CreatedAt: mo.CreatedAt,
	}
	if !withItems {
		return o
	}
	for i, it := range mo.Items {
		o.Items = append(o.Items, orderDomain.OrderItem{
			ID: int64(i + 1), OrderID: mo.ID, ProductID: it.ProductID,
			SellerID: it.SellerID, Quantity: it.Quantity, UnitPrice: it.UnitPrice,
		})
	}
	return o
}

func mongoField(field string) string {
	if field == "id" {
		return "_id"
	}
	return field
}

func criteriaToMongoFilter(criteria sharedDomain.Criteria) (bson.D, error) {
	filter := bson.D{}
	if criteria == nil {
		return filter, nil
	}
	for _, c := range criteria.ToConditions() {
		if !orderDomain.AllowedOrderFields[c.Field] {
			return nil, fmt.Errorf("unsupported filter field %q", c.Field)
		}
		var mongoOp string
		switch c.Op {
		case sharedDomain.OpEq:
			mongoOp = "$eq"
		case sharedDomain.OpNeq:
			mongoOp = "$ne"
		case sharedDomain.OpGt:
			mongoOp = "$gt"
		case sharedDomain.OpGte:
			mongoOp = "$gte"
		case sharedDomain.OpLt:
			mongoOp = "$lt"
		case sharedDomain.OpLte:
			mongoOp = "$lte"
		default:
			return nil, fmt.Errorf("unsupported operator %q", c.Op)
		}
		filter = append(filter, bson.E{Key: mongoField(c.Field), Value: bson.M{mongoOp: c.Value}})
	}
	return filter, nil
}

var _ orderDomain.OrderRepository = (*OrderRepoMongoDB)(nil)
