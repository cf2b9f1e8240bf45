package domain

import (
	"context"
	"fmt"

	sharedDomain "github.com/damian-zhang-1027/order-service/internal/shared/domain"
	sharedQuery "github.com/damian-zhang-1027/order-service/internal/shared/infra/platform/query"
)

// --- Producto (colaborador síncrono) ---

type Product struct {
	ID             int64 `json:"id"`
	SellerID       int64 `json:"sellerAdminId"`
	Price          int64 `json:"price"`
	StockAvailable int   `json:"stockAvailable"`
}

type ProductGateway interface {
	FetchProduct(ctx context.Context, productID int64) (*Product, error)
}

// --- Repositorio de Orders ---

// SagaTransition agrupa lo que un paso de la saga escribe en una sola transacción.
type SagaTransition struct {
	OrderID         int64
	From            OrderStatus
	To              OrderStatus
	IncomingEventID string // se registra en processed_events
	Event           sharedDomain.OutboxEvent
}

type OrderRepository interface {
	// Create inserta orden, líneas y evento de outbox de forma atómica.
	Create(ctx context.Context, o *Order, evt sharedDomain.OutboxEvent) error
	GetByID(ctx context.Context, id int64) (*Order, error)
	// ApplyTransition hace CAS From->To, registra el evento entrante y escribe el outbox.
	// Devuelve ErrOrderNotFound, ErrOrderAlreadyFinalized o ErrEventAlreadyProcessed sin escribir nada.
	ApplyTransition(ctx context.Context, t SagaTransition) error
	// ListByCriteria devuelve resúmenes (sin líneas).
	ListByCriteria(ctx context.Context, criteria sharedDomain.Criteria, pagination sharedQuery.Pagination, sort sharedQuery.Sort) ([]*Order, error)
	CountByCriteria(ctx context.Context, criteria sharedDomain.Criteria) (int, error)
}

// IDGenerator asigna ids de orden en el servidor.
type IDGenerator interface {
	NextID() int64
}

// --- Analítica ---

// OrderOutcome es una fila del log de ventas.
type OrderOutcome struct {
	EventID     string
	OrderID     int64
	BuyerUserID string
	Status      OrderStatus
	TotalAmount int64
	TraceID     string
	OccurredAt  int64 // epoch millis
}

type SalesAnalyticsRepository interface {
	LogBatch(ctx context.Context, outcomes []OrderOutcome) error
}

// ---------- Helpers comunes ----------

func OrderCacheKeyByID(id int64) string {
	return fmt.Sprintf("order:id:%d", id)
}
