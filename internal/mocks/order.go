package mocks

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	orderDomain "github.com/damian-zhang-1027/order-service/internal/order/domain"
	sharedDomain "github.com/damian-zhang-1027/order-service/internal/shared/domain"
	sharedQuery "github.com/damian-zhang-1027/order-service/internal/shared/infra/platform/query"
)

// InMemoryOrderRepo simula OrderRepository con outbox y processed_events incluidos.
// Los *Err permiten simular fallos de almacenamiento.
type InMemoryOrderRepo struct {
	Orders    map[int64]*orderDomain.Order
	Outbox    []sharedDomain.OutboxEvent
	Processed map[string]int64

	CreateErr     error
	TransitionErr error
	GetErr        error

	mu sync.Mutex
}

func NewInMemoryOrderRepo() *InMemoryOrderRepo {
	return &InMemoryOrderRepo{
		Orders:    make(map[int64]*orderDomain.Order),
		Outbox:    []sharedDomain.OutboxEvent{},
		Processed: make(map[string]int64),
	}
}

func copyOrder(o *orderDomain.Order) *orderDomain.Order {
	c := *o
	c.Items = append([]orderDomain.OrderItem(nil), o.Items...)
	return &c
}

// Seed inserta una orden sin evento (útil para preparar la saga).
func (r *InMemoryOrderRepo) Seed(o *orderDomain.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Orders[o.ID] = copyOrder(o)
}

func (r *InMemoryOrderRepo) OutboxSnapshot() []sharedDomain.OutboxEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sharedDomain.OutboxEvent(nil), r.Outbox...)
}

func (r *InMemoryOrderRepo) Create(ctx context.Context, o *orderDomain.Order, evt sharedDomain.OutboxEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.CreateErr != nil {
		return r.CreateErr
	}
	if _, ok := r.Orders[o.ID]; ok {
		return fmt.Errorf("order %d already exists", o.ID)
	}
	r.Orders[o.ID] = copyOrder(o)
	r.Outbox = append(r.Outbox, evt)
	return nil
}

func (r *InMemoryOrderRepo) GetByID(ctx context.Context, id int64) (*orderDomain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.GetErr != nil {
		return nil, r.GetErr
	}
	o, ok := r.Orders[id]
	if !ok {
		return nil, orderDomain.ErrOrderNotFound
	}
	return copyOrder(o), nil
}

func (r *InMemoryOrderRepo) ApplyTransition(ctx context.Context, t orderDomain.SagaTransition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.TransitionErr != nil {
		return r.TransitionErr
	}
	if _, seen := r.Processed[t.IncomingEventID]; seen {
		return orderDomain.ErrEventAlreadyProcessed
	}
	o, ok := r.Orders[t.OrderID]
	if !ok {
		return orderDomain.ErrOrderNotFound
	}
	if o.Status != t.From {
		return orderDomain.ErrOrderAlreadyFinalized
	}
	o.Status = t.To
	r.Processed[t.IncomingEventID] = t.OrderID
	r.Outbox = append(r.Outbox, t.Event)
	return nil
}

func (r *InMemoryOrderRepo) matching(criteria sharedDomain.Criteria) []*orderDomain.Order {
	var out []*orderDomain.Order
	for _, o := range r.Orders {
		if matches(o, criteria) {
			out = append(out, o)
		}
	}
	return out
}

func matches(o *orderDomain.Order, criteria sharedDomain.Criteria) bool {
	if criteria == nil {
		return true
	}
	for _, c := range criteria.ToConditions() {
		switch c.Field {
		case "buyer_user_id":
			if v, ok := c.Value.(int64); ok && o.BuyerUserID != v {
				return false
			}
		case "status":
			if v, ok := c.Value.(string); ok && string(o.Status) != v {
				return false
			}
		}
	}
	return true
}

func (r *InMemoryOrderRepo) ListByCriteria(ctx context.Context, criteria sharedDomain.Criteria, pagination sharedQuery.Pagination, sorts sharedQuery.Sort) ([]*orderDomain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.matching(criteria)
	sort.Slice(list, func(i, j int) bool {
		if sorts.Desc {
			return list[i].CreatedAt.After(list[j].CreatedAt)
		}
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})

	if p, ok := pagination.(sharedQuery.OffsetPagination); ok {
		if p.Offset >= len(list) {
			return []*orderDomain.Order{}, nil
		}
		end := len(list)
		if p.Limit > 0 && p.Offset+p.Limit < end {
			end = p.Offset + p.Limit
		}
		list = list[p.Offset:end]
	}

	out := make([]*orderDomain.Order, 0, len(list))
	for _, o := range list {
		summary := copyOrder(o)
		summary.Items = nil
		out = append(out, summary)
	}
	return out, nil
}

func (r *InMemoryOrderRepo) CountByCriteria(ctx context.Context, criteria sharedDomain.Criteria) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.matching(criteria)), nil
}

var _ orderDomain.OrderRepository = (*InMemoryOrderRepo)(nil)

// ---------------- Producto ----------------

// FakeProductGateway responde desde un mapa; Errs y Delay simulan fallos y lentitud.
type FakeProductGateway struct {
	Products map[int64]*orderDomain.Product
	Errs     map[int64]error
	Delay    time.Duration

	mu    sync.Mutex
	Calls []int64
}

func NewFakeProductGateway(products ...*orderDomain.Product) *FakeProductGateway {
	g := &FakeProductGateway{
		Products: make(map[int64]*orderDomain.Product),
		Errs:     make(map[int64]error),
	}
	for _, p := range products {
		g.Products[p.ID] = p
	}
	return g
}

func (g *FakeProductGateway) FetchProduct(ctx context.Context, productID int64) (*orderDomain.Product, error) {
	g.mu.Lock()
	g.Calls = append(g.Calls, productID)
	g.mu.Unlock()

	if g.Delay > 0 {
		select {
		case <-time.After(g.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err, ok := g.Errs[productID]; ok {
		return nil, err
	}
	p, ok := g.Products[productID]
	if !ok {
		return nil, fmt.Errorf("product %d not found", productID)
	}
	cp := *p
	return &cp, nil
}

var _ orderDomain.ProductGateway = (*FakeProductGateway)(nil)

// SequenceIDGenerator devuelve ids consecutivos empezando en Next.
type SequenceIDGenerator struct {
	Next int64
	mu   sync.Mutex
}

func (g *SequenceIDGenerator) NextID() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Next++
	return g.Next
}

// FakeSalesAnalytics acumula las filas recibidas.
type FakeSalesAnalytics struct {
	Rows []orderDomain.OrderOutcome
	Err  error
	mu   sync.Mutex
}

func (f *FakeSalesAnalytics) LogBatch(ctx context.Context, outcomes []orderDomain.OrderOutcome) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.Rows = append(f.Rows, outcomes...)
	return nil
}

var _ orderDomain.SalesAnalyticsRepository = (*FakeSalesAnalytics)(nil)
