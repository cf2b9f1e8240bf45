package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/damian-zhang-1027/order-service/internal/mocks"
	"github.com/damian-zhang-1027/order-service/internal/order/domain"
	sharedEvents "github.com/damian-zhang-1027/order-service/internal/shared/domain/events"
)

func seedOrders(repo *mocks.InMemoryOrderRepo, buyer int64, n int, base time.Time, firstID int64) {
	for i := 0; i < n; i++ {
		o := domain.NewOrder(firstID+int64(i), buyer,
			[]domain.OrderItem{{ProductID: 1, SellerID: 99, Quantity: 1, UnitPrice: 100}},
			base.Add(time.Duration(i)*time.Minute))
		repo.Seed(o)
	}
}

func TestListMyOrders_PaginatesNewestFirst(t *testing.T) {
	repo := mocks.NewInMemoryOrderRepo()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	seedOrders(repo, 1, 12, base, 100)
	seedOrders(repo, 2, 3, base, 500)
	service := NewOrderBrowseService(repo, mocks.NewDummyCache(), 60, zap.NewNop())

	first, err := service.ListMyOrders(context.Background(), 1, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultPageSize, first.Size)
	assert.Equal(t, 12, first.Total)
	assert.Equal(t, 2, first.TotalPages)
	require.Len(t, first.Items, 10)
	assert.Equal(t, int64(111), first.Items[0].ID) // el más reciente
	assert.Nil(t, first.Items[0].Items, "summaries carry no items")

	second, err := service.ListMyOrders(context.Background(), 1, 1, 10)
	require.NoError(t, err)
	require.Len(t, second.Items, 2)
	assert.Equal(t, int64(100), second.Items[1].ID)
}

func TestListMyOrders_ClampsPageSize(t *testing.T) {
	repo := mocks.NewInMemoryOrderRepo()
	service := NewOrderBrowseService(repo, nil, 60, zap.NewNop())

	page, err := service.ListMyOrders(context.Background(), 1, -3, 1000)
	require.NoError(t, err)
	assert.Equal(t, 0, page.Page)
	assert.Equal(t, MaxPageSize, page.Size)
	assert.Empty(t, page.Items)
}

func TestGetMyOrder_OwnerGetsDetail(t *testing.T) {
	repo := mocks.NewInMemoryOrderRepo()
	seedOrders(repo, 1, 1, time.Now(), 42)
	cache := mocks.NewDummyCache()
	service := NewOrderBrowseService(repo, cache, 60, zap.NewNop())

	order, err := service.GetMyOrder(context.Background(), 1, 42)

	require.NoError(t, err)
	assert.Equal(t, int64(42), order.ID)
	require.Len(t, order.Items, 1)
	assert.Never(t, func() bool { return cache.Has(domain.OrderCacheKeyByID(42)) }, 100*time.Millisecond, 10*time.Millisecond,
		"pending orders are not cached")
}

func TestGetMyOrder_CachesTerminalSnapshot(t *testing.T) {
	repo := mocks.NewInMemoryOrderRepo()
	order := domain.NewOrder(42, 1, nil, time.Now())
	order.Status = domain.OrderFailed
	repo.Seed(order)
	cache := mocks.NewDummyCache()
	service := NewOrderBrowseService(repo, cache, 60, zap.NewNop())

	_, err := service.GetMyOrder(context.Background(), 1, 42)

	require.NoError(t, err)
	assert.Eventually(t, func() bool { return cache.Has(domain.OrderCacheKeyByID(42)) }, time.Second, 10*time.Millisecond)
}

// slowSetCache retrasa las escrituras para que compitan con la saga.
type slowSetCache struct {
	*mocks.DummyCache
	delay time.Duration
}

func (c *slowSetCache) Set(ctx context.Context, key string, val interface{}, ttlSecs int) error {
	time.Sleep(c.delay)
	return c.DummyCache.Set(ctx, key, val, ttlSecs)
}

func TestGetMyOrder_SeesSagaOutcomeDespiteSlowCacheWrite(t *testing.T) {
	repo := mocks.NewInMemoryOrderRepo()
	repo.Seed(domain.NewOrder(100, 42, []domain.OrderItem{{ProductID: 1, SellerID: 9, Quantity: 1, UnitPrice: 100}}, time.Now()))
	cache := &slowSetCache{DummyCache: mocks.NewDummyCache(), delay: 30 * time.Millisecond}
	browse := NewOrderBrowseService(repo, cache, 60, zap.NewNop())
	saga := NewOrderSagaService(repo, cache, zap.NewNop())

	before, err := browse.GetMyOrder(context.Background(), 42, 100)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderPending, before.Status)

	incoming := sharedEvents.IntegrationEvent{
		EventID:   "pay-100",
		EventType: domain.PaymentSucceeded,
		Payload:   sharedEvents.EmbeddedJSON(`{"orderId":100}`),
	}
	require.NoError(t, saga.ProcessPaymentResult(context.Background(), incoming))

	time.Sleep(100 * time.Millisecond)

	after, err := browse.GetMyOrder(context.Background(), 42, 100)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderSucceeded, after.Status)
}

func TestGetMyOrder_ForeignOrderDenied(t *testing.T) {
	repo := mocks.NewInMemoryOrderRepo()
	seedOrders(repo, 1, 1, time.Now(), 42)
	service := NewOrderBrowseService(repo, nil, 60, zap.NewNop())

	_, err := service.GetMyOrder(context.Background(), 2, 42)

	assert.ErrorIs(t, err, domain.ErrOrderAccessDenied)
}

func TestGetMyOrder_NotFound(t *testing.T) {
	service := NewOrderBrowseService(mocks.NewInMemoryOrderRepo(), nil, 60, zap.NewNop())

	_, err := service.GetMyOrder(context.Background(), 1, 404)

	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestGetMyOrder_CacheHitStillChecksOwnership(t *testing.T) {
	cache := mocks.NewDummyCache()
	cached := domain.NewOrder(42, 1, nil, time.Now())
	require.NoError(t, cache.Set(context.Background(), domain.OrderCacheKeyByID(42), cached, 60))
	service := NewOrderBrowseService(mocks.NewInMemoryOrderRepo(), cache, 60, zap.NewNop())

	got, err := service.GetMyOrder(context.Background(), 1, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(42), got.ID)

	_, err = service.GetMyOrder(context.Background(), 3, 42)
	assert.ErrorIs(t, err, domain.ErrOrderAccessDenied)
}
