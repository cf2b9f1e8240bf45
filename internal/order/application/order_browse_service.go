package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/damian-zhang-1027/order-service/internal/order/domain"
	sharedDomain "github.com/damian-zhang-1027/order-service/internal/shared/domain"
	sharedCache "github.com/damian-zhang-1027/order-service/internal/shared/infra/platform/cache"
	sharedQuery "github.com/damian-zhang-1027/order-service/internal/shared/infra/platform/query"
	sharedUtils "github.com/damian-zhang-1027/order-service/internal/shared/infra/utils"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100

	defaultCacheTTLSecs = 60
)

type OrderPage struct {
	Items      []*domain.Order `json:"items"`
	Page       int             `json:"page"`
	Size       int             `json:"size"`
	Total      int             `json:"total"`
	TotalPages int             `json:"totalPages"`
}

// OrderBrowseService expone las órdenes de un comprador (listado y detalle con caché).
type OrderBrowseService struct {
	repo         domain.OrderRepository
	cache        sharedCache.Cache
	cacheTTLSecs int
	log          *zap.Logger
}

func NewOrderBrowseService(repo domain.OrderRepository, cache sharedCache.Cache, cacheTTLSecs int, log *zap.Logger) *OrderBrowseService {
	if cacheTTLSecs <= 0 {
		cacheTTLSecs = defaultCacheTTLSecs
	}
	return &OrderBrowseService{repo: repo, cache: cache, cacheTTLSecs: cacheTTLSecs, log: log}
}

// ListMyOrders pagina por created_at descendente. page empieza en 0.
func (s *OrderBrowseService) ListMyOrders(ctx context.Context, buyerUserID int64, page, size int) (*OrderPage, error) {
	if page < 0 {
		page = 0
	}
	if size <= 0 {
		size = DefaultPageSize
	}
	size = sharedUtils.Ternary(size > MaxPageSize, MaxPageSize, size)

	criteria := sharedDomain.And(domain.BuyerCriteria{BuyerUserID: buyerUserID})

	total, err := s.repo.CountByCriteria(ctx, criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to count orders: %w", err)
	}

	orders, err := s.repo.ListByCriteria(ctx, criteria, sharedQuery.PageRequest(page, size), sharedQuery.Sort{Field: "created_at", Desc: true})
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}

	return &OrderPage{
		Items:      orders,
		Page:       page,
		Size:       size,
		Total:      total,
		TotalPages: (total + size - 1) / size,
	}, nil
}

// GetMyOrder distingue entre orden inexistente y orden de otro comprador.
func (s *OrderBrowseService) GetMyOrder(ctx context.Context, buyerUserID, orderID int64) (*domain.Order, error) {
	order, err := s.getOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.OwnedBy(buyerUserID) {
		s.log.Warn("Access to foreign order denied", zap.Int64("order_id", orderID), zap.Int64("buyer_id", buyerUserID))
		return nil, fmt.Errorf("%w: order %d", domain.ErrOrderAccessDenied, orderID)
	}
	return order, nil
}

func (s *OrderBrowseService) getOrder(ctx context.Context, orderID int64) (*domain.Order, error) {
	// 1. Intentar cache
	if s.cache != nil {
		var cached domain.Order
		if ok, _ := s.cache.Get(ctx, domain.OrderCacheKeyByID(orderID), &cached); ok {
			return &cached, nil
		}
	}

	// 2. Ir al repo con reintentos; un "not found" no se reintenta
	var order *domain.Order
	err := sharedUtils.Retry(ctx, 3, 100*time.Millisecond, func() error {
		var err error
		order, err = s.repo.GetByID(ctx, orderID)
		if errors.Is(err, domain.ErrOrderNotFound) {
			return sharedUtils.Permanent(err)
		}
		return err
	})
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			return nil, fmt.Errorf("%w: %d", domain.ErrOrderNotFound, orderID)
		}
		return nil, err
	}

	// 3. Solo se cachean estados terminales: ya no pueden cambiar
	if order.Status.IsTerminal() {
		sharedCache.AsyncCacheSet(s.cache, domain.OrderCacheKeyByID(orderID), order, s.cacheTTLSecs, s.log)
	}
	return order, nil
}
