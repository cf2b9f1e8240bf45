package application

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/damian-zhang-1027/order-service/internal/order/domain"
	sharedDomain "github.com/damian-zhang-1027/order-service/internal/shared/domain"
	"github.com/damian-zhang-1027/order-service/internal/shared/infra/platform/tracing"
)

const (
	defaultLookupTimeout     = 2 * time.Second
	defaultLookupConcurrency = 4
)

// ItemRequest es una línea tal y como la pide el comprador.
type ItemRequest struct {
	ProductID int64 `json:"productId"`
	Quantity  int   `json:"quantity"`
}

type CreationConfig struct {
	LookupTimeout     time.Duration // por consulta de producto
	LookupConcurrency int           // consultas simultáneas como máximo
}

// OrderCreationService valida una orden contra el servicio de productos y la persiste
// junto a su evento ORDER_CREATED en una única transacción.
type OrderCreationService struct {
	repo     domain.OrderRepository
	products domain.ProductGateway
	ids      domain.IDGenerator
	cfg      CreationConfig
	log      *zap.Logger
	now      func() time.Time
}

func NewOrderCreationService(
	repo domain.OrderRepository,
	products domain.ProductGateway,
	ids domain.IDGenerator,
	cfg CreationConfig,
	log *zap.Logger,
) *OrderCreationService {
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = defaultLookupTimeout
	}
	if cfg.LookupConcurrency <= 0 {
		cfg.LookupConcurrency = defaultLookupConcurrency
	}
	return &OrderCreationService{
		repo:     repo,
		products: products,
		ids:      ids,
		cfg:      cfg,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateOrder no escribe nada hasta que todas las comprobaciones han pasado.
func (s *OrderCreationService) CreateOrder(ctx context.Context, buyerUserID int64, items []ItemRequest) (*domain.Order, error) {
	if err := validateRequest(buyerUserID, items); err != nil {
		return nil, err
	}

	products, err := s.fetchProducts(ctx, items)
	if err != nil {
		s.log.Warn("⚠️ Product lookup failed", zap.Int64("buyer_id", buyerUserID), zap.Error(err))
		return nil, err
	}

	lines := make([]domain.OrderItem, 0, len(items))
	for i, req := range items {
		p := products[i]
		if p.SellerID == buyerUserID {
			return nil, fmt.Errorf("%w: product %d", domain.ErrSelfPurchaseForbidden, p.ID)
		}
		if p.StockAvailable < req.Quantity {
			return nil, fmt.Errorf("%w: product %d has %d, requested %d",
				domain.ErrInsufficientStock, p.ID, p.StockAvailable, req.Quantity)
		}
		// El precio sale siempre del servicio de productos, nunca del cliente.
		lines = append(lines, domain.OrderItem{
			ProductID: p.ID,
			SellerID:  p.SellerID,
			Quantity:  req.Quantity,
			UnitPrice: p.Price,
		})
	}

	now := s.now()
	order := domain.NewOrder(s.ids.NextID(), buyerUserID, lines, now)

	meta := sharedDomain.NewEventMetadata(
		tracing.TraceIDFromContext(ctx),
		nil,
		strconv.FormatInt(buyerUserID, 10),
		now,
	)
	evt, err := sharedDomain.NewOutboxEvent(
		domain.OrderAggregate,
		order.PartitionKey(),
		domain.OrderCreated,
		domain.NewOrderCreatedPayload(order),
		meta,
		now,
	)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, order, evt); err != nil {
		s.log.Error("❌ Failed to persist order",
			zap.Int64("order_id", order.ID),
			zap.Int64("buyer_id", buyerUserID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to persist order: %w", err)
	}

	s.log.Info("🧾 Order created",
		zap.Int64("order_id", order.ID),
		zap.Int64("buyer_id", buyerUserID),
		zap.Int64("total_amount", order.TotalAmount),
		zap.String("event_id", evt.ID.String()),
		zap.String("trace_id", meta.TraceID),
	)
	return order, nil
}

func validateRequest(buyerUserID int64, items []ItemRequest) error {
	if buyerUserID <= 0 {
		return fmt.Errorf("%w: missing buyer", domain.ErrInvalidOrderRequest)
	}
	if len(items) == 0 {
		return fmt.Errorf("%w: at least one item is required", domain.ErrInvalidOrderRequest)
	}
	seen := make(map[int64]struct{}, len(items))
	for _, it := range items {
		if it.ProductID <= 0 {
			return fmt.Errorf("%w: invalid product id %d", domain.ErrInvalidOrderRequest, it.ProductID)
		}
		if it.Quantity <= 0 {
			return fmt.Errorf("%w: quantity for product %d must be positive", domain.ErrInvalidOrderRequest, it.ProductID)
		}
		if _, dup := seen[it.ProductID]; dup {
			return fmt.Errorf("%w: product %d appears more than once", domain.ErrInvalidOrderRequest, it.ProductID)
		}
		seen[it.ProductID] = struct{}{}
	}
	return nil
}

// fetchProducts consulta todos los productos en paralelo (acotado). Un solo fallo cancela el resto.
// El resultado conserva el orden de items.
func (s *OrderCreationService) fetchProducts(ctx context.Context, items []ItemRequest) ([]*domain.Product, error) {
	results := make([]*domain.Product, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.LookupConcurrency)

	for i, it := range items {
		g.Go(func() error {
			lookupCtx, cancel := context.WithTimeout(gctx, s.cfg.LookupTimeout)
			defer cancel()

			p, err := s.products.FetchProduct(lookupCtx, it.ProductID)
			if err != nil {
				return fmt.Errorf("%w: product %d: %v", domain.ErrProductUnavailable, it.ProductID, err)
			}
			if p == nil || p.ID != it.ProductID || p.Price < 0 {
				return fmt.Errorf("%w: product %d: unexpected product data", domain.ErrProductUnavailable, it.ProductID)
			}
			results[i] = p
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
