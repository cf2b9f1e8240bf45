package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	orderDomain "github.com/damian-zhang-1027/order-service/internal/order/domain"
	sharedDomain "github.com/damian-zhang-1027/order-service/internal/shared/domain"
	sharedPostgres "github.com/damian-zhang-1027/order-service/internal/shared/infra/platform/db/postgres"
	sharedQuery "github.com/damian-zhang-1027/order-service/internal/shared/infra/platform/query"
)

// OrderRepoPostgres implementa OrderRepository sobre pgxpool.
type OrderRepoPostgres struct {
	pool *pgxpool.Pool
}

func NewOrderRepoPostgres(pool *pgxpool.Pool) *OrderRepoPostgres {
	return &OrderRepoPostgres{pool: pool}
}

// ------------------ Escrituras + Outbox ------------------

func (r *OrderRepoPostgres) Create(ctx context.Context, o *orderDomain.Order, evt sharedDomain.OutboxEvent) error {
	return withTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		const insertOrder = `
INSERT INTO orders (id, buyer_user_id, status, total_amount, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $5)`

		if _, err := tx.Exec(ctx, insertOrder, o.ID, o.BuyerUserID, string(o.Status), o.TotalAmount, o.CreatedAt); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("order %d already exists: %w", o.ID, err)
			}
			return fmt.Errorf("insert order: %w", err)
		}

		// Un solo round-trip para todas las líneas
		batch := &pgx.Batch{}
		for _, it := range o.Items {
			batch.Queue(`
INSERT INTO order_items (order_id, product_id, seller_id, quantity, unit_price)
VALUES ($1, $2, $3, $4, $5)`, o.ID, it.ProductID, it.SellerID, it.Quantity, it.UnitPrice)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert order items: %w", err)
		}

		return sharedPostgres.InsertOutboxTx(ctx, tx, evt)
	})
}

func (r *OrderRepoPostgres) ApplyTransition(ctx context.Context, t orderDomain.SagaTransition) error {
	return withTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
INSERT INTO processed_events (event_id, order_id, processed_at)
VALUES ($1, $2, now())
ON CONFLICT (event_id) DO NOTHING`, t.IncomingEventID, t.OrderID)
		if err != nil {
			return fmt.Errorf("record processed event: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return orderDomain.ErrEventAlreadyProcessed
		}

		tag, err = tx.Exec(ctx, `
UPDATE orders SET status = $3, updated_at = now()
WHERE id = $1 AND status = $2`, t.OrderID, string(t.From), string(t.To))
		if err != nil {
			return fmt.Errorf("update order status: %w", err)
		}
		if tag.RowsAffected() == 0 {
			var current string
			err := tx.QueryRow(ctx, `SELECT status FROM orders WHERE id = $1`, t.OrderID).Scan(&current)
			if errors.Is(err, pgx.ErrNoRows) {
				return orderDomain.ErrOrderNotFound
			}
			if err != nil {
				return fmt.Errorf("get order status: %w", err)
			}
			return fmt.Errorf("%w: order %d is %s", orderDomain.ErrOrderAlreadyFinalized, t.OrderID, current)
		}

		return sharedPostgres.InsertOutboxTx(ctx, tx, t.Event)
	})
}

// ------------------ Lectura ------------------

func (r *OrderRepoPostgres) GetByID(ctx context.Context, id int64) (*orderDomain.Order, error) {
	const query = `SELECT id, buyer_user_id, status, total_amount, created_at FROM orders WHERE id = $1`

	var o orderDomain.Order
	var status string
	err := r.pool.QueryRow(ctx, query, id).Scan(&o.ID, &o.BuyerUserID, &status, &o.TotalAmount, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, orderDomain.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	o.Status = orderDomain.OrderStatus(status)

	rows, err := r.pool.Query(ctx, `
SELECT id, order_id, product_id, seller_id, quantity, unit_price
FROM order_items WHERE order_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("get order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var it orderDomain.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.SellerID, &it.Quantity, &it.UnitPrice); err != nil {
			return nil, err
		}
		o.Items = append(o.Items, it)
	}
	return &o, rows.Err()
}

// applyCriteria genera la cláusula WHERE con placeholders $n.
func applyCriteria(criteria sharedDomain.Criteria) (string, []any, error) {
	if criteria == nil {
		return "", nil, nil
	}
	var clauses []string
	var args []any
	for _, c := range criteria.ToConditions() {
		if !orderDomain.AllowedOrderFields[c.Field] {
			return "", nil, fmt.Errorf("unsupported filter field %q", c.Field)
		}
		args = append(args, c.Value)
		clauses = append(clauses, fmt.Sprintf("%s %s $%d", c.Field, c.Op, len(args)))
	}
	if len(clauses) == 0 {
		return "", nil, nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args, nil
}

func (r *OrderRepoPostgres) ListByCriteria(ctx context.Context, criteria sharedDomain.Criteria, pagination sharedQuery.Pagination, sort sharedQuery.Sort) ([]*orderDomain.Order, error) {
	where, args, err := applyCriteria(criteria)
	if err != nil {
		return nil, err
	}

	orderBy := "created_at DESC, id DESC"
	if sort.Field != "" {
		if !orderDomain.AllowedOrderFields[sort.Field] {
			return nil, fmt.Errorf("unsupported sort field %q", sort.Field)
		}
		dir := "ASC"
		if sort.Desc {
			dir = "DESC"
		}
		orderBy = fmt.Sprintf("%s %s, id %s", sort.Field, dir, dir)
	}

	query := "SELECT id, buyer_user_id, status, total_amount, created_at FROM orders" + where + " ORDER BY " + orderBy
	if p, ok := pagination.(sharedQuery.OffsetPagination); ok && p.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
		args = append(args, p.Limit, p.Offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := []*orderDomain.Order{}
	for rows.Next() {
		var o orderDomain.Order
		var status string
		if err := rows.Scan(&o.ID, &o.BuyerUserID, &status, &o.TotalAmount, &o.CreatedAt); err != nil {
			return nil, err
		}
		o.Status = orderDomain.OrderStatus(status)
		orders = append(orders, &o)
	}
	return orders, rows.Err()
}

func (r *OrderRepoPostgres) CountByCriteria(ctx context.Context, criteria sharedDomain.Criteria) (int, error) {
	where, args, err := applyCriteria(criteria)
	if err != nil {
		return 0, err
	}
	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM orders"+where, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count orders: %w", err)
	}
	return total, nil
}

// ------------------ Inicialización de DB ------------------

func InitPostgres(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS orders (
            id BIGINT PRIMARY KEY,
            buyer_user_id BIGINT NOT NULL,
            status TEXT NOT NULL CHECK (status IN ('PENDING','SUCCEEDED','FAILED')),
            total_amount BIGINT NOT NULL CHECK (total_amount >= 0),
            created_at TIMESTAMPTZ NOT NULL,
            updated_at TIMESTAMPTZ NOT NULL
        )`,
		`CREATE INDEX IF NOT EXISTS idx_orders_buyer_created ON orders (buyer_user_id, created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS order_items (
            id BIGSERIAL PRIMARY KEY,
            order_id BIGINT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
            product_id BIGINT NOT NULL,
            seller_id BIGINT NOT NULL,
            quantity INT NOT NULL CHECK (quantity > 0),
            unit_price BIGINT NOT NULL
        )`,
		`CREATE INDEX IF NOT EXISTS idx_order_items_order ON order_items (order_id)`,
		`CREATE TABLE IF NOT EXISTS processed_events (
            event_id TEXT PRIMARY KEY,
            order_id BIGINT NOT NULL,
            processed_at TIMESTAMPTZ NOT NULL
        )`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return sharedPostgres.InitOutboxSchema(ctx, pool)
}

var _ orderDomain.OrderRepository = (*OrderRepoPostgres)(nil)
