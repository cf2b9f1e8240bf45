package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	orderDomain "github.com/damian-zhang-1027/order-service/internal/order/domain"
	sharedDomain "github.com/damian-zhang-1027/order-service/internal/shared/domain"
	sharedSQLite "github.com/damian-zhang-1027/order-service/internal/shared/infra/platform/db/sqlite"
	sharedQuery "github.com/damian-zhang-1027/order-service/internal/shared/infra/platform/query"
)

type OrderRepoSQLite struct {
	db *sql.DB
}

func NewOrderRepoSQLite(db *sql.DB) *OrderRepoSQLite {
	return &OrderRepoSQLite{db: db}
}

// ------------------ Escrituras + Outbox ------------------

// Create inserta orden, líneas y evento en una transacción.
func (r *OrderRepoSQLite) Create(ctx context.Context, o *orderDomain.Order, evt sharedDomain.OutboxEvent) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() // no-op tras Commit

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO orders (id, buyer_user_id, status, total_amount, created_at, updated_at) VALUES (?,?,?,?,?,?)`,
		o.ID, o.BuyerUserID, string(o.Status), o.TotalAmount, o.CreatedAt, o.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	for _, it := range o.Items {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO order_items (order_id, product_id, seller_id, quantity, unit_price) VALUES (?,?,?,?,?)`,
			o.ID, it.ProductID, it.SellerID, it.Quantity, it.UnitPrice,
		); err != nil {
			return fmt.Errorf("failed to insert order item %d: %w", it.ProductID, err)
		}
	}

	if err := sharedSQLite.InsertOutboxTx(ctx, tx, evt); err != nil {
		return err
	}

	return tx.Commit()
}

// ApplyTransition: ledger, CAS de estado y outbox en la misma transacción.
func (r *OrderRepoSQLite) ApplyTransition(ctx context.Context, t orderDomain.SagaTransition) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO processed_events (event_id, order_id, processed_at) VALUES (?,?,?)
		 ON CONFLICT(event_id) DO NOTHING`,
		t.IncomingEventID, t.OrderID, now,
	)
	if err != nil {
		return fmt.Errorf("failed to record processed event: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return orderDomain.ErrEventAlreadyProcessed
	}

	res, err = tx.ExecContext(ctx,
		`UPDATE orders SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(t.To), now, t.OrderID, string(t.From),
	)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var current string
		err := tx.QueryRowContext(ctx, `SELECT status FROM orders WHERE id = ?`, t.OrderID).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return orderDomain.ErrOrderNotFound
		}
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: order %d is %s", orderDomain.ErrOrderAlreadyFinalized, t.OrderID, current)
	}

	if err := sharedSQLite.InsertOutboxTx(ctx, tx, t.Event); err != nil {
		return err
	}

	return tx.Commit()
}

// ------------------ Lectura ------------------

func (r *OrderRepoSQLite) GetByID(ctx context.Context, id int64) (*orderDomain.Order, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, buyer_user_id, status, total_amount, created_at FROM orders WHERE id = ?`, id)

	var o orderDomain.Order
	var status string
	if err := row.Scan(&o.ID, &o.BuyerUserID, &status, &o.TotalAmount, &o.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, orderDomain.ErrOrderNotFound
		}
		return nil, err
	}
	o.Status = orderDomain.OrderStatus(status)

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, order_id, product_id, seller_id, quantity, unit_price FROM order_items WHERE order_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, err
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

// applyCriteria traduce criterios a SQL (placeholders ?).
func applyCriteria(criteria sharedDomain.Criteria) (string, []interface{}, error) {
	if criteria == nil {
		return "", nil, nil
	}
	var clauses []string
	var args []interface{}
	for _, c := range criteria.ToConditions() {
		if !orderDomain.AllowedOrderFields[c.Field] {
			return "", nil, fmt.Errorf("unsupported filter field %q", c.Field)
		}
		clauses = append(clauses, fmt.Sprintf("%s %s ?", c.Field, c.Op))
		args = append(args, c.Value)
	}
	if len(clauses) == 0 {
		return "", nil, nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args, nil
}

func (r *OrderRepoSQLite) ListByCriteria(ctx context.Context, criteria sharedDomain.Criteria, pagination sharedQuery.Pagination, sort sharedQuery.Sort) ([]*orderDomain.Order, error) {
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
		query += " LIMIT ? OFFSET ?"
		args = append(args, p.Limit, p.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
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

func (r *OrderRepoSQLite) CountByCriteria(ctx context.Context, criteria sharedDomain.Criteria) (int, error) {
	where, args, err := applyCriteria(criteria)
	if err != nil {
		return 0, err
	}
	var total int
	err = r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM orders"+where, args...).Scan(&total)
	return total, err
}

// ------------------ Inicialización de DB ------------------

// InitSQLite crea orders, order_items, processed_events y outbox si no existen.
func InitSQLite(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS orders (
            id INTEGER PRIMARY KEY,
            buyer_user_id INTEGER NOT NULL,
            status TEXT NOT NULL CHECK (status IN ('PENDING','SUCCEEDED','FAILED')),
            total_amount INTEGER NOT NULL CHECK (total_amount >= 0),
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL
        )`,
		`CREATE INDEX IF NOT EXISTS idx_orders_buyer_created ON orders (buyer_user_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS order_items (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            order_id INTEGER NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
            product_id INTEGER NOT NULL,
            seller_id INTEGER NOT NULL,
            quantity INTEGER NOT NULL CHECK (quantity > 0),
            unit_price INTEGER NOT NULL
        )`,
		`CREATE INDEX IF NOT EXISTS idx_order_items_order ON order_items (order_id)`,
		`CREATE TABLE IF NOT EXISTS processed_events (
            event_id TEXT PRIMARY KEY,
            order_id INTEGER NOT NULL,
            processed_at DATETIME NOT NULL
        )`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return sharedSQLite.InitOutboxSchema(ctx, db)
}

// Verificación en tiempo de compilación.
var _ orderDomain.OrderRepository = (*OrderRepoSQLite)(nil)
