package clickhouse

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"

	orderDomain "github.com/damian-zhang-1027/order-service/internal/order/domain"
)

// SalesAnalyticsRepo implementa SalesAnalyticsRepository para ClickHouse.
type SalesAnalyticsRepo struct {
	db *sql.DB
}

// NewSalesAnalyticsRepo abre la conexión y hace ping.
func NewSalesAnalyticsRepo(addr, dbName, user, password string) (*SalesAnalyticsRepo, error) {
	conn := clickhouse.OpenDB(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: dbName,
			Username: user,
			Password: password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout: 5 * time.Second,
	})

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("could not ping clickhouse: %w", err)
	}
	return &SalesAnalyticsRepo{db: conn}, nil
}

// NewSalesAnalyticsRepoFromDB permite inyectar una conexión ya abierta.
func NewSalesAnalyticsRepoFromDB(db *sql.DB) *SalesAnalyticsRepo {
	return &SalesAnalyticsRepo{db: db}
}

// LogBatch inserta el lote completo en un único bloque.
func (r *SalesAnalyticsRepo) LogBatch(ctx context.Context, outcomes []orderDomain.OrderOutcome) error {
	if len(outcomes) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO order_outcomes (event_id, order_id, buyer_user_id, status, total_amount, trace_id, occurred_at)")
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, o := range outcomes {
		if _, err := stmt.ExecContext(ctx,
			o.EventID,
			o.OrderID,
			o.BuyerUserID,
			string(o.Status),
			o.TotalAmount,
			o.TraceID,
			time.UnixMilli(o.OccurredAt).UTC(),
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to exec statement for order %d: %w", o.OrderID, err)
		}
	}

	return tx.Commit()
}

// InitSchema crea la tabla si no existe. ReplacingMergeTree colapsa reentregas del mismo evento.
func (r *SalesAnalyticsRepo) InitSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS order_outcomes (
			event_id      String,
			order_id      Int64,
			buyer_user_id String,
			status        LowCardinality(String),
			total_amount  Int64,
			trace_id      String,
			occurred_at   DateTime64(3)
		) ENGINE = ReplacingMergeTree()
		PARTITION BY toYYYYMM(occurred_at)
		ORDER BY (status, occurred_at, event_id);
	`
	_, err := r.db.ExecContext(ctx, query)
	return err
}

var _ orderDomain.SalesAnalyticsRepository = (*SalesAnalyticsRepo)(nil)
