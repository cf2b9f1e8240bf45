package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	sharedDomain "github.com/damian-zhang-1027/order-service/internal/shared/domain"
)

// DefaultLease: tiempo que una fila reclamada queda invisible para otros relays.
const DefaultLease = 30 * time.Second

// OutboxRepoPostgres implementa sharedDomain.OutboxRepository.
// Varias réplicas del relay pueden drenar a la vez: cada lote se reclama con SKIP LOCKED.
type OutboxRepoPostgres struct {
	pool  *pgxpool.Pool
	lease time.Duration
}

func NewOutboxRepoPostgres(pool *pgxpool.Pool, lease time.Duration) *OutboxRepoPostgres {
	if lease <= 0 {
		lease = DefaultLease
	}
	return &OutboxRepoPostgres{pool: pool, lease: lease}
}

// InsertOutboxTx escribe el evento dentro de la transacción del agregado.
func InsertOutboxTx(ctx context.Context, tx pgx.Tx, evt sharedDomain.OutboxEvent) error {
	meta, err := json.Marshal(evt.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal outbox metadata: %w", err)
	}
	status := evt.Status
	if status == "" {
		status = sharedDomain.OutboxPending
	}

	const stmt = `
INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, metadata, status, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	if _, err := tx.Exec(ctx, stmt,
		evt.ID, evt.AggregateType, evt.AggregateID, evt.EventType, []byte(evt.Payload), meta, string(status), evt.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}

// FetchPendingOutbox reclama hasta limit filas PENDING y las devuelve en orden de creación.
func (r *OutboxRepoPostgres) FetchPendingOutbox(ctx context.Context, limit int) ([]sharedDomain.OutboxEvent, error) {
	const query = `
UPDATE outbox SET locked_until = now() + make_interval(secs => $2)
WHERE id IN (
    SELECT id FROM outbox
    WHERE status = 'PENDING' AND (locked_until IS NULL OR locked_until < now())
    ORDER BY created_at
    LIMIT $1
    FOR UPDATE SKIP LOCKED
)
RETURNING id, aggregate_type, aggregate_id, event_type, payload, metadata, status, created_at`

	rows, err := r.pool.Query(ctx, query, limit, r.lease.Seconds())
	if err != nil {
		return nil, fmt.Errorf("claim outbox batch: %w", err)
	}
	defer rows.Close()

	var events []sharedDomain.OutboxEvent
	for rows.Next() {
		var (
			evt           sharedDomain.OutboxEvent
			payload, meta []byte
			status        string
		)
		if err := rows.Scan(&evt.ID, &evt.AggregateType, &evt.AggregateID, &evt.EventType, &payload, &meta, &status, &evt.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(meta, &evt.Metadata); err != nil {
			return nil, fmt.Errorf("invalid metadata in outbox row %s: %w", evt.ID, err)
		}
		evt.Payload = json.RawMessage(payload)
		evt.Status = sharedDomain.OutboxStatus(status)
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// RETURNING no garantiza orden
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].CreatedAt.Before(events[j].CreatedAt)
	})
	return events, nil
}

func (r *OutboxRepoPostgres) MarkOutboxSent(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `UPDATE outbox SET status = 'SENT', locked_until = NULL WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark outbox sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("outbox event not found: %s", id)
	}
	return nil
}

// ------------------ Inicialización ------------------

func InitOutboxSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS outbox (
            id UUID PRIMARY KEY,
            aggregate_type TEXT NOT NULL,
            aggregate_id TEXT NOT NULL,
            event_type TEXT NOT NULL,
            payload JSON NOT NULL,
            metadata JSONB NOT NULL,
            status TEXT NOT NULL DEFAULT 'PENDING',
            created_at TIMESTAMPTZ NOT NULL,
            locked_until TIMESTAMPTZ
        )`,
		`CREATE INDEX IF NOT EXISTS idx_outbox_pending ON outbox (created_at) WHERE status = 'PENDING'`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

var _ sharedDomain.OutboxRepository = (*OutboxRepoPostgres)(nil)
