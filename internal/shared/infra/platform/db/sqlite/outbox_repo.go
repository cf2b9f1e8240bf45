package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	sharedDomain "github.com/damian-zhang-1027/order-service/internal/shared/domain"
)

// DSN añade los pragmas que necesitamos en cada conexión (FKs para el ON DELETE CASCADE).
func DSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

// OutboxRepoSQLite implementa sharedDomain.OutboxRepository.
type OutboxRepoSQLite struct {
	db *sql.DB
}

func NewOutboxRepoSQLite(db *sql.DB) *OutboxRepoSQLite {
	return &OutboxRepoSQLite{db: db}
}

// ------------------ Helper DRY para insertar en outbox ------------------

// InsertOutboxTx escribe el evento dentro de la transacción del agregado.
func InsertOutboxTx(ctx context.Context, tx *sql.Tx, evt sharedDomain.OutboxEvent) error {
	meta, err := json.Marshal(evt.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal outbox metadata: %w", err)
	}

	status := evt.Status
	if status == "" {
		status = sharedDomain.OutboxPending
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, metadata, status, created_at)
		 VALUES (?,?,?,?,?,?,?,?)`,
		evt.ID.String(), evt.AggregateType, evt.AggregateID, evt.EventType, string(evt.Payload), string(meta), string(status), evt.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert outbox event: %w", err)
	}
	return nil
}

// FetchPendingOutbox devuelve las filas PENDING en orden de creación.
func (r *OutboxRepoSQLite) FetchPendingOutbox(ctx context.Context, limit int) ([]sharedDomain.OutboxEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, aggregate_type, aggregate_id, event_type, payload, metadata, status, created_at
         FROM outbox
         WHERE status = ?
         ORDER BY created_at, rowid
         LIMIT ?`, string(sharedDomain.OutboxPending), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []sharedDomain.OutboxEvent
	for rows.Next() {
		var (
			idStr, payload, meta, status string
			evt                          sharedDomain.OutboxEvent
			createdAt                    time.Time
		)
		if err := rows.Scan(&idStr, &evt.AggregateType, &evt.AggregateID, &evt.EventType, &payload, &meta, &status, &createdAt); err != nil {
			return nil, err
		}

		evt.ID, err = uuid.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("invalid UUID in outbox row: %w", err)
		}
		if err := json.Unmarshal([]byte(meta), &evt.Metadata); err != nil {
			return nil, fmt.Errorf("invalid metadata in outbox row %s: %w", idStr, err)
		}
		evt.Payload = json.RawMessage(payload)
		evt.Status = sharedDomain.OutboxStatus(status)
		evt.CreatedAt = createdAt

		events = append(events, evt)
	}

	return events, rows.Err()
}

// MarkOutboxSent marca un evento como enviado.
func (r *OutboxRepoSQLite) MarkOutboxSent(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `UPDATE outbox SET status = ? WHERE id = ?`, string(sharedDomain.OutboxSent), id.String())
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get RowsAffected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("outbox event not found: %s", id)
	}
	return nil
}

// ------------------ Inicialización ------------------

// InitOutboxSchema crea la tabla outbox si no existe.
func InitOutboxSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
        CREATE TABLE IF NOT EXISTS outbox (
            id TEXT PRIMARY KEY,
            aggregate_type TEXT NOT NULL,
            aggregate_id TEXT NOT NULL,
            event_type TEXT NOT NULL,
            payload TEXT NOT NULL,
            metadata TEXT NOT NULL,
            status TEXT NOT NULL DEFAULT 'PENDING',
            created_at DATETIME NOT NULL
        )
    `)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_outbox_status_created ON outbox (status, created_at)`)
	return err
}

// Verificación en tiempo de compilación.
var _ sharedDomain.OutboxRepository = (*OutboxRepoSQLite)(nil)
