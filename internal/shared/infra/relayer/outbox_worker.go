package relayer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	sharedDomain "github.com/damian-zhang-1027/order-service/internal/shared/domain"
	sharedEvents "github.com/damian-zhang-1027/order-service/internal/shared/domain/events"
	sharedBus "github.com/damian-zhang-1027/order-service/internal/shared/infra/platform/bus"
)

// Worker drena la tabla outbox: publica cada fila PENDING y la marca SENT.
// Entrega at-least-once: si el marcado falla la fila se volverá a publicar.
type Worker struct {
	repo      sharedDomain.OutboxRepository
	publisher sharedBus.EventBus
	interval  time.Duration
	batchSize int
	log       *zap.Logger
}

func NewOutboxWorker(
	repo sharedDomain.OutboxRepository,
	publisher sharedBus.EventBus,
	interval time.Duration,
	batchSize int,
	log *zap.Logger,
) *Worker {
	return &Worker{
		repo:      repo,
		publisher: publisher,
		interval:  interval,
		batchSize: batchSize,
		log:       log,
	}
}

// Start inicia el bucle de polling del worker. Bloquea hasta que ctx se cancela.
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.log.Info("🚀 Outbox worker iniciado", zap.Duration("interval", w.interval))

	for {
		select {
		case <-ctx.Done():
			w.log.Info("🛑 Outbox worker detenido.")
			return
		case <-ticker.C:
			w.ProcessBatch(ctx)
		}
	}
}

// ProcessBatch devuelve cuántos eventos quedaron publicados y marcados.
func (w *Worker) ProcessBatch(ctx context.Context) int {
	events, err := w.repo.FetchPendingOutbox(ctx, w.batchSize)
	if err != nil {
		w.log.Warn("⚠️ Error al obtener eventos pendientes", zap.Error(err))
		return 0
	}
	if len(events) == 0 {
		return 0
	}
	w.log.Debug(fmt.Sprintf("📬 %d eventos encontrados para procesar", len(events)))

	sent := 0
	for _, evt := range events {
		if w.publishAndMark(ctx, evt) {
			sent++
		}
	}
	return sent
}

func (w *Worker) publishAndMark(ctx context.Context, evt sharedDomain.OutboxEvent) bool {
	envelope, err := sharedEvents.FromOutbox(evt)
	if err != nil {
		w.log.Error("Error al construir el sobre del evento", zap.String("event_id", evt.ID.String()), zap.Error(err))
		return false
	}

	if err := w.publisher.Publish(ctx, envelope); err != nil {
		w.log.Warn("⚠️ No se pudo publicar evento",
			zap.String("event_id", evt.ID.String()),
			zap.String("event_type", evt.EventType),
			zap.Error(err),
		)
		return false // sigue PENDING, se reintenta en el próximo tick
	}

	if err := w.repo.MarkOutboxSent(ctx, evt.ID); err != nil {
		w.log.Warn("⚠️ No se pudo marcar evento como enviado",
			zap.String("event_id", evt.ID.String()),
			zap.Error(err),
		)
		return false
	}

	w.log.Info("✅ Evento publicado y marcado",
		zap.String("event_id", evt.ID.String()),
		zap.String("event_type", evt.EventType),
		zap.String("aggregate_id", evt.AggregateID),
	)
	return true
}
