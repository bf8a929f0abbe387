package relayer

import (
	"context"
	"fmt"
	"time"

	sharedDomain "github.com/davicafu/triplab/internal/shared/domain"
	"github.com/davicafu/triplab/internal/shared/infra/platform/pool"
	"go.uber.org/zap"
)

// Worker drena la tabla outbox: reclama lotes READY, los publica en el broker
// y concilia el resultado. La publicación va por un pool acotado, así que el
// orden por aggregate_id NO está garantizado entre reintentos; los
// consumidores deben tolerarlo.
type Worker struct {
	repo      sharedDomain.OutboxRepository
	publisher sharedDomain.EventPublisher
	interval  time.Duration
	batchSize int
	pool      *pool.Pool
	log       *zap.Logger
}

func NewOutboxWorker(
	repo sharedDomain.OutboxRepository,
	publisher sharedDomain.EventPublisher,
	interval time.Duration,
	batchSize int,
	workers int,
	log *zap.Logger,
) *Worker {
	return &Worker{
		repo:      repo,
		publisher: publisher,
		interval:  interval,
		batchSize: batchSize,
		pool:      pool.New(workers, batchSize),
		log:       log,
	}
}

// Start inicia el bucle de polling del worker. Bloquea hasta que ctx se
// cancele; entonces drena las publicaciones en vuelo con espera acotada.
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.log.Info("🚀 Outbox relay iniciado", zap.Duration("interval", w.interval))

	for {
		select {
		case <-ctx.Done():
			drained := w.pool.Shutdown(30 * time.Second)
			w.log.Info("🛑 Outbox relay detenido.", zap.Bool("drained", drained))
			return
		case <-ticker.C:
			w.ProcessBatch(ctx)
		}
	}
}

// ProcessBatch ejecuta una pasada: claim + publish + conciliación.
func (w *Worker) ProcessBatch(ctx context.Context) {
	records, err := w.repo.ClaimPending(ctx, w.batchSize)
	if err != nil {
		w.log.Warn("⚠️ Error al reclamar registros de outbox", zap.Error(err))
		return
	}
	if len(records) == 0 {
		return
	}
	w.log.Info(fmt.Sprintf("📬 %d registros reclamados para publicar", len(records)))

	for _, rec := range records {
		rec := rec
		if !w.pool.Submit(func() { w.publishAndMark(ctx, rec) }) {
			// Pool cerrado durante el shutdown: el rescate de PUBLISHING
			// devolverá el registro a READY.
			return
		}
	}
}

func (w *Worker) publishAndMark(ctx context.Context, rec sharedDomain.OutboxRecord) {
	if err := w.publisher.Publish(ctx, rec.Topic, rec.AggregateID, rec.Payload); err != nil {
		w.log.Warn("⚠️ No se pudo publicar registro, vuelve a READY",
			zap.Int64("outbox_id", rec.ID),
			zap.Error(err),
		)
		// Reintento por redelivery: el siguiente polling lo vuelve a reclamar.
		if err := w.repo.ResetToReady(ctx, rec.ID); err != nil {
			w.log.Error("No se pudo devolver el registro a READY (lo rescatará la tarea de stuck)",
				zap.Int64("outbox_id", rec.ID),
				zap.Error(err),
			)
		}
		return
	}

	if err := w.repo.MarkDone(ctx, rec.ID); err != nil {
		// El evento ya salió; si esto falla se republicará (at-least-once).
		w.log.Warn("⚠️ No se pudo marcar registro como DONE",
			zap.Int64("outbox_id", rec.ID),
			zap.Error(err),
		)
		return
	}

	w.log.Info("✅ Registro publicado y confirmado", zap.Int64("outbox_id", rec.ID))
}

// StartRescue repone a READY los registros atascados en PUBLISHING más allá
// de la ventana de gracia (un relay murió tras reclamar).
func (w *Worker) StartRescue(ctx context.Context, interval, stuckAfter time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := w.repo.ResetStuck(ctx, stuckAfter)
			if err != nil {
				w.log.Warn("⚠️ Error en rescate de registros atascados", zap.Error(err))
				continue
			}
			if n > 0 {
				w.log.Info("🚑 Registros PUBLISHING rescatados a READY", zap.Int64("count", n))
			}
		}
	}
}

// StartRetention borra periódicamente los registros DONE antiguos.
func (w *Worker) StartRetention(ctx context.Context, interval, keep time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := w.repo.DeleteDone(ctx, keep)
			if err != nil {
				w.log.Warn("⚠️ Error en limpieza de outbox", zap.Error(err))
				continue
			}
			if n > 0 {
				w.log.Info("🧹 Registros DONE eliminados", zap.Int64("count", n))
			}
		}
	}
}
