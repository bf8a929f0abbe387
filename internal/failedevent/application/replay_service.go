package application

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/davicafu/triplab/internal/failedevent/domain"
	sharedDomain "github.com/davicafu/triplab/internal/shared/domain"
)

// ReplayService reinyecta eventos dead-lettered en su topic original. Lo
// dispara un operador humano tras corregir la causa del fallo (un despliegue,
// un servicio caído); no hay replay automático.
type ReplayService struct {
	repo      domain.FailedEventRepository
	publisher sharedDomain.EventPublisher
	chunkSize int
	log       *zap.Logger
}

func NewReplayService(repo domain.FailedEventRepository, publisher sharedDomain.EventPublisher, chunkSize int, log *zap.Logger) *ReplayService {
	return &ReplayService{
		repo:      repo,
		publisher: publisher,
		chunkSize: chunkSize,
		log:       log,
	}
}

// RetryAllByTopic reenvía todos los PENDING del topic en lotes. Conserva la
// key original de cada mensaje para que caiga en su partición. Devuelve el
// total reenviado; si un lote entero falla se corta, porque insistir contra
// un broker caído solo alarga la agonía.
func (s *ReplayService) RetryAllByTopic(ctx context.Context, topic string) (int, error) {
	total := 0
	for {
		pending, err := s.repo.FindPendingByTopic(ctx, topic, s.chunkSize)
		if err != nil {
			return total, fmt.Errorf("failed to load pending events: %w", err)
		}
		if len(pending) == 0 {
			break
		}

		resolved := make([]int64, 0, len(pending))
		for _, evt := range pending {
			if err := s.publisher.Publish(ctx, evt.Topic, evt.KafkaKey, evt.Payload); err != nil {
				s.log.Error("❌ Fallo reenviando evento, se detiene el lote",
					zap.Int64("id", evt.ID),
					zap.String("topic", evt.Topic),
					zap.Error(err),
				)
				break
			}
			resolved = append(resolved, evt.ID)
		}

		if len(resolved) > 0 {
			if err := s.repo.MarkResolved(ctx, resolved); err != nil {
				return total, fmt.Errorf("failed to mark events as resolved: %w", err)
			}
			total += len(resolved)
		}

		// Sin progreso en el lote: el broker no acepta nada, paramos.
		if len(resolved) == 0 {
			break
		}
		if len(pending) < s.chunkSize {
			break
		}
	}

	s.log.Info("🚑 Replay de eventos finalizado", zap.String("topic", topic), zap.Int("resent", total))
	return total, nil
}

// IgnoreEvent descarta definitivamente un evento fallido sin reenviarlo.
func (s *ReplayService) IgnoreEvent(ctx context.Context, id int64) error {
	evt, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if evt.Status != domain.StatusPending {
		return fmt.Errorf("%w: status %s", domain.ErrAlreadyProcessed, evt.Status)
	}
	if err := s.repo.MarkIgnored(ctx, id); err != nil {
		return err
	}
	s.log.Info("🗑️ Evento fallido ignorado", zap.Int64("id", id), zap.String("topic", evt.Topic))
	return nil
}
