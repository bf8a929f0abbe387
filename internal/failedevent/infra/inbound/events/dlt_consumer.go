package events

import (
	"context"
	"strings"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/davicafu/triplab/internal/failedevent/domain"
	infraEvents "github.com/davicafu/triplab/internal/infra/events"
)

const errorHeaderKey = "dlt-exception-message"

// DltConsumer archiva en Postgres todo lo que aterriza en los topics .DLT.
// No reintenta ni re-dead-letterea: si ni siquiera se puede persistir el
// registro, se loguea la pérdida y el offset avanza, porque atascar la DLT
// dejaría sin servicio al resto de particiones.
type DltConsumer struct {
	reader *kafka.Reader
	repo   domain.FailedEventRepository
	log    *zap.Logger
}

func NewDltConsumer(reader *kafka.Reader, repo domain.FailedEventRepository, log *zap.Logger) *DltConsumer {
	return &DltConsumer{reader: reader, repo: repo, log: log}
}

// Start inicia el bucle de archivado en una goroutine.
func (c *DltConsumer) Start(ctx context.Context) {
	c.log.Info("🎧 Iniciando consumidor de dead-letter...",
		zap.Strings("topics", c.reader.Config().GroupTopics),
	)

	go func() {
		for {
			msg, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					c.log.Info("Consumidor de dead-letter detenido.")
					return
				}
				c.log.Error("Error al leer mensaje de la DLT", zap.Error(err))
				continue
			}

			c.archive(ctx, msg)

			if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
				c.log.Error("Error al confirmar offset de la DLT", zap.Error(err))
			}
		}
	}()
}

func (c *DltConsumer) archive(ctx context.Context, msg kafka.Message) {
	evt := &domain.FailedEvent{
		Topic:        strings.TrimSuffix(msg.Topic, infraEvents.DltSuffix),
		KafkaKey:     string(msg.Key),
		Payload:      msg.Value,
		ErrorMessage: headerValue(msg.Headers, errorHeaderKey),
		Status:       domain.StatusPending,
	}

	if err := c.repo.Save(ctx, evt); err != nil {
		c.log.Error("🔥 [FATAL] No se pudo archivar el evento fallido, registro perdido. Recuperación manual necesaria.",
			zap.String("topic", msg.Topic),
			zap.ByteString("payload", msg.Value),
			zap.Error(err),
		)
		return
	}

	c.log.Warn("📥 Evento fallido archivado",
		zap.String("topic", evt.Topic),
		zap.String("error", evt.ErrorMessage),
	)
}

func headerValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
