package events

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const DltSuffix = ".DLT"

// ErrSkipMessage indica que el mensaje no se puede procesar ni reintentar
// (payload inválido) y debe saltarse sin pasar por la dead-letter queue.
var ErrSkipMessage = errors.New("skip message")

// MessageHandler procesa un mensaje. Un error devuelto dispara el reintento
// acotado y, agotado, el envío a la dead-letter queue.
type MessageHandler interface {
	HandleMessage(ctx context.Context, key string, payload []byte) error
}

// MessageFetcher abstrae el reader de Kafka con control explícito de offsets.
// *kafka.Reader la satisface tal cual.
type MessageFetcher interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Config() kafka.ReaderConfig
}

// MessageWriter abstrae el writer genérico. *kafka.Writer la satisface.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// ConsumerAdapter es el "oído" que escucha en Kafka con control explícito de
// offsets: un mensaje venenoso acaba en <topic>.DLT y la partición avanza.
type ConsumerAdapter struct {
	reader   MessageFetcher
	handler  MessageHandler
	dlt      MessageWriter // writer genérico, el topic va en cada mensaje
	attempts int
	backoff  time.Duration
	log      *zap.Logger
}

func NewConsumerAdapter(
	reader MessageFetcher,
	handler MessageHandler,
	dlt MessageWriter,
	attempts int,
	backoff time.Duration,
	log *zap.Logger,
) *ConsumerAdapter {
	return &ConsumerAdapter{
		reader:   reader,
		handler:  handler,
		dlt:      dlt,
		attempts: attempts,
		backoff:  backoff,
		log:      log,
	}
}

// Start inicia el bucle de consumo de mensajes en una goroutine.
func (c *ConsumerAdapter) Start(ctx context.Context) {
	c.log.Info("🎧 Iniciando consumidor de Kafka...",
		zap.String("topic", c.reader.Config().Topic),
		zap.Strings("brokers", c.reader.Config().Brokers),
	)

	go func() {
		for {
			// FetchMessage no confirma el offset: lo hacemos nosotros cuando
			// el mensaje quedó procesado o dead-lettered.
			msg, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					c.log.Info("Consumidor de Kafka detenido.", zap.String("topic", c.reader.Config().Topic))
					return
				}
				c.log.Error("Error al leer mensaje de Kafka", zap.Error(err))
				continue
			}

			c.process(ctx, msg)

			if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
				c.log.Error("Error al confirmar offset", zap.Error(err))
			}
		}
	}()
}

func (c *ConsumerAdapter) process(ctx context.Context, msg kafka.Message) {
	var lastErr error
	for i := 0; i < c.attempts; i++ {
		lastErr = c.handler.HandleMessage(ctx, string(msg.Key), msg.Value)
		if lastErr == nil {
			return
		}
		if errors.Is(lastErr, ErrSkipMessage) {
			c.log.Warn("🗑️ Mensaje descartado (payload inválido)",
				zap.String("topic", msg.Topic),
				zap.Error(lastErr),
			)
			return
		}

		c.log.Warn("🔄 Reintento de mensaje",
			zap.String("topic", msg.Topic),
			zap.Int("attempt", i+1),
			zap.Error(lastErr),
		)

		select {
		case <-time.After(c.backoff):
		case <-ctx.Done():
			return
		}
	}

	c.sendToDlt(ctx, msg, lastErr)
}

// sendToDlt publica el payload original en <topic>.DLT conservando la key de
// partición y adjuntando el error truncado. Si la propia publicación a la DLT
// falla, se registra como pérdida que requiere intervención manual y el
// offset avanza igualmente: la vida de la partición gana a este último recurso.
func (c *ConsumerAdapter) sendToDlt(ctx context.Context, msg kafka.Message, cause error) {
	errMsg := "Unknown Error"
	if cause != nil {
		errMsg = truncate(cause.Error(), 500)
	}

	dltMsg := kafka.Message{
		Topic: msg.Topic + DltSuffix,
		Key:   msg.Key,
		Value: msg.Value,
		Headers: []kafka.Header{
			{Key: "dlt-exception-message", Value: []byte(errMsg)},
		},
	}

	if err := c.dlt.WriteMessages(ctx, dltMsg); err != nil {
		c.log.Error("🔥 [FATAL] No se pudo enviar a la DLT, mensaje perdido. Recuperación manual necesaria.",
			zap.String("topic", msg.Topic),
			zap.ByteString("payload", msg.Value),
			zap.Error(err),
		)
		return
	}

	c.log.Warn("☠️ Mensaje enviado a la DLT",
		zap.String("topic", msg.Topic+DltSuffix),
		zap.String("error", errMsg),
	)
}

// truncate corta en max bytes sin partir una runa UTF-8 por la mitad.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
