package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	sharedEvents "github.com/davicafu/triplab/internal/shared/domain/events"
	tripDomain "github.com/davicafu/triplab/internal/trip/domain"
)

// LocationForwarder difunde un lote de posiciones a los canales de sus viajes.
type LocationForwarder interface {
	ForwardDriverLocationBulk(ctx context.Context, events []tripDomain.DriverLocationUpdatedEvent)
}

// LocationSink es el destino analítico del histórico de posiciones.
type LocationSink interface {
	LogBatch(ctx context.Context, events []tripDomain.DriverLocationUpdatedEvent) error
}

// MessageReader abstrae el reader con auto-commit. *kafka.Reader la satisface.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Config() kafka.ReaderConfig
}

// LocationConsumer escucha el torrente de telemetría de conductores. A
// diferencia del resto de consumidores, aquí el dato es efímero: perder una
// posición es preferible a acumular lag, así que no hay reintentos ni DLT y
// bajo presión se descarta lo más antiguo del búfer.
type LocationConsumer struct {
	reader     MessageReader
	forwarder  LocationForwarder
	sink       LocationSink // puede ser nil si no hay ClickHouse configurado
	batchSize  int
	flushEvery time.Duration
	buf        chan tripDomain.DriverLocationUpdatedEvent
	log        *zap.Logger
}

func NewLocationConsumer(
	reader MessageReader,
	forwarder LocationForwarder,
	sink LocationSink,
	batchSize int,
	flushEvery time.Duration,
	log *zap.Logger,
) *LocationConsumer {
	return &LocationConsumer{
		reader:     reader,
		forwarder:  forwarder,
		sink:       sink,
		batchSize:  batchSize,
		flushEvery: flushEvery,
		buf:        make(chan tripDomain.DriverLocationUpdatedEvent, batchSize*2),
		log:        log,
	}
}

// Start lanza el lector y el difusor en goroutines propias.
func (c *LocationConsumer) Start(ctx context.Context) {
	c.log.Info("🎧 Iniciando consumidor de ubicaciones...",
		zap.String("topic", c.reader.Config().Topic),
		zap.Int("batch_size", c.batchSize),
		zap.Duration("flush_every", c.flushEvery),
	)
	go c.fetchLoop(ctx)
	go c.flushLoop(ctx)
}

func (c *LocationConsumer) fetchLoop(ctx context.Context) {
	for {
		// ReadMessage confirma el offset al vuelo: at-most-once deliberado.
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.log.Info("Consumidor de ubicaciones detenido.")
				return
			}
			c.log.Error("Error al leer ubicación de Kafka", zap.Error(err))
			continue
		}

		evt, ok := c.decode(msg.Value)
		if !ok {
			continue
		}

		select {
		case c.buf <- evt:
		default:
			// Búfer lleno: sale la posición más vieja, entra la nueva.
			select {
			case <-c.buf:
			default:
			}
			select {
			case c.buf <- evt:
			default:
			}
		}
	}
}

func (c *LocationConsumer) flushLoop(ctx context.Context) {
	ticker := time.NewTicker(c.flushEvery)
	defer ticker.Stop()

	batch := make([]tripDomain.DriverLocationUpdatedEvent, 0, c.batchSize)
	for {
		select {
		case <-ctx.Done():
			c.flush(batch)
			return
		case evt := <-c.buf:
			batch = append(batch, evt)
			if len(batch) >= c.batchSize {
				c.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				c.flush(batch)
				batch = batch[:0]
			}
		}
	}
}

func (c *LocationConsumer) flush(batch []tripDomain.DriverLocationUpdatedEvent) {
	if len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c.forwarder.ForwardDriverLocationBulk(ctx, batch)

	if c.sink != nil {
		if err := c.sink.LogBatch(ctx, batch); err != nil {
			c.log.Warn("⚠️ Fallo volcando lote de ubicaciones a analítica", zap.Error(err))
		}
	}
}

func (c *LocationConsumer) decode(payload []byte) (tripDomain.DriverLocationUpdatedEvent, bool) {
	var base sharedEvents.IntegrationEvent
	if err := json.Unmarshal(payload, &base); err != nil {
		c.log.Debug("Ubicación con payload inválido descartada", zap.Error(err))
		return tripDomain.DriverLocationUpdatedEvent{}, false
	}
	var evt tripDomain.DriverLocationUpdatedEvent
	if err := json.Unmarshal(base.Data, &evt); err != nil {
		c.log.Debug("Ubicación con datos inválidos descartada", zap.Error(err))
		return tripDomain.DriverLocationUpdatedEvent{}, false
	}
	return evt, true
}
