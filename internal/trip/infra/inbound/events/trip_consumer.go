package events

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	infraEvents "github.com/davicafu/triplab/internal/infra/events"
	sharedEvents "github.com/davicafu/triplab/internal/shared/domain/events"
	tripDomain "github.com/davicafu/triplab/internal/trip/domain"
)

// TripService define los métodos que el consumidor necesita.
type TripService interface {
	CreateTripFromMatch(ctx context.Context, evt tripDomain.TripMatchedEvent) (*tripDomain.Trip, error)
	HandlePaymentSuccess(ctx context.Context, evt tripDomain.PaymentCompletedEvent) error
	RevertTripCompletion(ctx context.Context, evt tripDomain.PaymentFailedEvent) error
}

// TripConsumer procesa los eventos de matching y de pagos. Un payload que no
// decodifica se descarta (reintentarlo no lo arregla); un error de negocio o
// de infraestructura se devuelve para que el adaptador reintente y, agotado,
// dead-letteree.
type TripConsumer struct {
	service TripService
	log     *zap.Logger
}

func NewTripConsumer(service TripService, log *zap.Logger) *TripConsumer {
	return &TripConsumer{service: service, log: log}
}

// HandleMessage es el punto de entrada para un nuevo mensaje/evento.
func (c *TripConsumer) HandleMessage(ctx context.Context, key string, payload []byte) error {
	var base sharedEvents.IntegrationEvent
	if err := json.Unmarshal(payload, &base); err != nil {
		c.log.Warn("Failed to unmarshal integration event for trip", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("%w: %v", infraEvents.ErrSkipMessage, err)
	}

	switch base.Type {
	case tripDomain.TripMatched:
		var evt tripDomain.TripMatchedEvent
		if err := json.Unmarshal(base.Data, &evt); err != nil {
			return fmt.Errorf("%w: trip.matched payload: %v", infraEvents.ErrSkipMessage, err)
		}
		_, err := c.service.CreateTripFromMatch(ctx, evt)
		return err

	case tripDomain.PaymentSucceeded:
		var evt tripDomain.PaymentCompletedEvent
		if err := json.Unmarshal(base.Data, &evt); err != nil {
			return fmt.Errorf("%w: payment.succeeded payload: %v", infraEvents.ErrSkipMessage, err)
		}
		return c.service.HandlePaymentSuccess(ctx, evt)

	case tripDomain.PaymentFailed:
		var evt tripDomain.PaymentFailedEvent
		if err := json.Unmarshal(base.Data, &evt); err != nil {
			return fmt.Errorf("%w: payment.failed payload: %v", infraEvents.ErrSkipMessage, err)
		}
		return c.service.RevertTripCompletion(ctx, evt)

	default:
		c.log.Warn("Unknown trip event type", zap.String("type", base.Type), zap.String("key", key))
		return nil
	}
}

// Verificación estática
var _ infraEvents.MessageHandler = (*TripConsumer)(nil)
