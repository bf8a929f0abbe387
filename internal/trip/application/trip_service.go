package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	sharedDomain "github.com/davicafu/triplab/internal/shared/domain"
	sharedEvents "github.com/davicafu/triplab/internal/shared/domain/events"
	sharedUtils "github.com/davicafu/triplab/internal/shared/infra/utils"
	"github.com/davicafu/triplab/internal/trip/domain"

	"go.uber.org/zap"
)

// TripService orquesta los casos de uso del viaje: comandos REST bajo lock de
// fila con reintento acotado, y eventos de plataforma (matching/pagos) de
// forma idempotente. Todo evento de salida nace como registro de outbox en la
// transacción de la mutación; aquí nunca se habla con el broker.
type TripService struct {
	repo     domain.TripRepository
	cache    domain.TripCache
	geocoder domain.Geocoder
	users    domain.UserClient
	drivers  domain.DriverClient

	retry         sharedUtils.RetryPolicy
	driverTripTTL time.Duration
	log           *zap.Logger
}

func NewTripService(
	repo domain.TripRepository,
	cache domain.TripCache,
	geocoder domain.Geocoder,
	users domain.UserClient,
	drivers domain.DriverClient,
	commandAttempts int,
	commandBackoff time.Duration,
	driverTripTTL time.Duration,
	log *zap.Logger,
) *TripService {
	return &TripService{
		repo:     repo,
		cache:    cache,
		geocoder: geocoder,
		users:    users,
		drivers:  drivers,
		retry: sharedUtils.RetryPolicy{
			Attempts: commandAttempts,
			Backoff:  commandBackoff,
			Retryable: func(err error) bool {
				return errors.Is(err, domain.ErrTransientStore)
			},
		},
		driverTripTTL: driverTripTTL,
		log:           log,
	}
}

// outboxRecord serializa el evento dentro de la envoltura de integración y
// lo deja listo para insertar junto a la mutación.
func outboxRecord(tripID, eventType string, payload interface{}) (*sharedDomain.OutboxRecord, error) {
	evt, err := sharedEvents.NewIntegrationEvent(eventType, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal outbox payload: %w", err)
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal integration event: %w", err)
	}
	return &sharedDomain.OutboxRecord{
		AggregateID: tripID,
		Topic:       domain.TripEventsTopic,
		Payload:     data,
		Status:      sharedDomain.OutboxReady,
	}, nil
}

// mutate aplica la política de reintentos sobre la mutación con lock:
// lock timeout, deadlock o corte de conexión se reintentan; el resto no.
func (s *TripService) mutate(ctx context.Context, tripID string, fn func(uow domain.UnitOfWork, t *domain.Trip) (*sharedDomain.OutboxRecord, error)) error {
	return s.retry.Do(ctx, func() error {
		return s.repo.Mutate(ctx, tripID, fn)
	})
}

// ---------------- Creación desde evento de matching ----------------

// CreateTripFromMatch es idempotente: N entregas del mismo tripId dejan
// exactamente un viaje, con los datos de la primera procesada con éxito.
func (s *TripService) CreateTripFromMatch(ctx context.Context, evt domain.TripMatchedEvent) (*domain.Trip, error) {
	// 1. Buscar antes de crear: redelivery del broker es el caso común.
	existing, err := s.repo.FindByTripID(ctx, evt.TripID)
	if err == nil {
		s.log.Info("Evento de matching duplicado ignorado", zap.String("trip_id", evt.TripID))
		return existing, nil
	}
	if !errors.Is(err, domain.ErrTripNotFound) {
		return nil, err
	}

	// 2. Enriquecimiento en paralelo. Cada colaborador tiene fallback propio:
	//    ninguno puede bloquear la creación.
	var (
		wg          sync.WaitGroup
		origin      string
		destination string
		userInfo    domain.UserInfo
		driverInfo  domain.DriverInfo
	)
	wg.Add(4)
	go func() { defer wg.Done(); origin = s.geocoder.ReverseGeocode(ctx, evt.Origin.Longitude, evt.Origin.Latitude) }()
	go func() {
		defer wg.Done()
		destination = s.geocoder.ReverseGeocode(ctx, evt.Destination.Longitude, evt.Destination.Latitude)
	}()
	go func() { defer wg.Done(); userInfo = s.users.GetUserInfo(ctx, evt.UserID) }()
	go func() { defer wg.Done(); driverInfo = s.drivers.GetDriverInfo(ctx, evt.DriverID) }()
	wg.Wait()

	trip := domain.NewTrip(evt.TripID, evt.UserID, evt.DriverID, origin, destination, evt.MatchedAt)
	trip.EnrichSnapshot(userInfo.Name, driverInfo.Name, driverInfo.Vehicle.Model, driverInfo.Vehicle.LicensePlate)

	// 3. Segunda línea de defensa: dos entregas simultáneas chocan contra el
	//    índice único y la perdedora relee la fila existente.
	if err := s.repo.Create(ctx, trip); err != nil {
		if errors.Is(err, domain.ErrTripAlreadyExists) {
			s.log.Warn("Trip duplicado detectado por el índice único (ignorado)", zap.String("trip_id", evt.TripID))
			return s.repo.FindByTripID(ctx, evt.TripID)
		}
		return nil, err
	}

	// 4. Índice driver→trip para el relay de ubicaciones. Best-effort.
	if err := s.cache.SetDriverTrip(ctx, evt.DriverID, trip.TripID, s.driverTripTTL); err != nil {
		s.log.Error("Fallo cacheando driver:trip", zap.Int64("driver_id", evt.DriverID), zap.Error(err))
	}

	s.log.Info("✅ Trip creado desde evento de matching", zap.String("trip_id", trip.TripID))
	return trip, nil
}

// ---------------- Comandos REST ----------------

// DriverArrived marca la llegada del conductor. Reintentos del cliente con la
// transición ya hecha devuelven éxito sin reemitir el evento.
func (s *TripService) DriverArrived(ctx context.Context, tripID string) error {
	return s.mutate(ctx, tripID, func(uow domain.UnitOfWork, t *domain.Trip) (*sharedDomain.OutboxRecord, error) {
		if t.Status == domain.StatusArrived {
			s.log.Info("Comando duplicado detectado, respuesta de éxito", zap.String("trip_id", tripID))
			return nil, nil
		}
		if err := t.Arrive(); err != nil {
			return nil, err
		}
		return outboxRecord(t.TripID, domain.DriverArrived, domain.DriverArrivedEvent{
			TripID: t.TripID,
			UserID: t.UserID,
		})
	})
}

// StartTrip inicia la ruta. No emite evento de plataforma.
func (s *TripService) StartTrip(ctx context.Context, tripID string) error {
	return s.mutate(ctx, tripID, func(uow domain.UnitOfWork, t *domain.Trip) (*sharedDomain.OutboxRecord, error) {
		if t.Status == domain.StatusInProgress {
			s.log.Info("Comando duplicado detectado, respuesta de éxito", zap.String("trip_id", tripID))
			return nil, nil
		}
		if err := t.Start(time.Now().UTC()); err != nil {
			return nil, err
		}
		return nil, nil
	})
}

// CompleteTrip cierra la ruta y deja el cobro pendiente.
func (s *TripService) CompleteTrip(ctx context.Context, tripID string, distanceMeters, durationSeconds int) error {
	return s.mutate(ctx, tripID, func(uow domain.UnitOfWork, t *domain.Trip) (*sharedDomain.OutboxRecord, error) {
		if t.Status == domain.StatusPaymentPending || t.Status == domain.StatusCompleted {
			s.log.Info("Comando duplicado detectado, respuesta de éxito", zap.String("trip_id", tripID))
			return nil, nil
		}
		endedAt, err := t.Complete(time.Now().UTC())
		if err != nil {
			return nil, err
		}

		driverID := t.DriverID
		uow.AfterCommit(func() { s.deleteDriverTripSafely(driverID) })

		return outboxRecord(t.TripID, domain.TripCompleted, domain.TripCompletedEvent{
			TripID:          t.TripID,
			UserID:          t.UserID,
			DriverID:        t.DriverID,
			DistanceMeters:  distanceMeters,
			DurationSeconds: durationSeconds,
			EndedAt:         endedAt,
		})
	})
}

// CancelTrip es válido desde cualquier estado no terminal.
func (s *TripService) CancelTrip(ctx context.Context, tripID, canceledBy string) error {
	return s.mutate(ctx, tripID, func(uow domain.UnitOfWork, t *domain.Trip) (*sharedDomain.OutboxRecord, error) {
		if t.Status == domain.StatusCanceled {
			s.log.Info("Comando duplicado detectado, respuesta de éxito", zap.String("trip_id", tripID))
			return nil, nil
		}
		if err := t.Cancel(); err != nil {
			return nil, err
		}

		driverID := t.DriverID
		uow.AfterCommit(func() { s.deleteDriverTripSafely(driverID) })

		return outboxRecord(t.TripID, domain.TripCanceled, domain.TripCanceledEvent{
			TripID:     t.TripID,
			DriverID:   t.DriverID,
			CanceledBy: canceledBy,
		})
	})
}

// ---------------- Eventos de pago ----------------

// HandlePaymentSuccess confirma el cobro. Viaje desconocido se registra y se
// da por consumido: reintentar no lo va a hacer aparecer.
func (s *TripService) HandlePaymentSuccess(ctx context.Context, evt domain.PaymentCompletedEvent) error {
	err := s.mutate(ctx, evt.TripID, func(uow domain.UnitOfWork, t *domain.Trip) (*sharedDomain.OutboxRecord, error) {
		if t.Status == domain.StatusCompleted && t.Fare != nil {
			s.log.Info("Evento de pago duplicado ignorado", zap.String("trip_id", evt.TripID))
			return nil, nil
		}
		return nil, t.ConfirmPayment(evt.Fare)
	})
	if errors.Is(err, domain.ErrTripNotFound) {
		s.log.Error("Viaje no encontrado para pago confirmado", zap.String("trip_id", evt.TripID))
		return nil
	}
	if err == nil {
		s.log.Info("💰 Viaje completado (pago confirmado)", zap.String("trip_id", evt.TripID))
	}
	return err
}

// RevertTripCompletion es la compensación por cobro fallido.
func (s *TripService) RevertTripCompletion(ctx context.Context, evt domain.PaymentFailedEvent) error {
	err := s.mutate(ctx, evt.TripID, func(uow domain.UnitOfWork, t *domain.Trip) (*sharedDomain.OutboxRecord, error) {
		t.RevertCompletion()
		return nil, nil
	})
	if errors.Is(err, domain.ErrTripNotFound) {
		s.log.Error("Viaje no encontrado para compensación", zap.String("trip_id", evt.TripID))
		return nil
	}
	if err == nil {
		s.log.Info("↩️ Compensación aplicada (pago fallido)", zap.String("trip_id", evt.TripID))
	}
	return err
}

// ---------------- Ubicaciones ----------------

// ForwardDriverLocationBulk resuelve el lote entero con un único MGET y
// difunde cada posición al canal de su viaje. Errores se tragan: la siguiente
// posición llega en milisegundos.
func (s *TripService) ForwardDriverLocationBulk(ctx context.Context, events []domain.DriverLocationUpdatedEvent) {
	if len(events) == 0 {
		return
	}

	driverIDs := make([]int64, len(events))
	for i, evt := range events {
		driverIDs[i] = evt.DriverID
	}

	trips, err := s.cache.GetDriverTrips(ctx, driverIDs)
	if err != nil {
		s.log.Error("❌ Fallo resolviendo viajes del lote de ubicaciones", zap.Error(err))
		return
	}

	sent := 0
	for _, evt := range events {
		tripID, ok := trips[evt.DriverID]
		if !ok {
			continue // conductor sin viaje activo, no se difunde
		}
		payload, err := json.Marshal(evt)
		if err != nil {
			continue
		}
		if err := s.cache.PublishLocation(ctx, tripID, payload); err != nil {
			s.log.Warn("⚠️ Fallo difundiendo ubicación", zap.String("trip_id", tripID), zap.Error(err))
			continue
		}
		sent++
	}
	s.log.Debug("📍 Lote de ubicaciones difundido", zap.Int("received", len(events)), zap.Int("sent", sent))
}

// ---------------- Consultas ----------------

func (s *TripService) GetTripDetails(ctx context.Context, tripID string) (*domain.Trip, error) {
	return s.repo.FindByTripID(ctx, tripID)
}

func (s *TripService) IsDriverOnTrip(ctx context.Context, driverID int64) (bool, error) {
	return s.repo.ExistsByDriverAndStatus(ctx, driverID, domain.StatusInProgress)
}

func (s *TripService) deleteDriverTripSafely(driverID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.cache.DeleteDriverTrip(ctx, driverID); err != nil {
		s.log.Error("Fallo borrando clave driver:trip", zap.Int64("driver_id", driverID), zap.Error(err))
	}
}
