package application

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	sharedEvents "github.com/davicafu/triplab/internal/shared/domain/events"
	"github.com/davicafu/triplab/internal/trip/domain"
	"github.com/davicafu/triplab/tests/mocks"
)

func newTestService(repo *mocks.InMemoryTripRepo, cache *mocks.DummyTripCache) *TripService {
	return NewTripService(
		repo,
		cache,
		&mocks.StubGeocoder{Address: "Gran Vía 1"},
		&mocks.StubUserClient{Info: domain.UserInfo{Name: "Ana"}},
		&mocks.StubDriverClient{Info: domain.DriverInfo{
			Name:    "Luis",
			Vehicle: domain.VehicleInfo{Model: "Model 3", LicensePlate: "1234-ABC"},
		}},
		3,
		time.Millisecond,
		3*time.Hour,
		zap.NewNop(),
	)
}

func matchEvent(tripID string) domain.TripMatchedEvent {
	return domain.TripMatchedEvent{
		TripID:      tripID,
		UserID:      1,
		DriverID:    42,
		Origin:      domain.Location{Longitude: -3.70, Latitude: 40.41},
		Destination: domain.Location{Longitude: -3.68, Latitude: 40.43},
		MatchedAt:   time.Now().UTC(),
	}
}

func decodeEnvelope(t *testing.T, payload []byte) sharedEvents.IntegrationEvent {
	t.Helper()
	var evt sharedEvents.IntegrationEvent
	assert.NoError(t, json.Unmarshal(payload, &evt))
	return evt
}

// -------------------- Creación desde matching --------------------

func TestCreateTripFromMatch_Success(t *testing.T) {
	repo := mocks.NewInMemoryTripRepo()
	cache := mocks.NewDummyTripCache()
	service := newTestService(repo, cache)

	trip, err := service.CreateTripFromMatch(context.Background(), matchEvent("trip-1"))

	assert.NoError(t, err)
	assert.Equal(t, domain.StatusMatched, trip.Status)
	assert.Equal(t, "Gran Vía 1", trip.OriginAddress)
	assert.Equal(t, "Ana", trip.UserName)
	assert.Equal(t, "Luis", trip.DriverName)
	assert.Equal(t, "1234-ABC", trip.LicensePlate)

	// El índice driver→trip queda poblado para el relay de ubicaciones.
	assert.True(t, cache.HasDriverTrip(42))
}

func TestCreateTripFromMatch_DuplicateDelivery(t *testing.T) {
	repo := mocks.NewInMemoryTripRepo()
	cache := mocks.NewDummyTripCache()
	service := newTestService(repo, cache)

	first, err := service.CreateTripFromMatch(context.Background(), matchEvent("trip-1"))
	assert.NoError(t, err)

	// Segunda entrega del mismo evento: mismo viaje, sin error.
	second, err := service.CreateTripFromMatch(context.Background(), matchEvent("trip-1"))
	assert.NoError(t, err)
	assert.Equal(t, first.TripID, second.TripID)
}

func TestCreateTripFromMatch_CacheFailureDoesNotBlock(t *testing.T) {
	repo := mocks.NewInMemoryTripRepo()
	cache := mocks.NewDummyTripCache()
	cache.SetErr = assert.AnError
	service := newTestService(repo, cache)

	trip, err := service.CreateTripFromMatch(context.Background(), matchEvent("trip-1"))

	assert.NoError(t, err)
	assert.NotNil(t, trip)
}

// -------------------- Comandos --------------------

func seedTrip(repo *mocks.InMemoryTripRepo, status domain.TripStatus) *domain.Trip {
	trip := domain.NewTrip("trip-1", 1, 42, "A", "B", time.Now().UTC())
	trip.Status = status
	repo.Seed(trip)
	return trip
}

func TestDriverArrived_EmitsOutboxEvent(t *testing.T) {
	repo := mocks.NewInMemoryTripRepo()
	service := newTestService(repo, mocks.NewDummyTripCache())
	seedTrip(repo, domain.StatusMatched)

	err := service.DriverArrived(context.Background(), "trip-1")

	assert.NoError(t, err)
	updated, _ := repo.FindByTripID(context.Background(), "trip-1")
	assert.Equal(t, domain.StatusArrived, updated.Status)

	assert.Len(t, repo.Outbox, 1)
	assert.Equal(t, domain.TripEventsTopic, repo.Outbox[0].Topic)
	assert.Equal(t, "trip-1", repo.Outbox[0].AggregateID)
	assert.Equal(t, domain.DriverArrived, decodeEnvelope(t, repo.Outbox[0].Payload).Type)
}

func TestDriverArrived_DuplicateCommandIsSuccess(t *testing.T) {
	repo := mocks.NewInMemoryTripRepo()
	service := newTestService(repo, mocks.NewDummyTripCache())
	seedTrip(repo, domain.StatusArrived)

	err := service.DriverArrived(context.Background(), "trip-1")

	// Ya estaba en ARRIVED: éxito sin reemitir el evento.
	assert.NoError(t, err)
	assert.Empty(t, repo.Outbox)
}

func TestDriverArrived_Conflict(t *testing.T) {
	repo := mocks.NewInMemoryTripRepo()
	service := newTestService(repo, mocks.NewDummyTripCache())
	seedTrip(repo, domain.StatusInProgress)

	err := service.DriverArrived(context.Background(), "trip-1")

	assert.ErrorIs(t, err, domain.ErrTripStatusConflict)
	assert.Empty(t, repo.Outbox)
}

func TestStartTrip_NoOutboxEvent(t *testing.T) {
	repo := mocks.NewInMemoryTripRepo()
	service := newTestService(repo, mocks.NewDummyTripCache())
	seedTrip(repo, domain.StatusArrived)

	err := service.StartTrip(context.Background(), "trip-1")

	assert.NoError(t, err)
	updated, _ := repo.FindByTripID(context.Background(), "trip-1")
	assert.Equal(t, domain.StatusInProgress, updated.Status)
	assert.NotNil(t, updated.StartedAt)
	assert.Empty(t, repo.Outbox)
}

func TestCompleteTrip_EmitsEventAndInvalidatesCache(t *testing.T) {
	repo := mocks.NewInMemoryTripRepo()
	cache := mocks.NewDummyTripCache()
	service := newTestService(repo, cache)
	seedTrip(repo, domain.StatusInProgress)
	cache.SetDriverTrip(context.Background(), 42, "trip-1", time.Hour)

	err := service.CompleteTrip(context.Background(), "trip-1", 5400, 900)

	assert.NoError(t, err)
	updated, _ := repo.FindByTripID(context.Background(), "trip-1")
	assert.Equal(t, domain.StatusPaymentPending, updated.Status)

	assert.Len(t, repo.Outbox, 1)
	env := decodeEnvelope(t, repo.Outbox[0].Payload)
	assert.Equal(t, domain.TripCompleted, env.Type)

	var evt domain.TripCompletedEvent
	assert.NoError(t, json.Unmarshal(env.Data, &evt))
	assert.Equal(t, 5400, evt.DistanceMeters)
	assert.Equal(t, 900, evt.DurationSeconds)

	// El hook post-commit limpia el índice driver→trip.
	assert.False(t, cache.HasDriverTrip(42))
}

func TestCancelTrip_FromInProgress(t *testing.T) {
	repo := mocks.NewInMemoryTripRepo()
	cache := mocks.NewDummyTripCache()
	service := newTestService(repo, cache)
	seedTrip(repo, domain.StatusInProgress)
	cache.SetDriverTrip(context.Background(), 42, "trip-1", time.Hour)

	err := service.CancelTrip(context.Background(), "trip-1", "USER")

	assert.NoError(t, err)
	updated, _ := repo.FindByTripID(context.Background(), "trip-1")
	assert.Equal(t, domain.StatusCanceled, updated.Status)

	assert.Len(t, repo.Outbox, 1)
	env := decodeEnvelope(t, repo.Outbox[0].Payload)
	assert.Equal(t, domain.TripCanceled, env.Type)

	var evt domain.TripCanceledEvent
	assert.NoError(t, json.Unmarshal(env.Data, &evt))
	assert.Equal(t, "USER", evt.CanceledBy)

	assert.False(t, cache.HasDriverTrip(42))
}

func TestCancelTrip_AfterCompletedIsConflict(t *testing.T) {
	repo := mocks.NewInMemoryTripRepo()
	service := newTestService(repo, mocks.NewDummyTripCache())
	seedTrip(repo, domain.StatusCompleted)

	err := service.CancelTrip(context.Background(), "trip-1", "USER")

	assert.ErrorIs(t, err, domain.ErrTripStatusConflict)
}

func TestCommand_NotFound(t *testing.T) {
	repo := mocks.NewInMemoryTripRepo()
	service := newTestService(repo, mocks.NewDummyTripCache())

	err := service.DriverArrived(context.Background(), "no-such-trip")

	assert.ErrorIs(t, err, domain.ErrTripNotFound)
}

// -------------------- Reintento de fallos transitorios --------------------

func TestCommand_RetriesTransientFailures(t *testing.T) {
	repo := mocks.NewInMemoryTripRepo()
	service := newTestService(repo, mocks.NewDummyTripCache())
	seedTrip(repo, domain.StatusMatched)

	// Las dos primeras mutaciones fallan con error transitorio (lock ocupado).
	repo.FailMutations = 2

	err := service.DriverArrived(context.Background(), "trip-1")

	assert.NoError(t, err)
	assert.Equal(t, 3, repo.MutateCalls)
}

func TestCommand_GivesUpAfterMaxAttempts(t *testing.T) {
	repo := mocks.NewInMemoryTripRepo()
	service := newTestService(repo, mocks.NewDummyTripCache())
	seedTrip(repo, domain.StatusMatched)

	repo.FailMutations = 3

	err := service.DriverArrived(context.Background(), "trip-1")

	assert.ErrorIs(t, err, domain.ErrTransientStore)
	assert.Equal(t, 3, repo.MutateCalls)
}

// -------------------- Eventos de pago --------------------

func TestHandlePaymentSuccess(t *testing.T) {
	repo := mocks.NewInMemoryTripRepo()
	service := newTestService(repo, mocks.NewDummyTripCache())
	seedTrip(repo, domain.StatusPaymentPending)

	err := service.HandlePaymentSuccess(context.Background(), domain.PaymentCompletedEvent{TripID: "trip-1", Fare: 1250})

	assert.NoError(t, err)
	updated, _ := repo.FindByTripID(context.Background(), "trip-1")
	assert.Equal(t, domain.StatusCompleted, updated.Status)
	assert.Equal(t, 1250, *updated.Fare)
}

func TestHandlePaymentSuccess_DuplicateIgnored(t *testing.T) {
	repo := mocks.NewInMemoryTripRepo()
	service := newTestService(repo, mocks.NewDummyTripCache())
	trip := seedTrip(repo, domain.StatusCompleted)
	fare := 1250
	trip.Fare = &fare
	repo.Seed(trip)

	err := service.HandlePaymentSuccess(context.Background(), domain.PaymentCompletedEvent{TripID: "trip-1", Fare: 9999})

	assert.NoError(t, err)
	updated, _ := repo.FindByTripID(context.Background(), "trip-1")
	assert.Equal(t, 1250, *updated.Fare, "el importe original no debe cambiar")
}

func TestHandlePaymentSuccess_UnknownTripIsConsumed(t *testing.T) {
	repo := mocks.NewInMemoryTripRepo()
	service := newTestService(repo, mocks.NewDummyTripCache())

	// Viaje desconocido: se registra y se consume, reintentar no lo arregla.
	err := service.HandlePaymentSuccess(context.Background(), domain.PaymentCompletedEvent{TripID: "ghost", Fare: 100})

	assert.NoError(t, err)
}

func TestRevertTripCompletion(t *testing.T) {
	repo := mocks.NewInMemoryTripRepo()
	service := newTestService(repo, mocks.NewDummyTripCache())
	seedTrip(repo, domain.StatusPaymentPending)

	err := service.RevertTripCompletion(context.Background(), domain.PaymentFailedEvent{TripID: "trip-1", Reason: "card declined"})

	assert.NoError(t, err)
	updated, _ := repo.FindByTripID(context.Background(), "trip-1")
	assert.Equal(t, domain.StatusPaymentFailed, updated.Status)
}

func TestRevertTripCompletion_NoOpOnDivergedTrip(t *testing.T) {
	repo := mocks.NewInMemoryTripRepo()
	service := newTestService(repo, mocks.NewDummyTripCache())
	seedTrip(repo, domain.StatusCanceled)

	err := service.RevertTripCompletion(context.Background(), domain.PaymentFailedEvent{TripID: "trip-1"})

	assert.NoError(t, err)
	updated, _ := repo.FindByTripID(context.Background(), "trip-1")
	assert.Equal(t, domain.StatusCanceled, updated.Status)
}

// -------------------- Ubicaciones --------------------

func TestForwardDriverLocationBulk(t *testing.T) {
	repo := mocks.NewInMemoryTripRepo()
	cache := mocks.NewDummyTripCache()
	service := newTestService(repo, cache)

	cache.SetDriverTrip(context.Background(), 42, "trip-1", time.Hour)

	service.ForwardDriverLocationBulk(context.Background(), []domain.DriverLocationUpdatedEvent{
		{DriverID: 42, Longitude: -3.70, Latitude: 40.41},
		{DriverID: 42, Longitude: -3.71, Latitude: 40.42},
		{DriverID: 99, Longitude: -3.72, Latitude: 40.43}, // sin viaje activo
	})

	assert.Len(t, cache.Published["trip-1"], 2)
	assert.NotContains(t, cache.Published, "trip-99")
}

// -------------------- Consultas --------------------

func TestIsDriverOnTrip(t *testing.T) {
	repo := mocks.NewInMemoryTripRepo()
	service := newTestService(repo, mocks.NewDummyTripCache())
	seedTrip(repo, domain.StatusInProgress)

	onTrip, err := service.IsDriverOnTrip(context.Background(), 42)
	assert.NoError(t, err)
	assert.True(t, onTrip)

	onTrip, err = service.IsDriverOnTrip(context.Background(), 7)
	assert.NoError(t, err)
	assert.False(t, onTrip)
}
