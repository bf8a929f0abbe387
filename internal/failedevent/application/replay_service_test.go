package application

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/davicafu/triplab/internal/failedevent/domain"
	"github.com/davicafu/triplab/tests/mocks"
)

func seedPending(repo *mocks.InMemoryFailedEventRepo, topic string, n int) {
	for i := 0; i < n; i++ {
		repo.Save(context.Background(), &domain.FailedEvent{
			Topic:        topic,
			KafkaKey:     fmt.Sprintf("trip-%d", i),
			Payload:      []byte(fmt.Sprintf(`{"n":%d}`, i)),
			ErrorMessage: "boom",
		})
	}
}

func TestRetryAllByTopic_ResendsEverything(t *testing.T) {
	repo := mocks.NewInMemoryFailedEventRepo()
	publisher := mocks.NewRecordingPublisher()
	service := NewReplayService(repo, publisher, 1000, zap.NewNop())

	// Más eventos que el tamaño del lote: obliga a paginar.
	seedPending(repo, "matching_events", 2500)

	count, err := service.RetryAllByTopic(context.Background(), "matching_events")

	assert.NoError(t, err)
	assert.Equal(t, 2500, count)
	assert.Equal(t, 2500, publisher.Count())
	assert.Equal(t, 2500, repo.CountByStatus(domain.StatusResolved))
	assert.Equal(t, 0, repo.CountByStatus(domain.StatusPending))

	// El mensaje conserva su key original de partición.
	assert.Equal(t, "trip-0", publisher.Messages[0].Key)

	// Segunda pasada: ya no queda nada.
	count, err = service.RetryAllByTopic(context.Background(), "matching_events")
	assert.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestRetryAllByTopic_OnlyTargetTopic(t *testing.T) {
	repo := mocks.NewInMemoryFailedEventRepo()
	publisher := mocks.NewRecordingPublisher()
	service := NewReplayService(repo, publisher, 1000, zap.NewNop())

	seedPending(repo, "matching_events", 3)
	seedPending(repo, "payment_events", 2)

	count, err := service.RetryAllByTopic(context.Background(), "payment_events")

	assert.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, 3, repo.CountByStatus(domain.StatusPending), "los de matching no se tocan")
}

func TestRetryAllByTopic_StopsWhenBrokerIsDown(t *testing.T) {
	repo := mocks.NewInMemoryFailedEventRepo()
	publisher := mocks.NewRecordingPublisher()
	publisher.FailOn["matching_events"] = assert.AnError
	service := NewReplayService(repo, publisher, 1000, zap.NewNop())

	seedPending(repo, "matching_events", 10)

	count, err := service.RetryAllByTopic(context.Background(), "matching_events")

	// Sin progreso no hay bucle infinito: se corta con lo conseguido (nada).
	assert.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.Equal(t, 10, repo.CountByStatus(domain.StatusPending))
}

func TestIgnoreEvent(t *testing.T) {
	repo := mocks.NewInMemoryFailedEventRepo()
	service := NewReplayService(repo, mocks.NewRecordingPublisher(), 1000, zap.NewNop())

	evt := &domain.FailedEvent{Topic: "matching_events", Payload: []byte(`{}`)}
	repo.Save(context.Background(), evt)

	assert.NoError(t, service.IgnoreEvent(context.Background(), evt.ID))
	assert.Equal(t, 1, repo.CountByStatus(domain.StatusIgnored))

	// Ignorar dos veces es conflicto.
	err := service.IgnoreEvent(context.Background(), evt.ID)
	assert.ErrorIs(t, err, domain.ErrAlreadyProcessed)
}

func TestIgnoreEvent_NotFound(t *testing.T) {
	repo := mocks.NewInMemoryFailedEventRepo()
	service := NewReplayService(repo, mocks.NewRecordingPublisher(), 1000, zap.NewNop())

	err := service.IgnoreEvent(context.Background(), 999)
	assert.ErrorIs(t, err, domain.ErrFailedEventNotFound)
}
