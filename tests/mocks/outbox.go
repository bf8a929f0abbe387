package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	sharedDomain "github.com/davicafu/triplab/internal/shared/domain"
)

// MockOutboxRepository simula el repo de outbox con expectativas de testify.
type MockOutboxRepository struct {
	mock.Mock
}

var _ sharedDomain.OutboxRepository = (*MockOutboxRepository)(nil)

func (m *MockOutboxRepository) ClaimPending(ctx context.Context, limit int) ([]sharedDomain.OutboxRecord, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]sharedDomain.OutboxRecord), args.Error(1)
}

func (m *MockOutboxRepository) MarkDone(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockOutboxRepository) ResetToReady(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockOutboxRepository) ResetStuck(ctx context.Context, olderThan time.Duration) (int64, error) {
	args := m.Called(ctx, olderThan)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockOutboxRepository) DeleteDone(ctx context.Context, olderThan time.Duration) (int64, error) {
	args := m.Called(ctx, olderThan)
	return args.Get(0).(int64), args.Error(1)
}

// MockPublisher simula el publicador de Kafka con expectativas de testify.
type MockPublisher struct {
	mock.Mock
}

var _ sharedDomain.EventPublisher = (*MockPublisher)(nil)

func (m *MockPublisher) Publish(ctx context.Context, topic string, key string, payload []byte) error {
	args := m.Called(ctx, topic, key, payload)
	return args.Error(0)
}

// RecordingPublisher guarda cada mensaje publicado, con fallo opcional por topic.
type RecordingPublisher struct {
	mu       sync.Mutex
	Messages []PublishedMessage
	FailOn   map[string]error // topic -> error a devolver
}

type PublishedMessage struct {
	Topic   string
	Key     string
	Payload []byte
}

var _ sharedDomain.EventPublisher = (*RecordingPublisher)(nil)

func NewRecordingPublisher() *RecordingPublisher {
	return &RecordingPublisher{FailOn: make(map[string]error)}
}

func (p *RecordingPublisher) Publish(ctx context.Context, topic string, key string, payload []byte) error {
	if err, ok := p.FailOn[topic]; ok {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Messages = append(p.Messages, PublishedMessage{Topic: topic, Key: key, Payload: payload})
	return nil
}

func (p *RecordingPublisher) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Messages)
}
