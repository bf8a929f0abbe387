package mocks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/davicafu/triplab/internal/failedevent/domain"
)

// InMemoryFailedEventRepo es un fake del archivo de eventos fallidos.
type InMemoryFailedEventRepo struct {
	mu     sync.Mutex
	nextID int64
	events map[int64]*domain.FailedEvent
}

var _ domain.FailedEventRepository = (*InMemoryFailedEventRepo)(nil)

func NewInMemoryFailedEventRepo() *InMemoryFailedEventRepo {
	return &InMemoryFailedEventRepo{events: make(map[int64]*domain.FailedEvent), nextID: 1}
}

func (r *InMemoryFailedEventRepo) Save(ctx context.Context, evt *domain.FailedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	evt.ID = r.nextID
	r.nextID++
	if evt.Status == "" {
		evt.Status = domain.StatusPending
	}
	if evt.CreatedAt.IsZero() {
		evt.CreatedAt = time.Now().UTC()
	}
	cp := *evt
	r.events[evt.ID] = &cp
	return nil
}

func (r *InMemoryFailedEventRepo) FindPendingByTopic(ctx context.Context, topic string, limit int) ([]*domain.FailedEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var pending []*domain.FailedEvent
	for _, evt := range r.events {
		if evt.Status == domain.StatusPending && evt.Topic == topic {
			cp := *evt
			pending = append(pending, &cp)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].ID < pending[j].ID })
	if len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

func (r *InMemoryFailedEventRepo) MarkResolved(ctx context.Context, ids []int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		if evt, ok := r.events[id]; ok {
			evt.Status = domain.StatusResolved
		}
	}
	return nil
}

func (r *InMemoryFailedEventRepo) FindByID(ctx context.Context, id int64) (*domain.FailedEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	evt, ok := r.events[id]
	if !ok {
		return nil, domain.ErrFailedEventNotFound
	}
	cp := *evt
	return &cp, nil
}

func (r *InMemoryFailedEventRepo) MarkIgnored(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	evt, ok := r.events[id]
	if !ok {
		return domain.ErrFailedEventNotFound
	}
	if evt.Status != domain.StatusPending {
		return domain.ErrAlreadyProcessed
	}
	evt.Status = domain.StatusIgnored
	return nil
}

// CountByStatus cuenta eventos por estado para los asserts.
func (r *InMemoryFailedEventRepo) CountByStatus(status domain.FailedEventStatus) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, evt := range r.events {
		if evt.Status == status {
			n++
		}
	}
	return n
}
