package mocks

import (
	"context"
	"sync"

	sharedDomain "github.com/davicafu/triplab/internal/shared/domain"
	"github.com/davicafu/triplab/internal/trip/domain"
)

// fakeUow recoge los hooks post-commit de una mutación.
type fakeUow struct {
	hooks []func()
}

func (u *fakeUow) AfterCommit(fn func()) { u.hooks = append(u.hooks, fn) }

// InMemoryTripRepo es un fake del repositorio de viajes con captura de outbox.
// FailMutations simula fallos transitorios del lock: las N primeras llamadas a
// Mutate devuelven ErrTransientStore.
type InMemoryTripRepo struct {
	mu     sync.Mutex
	trips  map[string]*domain.Trip
	Outbox []sharedDomain.OutboxRecord

	FailMutations int
	MutateCalls   int
}

var _ domain.TripRepository = (*InMemoryTripRepo)(nil)

func NewInMemoryTripRepo() *InMemoryTripRepo {
	return &InMemoryTripRepo{trips: make(map[string]*domain.Trip)}
}

func (r *InMemoryTripRepo) Create(ctx context.Context, t *domain.Trip) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.trips[t.TripID]; ok {
		return domain.ErrTripAlreadyExists
	}
	cp := *t
	r.trips[t.TripID] = &cp
	return nil
}

func (r *InMemoryTripRepo) FindByTripID(ctx context.Context, tripID string) (*domain.Trip, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.trips[tripID]
	if !ok {
		return nil, domain.ErrTripNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *InMemoryTripRepo) Mutate(ctx context.Context, tripID string, fn func(uow domain.UnitOfWork, t *domain.Trip) (*sharedDomain.OutboxRecord, error)) error {
	r.mu.Lock()
	r.MutateCalls++
	if r.FailMutations > 0 {
		r.FailMutations--
		r.mu.Unlock()
		return domain.ErrTransientStore
	}

	t, ok := r.trips[tripID]
	if !ok {
		r.mu.Unlock()
		return domain.ErrTripNotFound
	}

	cp := *t
	uow := &fakeUow{}
	rec, err := fn(uow, &cp)
	if err != nil {
		r.mu.Unlock()
		return err
	}

	r.trips[tripID] = &cp
	if rec != nil {
		r.Outbox = append(r.Outbox, *rec)
	}
	r.mu.Unlock()

	for _, hook := range uow.hooks {
		hook()
	}
	return nil
}

func (r *InMemoryTripRepo) ExistsByDriverAndStatus(ctx context.Context, driverID int64, status domain.TripStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.trips {
		if t.DriverID == driverID && t.Status == status {
			return true, nil
		}
	}
	return false, nil
}

// Seed inserta un viaje directamente, sin pasar por Create.
func (r *InMemoryTripRepo) Seed(t *domain.Trip) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *t
	r.trips[t.TripID] = &cp
}
