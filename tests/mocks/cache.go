package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/davicafu/triplab/internal/trip/domain"
)

// DummyTripCache es un fake en memoria del índice driver→trip y del canal de
// difusión de ubicaciones. Seguro para concurrencia.
type DummyTripCache struct {
	mu        sync.RWMutex
	trips     map[int64]string
	Published map[string][][]byte // tripID -> payloads difundidos

	SetErr     error
	PublishErr error
}

var _ domain.TripCache = (*DummyTripCache)(nil)

func NewDummyTripCache() *DummyTripCache {
	return &DummyTripCache{
		trips:     make(map[int64]string),
		Published: make(map[string][][]byte),
	}
}

func (c *DummyTripCache) SetDriverTrip(ctx context.Context, driverID int64, tripID string, ttl time.Duration) error {
	if c.SetErr != nil {
		return c.SetErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.trips[driverID] = tripID
	return nil
}

func (c *DummyTripCache) DeleteDriverTrip(ctx context.Context, driverID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.trips, driverID)
	return nil
}

func (c *DummyTripCache) GetDriverTrips(ctx context.Context, driverIDs []int64) (map[int64]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[int64]string)
	for _, id := range driverIDs {
		if tripID, ok := c.trips[id]; ok {
			out[id] = tripID
		}
	}
	return out, nil
}

func (c *DummyTripCache) PublishLocation(ctx context.Context, tripID string, payload []byte) error {
	if c.PublishErr != nil {
		return c.PublishErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Published[tripID] = append(c.Published[tripID], payload)
	return nil
}

// HasDriverTrip consulta el índice directamente para los asserts.
func (c *DummyTripCache) HasDriverTrip(driverID int64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.trips[driverID]
	return ok
}
