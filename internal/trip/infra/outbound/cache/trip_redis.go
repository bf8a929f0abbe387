package cache

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/davicafu/triplab/internal/trip/domain"
)

// TripRedisCache mantiene driver:trip:<id> → tripId y el pub/sub de
// ubicaciones. El MGET en bloque es lo que permite al relay de ubicaciones
// resolver cientos de mensajes con un solo round-trip.
type TripRedisCache struct {
	client *redis.Client
}

func NewTripRedisCache(client *redis.Client) *TripRedisCache {
	return &TripRedisCache{client: client}
}

func (c *TripRedisCache) SetDriverTrip(ctx context.Context, driverID int64, tripID string, ttl time.Duration) error {
	return c.client.Set(ctx, domain.DriverTripKey(driverID), tripID, ttl).Err()
}

func (c *TripRedisCache) DeleteDriverTrip(ctx context.Context, driverID int64) error {
	return c.client.Del(ctx, domain.DriverTripKey(driverID)).Err()
}

func (c *TripRedisCache) GetDriverTrips(ctx context.Context, driverIDs []int64) (map[int64]string, error) {
	if len(driverIDs) == 0 {
		return map[int64]string{}, nil
	}

	keys := make([]string, len(driverIDs))
	for i, id := range driverIDs {
		keys[i] = domain.DriverTripKey(id)
	}

	vals, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	result := make(map[int64]string, len(driverIDs))
	for i, v := range vals {
		if v == nil {
			continue // conductor sin viaje activo
		}
		if tripID, ok := v.(string); ok && tripID != "" {
			result[driverIDs[i]] = tripID
		}
	}
	return result, nil
}

func (c *TripRedisCache) PublishLocation(ctx context.Context, tripID string, payload []byte) error {
	return c.client.Publish(ctx, domain.LocationChannel(tripID), payload).Err()
}

// Verificación estática
var _ domain.TripCache = (*TripRedisCache)(nil)
