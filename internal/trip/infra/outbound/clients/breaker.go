package clients

import (
	"time"

	"github.com/sony/gobreaker"
)

// newBreaker configura un circuit breaker por colaborador: con el servicio
// remoto caído dejamos de pagar el timeout en cada evento y pasamos directos
// al fallback.
func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 && counts.TotalFailures >= 5
		},
	})
}
