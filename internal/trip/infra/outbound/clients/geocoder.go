package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/davicafu/triplab/internal/trip/domain"
)

const addressFallback = "dirección no disponible"

// GeocoderClient resuelve coordenadas a direcciones legibles. Nunca devuelve
// error: ante cualquier fallo responde el fallback para no bloquear la
// creación del viaje.
type GeocoderClient struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	log     *zap.Logger
}

func NewGeocoderClient(baseURL string, timeout time.Duration, log *zap.Logger) *GeocoderClient {
	return &GeocoderClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		breaker: newBreaker("geocoder"),
		log:     log,
	}
}

func (c *GeocoderClient) ReverseGeocode(ctx context.Context, lon, lat float64) string {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		url := fmt.Sprintf("%s/v1/reverse-geocode?lon=%f&lat=%f", c.baseURL, lon, lat)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("geocoder status %d", resp.StatusCode)
		}

		var body struct {
			Address string `json:"address"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return nil, err
		}
		return body.Address, nil
	})
	if err != nil {
		c.log.Warn("⚠️ Geocoder no disponible, usando fallback", zap.Error(err))
		return addressFallback
	}
	return result.(string)
}

// Verificación estática
var _ domain.Geocoder = (*GeocoderClient)(nil)
