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

// DriverServiceClient obtiene el snapshot del conductor y su vehículo.
type DriverServiceClient struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	log     *zap.Logger
}

func NewDriverServiceClient(baseURL string, timeout time.Duration, log *zap.Logger) *DriverServiceClient {
	return &DriverServiceClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		breaker: newBreaker("driver-service"),
		log:     log,
	}
}

func unknownDriver(driverID int64) domain.DriverInfo {
	return domain.DriverInfo{
		ID:   driverID,
		Name: "conductor desconocido",
		Vehicle: domain.VehicleInfo{
			LicensePlate: "sin datos",
			Model:        "sin datos",
		},
	}
}

func (c *DriverServiceClient) GetDriverInfo(ctx context.Context, driverID int64) domain.DriverInfo {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		url := fmt.Sprintf("%s/internal/api/drivers/%d", c.baseURL, driverID)
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
			return nil, fmt.Errorf("driver-service status %d", resp.StatusCode)
		}

		var info domain.DriverInfo
		if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
			return nil, err
		}
		return info, nil
	})
	if err != nil {
		c.log.Warn("⚠️ Driver service no disponible, usando placeholder",
			zap.Int64("driver_id", driverID),
			zap.Error(err),
		)
		return unknownDriver(driverID)
	}
	return result.(domain.DriverInfo)
}

// Verificación estática
var _ domain.DriverClient = (*DriverServiceClient)(nil)
