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

// UserServiceClient obtiene el snapshot del pasajero. Con el servicio caído
// devuelve un placeholder: el viaje se crea igual con datos best-effort.
type UserServiceClient struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	log     *zap.Logger
}

func NewUserServiceClient(baseURL string, timeout time.Duration, log *zap.Logger) *UserServiceClient {
	return &UserServiceClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		breaker: newBreaker("user-service"),
		log:     log,
	}
}

func unknownUser(userID int64) domain.UserInfo {
	return domain.UserInfo{ID: userID, Name: "usuario desconocido"}
}

func (c *UserServiceClient) GetUserInfo(ctx context.Context, userID int64) domain.UserInfo {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		url := fmt.Sprintf("%s/internal/api/users/%d", c.baseURL, userID)
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
			return nil, fmt.Errorf("user-service status %d", resp.StatusCode)
		}

		var info domain.UserInfo
		if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
			return nil, err
		}
		return info, nil
	})
	if err != nil {
		c.log.Warn("⚠️ User service no disponible, usando placeholder",
			zap.Int64("user_id", userID),
			zap.Error(err),
		)
		return unknownUser(userID)
	}
	return result.(domain.UserInfo)
}

// Verificación estática
var _ domain.UserClient = (*UserServiceClient)(nil)
