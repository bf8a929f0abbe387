package mocks

import (
	"context"

	"github.com/davicafu/triplab/internal/trip/domain"
)

// StubGeocoder devuelve siempre la misma dirección.
type StubGeocoder struct {
	Address string
}

var _ domain.Geocoder = (*StubGeocoder)(nil)

func (g *StubGeocoder) ReverseGeocode(ctx context.Context, lon, lat float64) string {
	return g.Address
}

// StubUserClient devuelve un usuario fijo.
type StubUserClient struct {
	Info domain.UserInfo
}

var _ domain.UserClient = (*StubUserClient)(nil)

func (c *StubUserClient) GetUserInfo(ctx context.Context, userID int64) domain.UserInfo {
	info := c.Info
	info.ID = userID
	return info
}

// StubDriverClient devuelve un conductor fijo.
type StubDriverClient struct {
	Info domain.DriverInfo
}

var _ domain.DriverClient = (*StubDriverClient)(nil)

func (c *StubDriverClient) GetDriverInfo(ctx context.Context, driverID int64) domain.DriverInfo {
	info := c.Info
	info.ID = driverID
	return info
}
