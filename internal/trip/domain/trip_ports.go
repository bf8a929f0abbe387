package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	sharedDomain "github.com/davicafu/triplab/internal/shared/domain"
)

// ---------- Errores de dominio ----------
var (
	ErrTripNotFound       = errors.New("trip not found")
	ErrTripAlreadyExists  = errors.New("trip already exists")
	ErrTripStatusConflict = errors.New("trip status conflict")

	// ErrTransientStore agrupa lock timeout, deadlock y cortes de conexión.
	// La capa de comandos los reintenta de forma acotada.
	ErrTransientStore = errors.New("transient store failure")
)

// ---------- Interfaces (Ports) ----------

// UnitOfWork permite registrar efectos que solo deben ejecutarse si la
// transacción que envuelve la mutación llega a confirmar (p.ej. invalidar
// la clave driver:trip en Redis).
type UnitOfWork interface {
	AfterCommit(fn func())
}

// TripRepository define las operaciones persistentes para Trip.
type TripRepository interface {
	// Debe devolver ErrTripAlreadyExists si el tripId ya existe (índice único).
	Create(ctx context.Context, t *Trip) error

	// Debe devolver ErrTripNotFound si no existe. Lectura sin lock.
	FindByTripID(ctx context.Context, tripID string) (*Trip, error)

	// Mutate ejecuta fn bajo lock pesimista de fila (NOWAIT: si otra
	// transacción tiene la fila, falla rápido con ErrTransientStore).
	// El registro de outbox que devuelva fn se inserta en la MISMA
	// transacción que el UPDATE del viaje.
	Mutate(ctx context.Context, tripID string, fn func(uow UnitOfWork, t *Trip) (*sharedDomain.OutboxRecord, error)) error

	// ExistsByDriverAndStatus responde "¿este conductor está en ruta?".
	ExistsByDriverAndStatus(ctx context.Context, driverID int64, status TripStatus) (bool, error)
}

// TripCache mantiene el índice driver→trip y el canal de difusión de
// ubicaciones (Redis). Es best-effort: ningún fallo aquí rompe un comando.
type TripCache interface {
	SetDriverTrip(ctx context.Context, driverID int64, tripID string, ttl time.Duration) error
	DeleteDriverTrip(ctx context.Context, driverID int64) error

	// GetDriverTrips resuelve en UNA llamada los viajes activos de un lote de
	// conductores; los que no tienen viaje no aparecen en el mapa.
	GetDriverTrips(ctx context.Context, driverIDs []int64) (map[int64]string, error)

	PublishLocation(ctx context.Context, tripID string, payload []byte) error
}

// ---------- Colaboradores externos ----------
// Nunca fallan hacia el caller: devuelven un valor de fallback si el servicio
// remoto no responde, para que la creación del viaje siga adelante.

type UserInfo struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type VehicleInfo struct {
	LicensePlate string `json:"license_plate"`
	Model        string `json:"model"`
}

type DriverInfo struct {
	ID        int64       `json:"id"`
	Name      string      `json:"name"`
	RatingAvg float64     `json:"rating_avg"`
	Vehicle   VehicleInfo `json:"vehicle"`
}

type Geocoder interface {
	ReverseGeocode(ctx context.Context, lon, lat float64) string
}

type UserClient interface {
	GetUserInfo(ctx context.Context, userID int64) UserInfo
}

type DriverClient interface {
	GetDriverInfo(ctx context.Context, driverID int64) DriverInfo
}

// ---------- Helpers comunes (cache keys, etc.) ----------

// DriverTripKey forma la clave driver→trip activa.
func DriverTripKey(driverID int64) string {
	return fmt.Sprintf("driver:trip:%d", driverID)
}

// LocationChannel es el canal pub/sub por viaje para la difusión de posición.
func LocationChannel(tripID string) string {
	return fmt.Sprintf("trip:location:%s", tripID)
}
