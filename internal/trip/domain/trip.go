package domain

import (
	"fmt"
	"time"
)

type TripStatus string

const (
	StatusMatched        TripStatus = "MATCHED"         // conductor asignado
	StatusArrived        TripStatus = "ARRIVED"         // conductor en el punto de recogida
	StatusInProgress     TripStatus = "IN_PROGRESS"     // en ruta
	StatusPaymentPending TripStatus = "PAYMENT_PENDING" // viaje terminado, cobro en curso
	StatusCompleted      TripStatus = "COMPLETED"       // cobrado
	StatusPaymentFailed  TripStatus = "PAYMENT_FAILED"  // compensación por cobro fallido
	StatusCanceled       TripStatus = "CANCELED"
)

// Trip es el agregado del viaje. Las transiciones solo avanzan por el grafo
// de estados; la única vuelta atrás es la compensación de pago. Cero I/O:
// quien persiste y quien publica eventos es la capa de aplicación.
type Trip struct {
	ID                 int64      `json:"-"` // clave interna, no sale del servicio
	TripID             string     `json:"trip_id"` // asignado por el matching service
	UserID             int64      `json:"user_id"`
	DriverID           int64      `json:"driver_id"`
	Status             TripStatus `json:"status"`
	OriginAddress      string     `json:"origin_address"`
	DestinationAddress string     `json:"destination_address"`
	Fare               *int       `json:"fare,omitempty"`
	MatchedAt          time.Time  `json:"matched_at"`
	StartedAt          *time.Time `json:"started_at,omitempty"`
	EndedAt            *time.Time `json:"ended_at,omitempty"`

	// Snapshot de enriquecimiento tomado al crear el viaje
	UserName     string `json:"user_name"`
	DriverName   string `json:"driver_name"`
	VehicleModel string `json:"vehicle_model"`
	LicensePlate string `json:"license_plate"`
}

// NewTrip crea el agregado en MATCHED. Se invoca una única vez por tripId.
func NewTrip(tripID string, userID, driverID int64, origin, destination string, matchedAt time.Time) *Trip {
	return &Trip{
		TripID:             tripID,
		UserID:             userID,
		DriverID:           driverID,
		Status:             StatusMatched,
		OriginAddress:      origin,
		DestinationAddress: destination,
		MatchedAt:          matchedAt,
	}
}

func (t *Trip) PartitionKey() string {
	return t.TripID
}

// Arrive marca la llegada del conductor al punto de recogida.
func (t *Trip) Arrive() error {
	if t.Status != StatusMatched {
		return fmt.Errorf("%w: no se puede marcar llegada desde %s", ErrTripStatusConflict, t.Status)
	}
	t.Status = StatusArrived
	return nil
}

// Start inicia la ruta.
func (t *Trip) Start(now time.Time) error {
	if t.Status != StatusArrived {
		return fmt.Errorf("%w: no se puede iniciar desde %s", ErrTripStatusConflict, t.Status)
	}
	t.Status = StatusInProgress
	t.StartedAt = &now
	return nil
}

// Complete cierra la ruta y deja el viaje a la espera del cobro.
// Devuelve endedAt para construir el evento de salida.
func (t *Trip) Complete(now time.Time) (time.Time, error) {
	if t.Status != StatusInProgress {
		return time.Time{}, fmt.Errorf("%w: no se puede completar desde %s", ErrTripStatusConflict, t.Status)
	}
	t.Status = StatusPaymentPending
	t.EndedAt = &now
	return now, nil
}

// Cancel es válido desde cualquier estado no terminal.
func (t *Trip) Cancel() error {
	if t.Status == StatusCompleted || t.Status == StatusCanceled {
		return fmt.Errorf("%w: no se puede cancelar desde %s", ErrTripStatusConflict, t.Status)
	}
	t.Status = StatusCanceled
	return nil
}

// ConfirmPayment cierra el viaje con el importe cobrado.
func (t *Trip) ConfirmPayment(fare int) error {
	if t.Status != StatusPaymentPending {
		return fmt.Errorf("%w: no se puede confirmar pago desde %s", ErrTripStatusConflict, t.Status)
	}
	t.Status = StatusCompleted
	t.Fare = &fare
	return nil
}

// RevertCompletion es la compensación por cobro fallido. Solo actúa desde
// COMPLETED o PAYMENT_PENDING; en cualquier otro estado es un no-op
// deliberado: un viaje que ya divergió no se toca.
func (t *Trip) RevertCompletion() {
	if t.Status == StatusCompleted || t.Status == StatusPaymentPending {
		t.Status = StatusPaymentFailed
	}
}

// EnrichSnapshot fija los datos de usuario/conductor capturados al crear.
func (t *Trip) EnrichSnapshot(userName, driverName, vehicleModel, licensePlate string) {
	t.UserName = userName
	t.DriverName = driverName
	t.VehicleModel = vehicleModel
	t.LicensePlate = licensePlate
}
