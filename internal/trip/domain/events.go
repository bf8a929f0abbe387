package domain

import "time"

// ---------- Topics ----------

const (
	TripEventsTopic     = "trip_events"            // salida, keyed por tripId
	MatchingTopic       = "matching_events"        // entrada: batching service
	PaymentTopic        = "payment_events"         // entrada: payment service
	DriverLocationTopic = "driver_location_events" // entrada: stream de ubicaciones
)

// ---------- Tipos de evento (envoltura IntegrationEvent.Type) ----------

const (
	TripMatched      = "trip.matched"
	PaymentSucceeded = "payment.succeeded"
	PaymentFailed    = "payment.failed"

	DriverArrived = "trip.driver_arrived"
	TripCompleted = "trip.completed"
	TripCanceled  = "trip.canceled"
)

// ---------- Eventos de entrada ----------

type Location struct {
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
}

// TripMatchedEvent replica la estructura que publica el matching service.
type TripMatchedEvent struct {
	TripID      string    `json:"trip_id"`
	UserID      int64     `json:"user_id"`
	DriverID    int64     `json:"driver_id"`
	Origin      Location  `json:"origin"`
	Destination Location  `json:"destination"`
	MatchedAt   time.Time `json:"matched_at"`
}

type PaymentCompletedEvent struct {
	TripID string `json:"trip_id"`
	Fare   int    `json:"fare"`
}

type PaymentFailedEvent struct {
	TripID string `json:"trip_id"`
	Reason string `json:"reason"`
}

type DriverLocationUpdatedEvent struct {
	DriverID  int64   `json:"driver_id"`
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
}

// ---------- Eventos de salida (payload de trip_events) ----------

type DriverArrivedEvent struct {
	TripID string `json:"trip_id"`
	UserID int64  `json:"user_id"`
}

type TripCompletedEvent struct {
	TripID          string    `json:"trip_id"`
	UserID          int64     `json:"user_id"`
	DriverID        int64     `json:"driver_id"`
	DistanceMeters  int       `json:"distance_meters"`
	DurationSeconds int       `json:"duration_seconds"`
	EndedAt         time.Time `json:"ended_at"`
}

type TripCanceledEvent struct {
	TripID     string `json:"trip_id"`
	DriverID   int64  `json:"driver_id"`
	CanceledBy string `json:"canceled_by"` // USER | DRIVER
}
