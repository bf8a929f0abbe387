package domain

import (
	"context"
	"errors"
	"time"
)

type FailedEventStatus string

const (
	StatusPending  FailedEventStatus = "PENDING"
	StatusResolved FailedEventStatus = "RESOLVED"
	StatusIgnored  FailedEventStatus = "IGNORED"
)

var (
	ErrFailedEventNotFound = errors.New("failed event not found")

	// ErrAlreadyProcessed: el evento ya fue reenviado o ignorado antes.
	ErrAlreadyProcessed = errors.New("failed event already processed")
)

// FailedEvent es un mensaje que agotó sus reintentos y aterrizó en la
// dead-letter queue. Topic guarda el topic ORIGINAL (sin el sufijo .DLT) para
// que el replay lo devuelva al sitio del que vino.
type FailedEvent struct {
	ID           int64             `json:"id"`
	Topic        string            `json:"topic"`
	KafkaKey     string            `json:"kafka_key"`
	Payload      []byte            `json:"payload"`
	ErrorMessage string            `json:"error_message"`
	Status       FailedEventStatus `json:"status"`
	CreatedAt    time.Time         `json:"created_at"`
}

// FailedEventRepository define las operaciones persistentes del archivo de
// eventos fallidos.
type FailedEventRepository interface {
	Save(ctx context.Context, evt *FailedEvent) error

	// FindPendingByTopic devuelve hasta limit eventos PENDING del topic, los
	// más antiguos primero.
	FindPendingByTopic(ctx context.Context, topic string, limit int) ([]*FailedEvent, error)

	// MarkResolved marca en bloque los ids reenviados con éxito.
	MarkResolved(ctx context.Context, ids []int64) error

	// FindByID devuelve ErrFailedEventNotFound si no existe.
	FindByID(ctx context.Context, id int64) (*FailedEvent, error)

	MarkIgnored(ctx context.Context, id int64) error
}
