package domain

import (
	"context"
	"time"
)

// OutboxStatus es el ciclo de vida de un registro de outbox.
type OutboxStatus string

const (
	OutboxReady      OutboxStatus = "READY"      // pendiente de publicar
	OutboxPublishing OutboxStatus = "PUBLISHING" // reclamado por un relay
	OutboxDone       OutboxStatus = "DONE"       // publicación confirmada
)

// OutboxRecord representa un evento pendiente de publicar en el broker.
// Se inserta SIEMPRE en la misma transacción que la mutación de negocio que
// lo origina; esa es la garantía de entrega at-least-once.
type OutboxRecord struct {
	ID          int64        `json:"id"` // secuencial, define el orden de publicación
	AggregateID string       `json:"aggregate_id"`
	Topic       string       `json:"topic"`
	Payload     []byte       `json:"payload"` // evento serializado (JSON)
	Status      OutboxStatus `json:"status"`
	CreatedAt   time.Time    `json:"created_at"`
}

// OutboxRepository define las operaciones del relay sobre la tabla outbox.
type OutboxRepository interface {
	// ClaimPending selecciona hasta limit registros READY por orden de
	// inserción (id secuencial),
	// los marca PUBLISHING y confirma en una transacción corta. Filas ya
	// bloqueadas por otro relay se saltan (SKIP LOCKED): dos instancias nunca
	// reclaman el mismo registro.
	ClaimPending(ctx context.Context, limit int) ([]OutboxRecord, error)

	// MarkDone confirma la publicación de un registro reclamado.
	MarkDone(ctx context.Context, id int64) error

	// ResetToReady devuelve un registro a READY para que el siguiente polling
	// lo reintente (fallo del broker durante la publicación).
	ResetToReady(ctx context.Context, id int64) error

	// ResetStuck devuelve a READY los registros que llevan demasiado tiempo en
	// PUBLISHING (un relay murió tras reclamar y antes de confirmar).
	ResetStuck(ctx context.Context, olderThan time.Duration) (int64, error)

	// DeleteDone borra registros DONE más antiguos que la ventana de retención.
	// Nunca toca READY ni PUBLISHING.
	DeleteDone(ctx context.Context, olderThan time.Duration) (int64, error)
}

// EventPublisher publica un mensaje ya serializado en el broker.
// La key determina la partición (tripId para los eventos de viaje).
type EventPublisher interface {
	Publish(ctx context.Context, topic string, key string, payload []byte) error
}
