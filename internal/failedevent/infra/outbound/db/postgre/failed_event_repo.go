package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/davicafu/triplab/internal/failedevent/domain"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// FailedEventRepoPostgres implementa la interfaz domain.FailedEventRepository.
type FailedEventRepoPostgres struct {
	db *sql.DB
}

func NewFailedEventRepoPostgres(db *sql.DB) *FailedEventRepoPostgres {
	return &FailedEventRepoPostgres{db: db}
}

func (r *FailedEventRepoPostgres) Save(ctx context.Context, evt *domain.FailedEvent) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO failed_events (topic, kafka_key, payload, error_message, status, created_at)
		 VALUES ($1, $2, $3, $4, 'PENDING', $5)
		 RETURNING id`,
		evt.Topic, evt.KafkaKey, evt.Payload, evt.ErrorMessage, time.Now().UTC(),
	).Scan(&evt.ID)
	if err != nil {
		return fmt.Errorf("failed to insert failed event: %w", err)
	}
	return nil
}

func (r *FailedEventRepoPostgres) FindPendingByTopic(ctx context.Context, topic string, limit int) ([]*domain.FailedEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, topic, kafka_key, payload, error_message, status, created_at
		 FROM failed_events
		 WHERE status = 'PENDING' AND topic = $1
		 ORDER BY created_at ASC
		 LIMIT $2`, topic, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var events []*domain.FailedEvent
	for rows.Next() {
		var evt domain.FailedEvent
		if err := rows.Scan(&evt.ID, &evt.Topic, &evt.KafkaKey, &evt.Payload, &evt.ErrorMessage, &evt.Status, &evt.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, &evt)
	}
	return events, rows.Err()
}

func (r *FailedEventRepoPostgres) MarkResolved(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE failed_events SET status = 'RESOLVED' WHERE id = ANY($1)`, int64Array(ids))
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *FailedEventRepoPostgres) FindByID(ctx context.Context, id int64) (*domain.FailedEvent, error) {
	var evt domain.FailedEvent
	err := r.db.QueryRowContext(ctx,
		`SELECT id, topic, kafka_key, payload, error_message, status, created_at
		 FROM failed_events WHERE id = $1`, id,
	).Scan(&evt.ID, &evt.Topic, &evt.KafkaKey, &evt.Payload, &evt.ErrorMessage, &evt.Status, &evt.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, domain.ErrFailedEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &evt, nil
}

func (r *FailedEventRepoPostgres) MarkIgnored(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE failed_events SET status = 'IGNORED' WHERE id = $1 AND status = 'PENDING'`, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrAlreadyProcessed
	}
	return nil
}

// int64Array serializa ids al formato array de Postgres ({1,2,3}).
func int64Array(ids []int64) string {
	s := "{"
	for i, id := range ids {
		if i > 0 {
			s += ","
		}
		s += fmt.Sprintf("%d", id)
	}
	return s + "}"
}

// ------------------ Inicialización ------------------

func InitFailedEvents(db *sql.DB) error {
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS failed_events (
		id BIGSERIAL PRIMARY KEY,
		topic TEXT NOT NULL,
		kafka_key TEXT NOT NULL DEFAULT '',
		payload BYTEA NOT NULL,
		error_message TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'PENDING',
		created_at TIMESTAMP NOT NULL
	)`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
	CREATE INDEX IF NOT EXISTS idx_failed_events_status_topic
	ON failed_events (status, topic, created_at)`)
	return err
}

// Verificación en tiempo de compilación.
var _ domain.FailedEventRepository = (*FailedEventRepoPostgres)(nil)
