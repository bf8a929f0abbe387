package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sharedDomain "github.com/davicafu/triplab/internal/shared/domain"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// OutboxRepoPostgres implementa la interfaz sharedDomain.OutboxRepository.
type OutboxRepoPostgres struct {
	db *sql.DB
}

func NewOutboxRepoPostgres(db *sql.DB) *OutboxRepoPostgres {
	return &OutboxRepoPostgres{db: db}
}

// InsertTx inserta un registro READY dentro de la transacción de la mutación
// de negocio. Es el único punto de creación de eventos de salida.
func InsertTx(ctx context.Context, tx *sql.Tx, rec sharedDomain.OutboxRecord) error {
	now := time.Now().UTC()
	_, err := tx.ExecContext(ctx,
		`INSERT INTO trip_outbox (aggregate_id, topic, payload, status, created_at, updated_at)
		 VALUES ($1, $2, $3, 'READY', $4, $4)`,
		rec.AggregateID, rec.Topic, rec.Payload, now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert outbox record: %w", err)
	}
	return nil
}

// ClaimPending selecciona registros READY con SKIP LOCKED, los pasa a
// PUBLISHING y confirma inmediatamente para soltar los locks. Varias
// instancias del relay pueden correr en paralelo sin reclamar duplicados.
func (r *OutboxRepoPostgres) ClaimPending(ctx context.Context, limit int) ([]sharedDomain.OutboxRecord, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin claim tx: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	rows, err := tx.QueryContext(ctx,
		`SELECT id, aggregate_id, topic, payload, created_at
		 FROM trip_outbox
		 WHERE status = 'READY'
		 ORDER BY id ASC
		 LIMIT $1
		 FOR UPDATE SKIP LOCKED`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to select ready records: %w", err)
	}

	var records []sharedDomain.OutboxRecord
	var ids []int64
	for rows.Next() {
		var rec sharedDomain.OutboxRecord
		if err = rows.Scan(&rec.ID, &rec.AggregateID, &rec.Topic, &rec.Payload, &rec.CreatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		rec.Status = sharedDomain.OutboxPublishing
		records = append(records, rec)
		ids = append(ids, rec.ID)
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return nil, err
	}

	if len(ids) == 0 {
		return nil, tx.Commit()
	}

	// ANY($1) con array evita construir el IN a mano. updated_at marca el
	// momento del claim: es la referencia del rescate de atascados.
	if _, err = tx.ExecContext(ctx,
		`UPDATE trip_outbox SET status = 'PUBLISHING', updated_at = $2 WHERE id = ANY($1)`,
		int64Array(ids), time.Now().UTC(),
	); err != nil {
		return nil, fmt.Errorf("failed to mark records publishing: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit claim: %w", err)
	}
	return records, nil
}

func (r *OutboxRepoPostgres) MarkDone(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE trip_outbox SET status = 'DONE', updated_at = $2 WHERE id = $1`,
		id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get RowsAffected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("outbox record not found: %d", id)
	}
	return nil
}

func (r *OutboxRepoPostgres) ResetToReady(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE trip_outbox SET status = 'READY', updated_at = $2
		 WHERE id = $1 AND status = 'PUBLISHING'`,
		id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// ResetStuck rescata registros que un relay reclamó y nunca confirmó. El
// plazo se mide desde el claim (updated_at), no desde la creación: un
// registro viejo recién reclamado durante una recuperación de backlog no es
// un atascado.
func (r *OutboxRepoPostgres) ResetStuck(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	res, err := r.db.ExecContext(ctx,
		`UPDATE trip_outbox SET status = 'READY', updated_at = $2
		 WHERE status = 'PUBLISHING' AND updated_at < $1`, cutoff, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return res.RowsAffected()
}

func (r *OutboxRepoPostgres) DeleteDone(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM trip_outbox WHERE status = 'DONE' AND updated_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return res.RowsAffected()
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

func InitOutbox(db *sql.DB) error {
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS trip_outbox (
		id BIGSERIAL PRIMARY KEY,
		aggregate_id TEXT NOT NULL,
		topic TEXT NOT NULL,
		payload JSONB NOT NULL,
		status TEXT NOT NULL DEFAULT 'READY',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
	CREATE INDEX IF NOT EXISTS idx_outbox_status_created
	ON trip_outbox (status, created_at)`)
	return err
}

// Verificación en tiempo de compilación.
var _ sharedDomain.OutboxRepository = (*OutboxRepoPostgres)(nil)
