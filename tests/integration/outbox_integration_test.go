package integration

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	outboxPostgres "github.com/davicafu/triplab/internal/infra/db/postgres"
	sharedDomain "github.com/davicafu/triplab/internal/shared/domain"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// setupOutboxDB abre la base de pruebas y deja la tabla outbox vacía.
// Se salta si no hay Postgres disponible (POSTGRES_TEST_DSN).
func setupOutboxDB(t *testing.T) *sql.DB {
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN no definido, se omite el test de integración")
	}

	db, err := sql.Open("pgx", dsn)
	require.NoError(t, err)
	require.NoError(t, db.Ping())

	require.NoError(t, outboxPostgres.InitOutbox(db))
	_, err = db.Exec(`TRUNCATE trip_outbox`)
	require.NoError(t, err)

	t.Cleanup(func() { db.Close() })
	return db
}

func insertReady(t *testing.T, db *sql.DB, aggregateID string, createdAt time.Time) int64 {
	var id int64
	err := db.QueryRow(
		`INSERT INTO trip_outbox (aggregate_id, topic, payload, status, created_at, updated_at)
		 VALUES ($1, 'trip_events', '{}', 'READY', $2, $2)
		 RETURNING id`,
		aggregateID, createdAt,
	).Scan(&id)
	require.NoError(t, err)
	return id
}

func TestOutboxIntegration_ClaimPendingFollowsInsertionOrder(t *testing.T) {
	db := setupOutboxDB(t)
	repo := outboxPostgres.NewOutboxRepoPostgres(db)

	// Mismo created_at para los tres: el orden lo decide el id secuencial.
	now := time.Now().UTC().Truncate(time.Second)
	first := insertReady(t, db, "trip-a", now)
	second := insertReady(t, db, "trip-a", now)
	third := insertReady(t, db, "trip-b", now)

	records, err := repo.ClaimPending(context.Background(), 10)
	assert.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []int64{first, second, third}, []int64{records[0].ID, records[1].ID, records[2].ID})

	for _, rec := range records {
		assert.Equal(t, sharedDomain.OutboxPublishing, rec.Status)
	}

	// Un segundo claim no reclama nada: todo quedó en PUBLISHING.
	again, err := repo.ClaimPending(context.Background(), 10)
	assert.NoError(t, err)
	assert.Empty(t, again)
}

func TestOutboxIntegration_ResetStuckMeasuresFromClaimTime(t *testing.T) {
	db := setupOutboxDB(t)
	repo := outboxPostgres.NewOutboxRepoPostgres(db)

	// Registro viejo (creado hace una hora) reclamado ahora mismo: no es un
	// atascado aunque su created_at supere de sobra la ventana de gracia.
	insertReady(t, db, "trip-old", time.Now().UTC().Add(-time.Hour))
	records, err := repo.ClaimPending(context.Background(), 10)
	assert.NoError(t, err)
	require.Len(t, records, 1)

	n, err := repo.ResetStuck(context.Background(), 10*time.Minute)
	assert.NoError(t, err)
	assert.Zero(t, n, "un claim reciente no debe rescatarse")

	// Simulamos un relay muerto: el claim quedó atrás en el tiempo.
	_, err = db.Exec(
		`UPDATE trip_outbox SET updated_at = $1 WHERE id = $2`,
		time.Now().UTC().Add(-30*time.Minute), records[0].ID,
	)
	require.NoError(t, err)

	n, err = repo.ResetStuck(context.Background(), 10*time.Minute)
	assert.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// Rescatado: vuelve a ser reclamable.
	records, err = repo.ClaimPending(context.Background(), 10)
	assert.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestOutboxIntegration_RetentionKeepsUnfinishedRecords(t *testing.T) {
	db := setupOutboxDB(t)
	repo := outboxPostgres.NewOutboxRepoPostgres(db)

	old := time.Now().UTC().Add(-100 * time.Hour)
	insertReady(t, db, "trip-ready", old) // READY viejo: intocable

	doneID := insertReady(t, db, "trip-done", old)
	_, err := db.Exec(`UPDATE trip_outbox SET status = 'DONE', updated_at = $1 WHERE id = $2`, old, doneID)
	require.NoError(t, err)

	n, err := repo.DeleteDone(context.Background(), 72*time.Hour)
	assert.NoError(t, err)
	assert.Equal(t, int64(1), n)

	var remaining int
	require.NoError(t, db.QueryRow(`SELECT count(*) FROM trip_outbox`).Scan(&remaining))
	assert.Equal(t, 1, remaining, "el READY pendiente sobrevive a la limpieza")
}
