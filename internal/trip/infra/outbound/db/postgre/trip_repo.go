package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"

	outboxPostgres "github.com/davicafu/triplab/internal/infra/db/postgres"
	sharedDomain "github.com/davicafu/triplab/internal/shared/domain"
	tripDomain "github.com/davicafu/triplab/internal/trip/domain"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// Códigos de Postgres que tratamos como transitorios o como duplicado.
const (
	codeUniqueViolation    = "23505"
	codeLockNotAvailable   = "55P03" // FOR UPDATE NOWAIT con la fila tomada
	codeDeadlockDetected   = "40P01"
	codeSerializationError = "40001"
)

type TripRepoPostgres struct {
	db *sql.DB
}

func NewTripRepoPostgres(db *sql.DB) *TripRepoPostgres {
	return &TripRepoPostgres{db: db}
}

// unitOfWork acumula los hooks post-commit registrados por la mutación.
type unitOfWork struct {
	hooks []func()
}

func (u *unitOfWork) AfterCommit(fn func()) {
	u.hooks = append(u.hooks, fn)
}

// classifyErr traduce errores del driver a los errores del dominio.
func classifyErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			return fmt.Errorf("%w: %s", tripDomain.ErrTripAlreadyExists, pgErr.Detail)
		case codeLockNotAvailable, codeDeadlockDetected, codeSerializationError:
			return fmt.Errorf("%w: %s", tripDomain.ErrTransientStore, pgErr.Message)
		}
	}
	if errors.Is(err, driver.ErrBadConn) {
		return fmt.Errorf("%w: %v", tripDomain.ErrTransientStore, err)
	}
	return err
}

const tripColumns = `id, trip_id, user_id, driver_id, status, origin_address, destination_address,
	 fare, matched_at, started_at, ended_at, user_name, driver_name, vehicle_model, license_plate`

func scanTrip(row interface{ Scan(...interface{}) error }) (*tripDomain.Trip, error) {
	var t tripDomain.Trip
	var status string
	if err := row.Scan(
		&t.ID, &t.TripID, &t.UserID, &t.DriverID, &status,
		&t.OriginAddress, &t.DestinationAddress, &t.Fare,
		&t.MatchedAt, &t.StartedAt, &t.EndedAt,
		&t.UserName, &t.DriverName, &t.VehicleModel, &t.LicensePlate,
	); err != nil {
		return nil, err
	}
	t.Status = tripDomain.TripStatus(status)
	return &t, nil
}

// ------------------ Escritura ------------------

// Create inserta el viaje. El índice único sobre trip_id convierte los
// eventos de matching duplicados en ErrTripAlreadyExists.
func (r *TripRepoPostgres) Create(ctx context.Context, t *tripDomain.Trip) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO trips (trip_id, user_id, driver_id, status, origin_address, destination_address,
		                    matched_at, user_name, driver_name, vehicle_model, license_plate)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING id`,
		t.TripID, t.UserID, t.DriverID, string(t.Status),
		t.OriginAddress, t.DestinationAddress, t.MatchedAt,
		t.UserName, t.DriverName, t.VehicleModel, t.LicensePlate,
	).Scan(&t.ID)
	if err != nil {
		return classifyErr(err)
	}
	return nil
}

// Mutate serializa los comandos concurrentes sobre el mismo viaje: lock de
// fila NOWAIT, mutación en memoria, UPDATE + INSERT en outbox en la misma
// transacción, y hooks post-commit solo si el commit llega a buen puerto.
func (r *TripRepoPostgres) Mutate(
	ctx context.Context,
	tripID string,
	fn func(uow tripDomain.UnitOfWork, t *tripDomain.Trip) (*sharedDomain.OutboxRecord, error),
) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return classifyErr(err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	row := tx.QueryRowContext(ctx,
		`SELECT `+tripColumns+` FROM trips WHERE trip_id = $1 FOR UPDATE NOWAIT`, tripID)

	var t *tripDomain.Trip
	t, err = scanTrip(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = tripDomain.ErrTripNotFound
			return err
		}
		err = classifyErr(err)
		return err
	}

	uow := &unitOfWork{}
	var rec *sharedDomain.OutboxRecord
	rec, err = fn(uow, t)
	if err != nil {
		return err
	}

	if _, err = tx.ExecContext(ctx,
		`UPDATE trips SET status=$1, fare=$2, started_at=$3, ended_at=$4 WHERE id=$5`,
		string(t.Status), t.Fare, t.StartedAt, t.EndedAt, t.ID,
	); err != nil {
		err = classifyErr(err)
		return err
	}

	if rec != nil {
		if err = outboxPostgres.InsertTx(ctx, tx, *rec); err != nil {
			err = classifyErr(err)
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		err = classifyErr(err)
		return err
	}

	for _, hook := range uow.hooks {
		hook()
	}
	return nil
}

// ------------------ Lectura ------------------

func (r *TripRepoPostgres) FindByTripID(ctx context.Context, tripID string) (*tripDomain.Trip, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+tripColumns+` FROM trips WHERE trip_id = $1`, tripID)

	t, err := scanTrip(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, tripDomain.ErrTripNotFound
		}
		return nil, classifyErr(err)
	}
	return t, nil
}

func (r *TripRepoPostgres) ExistsByDriverAndStatus(ctx context.Context, driverID int64, status tripDomain.TripStatus) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM trips WHERE driver_id = $1 AND status = $2)`,
		driverID, string(status),
	).Scan(&exists)
	if err != nil {
		return false, classifyErr(err)
	}
	return exists, nil
}

// ------------------ Inicialización ------------------

func InitPostgres(db *sql.DB) error {
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS trips (
		id BIGSERIAL PRIMARY KEY,
		trip_id TEXT UNIQUE NOT NULL,
		user_id BIGINT NOT NULL,
		driver_id BIGINT NOT NULL,
		status VARCHAR(20) NOT NULL,
		origin_address TEXT NOT NULL,
		destination_address TEXT NOT NULL,
		fare INTEGER,
		matched_at TIMESTAMP NOT NULL,
		started_at TIMESTAMP,
		ended_at TIMESTAMP,
		user_name TEXT NOT NULL DEFAULT '',
		driver_name TEXT NOT NULL DEFAULT '',
		vehicle_model TEXT NOT NULL DEFAULT '',
		license_plate TEXT NOT NULL DEFAULT ''
	)`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
	CREATE INDEX IF NOT EXISTS idx_trips_driver_status ON trips (driver_id, status)`)
	return err
}

// Verificación en tiempo de compilación.
var _ tripDomain.TripRepository = (*TripRepoPostgres)(nil)
