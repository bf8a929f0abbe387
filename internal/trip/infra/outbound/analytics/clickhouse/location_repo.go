package clickhouse

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	tripDomain "github.com/davicafu/triplab/internal/trip/domain"

	"github.com/ClickHouse/clickhouse-go/v2"
)

// LocationAnalyticsRepo vuelca el histórico de posiciones a ClickHouse.
// Es un destino best-effort y at-most-once: un lote perdido no se recupera.
type LocationAnalyticsRepo struct {
	db *sql.DB
}

// NewLocationAnalyticsRepo es el constructor.
func NewLocationAnalyticsRepo(addr string, dbName string) (*LocationAnalyticsRepo, error) {
	conn := clickhouse.OpenDB(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: dbName,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
	})

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("could not ping clickhouse: %w", err)
	}

	return &LocationAnalyticsRepo{db: conn}, nil
}

// LogBatch inserta un lote de posiciones. ClickHouse rinde con inserciones
// en bloque, nunca fila a fila.
func (r *LocationAnalyticsRepo) LogBatch(ctx context.Context, events []tripDomain.DriverLocationUpdatedEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO driver_locations (driver_id, longitude, latitude, event_time)")
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	eventTime := time.Now()
	for _, evt := range events {
		if _, err := stmt.ExecContext(ctx, evt.DriverID, evt.Longitude, evt.Latitude, eventTime); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to exec statement for driver %d: %w", evt.DriverID, err)
		}
	}

	return tx.Commit()
}
