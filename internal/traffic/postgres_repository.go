package traffic

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL traffic repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const schemaSQL = `
	CREATE TABLE IF NOT EXISTS stations (
		position   INTEGER PRIMARY KEY,
		short_name TEXT NOT NULL UNIQUE,
		name       TEXT NOT NULL DEFAULT '',
		lon        DOUBLE PRECISION NOT NULL,
		lat        DOUBLE PRECISION NOT NULL,
		capacity   INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS trips (
		ride_id          TEXT NOT NULL DEFAULT '',
		start_station_id TEXT NOT NULL,
		end_station_id   TEXT NOT NULL,
		started_at       TIMESTAMP NOT NULL,
		ended_at         TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS dataset_info (
		id            SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
		source        TEXT NOT NULL,
		station_count INTEGER NOT NULL,
		trip_count    INTEGER NOT NULL,
		imported_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
`

// EnsureSchema creates the traffic tables if they do not exist.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create traffic schema: %w", err)
	}
	return nil
}

// SaveDataset replaces all stations and trips in a single transaction.
func (r *PostgresRepository) SaveDataset(ctx context.Context, source string, stations []Station, trips []Trip) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `TRUNCATE stations, trips`); err != nil {
		return fmt.Errorf("truncate dataset: %w", err)
	}

	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"stations"},
		[]string{"position", "short_name", "name", "lon", "lat", "capacity"},
		pgx.CopyFromSlice(len(stations), func(i int) ([]any, error) {
			s := stations[i]
			return []any{i, s.Code, s.Name, s.Lon, s.Lat, s.Capacity}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("copy stations: %w", err)
	}

	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"trips"},
		[]string{"ride_id", "start_station_id", "end_station_id", "started_at", "ended_at"},
		pgx.CopyFromSlice(len(trips), func(i int) ([]any, error) {
			t := trips[i]
			return []any{t.RideID, t.StartStationID, t.EndStationID, t.StartedAt, t.EndedAt}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("copy trips: %w", err)
	}

	query := `
		INSERT INTO dataset_info (id, source, station_count, trip_count, imported_at)
		VALUES (1, $1, $2, $3, NOW())
		ON CONFLICT (id) DO UPDATE SET
			source = EXCLUDED.source,
			station_count = EXCLUDED.station_count,
			trip_count = EXCLUDED.trip_count,
			imported_at = EXCLUDED.imported_at
	`
	if _, err := tx.Exec(ctx, query, source, len(stations), len(trips)); err != nil {
		return fmt.Errorf("update dataset info: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit dataset: %w", err)
	}

	return nil
}

// ListStations returns all stations in their original order.
func (r *PostgresRepository) ListStations(ctx context.Context) ([]Station, error) {
	query := `
		SELECT short_name, name, lon, lat, capacity
		FROM stations
		ORDER BY position
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stations []Station
	for rows.Next() {
		var s Station
		if err := rows.Scan(&s.Code, &s.Name, &s.Lon, &s.Lat, &s.Capacity); err != nil {
			return nil, err
		}
		stations = append(stations, s)
	}

	return stations, rows.Err()
}

// ListTrips returns all stored trips.
func (r *PostgresRepository) ListTrips(ctx context.Context) ([]Trip, error) {
	query := `
		SELECT ride_id, start_station_id, end_station_id, started_at, ended_at
		FROM trips
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trips []Trip
	for rows.Next() {
		var t Trip
		if err := rows.Scan(&t.RideID, &t.StartStationID, &t.EndStationID, &t.StartedAt, &t.EndedAt); err != nil {
			return nil, err
		}
		trips = append(trips, t)
	}

	return trips, rows.Err()
}

// DatasetInfo returns metadata for the stored dataset.
func (r *PostgresRepository) DatasetInfo(ctx context.Context) (*DatasetInfo, error) {
	query := `
		SELECT source, station_count, trip_count, imported_at
		FROM dataset_info
		WHERE id = 1
	`

	var info DatasetInfo
	err := r.pool.QueryRow(ctx, query).Scan(&info.Source, &info.StationCount, &info.TripCount, &info.ImportedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoDataset
		}
		return nil, err
	}

	return &info, nil
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
