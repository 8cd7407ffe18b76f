// Package postgres persists hazard events and weather forecasts.
//
// Events use the full field set as their natural identity key: a row
// is "the same" only when every field matches a stored row, so any
// field drift (status flipping open to closed included) yields an
// additional stored fact rather than a mutation. Weather rows key on
// (longitude, latitude, date) and are replaced in place, because a
// forecast for a given day legitimately changes as the horizon
// shortens.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/hazardwatch/hazard-tracker/internal/config"
	"github.com/hazardwatch/hazard-tracker/internal/domain"
	"github.com/hazardwatch/hazard-tracker/internal/observability"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id             BIGSERIAL PRIMARY KEY,
	category_id    TEXT NOT NULL,
	category_title TEXT NOT NULL,
	event_id       TEXT NOT NULL,
	event_title    TEXT NOT NULL,
	observed_at    TIMESTAMPTZ NOT NULL,
	longitude      DOUBLE PRECISION NOT NULL,
	latitude       DOUBLE PRECISION NOT NULL,
	status         TEXT NOT NULL,
	source_url     TEXT
);

CREATE INDEX IF NOT EXISTS events_category_title_idx ON events (category_title);

CREATE TABLE IF NOT EXISTS weather (
	id            BIGSERIAL PRIMARY KEY,
	longitude     DOUBLE PRECISION NOT NULL,
	latitude      DOUBLE PRECISION NOT NULL,
	forecast_date DATE NOT NULL,
	fields        JSONB NOT NULL,
	UNIQUE (longitude, latitude, forecast_date)
);
`

// insertEventIfAbsent inserts a row only when no stored row matches on
// every field. IS NOT DISTINCT FROM makes NULL source URLs match
// themselves, which plain equality would not.
const insertEventIfAbsent = `
INSERT INTO events (category_id, category_title, event_id, event_title, observed_at, longitude, latitude, status, source_url)
SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9
WHERE NOT EXISTS (
	SELECT 1 FROM events
	WHERE category_id = $1
	  AND category_title = $2
	  AND event_id = $3
	  AND event_title = $4
	  AND observed_at = $5
	  AND longitude = $6
	  AND latitude = $7
	  AND status = $8
	  AND source_url IS NOT DISTINCT FROM $9
)`

// upsertWeather replaces the stored forecast for a location/day.
// xmax = 0 distinguishes a fresh insert from a conflict update.
const upsertWeather = `
INSERT INTO weather (longitude, latitude, forecast_date, fields)
VALUES ($1, $2, $3, $4)
ON CONFLICT (longitude, latitude, forecast_date)
DO UPDATE SET fields = EXCLUDED.fields
RETURNING (xmax = 0) AS inserted`

// Store provides the deduplicating persistence layer on Postgres.
type Store struct {
	db      *sqlx.DB
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewStore opens a connection pool and verifies it with a ping.
func NewStore(cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) (*Store, error) {
	db, err := sqlx.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	db.SetConnMaxLifetime(cfg.DBConnMaxLife)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	logger.Info("postgres connection established",
		"host", cfg.DBHost,
		"database", cfg.DBName,
		"max_open_conns", cfg.DBMaxOpenConns,
	)

	return &Store{db: db, logger: logger, metrics: metrics}, nil
}

// NewStoreFromDB wraps an existing connection, for tests.
func NewStoreFromDB(db *sqlx.DB, metrics *observability.Metrics, logger *slog.Logger) *Store {
	return &Store{db: db, logger: logger, metrics: metrics}
}

// EnsureSchema creates the tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// HealthCheck pings the database with a short deadline.
func (s *Store) HealthCheck(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("database health check: %w", err)
	}
	return nil
}

// UpsertEvents writes a batch of event records inside one transaction,
// so concurrent readers never observe a partially written batch. Rows
// whose full field set already exists are counted as matched and left
// untouched; the rest are inserted and returned for downstream
// publication.
func (s *Store) UpsertEvents(ctx context.Context, rows []domain.EventRecord) (domain.UpsertResult, error) {
	var result domain.UpsertResult
	if len(rows) == 0 {
		return result, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, insertEventIfAbsent)
	if err != nil {
		return result, fmt.Errorf("prepare event upsert: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		res, err := stmt.ExecContext(ctx,
			row.CategoryID,
			row.CategoryTitle,
			row.EventID,
			row.EventTitle,
			row.Timestamp,
			row.Longitude,
			row.Latitude,
			row.Status,
			row.SourceURL,
		)
		if err != nil {
			return domain.UpsertResult{}, fmt.Errorf("upsert event %s: %w", row.EventID, err)
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return domain.UpsertResult{}, fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			result.Matched++
		} else {
			result.Inserted = append(result.Inserted, row)
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.UpsertResult{}, fmt.Errorf("commit event upsert: %w", err)
	}

	s.metrics.EventsUpserted.WithLabelValues("matched").Add(float64(result.Matched))
	s.metrics.EventsUpserted.WithLabelValues("inserted").Add(float64(len(result.Inserted)))
	s.logger.Info("events upserted",
		"rows", len(rows),
		"matched", result.Matched,
		"inserted", len(result.Inserted),
	)
	return result, nil
}

// UpsertWeather writes a batch of weather records inside one
// transaction. A row with the same (longitude, latitude, date) key
// replaces the stored one.
func (s *Store) UpsertWeather(ctx context.Context, rows []domain.WeatherRecord) (matched, inserted int, err error) {
	if len(rows) == 0 {
		return 0, 0, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, upsertWeather)
	if err != nil {
		return 0, 0, fmt.Errorf("prepare weather upsert: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		fields, err := json.Marshal(row.Fields)
		if err != nil {
			return 0, 0, fmt.Errorf("encode weather fields: %w", err)
		}

		var wasInsert bool
		if err := stmt.QueryRowContext(ctx, row.Longitude, row.Latitude, row.Date, fields).Scan(&wasInsert); err != nil {
			return 0, 0, fmt.Errorf("upsert weather %g,%g %s: %w",
				row.Latitude, row.Longitude, row.Date.Format("2006-01-02"), err)
		}
		if wasInsert {
			inserted++
		} else {
			matched++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("commit weather upsert: %w", err)
	}

	s.metrics.WeatherUpserted.WithLabelValues("matched").Add(float64(matched))
	s.metrics.WeatherUpserted.WithLabelValues("inserted").Add(float64(inserted))
	s.logger.Info("weather upserted", "rows", len(rows), "matched", matched, "inserted", inserted)
	return matched, inserted, nil
}

// FetchAllEvents returns every stored event row, oldest observation
// first, without the storage-assigned id. An empty store yields a nil
// slice and nil error, distinct from a store failure.
func (s *Store) FetchAllEvents(ctx context.Context) ([]domain.EventRecord, error) {
	const query = `
		SELECT category_id, category_title, event_id, event_title, observed_at, longitude, latitude, status, source_url
		FROM events
		ORDER BY observed_at, event_id`

	var rows []domain.EventRecord
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("fetch events: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows, nil
}

// FetchAllWeather returns every stored weather row without the
// storage-assigned id. An empty store yields a nil slice and nil error.
func (s *Store) FetchAllWeather(ctx context.Context) ([]domain.WeatherRecord, error) {
	const query = `
		SELECT longitude, latitude, forecast_date, fields
		FROM weather
		ORDER BY forecast_date, latitude, longitude`

	dbRows, err := s.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("fetch weather: %w", err)
	}
	defer dbRows.Close()

	var rows []domain.WeatherRecord
	for dbRows.Next() {
		var (
			rec    domain.WeatherRecord
			fields []byte
		)
		if err := dbRows.Scan(&rec.Longitude, &rec.Latitude, &rec.Date, &fields); err != nil {
			return nil, fmt.Errorf("scan weather row: %w", err)
		}
		if err := json.Unmarshal(fields, &rec.Fields); err != nil {
			return nil, fmt.Errorf("decode weather fields: %w", err)
		}
		rec.Date = rec.Date.UTC()
		rows = append(rows, rec)
	}
	if err := dbRows.Err(); err != nil {
		return nil, fmt.Errorf("fetch weather: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows, nil
}
