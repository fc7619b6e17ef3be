// Package postgres stores measurements and forecast logs in PostgreSQL and
// serves series from them.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/couchcryptid/air-quality-forecast/internal/domain"
	"github.com/couchcryptid/air-quality-forecast/internal/service"
)

const importChunk = 1000

const schema = `
CREATE TABLE IF NOT EXISTS measurements (
	city      TEXT             NOT NULL,
	country   TEXT             NOT NULL DEFAULT '',
	date      DATE             NOT NULL,
	pollutant TEXT             NOT NULL,
	value     DOUBLE PRECISION NOT NULL,
	lat       DOUBLE PRECISION,
	lon       DOUBLE PRECISION,
	PRIMARY KEY (city, country, pollutant, date)
);
CREATE INDEX IF NOT EXISTS measurements_city_lower_idx ON measurements (lower(city), lower(country), pollutant, date);

CREATE TABLE IF NOT EXISTS forecast_logs (
	id              BIGSERIAL PRIMARY KEY,
	request_id      TEXT        NOT NULL DEFAULT '',
	city            TEXT        NOT NULL,
	country         TEXT        NOT NULL DEFAULT '',
	pollutant       TEXT        NOT NULL,
	horizon_days    INTEGER     NOT NULL,
	strategy        TEXT        NOT NULL,
	fallback        BOOLEAN     NOT NULL DEFAULT FALSE,
	fallback_reason TEXT        NOT NULL DEFAULT '',
	points          JSONB       NOT NULL,
	generated_at    TIMESTAMPTZ NOT NULL
);
`

// Repository implements service.SeriesProvider and service.ForecastLogger.
type Repository struct {
	pool *pgxpool.Pool
}

var (
	_ service.SeriesProvider = (*Repository)(nil)
	_ service.ForecastLogger = (*Repository)(nil)
)

// Connect opens a pool for databaseURL and pings it so a bad URL fails here.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: failed to ping: %w", err)
	}
	return pool, nil
}

// NewRepository creates a repository on an existing pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// EnsureSchema creates the tables if they do not exist.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("postgres: failed to create schema: %w", err)
	}
	return nil
}

// Import upserts measurements in batches and returns the number written.
func (r *Repository) Import(ctx context.Context, rows []domain.Measurement) (int, error) {
	const query = `
		INSERT INTO measurements (city, country, date, pollutant, value, lat, lon)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (city, country, pollutant, date) DO UPDATE
		SET value = EXCLUDED.value, lat = EXCLUDED.lat, lon = EXCLUDED.lon
	`

	written := 0
	for start := 0; start < len(rows); start += importChunk {
		end := min(start+importChunk, len(rows))

		batch := &pgx.Batch{}
		for _, m := range rows[start:end] {
			batch.Queue(query, m.City, m.Country, m.Date, m.Column, m.Value, m.Lat, m.Lon)
		}

		br := r.pool.SendBatch(ctx, batch)
		for i := start; i < end; i++ {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return written, fmt.Errorf("postgres: failed to import measurement %d: %w", i, err)
			}
			written++
		}
		if err := br.Close(); err != nil {
			return written, fmt.Errorf("postgres: failed to close import batch: %w", err)
		}
	}
	return written, nil
}

// Series returns a city's readings of a column ordered by date.
func (r *Repository) Series(ctx context.Context, loc domain.Location, key string) (domain.Series, error) {
	const query = `
		SELECT date, value
		FROM measurements
		WHERE lower(city) = lower($1) AND country = $2 AND pollutant = $3
		ORDER BY date
	`

	country, err := r.resolveCountry(ctx, loc)
	if err != nil {
		return domain.Series{}, err
	}

	rows, err := r.pool.Query(ctx, query, loc.City, country, key)
	if err != nil {
		return domain.Series{}, fmt.Errorf("postgres: failed to query series: %w", err)
	}
	defer rows.Close()

	var points []domain.Point
	for rows.Next() {
		var p domain.Point
		if err := rows.Scan(&p.Date, &p.Value); err != nil {
			return domain.Series{}, fmt.Errorf("postgres: failed to scan series row: %w", err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return domain.Series{}, fmt.Errorf("postgres: failed to read series: %w", err)
	}

	if len(points) == 0 {
		if err := r.checkColumn(ctx, key); err != nil {
			return domain.Series{}, err
		}
	}
	return domain.NewSeries(points), nil
}

// resolveCountry returns the stored country for loc. Without a country the
// city name must belong to exactly one.
func (r *Repository) resolveCountry(ctx context.Context, loc domain.Location) (string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT country
		FROM measurements
		WHERE lower(city) = lower($1) AND ($2 = '' OR lower(country) = lower($2))
		ORDER BY country
	`, loc.City, loc.Country)
	if err != nil {
		return "", fmt.Errorf("postgres: failed to resolve city: %w", err)
	}
	countries, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return "", fmt.Errorf("postgres: failed to scan city countries: %w", err)
	}
	switch len(countries) {
	case 0:
		return "", fmt.Errorf("city %q: %w", loc.String(), domain.ErrNotFound)
	case 1:
		return countries[0], nil
	default:
		return "", fmt.Errorf("city %q: %w", loc.City, domain.ErrAmbiguousLocation)
	}
}

// checkColumn distinguishes an unknown column from an empty series.
func (r *Repository) checkColumn(ctx context.Context, key string) error {
	var ok bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM measurements WHERE pollutant = $1)`, key,
	).Scan(&ok)
	if err != nil {
		return fmt.Errorf("postgres: failed to check column: %w", err)
	}
	if !ok {
		return fmt.Errorf("column %q: %w", key, domain.ErrNotFound)
	}
	return nil
}

// Latest returns each city's most recent reading of a column.
func (r *Repository) Latest(ctx context.Context, key string) ([]domain.Reading, error) {
	const query = `
		SELECT DISTINCT ON (city, country) city, country, date, value, COALESCE(lat, 0), COALESCE(lon, 0)
		FROM measurements
		WHERE pollutant = $1
		ORDER BY city, country, date DESC
	`

	rows, err := r.pool.Query(ctx, query, key)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query latest readings: %w", err)
	}
	defer rows.Close()

	var out []domain.Reading
	for rows.Next() {
		var rd domain.Reading
		if err := rows.Scan(&rd.City, &rd.Country, &rd.Date, &rd.Value, &rd.Lat, &rd.Lon); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan latest row: %w", err)
		}
		out = append(out, rd)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: failed to read latest readings: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("column %q: %w", key, domain.ErrNotFound)
	}
	return out, nil
}

func (r *Repository) Columns(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT pollutant FROM measurements ORDER BY pollutant`)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to list columns: %w", err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to scan columns: %w", err)
	}
	return out, nil
}

func (r *Repository) Cities(ctx context.Context) ([]domain.Location, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT city, country FROM measurements ORDER BY city, country`)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to list cities: %w", err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowToStructByPos[domain.Location])
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to scan cities: %w", err)
	}
	return out, nil
}

// SaveForecastLog records a generated report.
func (r *Repository) SaveForecastLog(ctx context.Context, report domain.Report) error {
	const query = `
		INSERT INTO forecast_logs (
			request_id, city, country, pollutant, horizon_days, strategy,
			fallback, fallback_reason, points, generated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	points, err := json.Marshal(report.Points)
	if err != nil {
		return fmt.Errorf("postgres: failed to encode forecast points: %w", err)
	}

	_, err = r.pool.Exec(ctx, query,
		report.RequestID, report.City, report.Country, report.Pollutant, report.HorizonDays, string(report.Strategy),
		report.Fallback, report.FallbackReason, string(points), report.GeneratedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to save forecast log: %w", err)
	}
	return nil
}

// CheckReadiness reports whether the database is reachable.
func (r *Repository) CheckReadiness(ctx context.Context) error {
	return r.Health(ctx)
}

// Health checks database connectivity.
func (r *Repository) Health(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres: health check failed: %w", err)
	}
	return nil
}
