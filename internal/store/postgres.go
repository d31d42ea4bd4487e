package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/ewkb"

	"github.com/sells-group/countries-visited/internal/db"
	"github.com/sells-group/countries-visited/internal/geo"
	"github.com/sells-group/countries-visited/internal/zone"
)

// PostgresStore implements Store on PostgreSQL with PostGIS point geometry
// kept alongside the raw coordinates.
type PostgresStore struct {
	pool db.Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 1
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			pgxCfg.MaxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			pgxCfg.MinConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresWithPool wraps an existing pool.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE EXTENSION IF NOT EXISTS postgis;

CREATE TABLE IF NOT EXISTS location_samples (
	id          TEXT PRIMARY KEY,
	person      TEXT NOT NULL,
	latitude    DOUBLE PRECISION,
	longitude   DOUBLE PRECISION,
	zone        TEXT NOT NULL DEFAULT '',
	recorded_at TIMESTAMPTZ NOT NULL,
	geom        geometry(Point, 4326)
);

CREATE TABLE IF NOT EXISTS manual_countries (
	person   TEXT NOT NULL,
	code     TEXT NOT NULL,
	added_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (person, code)
);

CREATE TABLE IF NOT EXISTS zones (
	name       TEXT PRIMARY KEY,
	latitude   DOUBLE PRECISION NOT NULL,
	longitude  DOUBLE PRECISION NOT NULL,
	radius_m   DOUBLE PRECISION NOT NULL DEFAULT 0,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_location_samples_person_time ON location_samples (person, recorded_at);
CREATE INDEX IF NOT EXISTS idx_location_samples_geom ON location_samples USING gist (geom);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// pointEWKB encodes the sample coordinate for the geom column, or nil when
// the sample is a zone reference.
func pointEWKB(sample LocationSample) ([]byte, error) {
	c := sample.Coordinate()
	if c == nil {
		return nil, nil
	}
	data, err := ewkb.Marshal(geo.Point(*c), ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: encode point")
	}
	return data, nil
}

func (s *PostgresStore) RecordSample(ctx context.Context, sample *LocationSample) error {
	if err := sample.prepare(); err != nil {
		return err
	}
	wkb, err := pointEWKB(*sample)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO location_samples (`+sampleColumns+`, geom)
		VALUES ($1, $2, $3, $4, $5, $6, ST_GeomFromEWKB($7))`,
		sample.ID, sample.Person, nullableFloat(sample.Latitude), nullableFloat(sample.Longitude),
		sample.Zone, sample.RecordedAt, wkb,
	)
	return eris.Wrap(err, "postgres: insert sample")
}

var sampleCopyColumns = []string{"id", "person", "latitude", "longitude", "zone", "recorded_at"}

// RecordSamples bulk-loads samples with COPY, then derives the geometry
// column for the copied point rows in the same transaction.
func (s *PostgresStore) RecordSamples(ctx context.Context, samples []LocationSample) (int64, error) {
	if len(samples) == 0 {
		return 0, nil
	}
	rows := make([][]any, 0, len(samples))
	var pointIDs []string
	for i := range samples {
		if err := samples[i].prepare(); err != nil {
			return 0, eris.Wrapf(err, "postgres: sample %d", i)
		}
		sample := samples[i]
		rows = append(rows, []any{
			sample.ID, sample.Person, nullableFloat(sample.Latitude), nullableFloat(sample.Longitude),
			sample.Zone, sample.RecordedAt,
		})
		if sample.Coordinate() != nil {
			pointIDs = append(pointIDs, sample.ID)
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: begin")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	n, err := db.CopyFrom(ctx, tx, "location_samples", sampleCopyColumns, rows)
	if err != nil {
		return 0, err
	}
	if len(pointIDs) > 0 {
		if _, err := tx.Exec(ctx, `
			UPDATE location_samples
			SET geom = ST_SetSRID(ST_MakePoint(longitude, latitude), 4326)
			WHERE id = ANY($1)`, pointIDs); err != nil {
			return 0, eris.Wrap(err, "postgres: derive sample geometry")
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "postgres: commit samples")
	}
	return n, nil
}

func (s *PostgresStore) History(ctx context.Context, person string, since time.Time) ([]LocationSample, error) {
	query := `SELECT ` + sampleColumns + ` FROM location_samples WHERE person = $1`
	args := []any{person}
	if !since.IsZero() {
		query += ` AND recorded_at >= $2`
		args = append(args, since.UTC())
	}
	query += ` ORDER BY recorded_at ASC, id ASC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query history")
	}
	defer rows.Close()

	var out []LocationSample
	for rows.Next() {
		sample, err := scanSample(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan sample")
		}
		out = append(out, sample)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate history")
}

func (s *PostgresStore) Latest(ctx context.Context, person string) (*LocationSample, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+sampleColumns+` FROM location_samples WHERE person = $1 ORDER BY recorded_at DESC, id DESC LIMIT 1`,
		person,
	)
	sample, err := scanSample(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: latest sample")
	}
	return &sample, nil
}

func (s *PostgresStore) Persons(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT person FROM location_samples
		UNION
		SELECT person FROM manual_countries
		ORDER BY person`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query persons")
	}
	defer rows.Close()
	return scanStrings(rows, "postgres: scan person")
}

func (s *PostgresStore) ManualCountries(ctx context.Context, person string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT code FROM manual_countries WHERE person = $1 ORDER BY code`, person)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query manual countries")
	}
	defer rows.Close()
	return scanStrings(rows, "postgres: scan manual country")
}

var manualCopyColumns = []string{"person", "code", "added_at"}

func (s *PostgresStore) SetManualCountries(ctx context.Context, person string, codes []string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM manual_countries WHERE person = $1`, person); err != nil {
		return eris.Wrap(err, "postgres: clear manual countries")
	}

	now := time.Now().UTC()
	normalized := normalizeCodes(codes)
	rows := make([][]any, 0, len(normalized))
	for _, code := range normalized {
		rows = append(rows, []any{person, code, now})
	}
	if _, err := db.CopyFrom(ctx, tx, "manual_countries", manualCopyColumns, rows); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit manual countries")
}

func (s *PostgresStore) AddManualCountry(ctx context.Context, person, code string) error {
	code = NormalizeCode(code)
	if code == "" {
		return eris.New("postgres: country code is required")
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO manual_countries (person, code) VALUES ($1, $2) ON CONFLICT (person, code) DO NOTHING`,
		person, code,
	)
	return eris.Wrap(err, "postgres: add manual country")
}

func (s *PostgresStore) RemoveManualCountry(ctx context.Context, person, code string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM manual_countries WHERE person = $1 AND code = $2`, person, NormalizeCode(code))
	if err != nil {
		return eris.Wrap(err, "postgres: remove manual country")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) UpsertZone(ctx context.Context, z zone.Zone) error {
	name := zone.Normalize(z.Name)
	if name == "" {
		return eris.New("postgres: zone name is required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO zones (name, latitude, longitude, radius_m, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (name) DO UPDATE SET
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			radius_m = EXCLUDED.radius_m,
			updated_at = now()`,
		name, z.Latitude, z.Longitude, z.RadiusM,
	)
	return eris.Wrap(err, "postgres: upsert zone")
}

var zoneUpsert = db.Upsert{
	Table:   "zones",
	Columns: []string{"name", "latitude", "longitude", "radius_m", "updated_at"},
	Keys:    []string{"name"},
}

func (s *PostgresStore) UpsertZones(ctx context.Context, zones []zone.Zone) (int64, error) {
	zones = normalizeZones(zones)
	now := time.Now().UTC()
	rows := make([][]any, len(zones))
	for i, z := range zones {
		rows[i] = []any{z.Name, z.Latitude, z.Longitude, z.RadiusM, now}
	}
	n, err := db.UpsertRows(ctx, s.pool, zoneUpsert, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: upsert zones")
	}
	return n, nil
}

func (s *PostgresStore) Zones(ctx context.Context) ([]zone.Zone, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT name, latitude, longitude, radius_m FROM zones ORDER BY name`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query zones")
	}
	defer rows.Close()

	var out []zone.Zone
	for rows.Next() {
		z, err := scanZone(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan zone")
		}
		out = append(out, z)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate zones")
}
