package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/countries-visited/internal/zone"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS location_samples (
	id          TEXT PRIMARY KEY,
	person      TEXT NOT NULL,
	latitude    REAL,
	longitude   REAL,
	zone        TEXT NOT NULL DEFAULT '',
	recorded_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS manual_countries (
	person   TEXT NOT NULL,
	code     TEXT NOT NULL,
	added_at DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (person, code)
);

CREATE TABLE IF NOT EXISTS zones (
	name       TEXT PRIMARY KEY,
	latitude   REAL NOT NULL,
	longitude  REAL NOT NULL,
	radius_m   REAL NOT NULL DEFAULT 0,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_location_samples_person_time ON location_samples(person, recorded_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const sqliteInsertSample = `INSERT INTO location_samples (` + sampleColumns + `) VALUES (?, ?, ?, ?, ?, ?)`

func (s *SQLiteStore) RecordSample(ctx context.Context, sample *LocationSample) error {
	if err := sample.prepare(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, sqliteInsertSample,
		sample.ID, sample.Person, nullableFloat(sample.Latitude), nullableFloat(sample.Longitude),
		sample.Zone, sample.RecordedAt,
	)
	return eris.Wrap(err, "sqlite: insert sample")
}

func (s *SQLiteStore) RecordSamples(ctx context.Context, samples []LocationSample) (int64, error) {
	if len(samples) == 0 {
		return 0, nil
	}
	for i := range samples {
		if err := samples[i].prepare(); err != nil {
			return 0, eris.Wrapf(err, "sqlite: sample %d", i)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, sqliteInsertSample)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare insert sample")
	}
	defer stmt.Close() //nolint:errcheck

	for _, sample := range samples {
		if _, err := stmt.ExecContext(ctx,
			sample.ID, sample.Person, nullableFloat(sample.Latitude), nullableFloat(sample.Longitude),
			sample.Zone, sample.RecordedAt,
		); err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert sample %s", sample.ID)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit samples")
	}
	return int64(len(samples)), nil
}

func (s *SQLiteStore) History(ctx context.Context, person string, since time.Time) ([]LocationSample, error) {
	query := `SELECT ` + sampleColumns + ` FROM location_samples WHERE person = ?`
	args := []any{person}
	if !since.IsZero() {
		query += ` AND recorded_at >= ?`
		args = append(args, since.UTC())
	}
	query += ` ORDER BY recorded_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query history")
	}
	defer rows.Close() //nolint:errcheck

	var out []LocationSample
	for rows.Next() {
		sample, err := scanSample(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan sample")
		}
		out = append(out, sample)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate history")
}

func (s *SQLiteStore) Latest(ctx context.Context, person string) (*LocationSample, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sampleColumns+` FROM location_samples WHERE person = ? ORDER BY recorded_at DESC, id DESC LIMIT 1`,
		person,
	)
	sample, err := scanSample(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: latest sample")
	}
	return &sample, nil
}

func (s *SQLiteStore) Persons(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT person FROM location_samples
		UNION
		SELECT person FROM manual_countries
		ORDER BY person`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query persons")
	}
	defer rows.Close() //nolint:errcheck
	return scanStrings(rows, "sqlite: scan person")
}

func (s *SQLiteStore) ManualCountries(ctx context.Context, person string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT code FROM manual_countries WHERE person = ? ORDER BY code`, person)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query manual countries")
	}
	defer rows.Close() //nolint:errcheck
	return scanStrings(rows, "sqlite: scan manual country")
}

func (s *SQLiteStore) SetManualCountries(ctx context.Context, person string, codes []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM manual_countries WHERE person = ?`, person); err != nil {
		return eris.Wrap(err, "sqlite: clear manual countries")
	}
	now := time.Now().UTC()
	for _, code := range normalizeCodes(codes) {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO manual_countries (person, code, added_at) VALUES (?, ?, ?)`,
			person, code, now,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert manual country %s", code)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit manual countries")
}

func (s *SQLiteStore) AddManualCountry(ctx context.Context, person, code string) error {
	code = NormalizeCode(code)
	if code == "" {
		return eris.New("sqlite: country code is required")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO manual_countries (person, code, added_at) VALUES (?, ?, ?)
		 ON CONFLICT (person, code) DO NOTHING`,
		person, code, time.Now().UTC(),
	)
	return eris.Wrap(err, "sqlite: add manual country")
}

func (s *SQLiteStore) RemoveManualCountry(ctx context.Context, person, code string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM manual_countries WHERE person = ? AND code = ?`, person, NormalizeCode(code))
	if err != nil {
		return eris.Wrap(err, "sqlite: remove manual country")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) UpsertZone(ctx context.Context, z zone.Zone) error {
	name := zone.Normalize(z.Name)
	if name == "" {
		return eris.New("sqlite: zone name is required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO zones (name, latitude, longitude, radius_m, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			radius_m = excluded.radius_m,
			updated_at = excluded.updated_at`,
		name, z.Latitude, z.Longitude, z.RadiusM, time.Now().UTC(),
	)
	return eris.Wrap(err, "sqlite: upsert zone")
}

func (s *SQLiteStore) UpsertZones(ctx context.Context, zones []zone.Zone) (int64, error) {
	zones = normalizeZones(zones)
	if len(zones) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO zones (name, latitude, longitude, radius_m, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			radius_m = excluded.radius_m,
			updated_at = excluded.updated_at`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare zone upsert")
	}
	defer stmt.Close() //nolint:errcheck

	now := time.Now().UTC()
	for _, z := range zones {
		if _, err := stmt.ExecContext(ctx, z.Name, z.Latitude, z.Longitude, z.RadiusM, now); err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert zone %s", z.Name)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit zones")
	}
	return int64(len(zones)), nil
}

func (s *SQLiteStore) Zones(ctx context.Context) ([]zone.Zone, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, latitude, longitude, radius_m FROM zones ORDER BY name`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query zones")
	}
	defer rows.Close() //nolint:errcheck

	var out []zone.Zone
	for rows.Next() {
		z, err := scanZone(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan zone")
		}
		out = append(out, z)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate zones")
}

type stringRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanStrings(rows stringRows, msg string) ([]string, error) {
	out := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, eris.Wrap(err, msg)
		}
		out = append(out, v)
	}
	return out, eris.Wrap(rows.Err(), msg)
}
