package store

import (
	"database/sql"

	"github.com/sells-group/countries-visited/internal/zone"
)

const sampleColumns = `id, person, latitude, longitude, zone, recorded_at`

func scanSample(row scannable) (LocationSample, error) {
	var (
		s        LocationSample
		lat, lon sql.NullFloat64
	)
	if err := row.Scan(&s.ID, &s.Person, &lat, &lon, &s.Zone, &s.RecordedAt); err != nil {
		return LocationSample{}, err
	}
	if lat.Valid && lon.Valid {
		s.Latitude = &lat.Float64
		s.Longitude = &lon.Float64
	}
	s.RecordedAt = s.RecordedAt.UTC()
	return s, nil
}

func scanZone(row scannable) (zone.Zone, error) {
	var z zone.Zone
	err := row.Scan(&z.Name, &z.Latitude, &z.Longitude, &z.RadiusM)
	return z, err
}

// nullableFloat maps a nil pointer to SQL NULL.
func nullableFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}
