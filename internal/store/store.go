// Package store persists location history, manual country lists and zones
// for tracked persons.
package store

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/countries-visited/internal/geo"
	"github.com/sells-group/countries-visited/internal/visited"
	"github.com/sells-group/countries-visited/internal/zone"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = eris.New("store: not found")

// Store is the persistence interface used by the tracker, CLI and API.
type Store interface {
	// Location history
	RecordSample(ctx context.Context, s *LocationSample) error
	RecordSamples(ctx context.Context, samples []LocationSample) (int64, error)
	History(ctx context.Context, person string, since time.Time) ([]LocationSample, error)
	Latest(ctx context.Context, person string) (*LocationSample, error)
	Persons(ctx context.Context) ([]string, error)

	// Manual countries
	ManualCountries(ctx context.Context, person string) ([]string, error)
	SetManualCountries(ctx context.Context, person string, codes []string) error
	AddManualCountry(ctx context.Context, person, code string) error
	RemoveManualCountry(ctx context.Context, person, code string) error

	// Zones
	UpsertZone(ctx context.Context, z zone.Zone) error
	UpsertZones(ctx context.Context, zones []zone.Zone) (int64, error)
	Zones(ctx context.Context) ([]zone.Zone, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// LocationSample is one stored history entry. A sample with both
// coordinates is a point; otherwise a non-empty Zone makes it a zone
// reference.
type LocationSample struct {
	ID         string    `json:"id"`
	Person     string    `json:"person"`
	Latitude   *float64  `json:"latitude,omitempty"`
	Longitude  *float64  `json:"longitude,omitempty"`
	Zone       string    `json:"zone,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// NewPointSample builds a coordinate sample.
func NewPointSample(person string, c geo.Coordinate, at time.Time) LocationSample {
	lat, lon := c.Latitude, c.Longitude
	return LocationSample{Person: person, Latitude: &lat, Longitude: &lon, RecordedAt: at}
}

// NewZoneSample builds a zone-reference sample.
func NewZoneSample(person, zoneName string, at time.Time) LocationSample {
	return LocationSample{Person: person, Zone: zoneName, RecordedAt: at}
}

// Coordinate returns the sample coordinate when both components are set.
func (s LocationSample) Coordinate() *geo.Coordinate {
	if s.Latitude == nil || s.Longitude == nil {
		return nil
	}
	return &geo.Coordinate{Latitude: *s.Latitude, Longitude: *s.Longitude}
}

// Sample converts the row into the aggregator's sample variant. Rows with
// neither a coordinate nor a zone return false.
func (s LocationSample) Sample() (visited.Sample, bool) {
	if c := s.Coordinate(); c != nil {
		return visited.Point{Coordinate: *c, At: s.RecordedAt}, true
	}
	if s.Zone != "" {
		return visited.ZoneRef{Zone: s.Zone, At: s.RecordedAt}, true
	}
	return nil, false
}

// Samples converts rows to aggregator samples, skipping unusable rows.
func Samples(rows []LocationSample) []visited.Sample {
	out := make([]visited.Sample, 0, len(rows))
	for _, r := range rows {
		if s, ok := r.Sample(); ok {
			out = append(out, s)
		}
	}
	return out
}

// Validate checks that s names a person and carries either an in-range
// coordinate pair or a zone.
func (s LocationSample) Validate() error {
	if strings.TrimSpace(s.Person) == "" {
		return eris.New("store: sample person is required")
	}
	if (s.Latitude == nil) != (s.Longitude == nil) {
		return eris.New("store: sample needs both latitude and longitude")
	}
	if s.Latitude != nil {
		if *s.Latitude < -90 || *s.Latitude > 90 {
			return eris.Errorf("store: latitude %v out of range", *s.Latitude)
		}
		if *s.Longitude < -180 || *s.Longitude > 180 {
			return eris.Errorf("store: longitude %v out of range", *s.Longitude)
		}
		return nil
	}
	if strings.TrimSpace(s.Zone) == "" {
		return eris.New("store: sample needs a coordinate or a zone")
	}
	return nil
}

// prepare validates s and fills ID and RecordedAt when unset.
func (s *LocationSample) prepare() error {
	if err := s.Validate(); err != nil {
		return err
	}
	s.Person = strings.TrimSpace(s.Person)
	s.Zone = strings.TrimSpace(s.Zone)
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	if s.RecordedAt.IsZero() {
		s.RecordedAt = time.Now()
	}
	s.RecordedAt = s.RecordedAt.UTC()
	return nil
}

// normalizeZones returns zones with normalized names, dropping unnamed
// zones. A repeated name keeps the last definition.
func normalizeZones(zones []zone.Zone) []zone.Zone {
	index := make(map[string]int, len(zones))
	out := make([]zone.Zone, 0, len(zones))
	for _, z := range zones {
		z.Name = zone.Normalize(z.Name)
		if z.Name == "" {
			continue
		}
		if i, ok := index[z.Name]; ok {
			out[i] = z
			continue
		}
		index[z.Name] = len(out)
		out = append(out, z)
	}
	return out
}

// NormalizeCode uppercases and trims a country code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// normalizeCodes returns the distinct non-blank normalized codes in input
// order.
func normalizeCodes(codes []string) []string {
	seen := make(map[string]bool, len(codes))
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		c = NormalizeCode(c)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

type scannable interface {
	Scan(dest ...any) error
}
