package country

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/countries-visited/internal/geo"
)

// sourceRecord mirrors one entry of the countries data file. Pointer fields
// distinguish a missing value from a zero value.
type sourceRecord struct {
	ID     *string  `json:"id"`
	Name   string   `json:"name"`
	Lat    *float64 `json:"lat"`
	Lon    *float64 `json:"lon"`
	Radius *float64 `json:"radius"`
}

// Parse decodes a JSON array of country entries into a Table. Entries that
// are not objects, have the wrong field types, or miss any of id, lat, lon
// or radius are dropped. Only a document that is not a JSON array is an
// error.
func Parse(data []byte, opts ...Option) (*Table, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, eris.Wrap(err, "country: decode data")
	}

	records := make([]Record, 0, len(raw))
	for _, msg := range raw {
		var src sourceRecord
		if err := json.Unmarshal(msg, &src); err != nil {
			continue
		}
		if src.ID == nil || src.Lat == nil || src.Lon == nil || src.Radius == nil {
			continue
		}
		records = append(records, Record{
			Code:     *src.ID,
			Name:     src.Name,
			Center:   geo.Coordinate{Latitude: *src.Lat, Longitude: *src.Lon},
			RadiusKM: *src.Radius,
		})
	}

	t := NewTable(records, opts...)
	if dropped := len(raw) - t.Len(); dropped > 0 {
		zap.L().Debug("country: dropped malformed records", zap.Int("dropped", dropped))
	}
	return t, nil
}

// LoadFile reads the countries data file at path. A missing or unreadable
// file yields an empty table and a warning, never an error.
func LoadFile(path string, opts ...Option) *Table {
	log := zap.L().With(zap.String("component", "country.loader"), zap.String("path", path))

	data, err := os.ReadFile(path)
	if err != nil {
		log.Warn("country: data file unavailable, using empty table", zap.Error(err))
		return NewTable(nil, opts...)
	}

	t, err := Parse(data, opts...)
	if err != nil {
		log.Warn("country: failed to parse data file, using empty table", zap.Error(err))
		return NewTable(nil, opts...)
	}

	log.Info("loaded countries from data file", zap.Int("countries", t.Len()))
	return t
}

// Loader reads the data file on first use and returns the same Table on
// every later call. Concurrent first callers block until the single load
// completes.
type Loader struct {
	path string
	opts []Option

	once  sync.Once
	table *Table
}

// NewLoader creates a Loader for the data file at path.
func NewLoader(path string, opts ...Option) *Loader {
	return &Loader{path: path, opts: opts}
}

// Load returns the cached table, reading the file on the first call.
func (l *Loader) Load() *Table {
	l.once.Do(func() {
		l.table = LoadFile(l.path, l.opts...)
	})
	return l.table
}
