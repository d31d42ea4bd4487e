// Package country holds the country reference table and the
// coordinate-to-country classifier built on top of it.
package country

import (
	"github.com/sells-group/countries-visited/internal/geo"
)

// Record is one classification circle of the reference table.
type Record struct {
	Code     string         `json:"id"`
	Name     string         `json:"name,omitempty"`
	Center   geo.Coordinate `json:"center"`
	RadiusKM float64        `json:"radius_km"`
}

// Contains reports whether c lies within the record's radius and returns the
// distance to the record center.
func (r Record) Contains(c geo.Coordinate) (float64, bool) {
	d := geo.Distance(c, r.Center)
	return d, d <= r.RadiusKM
}

// Table is an immutable, ordered set of country records. Record order is the
// load order of the source data and drives first-match classification.
// A nil or zero Table is empty.
type Table struct {
	records  []Record
	index    map[string]int
	tieBreak TieBreak
}

// Option configures a Table.
type Option func(*Table)

// WithTieBreak selects how overlapping circles are resolved.
func WithTieBreak(tb TieBreak) Option {
	return func(t *Table) {
		t.tieBreak = tb
	}
}

// NewTable builds a table from records in the given order. Records with an
// empty code or a negative radius are dropped. A repeated code keeps the
// position of its first occurrence and the values of its last.
func NewTable(records []Record, opts ...Option) *Table {
	t := &Table{
		records:  make([]Record, 0, len(records)),
		index:    make(map[string]int, len(records)),
		tieBreak: FirstMatch,
	}
	for _, opt := range opts {
		opt(t)
	}

	for _, r := range records {
		if r.Code == "" || r.RadiusKM < 0 {
			continue
		}
		if i, ok := t.index[r.Code]; ok {
			t.records[i] = r
			continue
		}
		t.index[r.Code] = len(t.records)
		t.records = append(t.records, r)
	}
	return t
}

// Len returns the number of records.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.records)
}

// Records returns a copy of the records in table order.
func (t *Table) Records() []Record {
	if t == nil {
		return nil
	}
	out := make([]Record, len(t.records))
	copy(out, t.records)
	return out
}

// Lookup returns the record for code.
func (t *Table) Lookup(code string) (Record, bool) {
	if t == nil {
		return Record{}, false
	}
	i, ok := t.index[code]
	if !ok {
		return Record{}, false
	}
	return t.records[i], true
}

// TieBreak returns the strategy used for overlapping circles.
func (t *Table) TieBreak() TieBreak {
	if t == nil {
		return FirstMatch
	}
	return t.tieBreak
}
