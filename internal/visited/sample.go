// Package visited folds location samples into the set of countries a person
// has been to.
package visited

import (
	"time"

	"github.com/sells-group/countries-visited/internal/geo"
)

// Sample is one entry of a person's location history: either a Point or a
// ZoneRef. The interface is sealed.
type Sample interface {
	RecordedAt() time.Time
	sample()
}

// Point is a sample carrying a direct coordinate.
type Point struct {
	Coordinate geo.Coordinate
	At         time.Time
}

// RecordedAt returns the sample time.
func (p Point) RecordedAt() time.Time { return p.At }

func (Point) sample() {}

// ZoneRef is a sample that names a zone instead of carrying a coordinate.
type ZoneRef struct {
	Zone string
	At   time.Time
}

// RecordedAt returns the sample time.
func (z ZoneRef) RecordedAt() time.Time { return z.At }

func (ZoneRef) sample() {}

// Classifier maps a coordinate to a country code. *country.Table
// implements it.
type Classifier interface {
	Classify(c geo.Coordinate) (string, bool)
}

// ZoneResolver maps a zone name to its coordinate.
type ZoneResolver interface {
	ResolveZone(name string) (geo.Coordinate, bool)
}

// Locate returns the coordinate a sample stands for. ZoneRefs resolve
// through zones; a nil resolver or an unknown zone yields false.
func Locate(s Sample, zones ZoneResolver) (geo.Coordinate, bool) {
	switch v := s.(type) {
	case Point:
		return v.Coordinate, true
	case ZoneRef:
		if zones == nil || v.Zone == "" {
			return geo.Coordinate{}, false
		}
		return zones.ResolveZone(v.Zone)
	default:
		return geo.Coordinate{}, false
	}
}
