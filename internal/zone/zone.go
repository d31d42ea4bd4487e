// Package zone resolves named zones (home, office, ...) to coordinates.
package zone

import (
	"os"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/countries-visited/internal/geo"
)

// Prefix is the optional namespace in front of zone names ("zone.home").
const Prefix = "zone."

// Zone is a named location.
type Zone struct {
	Name      string  `yaml:"name" json:"name"`
	Latitude  float64 `yaml:"latitude" json:"latitude"`
	Longitude float64 `yaml:"longitude" json:"longitude"`
	RadiusM   float64 `yaml:"radius" json:"radius_m"`
}

// Coordinate returns the zone center.
func (z Zone) Coordinate() geo.Coordinate {
	return geo.Coordinate{Latitude: z.Latitude, Longitude: z.Longitude}
}

// Normalize strips the optional prefix and surrounding space and lowercases
// the name, so "zone.Home" and "home" name the same zone.
func Normalize(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.TrimPrefix(name, Prefix)
}

// Registry is an immutable set of zones keyed by normalized name.
type Registry struct {
	zones map[string]Zone
}

// NewRegistry builds a registry. Zones with an empty name are skipped; a
// repeated name keeps the last definition.
func NewRegistry(zones []Zone) *Registry {
	r := &Registry{zones: make(map[string]Zone, len(zones))}
	for _, z := range zones {
		key := Normalize(z.Name)
		if key == "" {
			continue
		}
		z.Name = key
		r.zones[key] = z
	}
	return r
}

// ResolveZone returns the coordinate of the named zone.
func (r *Registry) ResolveZone(name string) (geo.Coordinate, bool) {
	if r == nil {
		return geo.Coordinate{}, false
	}
	z, ok := r.zones[Normalize(name)]
	if !ok {
		return geo.Coordinate{}, false
	}
	return z.Coordinate(), true
}

// Len returns the number of zones.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.zones)
}

// Zones returns every zone sorted by name.
func (r *Registry) Zones() []Zone {
	if r == nil {
		return nil
	}
	out := make([]Zone, 0, len(r.zones))
	for _, z := range r.zones {
		out = append(out, z)
	}
	slices.SortFunc(out, func(a, b Zone) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// fileFormat is the layout of a zones YAML file.
type fileFormat struct {
	Zones []Zone `yaml:"zones"`
}

// Parse decodes a zones YAML document.
func Parse(data []byte) (*Registry, error) {
	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "zone: parse file")
	}
	return NewRegistry(f.Zones), nil
}

// LoadFile reads a zones YAML file. An empty path, a missing file or an
// unparseable file yields an empty registry; the latter two log a warning.
func LoadFile(path string) *Registry {
	if path == "" {
		return NewRegistry(nil)
	}
	log := zap.L().With(zap.String("component", "zone.loader"), zap.String("path", path))

	data, err := os.ReadFile(path)
	if err != nil {
		log.Warn("zone: zones file unavailable", zap.Error(err))
		return NewRegistry(nil)
	}
	r, err := Parse(data)
	if err != nil {
		log.Warn("zone: failed to parse zones file", zap.Error(err))
		return NewRegistry(nil)
	}
	log.Info("loaded zones", zap.Int("zones", r.Len()))
	return r
}

// Resolver is the lookup contract shared by registries and chains.
type Resolver interface {
	ResolveZone(name string) (geo.Coordinate, bool)
}

// Chain tries each resolver in order and returns the first hit.
type Chain []Resolver

// ResolveZone implements Resolver.
func (c Chain) ResolveZone(name string) (geo.Coordinate, bool) {
	for _, r := range c {
		if r == nil {
			continue
		}
		if coord, ok := r.ResolveZone(name); ok {
			return coord, true
		}
	}
	return geo.Coordinate{}, false
}
