package country

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/countries-visited/internal/geo"
)

// FeatureCollection renders every record as a GeoJSON polygon approximating
// its classification circle. Codes in highlight get a "visited" property set
// to true.
func (t *Table) FeatureCollection(highlight []string) *geojson.FeatureCollection {
	visited := make(map[string]bool, len(highlight))
	for _, c := range highlight {
		visited[c] = true
	}

	fc := &geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, t.Len())}
	for _, r := range t.Records() {
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:       r.Code,
			Geometry: geo.CirclePolygon(r.Center, r.RadiusKM, geo.DefaultCircleSegments),
			Properties: map[string]any{
				"code":      r.Code,
				"name":      t.Name(r.Code),
				"radius_km": r.RadiusKM,
				"visited":   visited[r.Code],
			},
		})
	}
	return fc
}

// MarshalGeoJSON encodes FeatureCollection as JSON.
func (t *Table) MarshalGeoJSON(highlight []string) ([]byte, error) {
	data, err := t.FeatureCollection(highlight).MarshalJSON()
	if err != nil {
		return nil, eris.Wrap(err, "country: encode geojson")
	}
	return data, nil
}
