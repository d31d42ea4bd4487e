package geo

import (
	"math"

	"github.com/twpayne/go-geom"
)

// DefaultCircleSegments is the vertex count used when rendering a radius
// circle as a polygon.
const DefaultCircleSegments = 64

// Destination returns the point reached by travelling distanceKM from origin
// along the initial bearing (degrees clockwise from north).
func Destination(origin Coordinate, bearingDeg, distanceKM float64) Coordinate {
	lat1 := radians(origin.Latitude)
	lon1 := radians(origin.Longitude)
	brng := radians(bearingDeg)
	d := distanceKM / EarthRadiusKM

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(d) + math.Cos(lat1)*math.Sin(d)*math.Cos(brng))
	lon2 := lon1 + math.Atan2(
		math.Sin(brng)*math.Sin(d)*math.Cos(lat1),
		math.Cos(d)-math.Sin(lat1)*math.Sin(lat2),
	)

	// Normalise longitude to [-180, 180).
	lon := math.Mod(degrees(lon2)+540, 360) - 180
	return Coordinate{Latitude: degrees(lat2), Longitude: lon}
}

// Point converts c to a go-geom XY point (x = longitude) with SRID 4326.
func Point(c Coordinate) *geom.Point {
	return geom.NewPointFlat(geom.XY, []float64{c.Longitude, c.Latitude}).SetSRID(4326)
}

// CirclePolygon approximates the circle of radiusKM around center as a closed
// polygon ring with the given number of segments. A segments value below 3
// falls back to DefaultCircleSegments.
func CirclePolygon(center Coordinate, radiusKM float64, segments int) *geom.Polygon {
	if segments < 3 {
		segments = DefaultCircleSegments
	}

	flat := make([]float64, 0, (segments+1)*2)
	for i := 0; i < segments; i++ {
		p := Destination(center, float64(i)*360/float64(segments), radiusKM)
		flat = append(flat, p.Longitude, p.Latitude)
	}
	flat = append(flat, flat[0], flat[1])

	return geom.NewPolygonFlat(geom.XY, flat, []int{len(flat)}).SetSRID(4326)
}
