package geocode

import (
	"fmt"
	"strings"

	geojson "github.com/paulmach/go.geojson"
)

// minRingPoints is the smallest closed ring CAP accepts.
const minRingPoints = 4

// FeaturePolygons converts the outer rings of a Polygon or MultiPolygon
// feature into CAP polygon strings ("lat,lon lat,lon ..."). Rings with fewer
// than four points are dropped. ok is false for any other geometry type.
func FeaturePolygons(f *geojson.Feature) (polygons []string, ok bool) {
	if f == nil || f.Geometry == nil {
		return nil, false
	}
	g := f.Geometry
	switch {
	case g.IsPolygon():
		if s, ok := ringText(g.Polygon); ok {
			polygons = append(polygons, s)
		}
	case g.IsMultiPolygon():
		for _, poly := range g.MultiPolygon {
			if s, ok := ringText(poly); ok {
				polygons = append(polygons, s)
			}
		}
	default:
		return nil, false
	}
	return polygons, true
}

func ringText(poly [][][]float64) (string, bool) {
	if len(poly) == 0 || len(poly[0]) < minRingPoints {
		return "", false
	}
	parts := make([]string, 0, len(poly[0]))
	for _, c := range poly[0] {
		if len(c) < 2 {
			return "", false
		}
		parts = append(parts, fmt.Sprintf("%.4f,%.4f", c[1], c[0]))
	}
	return strings.Join(parts, " "), true
}
