package geometry

import "github.com/golang/geo/s2"

// EarthRadius is the mean earth radius in metres used for great-circle distances.
const EarthRadius = 6371000.0

// Distance returns the great-circle (haversine) distance in metres between two
// WGS84 coordinates given in degrees.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	a := s2.LatLngFromDegrees(lat1, lon1)
	b := s2.LatLngFromDegrees(lat2, lon2)
	return a.Distance(b).Radians() * EarthRadius
}
