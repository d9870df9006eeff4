package geometry

import (
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

// Some feeds wrap coordinate pairs in brackets.
var bracketStripper = strings.NewReplacer("(", "", ")", "")

// ParsePolygon parses a CAP polygon ("lat,lon lat,lon ...") into a closed ring
// of (lon, lat) points. Tokens that do not consist of exactly two numbers are
// skipped. At least four points are required; an open ring is closed by
// repeating its first point.
func ParsePolygon(s string) (orb.Ring, bool) {
	var ring orb.Ring
	for _, tok := range strings.Fields(s) {
		lat, lon, ok := parsePair(bracketStripper.Replace(tok))
		if !ok {
			continue
		}
		ring = append(ring, orb.Point{lon, lat})
	}
	if len(ring) < 4 {
		return nil, false
	}
	if ring[0] != ring[len(ring)-1] {
		ring = append(ring, ring[0])
	}
	return ring, true
}

// CircleBounds parses a CAP circle ("lat,lon radiusKm") and returns its
// enclosing bounding box. A box crossing the antimeridian is returned as two
// boxes, one ending at 180 and one starting at -180.
func CircleBounds(s string) ([]orb.Bound, bool) {
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return nil, false
	}
	lat, lon, ok := parsePair(fields[0])
	if !ok {
		return nil, false
	}
	radiusKm, err := strconv.ParseFloat(fields[1], 64)
	if err != nil || !finite(radiusKm) || radiusKm <= 0 {
		return nil, false
	}
	radius := radiusKm * 1000

	dlon := radius / Distance(lat, 0, lat, 1)
	dlat := radius / Distance(0, lon, 1, lon)
	minLat := math.Max(lat-dlat, -90)
	maxLat := math.Min(lat+dlat, 90)

	if !finite(dlon) || dlon >= 180 {
		return []orb.Bound{box(-180, minLat, 180, maxLat)}, true
	}

	switch {
	case lon-dlon < -180:
		return []orb.Bound{
			box(lon-dlon+360, minLat, 180, maxLat),
			box(-180, minLat, lon+dlon, maxLat),
		}, true
	case lon+dlon > 180:
		return []orb.Bound{
			box(lon-dlon, minLat, 180, maxLat),
			box(-180, minLat, lon+dlon-360, maxLat),
		}, true
	default:
		return []orb.Bound{box(lon-dlon, minLat, lon+dlon, maxLat)}, true
	}
}

func parsePair(s string) (lat, lon float64, ok bool) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return 0, 0, false
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil || !finite(lat) {
		return 0, 0, false
	}
	lon, err = strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil || !finite(lon) {
		return 0, 0, false
	}
	return lat, lon, true
}

func box(minLon, minLat, maxLon, maxLat float64) orb.Bound {
	return orb.Bound{Min: orb.Point{minLon, minLat}, Max: orb.Point{maxLon, maxLat}}
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
