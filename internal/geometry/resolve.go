package geometry

import (
	"errors"

	polyclip "github.com/ctessum/polyclip-go"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
)

var (
	// ErrNoGeometry is returned when no polygon or circle yields any area.
	ErrNoGeometry = errors.New("no valid bounding box")
	// ErrTooComplex is returned when the input exceeds the vertex budget.
	ErrTooComplex = errors.New("geometry exceeds vertex budget")
)

// DefaultMaxVertices bounds the work spent on one alert.
const DefaultMaxVertices = 50000

// Resolver turns CAP polygon and circle strings into a validated
// multipolygon inside [-180,180]x[-90,90].
type Resolver struct {
	// MaxVertices caps the number of input vertices per call. Zero disables the cap.
	MaxVertices int
}

// NewResolver returns a Resolver with the given vertex budget.
func NewResolver(maxVertices int) *Resolver {
	return &Resolver{MaxVertices: maxVertices}
}

// Resolve parses, repairs, splits and unions all polygons and circles of one
// alert. Duplicate strings are processed once.
func (r *Resolver) Resolve(polygons, circles []string) (orb.MultiPolygon, error) {
	var (
		parts []polyclip.Polygon
		used  int
	)
	for _, s := range unique(polygons) {
		ring, ok := ParsePolygon(s)
		if !ok {
			continue
		}
		used += len(ring)
		if r.MaxVertices > 0 && used > r.MaxVertices {
			return nil, ErrTooComplex
		}
		parts = append(parts, normalize(validPolygon(ring))...)
	}
	for _, s := range unique(circles) {
		bounds, ok := CircleBounds(s)
		if !ok {
			continue
		}
		for _, b := range bounds {
			used += 4
			parts = append(parts, boundClip(b))
		}
	}
	if r.MaxVertices > 0 && used > r.MaxVertices {
		return nil, ErrTooComplex
	}

	mp := fromClip(union(parts))
	if len(mp) == 0 {
		return nil, ErrNoGeometry
	}
	return mp, nil
}

// WKT encodes a multipolygon as well-known text, always as MULTIPOLYGON.
func WKT(mp orb.MultiPolygon) string {
	return wkt.MarshalString(mp)
}

func unique(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
