package geometry

import (
	polyclip "github.com/ctessum/polyclip-go"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// World is the canonical WGS84 coordinate window.
var World = box(-180, -90, 180, 90)

var (
	westWindow = box(-540, -90, -180, 90)
	eastWindow = box(180, -90, 540, 90)
)

// quadraticLimit bounds the ring size for the pairwise self-intersection test.
// Larger rings always go through repair, which runs in O(n log n).
const quadraticLimit = 4096

// toClip converts an orb polygon into polyclip contours, dropping the closing
// point of each ring and any ring with fewer than three vertices.
func toClip(p orb.Polygon) polyclip.Polygon {
	out := make(polyclip.Polygon, 0, len(p))
	for _, ring := range p {
		n := len(ring)
		if n > 1 && ring[0] == ring[n-1] {
			n--
		}
		if n < 3 {
			continue
		}
		c := make(polyclip.Contour, n)
		for i := 0; i < n; i++ {
			c[i] = polyclip.Point{X: ring[i][0], Y: ring[i][1]}
		}
		out = append(out, c)
	}
	return out
}

func boundClip(b orb.Bound) polyclip.Polygon {
	return polyclip.Polygon{{
		{X: b.Min[0], Y: b.Min[1]},
		{X: b.Max[0], Y: b.Min[1]},
		{X: b.Max[0], Y: b.Max[1]},
		{X: b.Min[0], Y: b.Max[1]},
	}}
}

func clipBound(p polyclip.Polygon) orb.Bound {
	r := p.BoundingBox()
	return box(r.Min.X, r.Min.Y, r.Max.X, r.Max.Y)
}

// validPolygon returns ring as clip contours, repairing it first when it
// self-intersects. A ring that cannot be repaired into any area yields nil.
func validPolygon(ring orb.Ring) polyclip.Polygon {
	ring = dedupeConsecutive(ring)
	p := toClip(orb.Polygon{ring})
	if len(p) == 0 {
		return nil
	}
	if len(ring) <= quadraticLimit && !selfIntersects(ring) && ring.Orientation() != 0 {
		return p
	}
	// Intersecting with a padded copy of its own extent forces the sweep to
	// split the ring at every crossing; the even-odd fill keeps polygonal parts.
	window := boundClip(ring.Bound().Pad(1e-6))
	return nonEmpty(p.Construct(polyclip.INTERSECTION, window))
}

// normalize splits p along the antimeridian. Parts beyond ±180 are shifted
// back by 360 degrees; anything outside ±90 latitude is cut off.
func normalize(p polyclip.Polygon) []polyclip.Polygon {
	if len(p) == 0 {
		return nil
	}
	b := clipBound(p)
	if within(b, World) {
		return []polyclip.Polygon{p}
	}

	var parts []polyclip.Polygon
	if inner := nonEmpty(p.Construct(polyclip.INTERSECTION, boundClip(World))); inner != nil {
		parts = append(parts, inner)
	}
	if b.Min[0] < -180 {
		if west := nonEmpty(p.Construct(polyclip.INTERSECTION, boundClip(westWindow))); west != nil {
			parts = append(parts, shift(west, 360))
		}
	}
	if b.Max[0] > 180 {
		if east := nonEmpty(p.Construct(polyclip.INTERSECTION, boundClip(eastWindow))); east != nil {
			parts = append(parts, shift(east, -360))
		}
	}
	return parts
}

func shift(p polyclip.Polygon, dx float64) polyclip.Polygon {
	out := make(polyclip.Polygon, len(p))
	for i, c := range p {
		moved := make(polyclip.Contour, len(c))
		for j, pt := range c {
			moved[j] = polyclip.Point{X: pt.X + dx, Y: pt.Y}
		}
		out[i] = moved
	}
	return out
}

// union merges parts into one polygon set. Overlapping and touching parts are
// dissolved by the sweep; disjoint parts are kept side by side.
func union(parts []polyclip.Polygon) polyclip.Polygon {
	var acc polyclip.Polygon
	for _, p := range parts {
		if len(p) == 0 {
			continue
		}
		if len(acc) == 0 {
			acc = p
			continue
		}
		acc = acc.Construct(polyclip.UNION, p)
	}
	return acc
}

// fromClip turns clip contours into a MultiPolygon. polyclip does not label
// contours as shells or holes, so each contour is classified by how many
// other contours contain it: even depth is a shell, odd depth a hole of the
// smallest shell around it. Contours that pass through a vertex twice are
// split there first.
func fromClip(p polyclip.Polygon) orb.MultiPolygon {
	rings := make([]orb.Ring, 0, len(p))
	for _, contour := range p {
		for _, c := range splitPinches(contour) {
			r := make(orb.Ring, 0, len(c)+1)
			for _, pt := range c {
				r = append(r, orb.Point{pt.X, pt.Y})
			}
			r = append(r, r[0])
			if r.Orientation() == 0 {
				continue
			}
			rings = append(rings, r)
		}
	}

	areas := make([]float64, len(rings))
	for i, r := range rings {
		areas[i] = planar.Area(r)
	}

	depth := make([]int, len(rings))
	parent := make([]int, len(rings))
	for i := range rings {
		parent[i] = -1
		probe := interiorProbe(rings[i])
		for j := range rings {
			if i == j || areas[j] <= areas[i] {
				continue
			}
			if planar.RingContains(rings[j], probe) {
				depth[i]++
				if parent[i] == -1 || areas[j] < areas[parent[i]] {
					parent[i] = j
				}
			}
		}
	}

	var mp orb.MultiPolygon
	shellIndex := make(map[int]int)
	for i, r := range rings {
		if depth[i]%2 == 0 {
			orient(r, orb.CCW)
			shellIndex[i] = len(mp)
			mp = append(mp, orb.Polygon{r})
		}
	}
	for i, r := range rings {
		if depth[i]%2 == 1 {
			if k, ok := shellIndex[parent[i]]; ok {
				orient(r, orb.CW)
				mp[k] = append(mp[k], r)
			}
		}
	}
	return mp
}

// splitPinches cuts an open contour at every vertex it visits more than once
// and returns the simple loops. Loops with fewer than three vertices are
// dropped.
func splitPinches(c polyclip.Contour) []polyclip.Contour {
	var (
		loops []polyclip.Contour
		path  = make(polyclip.Contour, 0, len(c))
		at    = make(map[polyclip.Point]int, len(c))
	)
	for _, pt := range c {
		k, seen := at[pt]
		if !seen {
			at[pt] = len(path)
			path = append(path, pt)
			continue
		}
		if len(path)-k >= 3 {
			loops = append(loops, append(polyclip.Contour(nil), path[k:]...))
		}
		for _, q := range path[k+1:] {
			delete(at, q)
		}
		path = path[:k+1]
	}
	if len(path) >= 3 {
		loops = append(loops, path)
	}
	return loops
}

// interiorProbe returns a point just inside r, next to the midpoint of its
// longest edge.
func interiorProbe(r orb.Ring) orb.Point {
	best, bestLen := 0, -1.0
	for i := 0; i+1 < len(r); i++ {
		dx, dy := r[i+1][0]-r[i][0], r[i+1][1]-r[i][1]
		if l := dx*dx + dy*dy; l > bestLen {
			best, bestLen = i, l
		}
	}
	a, b := r[best], r[best+1]
	mid := orb.Point{(a[0] + b[0]) / 2, (a[1] + b[1]) / 2}
	dx, dy := b[0]-a[0], b[1]-a[1]
	const eps = 1e-9
	// Left of the edge is inside for a counter-clockwise ring.
	nx, ny := -dy, dx
	if r.Orientation() == orb.CW {
		nx, ny = dy, -dx
	}
	return orb.Point{mid[0] + nx*eps, mid[1] + ny*eps}
}

func orient(r orb.Ring, o orb.Orientation) {
	if r.Orientation() != o {
		r.Reverse()
	}
}

func nonEmpty(p polyclip.Polygon) polyclip.Polygon {
	out := p[:0]
	for _, c := range p {
		if len(c) >= 3 {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func within(b, outer orb.Bound) bool {
	return b.Min[0] >= outer.Min[0] && b.Max[0] <= outer.Max[0] &&
		b.Min[1] >= outer.Min[1] && b.Max[1] <= outer.Max[1]
}

func dedupeConsecutive(r orb.Ring) orb.Ring {
	out := make(orb.Ring, 0, len(r))
	for i, pt := range r {
		if i > 0 && pt == out[len(out)-1] {
			continue
		}
		out = append(out, pt)
	}
	return out
}
