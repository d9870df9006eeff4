package geometry

import "github.com/paulmach/orb"

// selfIntersects reports whether a closed ring has two non-adjacent edges that
// touch or cross, or two adjacent edges that fold back onto each other.
func selfIntersects(r orb.Ring) bool {
	n := len(r) - 1 // number of edges in a closed ring
	if n < 3 {
		return true
	}
	for i := 0; i < n; i++ {
		a1, a2 := r[i], r[i+1]
		for j := i + 1; j < n; j++ {
			b1, b2 := r[j], r[j+1]
			adjacent := j == i+1 || (i == 0 && j == n-1)
			if adjacent {
				if foldsBack(a1, a2, b1, b2) {
					return true
				}
				continue
			}
			if segmentsIntersect(a1, a2, b1, b2) {
				return true
			}
		}
	}
	return false
}

// foldsBack reports whether two edges sharing an endpoint are collinear and
// overlap, i.e. the ring doubles back on itself.
func foldsBack(a1, a2, b1, b2 orb.Point) bool {
	if cross(a1, a2, b1) != 0 || cross(a1, a2, b2) != 0 {
		return false
	}
	// Identify the shared vertex and check both other ends lie on the same side.
	var shared, p, q orb.Point
	switch {
	case a2 == b1:
		shared, p, q = a2, a1, b2
	case a1 == b2:
		shared, p, q = a1, a2, b1
	default:
		return false
	}
	return dot(shared, p, q) > 0
}

func segmentsIntersect(p1, p2, q1, q2 orb.Point) bool {
	d1 := cross(q1, q2, p1)
	d2 := cross(q1, q2, p2)
	d3 := cross(p1, p2, q1)
	d4 := cross(p1, p2, q2)

	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}
	switch {
	case d1 == 0 && onSegment(q1, q2, p1):
		return true
	case d2 == 0 && onSegment(q1, q2, p2):
		return true
	case d3 == 0 && onSegment(p1, p2, q1):
		return true
	case d4 == 0 && onSegment(p1, p2, q2):
		return true
	}
	return false
}

// cross is the z component of (b-a)×(c-a).
func cross(a, b, c orb.Point) float64 {
	return (b[0]-a[0])*(c[1]-a[1]) - (b[1]-a[1])*(c[0]-a[0])
}

// dot is (p-o)·(q-o).
func dot(o, p, q orb.Point) float64 {
	return (p[0]-o[0])*(q[0]-o[0]) + (p[1]-o[1])*(q[1]-o[1])
}

func onSegment(a, b, p orb.Point) bool {
	return min(a[0], b[0]) <= p[0] && p[0] <= max(a[0], b[0]) &&
		min(a[1], b[1]) <= p[1] && p[1] <= max(a[1], b[1])
}
