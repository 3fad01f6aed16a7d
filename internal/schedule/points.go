package schedule

import (
	"math/rand"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// maxSampleAttempts bounds rejection sampling in RandomPoint.
const maxSampleAttempts = 64

// RandomPoint returns a point drawn uniformly from inside poly by rejection
// sampling over its bounding box. Slivers that reject every sample fall back
// to the centroid.
func RandomPoint(poly orb.Polygon, rng *rand.Rand) orb.Point {
	if len(poly) == 0 || len(poly[0]) == 0 {
		return orb.Point{}
	}
	b := poly.Bound()
	w, h := b.Max[0]-b.Min[0], b.Max[1]-b.Min[1]
	for i := 0; i < maxSampleAttempts; i++ {
		p := orb.Point{b.Min[0] + rng.Float64()*w, b.Min[1] + rng.Float64()*h}
		if planar.PolygonContains(poly, p) {
			return p
		}
	}
	return Centroid(poly)
}

// Centroid returns the area centroid of poly, or its first vertex when the
// polygon has no area.
func Centroid(poly orb.Polygon) orb.Point {
	if len(poly) == 0 || len(poly[0]) == 0 {
		return orb.Point{}
	}
	c, area := planar.CentroidArea(poly)
	if area == 0 {
		return poly[0][0]
	}
	return c
}
