// Hazard zones: the area agents must leave and the safe points on its edge.
package network

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// InZone reports whether p lies inside the hazard polygon.
func InZone(zone orb.Polygon, p orb.Point) bool {
	if len(zone) == 0 {
		return false
	}
	return planar.PolygonContains(zone, p)
}

// CircleZone approximates a circular exclusion zone of the given radius in
// metres around center with a regular polygon.
func CircleZone(center orb.Point, radius float64, segments int) orb.Polygon {
	if segments < 8 {
		segments = 8
	}
	ring := make(orb.Ring, 0, segments+1)
	for i := 0; i < segments; i++ {
		theta := 2 * math.Pi * float64(i) / float64(segments)
		ring = append(ring, offset(center, radius*math.Cos(theta), radius*math.Sin(theta)))
	}
	ring = append(ring, ring[0])
	return orb.Polygon{ring}
}

// MarkTargetsOutside marks as targets the nodes just outside the zone: every
// node outside with at least one neighbour inside. This stands in for
// splitting the crossing road at the zone boundary. Returns the number of new
// targets.
func (g *Graph) MarkTargetsOutside(zone orb.Polygon) int {
	inside := make(map[NodeID]bool, len(g.order))
	for _, id := range g.order {
		inside[id] = InZone(zone, g.nodes[id].Point)
	}

	marked := 0
	for _, id := range g.order {
		n := g.nodes[id]
		if inside[id] || n.Target {
			continue
		}
		for _, nb := range g.Neighbors(id) {
			if inside[nb] {
				g.markTarget(n)
				marked++
				break
			}
		}
	}
	return marked
}
