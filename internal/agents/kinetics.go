// Kinetics: moves an agent along its route for one tick, queueing behind
// agents ahead of it on the same lane.
package agents

import (
	"time"

	"github.com/paulmach/orb"

	"github.com/talgya/evacsim/internal/network"
)

// queueGap is how far behind a blocking agent a queued agent stops, in
// metres.
const queueGap = 1.0

// Step reports what an agent did during one tick.
type Step struct {
	Travelled    float64 `json:"travelled"` // metres
	EdgesCrossed int     `json:"edges_crossed"`
	Blocked      bool    `json:"blocked"`
	Evacuated    bool    `json:"evacuated"` // reached its target this tick
}

// Advance moves a by its speed times tick along its route. Congestion is
// read from idx, the pre-tick snapshot; a nil index means no congestion.
// Evacuated agents are left untouched.
func Advance(a *Agent, g *network.Graph, idx *EdgeIndex, tick time.Duration) Step {
	var st Step
	if a.Evacuated {
		return st
	}
	if _, _, ok := a.Edge(); !ok {
		// Placed on its target: nothing left to travel.
		a.Evacuated = true
		a.Point = g.Point(a.Target())
		st.Evacuated = true
		return st
	}

	toTravel := a.SpeedMPS() * tick.Seconds()

	for {
		from, to, _ := a.Edge()
		remaining := a.RemainingOnEdge(g)

		if d, ok := idx.Blocker(from, to, a.InCar, a.DistanceAlongEdge, toTravel); ok {
			toTravel = max(0, d-a.DistanceAlongEdge-queueGap)
			st.Blocked = true
			break
		}
		if toTravel < remaining {
			break
		}

		toTravel -= remaining
		st.Travelled += remaining
		st.EdgesCrossed++
		a.RouteIndex++
		a.DistanceAlongEdge = 0
		a.Position = to

		if a.RouteIndex == len(a.Route)-1 {
			a.Evacuated = true
			a.Point = g.Point(to)
			st.Evacuated = true
			return st
		}
		a.RoadTag = g.EdgeTag(to, a.Route[a.RouteIndex+1])
	}

	a.DistanceAlongEdge += toTravel
	st.Travelled += toTravel
	a.Point = locate(a, g)
	return st
}

// locate interpolates the agent's coordinate along its current edge. A
// zero-length edge resolves to its start node.
func locate(a *Agent, g *network.Graph) orb.Point {
	from, to, ok := a.Edge()
	if !ok {
		return g.Point(a.Position)
	}
	length, _ := g.EdgeLength(from, to)
	if length <= 0 {
		return g.Point(from)
	}
	return network.Interpolate(g.Point(from), g.Point(to), a.DistanceAlongEdge/length)
}
