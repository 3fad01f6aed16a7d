package schedule

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/paulmach/orb"

	"github.com/talgya/evacsim/internal/network"
	"github.com/talgya/evacsim/internal/routing"
)

const (
	// DefaultVehicleKPH is the speed of agents travelling by car.
	DefaultVehicleKPH = 30.0
	// DefaultCarThreshold is the trip length in metres above which agents
	// drive rather than walk.
	DefaultCarThreshold = 500.0
)

// Places assigns a building footprint to each place kind an agent visits.
type Places map[Place]orb.Polygon

// Visit records one stop of a traversal.
type Visit struct {
	Activity string        `json:"activity"`
	Arrival  time.Duration `json:"arrival"`
}

// Placement is where an agent is at the query time.
type Placement struct {
	Activity  string         `json:"activity"` // current, or the one being left when in transit
	Point     orb.Point      `json:"point"`
	InTransit bool           `json:"in_transit"`
	Node      network.NodeID `json:"node,omitempty"` // last node reached, in transit only
	Next      network.NodeID `json:"next,omitempty"` // node being approached, in transit only
	InCar     bool           `json:"in_car"`
	Trace     []Visit        `json:"trace"`
}

// Planner resolves schedule traversals onto the road network.
type Planner struct {
	Graph        *network.Graph
	Router       *routing.Router
	VehicleKPH   float64
	CarThreshold float64
}

// NewPlanner creates a planner with the default vehicle speed and car
// threshold.
func NewPlanner(g *network.Graph, r *routing.Router) *Planner {
	return &Planner{
		Graph:        g,
		Router:       r,
		VehicleKPH:   DefaultVehicleKPH,
		CarThreshold: DefaultCarThreshold,
	}
}

// leg is a trip between two consecutive activities.
type leg struct {
	path     []network.NodeID
	distance float64
	speed    float64 // m/s
	inCar    bool
}

func (l leg) duration() time.Duration {
	return seconds(l.distance / l.speed)
}

// PositionAt walks schedule s from midnight up to time of day at and returns
// where the agent is: resting inside the building of its current activity, or
// part way along the route to the next one. All randomness is drawn from rng.
func (p *Planner) PositionAt(s *Schedule, at time.Duration, places Places, walkKPH float64, rng *rand.Rand) (Placement, error) {
	if !(walkKPH > 0) {
		return Placement{}, fmt.Errorf("%w: %v", ErrBadSpeed, walkKPH)
	}

	cur := s.Start()
	arrival := time.Duration(0)
	trace := []Visit{{Activity: cur.Name, Arrival: arrival}}

	for arrival < at {
		jitter := time.Duration(rng.NormFloat64() * float64(cur.Timing.jitter()))

		var leave time.Duration
		switch t := cur.Timing.(type) {
		case LeaveAt:
			// Running late never sends the agent back in time.
			leave = max(t.At+jitter, arrival)
		case Stay:
			leave = arrival + max(t.Duration+jitter, 0)
		}

		if leave > at {
			break
		}

		next, ok := s.choose(cur.Name, rng)
		if !ok {
			break // stays here for the rest of the day
		}

		l, err := p.plan(cur, next, places, walkKPH)
		if err != nil {
			return Placement{}, fmt.Errorf("%s: %s -> %s: %w", s.Name(), cur.Name, next.Name, err)
		}

		if leave+l.duration() <= at {
			arrival = leave + l.duration()
			cur = next
			trace = append(trace, Visit{Activity: cur.Name, Arrival: arrival})
			continue
		}

		pl := p.inTransit(l, leave, at)
		pl.Activity = cur.Name
		pl.Trace = trace
		return pl, nil
	}

	poly, ok := places[cur.Place]
	if !ok {
		return Placement{}, fmt.Errorf("%s: %w: %s", s.Name(), ErrUnassignedPlace, PlaceName(cur.Place))
	}
	return Placement{
		Activity: cur.Name,
		Point:    RandomPoint(poly, rng),
		Trace:    trace,
	}, nil
}

// plan routes between the buildings of two activities and picks the mode.
func (p *Planner) plan(from, to Activity, places Places, walkKPH float64) (leg, error) {
	a, err := p.anchor(from.Place, places)
	if err != nil {
		return leg{}, err
	}
	b, err := p.anchor(to.Place, places)
	if err != nil {
		return leg{}, err
	}
	route, err := p.Router.Path(a, b)
	if err != nil {
		return leg{}, err
	}

	l := leg{path: route.Path, distance: route.Distance, speed: walkKPH / 3.6}
	if route.Distance > p.CarThreshold {
		l.inCar = true
		l.speed = p.VehicleKPH / 3.6
	}
	return l, nil
}

// anchor resolves a place to the graph node nearest its building centroid.
func (p *Planner) anchor(place Place, places Places) (network.NodeID, error) {
	poly, ok := places[place]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnassignedPlace, PlaceName(place))
	}
	return p.Graph.NearestNode(Centroid(poly))
}

// inTransit finds the edge the agent is on at time at, having set off along
// l at time leave.
func (p *Planner) inTransit(l leg, leave, at time.Duration) Placement {
	pl := Placement{InTransit: true, InCar: l.inCar}
	elapsed := leave
	for i := 0; i+1 < len(l.path); i++ {
		length, _ := p.Graph.EdgeLength(l.path[i], l.path[i+1])
		dt := seconds(length / l.speed)
		if elapsed+dt > at {
			pl.Node, pl.Next = l.path[i], l.path[i+1]
			pl.Point = p.Graph.Point(pl.Node)
			return pl
		}
		elapsed += dt
	}
	// Rounding put the agent past the last edge; hold it on the final one.
	n := len(l.path)
	if n >= 2 {
		pl.Node, pl.Next = l.path[n-2], l.path[n-1]
	} else {
		pl.Node, pl.Next = l.path[0], l.path[0]
	}
	pl.Point = p.Graph.Point(pl.Node)
	return pl
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
