// Package agents provides the evacuee data model, the per-tick movement
// (kinetics) model and the spawner that places agents on the network.
package agents

import (
	"github.com/paulmach/orb"

	"github.com/talgya/evacsim/internal/network"
	"github.com/talgya/evacsim/internal/schedule"
)

// AgentID is a unique identifier for an agent.
type AgentID uint64

// Category is the demographic type of an agent. It selects the daily
// schedule and the default walking speed.
type Category uint8

const (
	CategoryChild        Category = iota // under 16
	CategoryWorkingAdult                 // 16–64
	CategoryRetiredAdult                 // 65+
	CategoryDefault                      // unknown; behaves as a working adult
)

// NumCategories is the total number of categories.
const NumCategories = 4

// VehicleSpeedKPH is the speed of agents that evacuate by car. It is the same
// speed the schedule engine uses for driven trips.
const VehicleSpeedKPH = schedule.DefaultVehicleKPH

// String returns a human-readable category name.
func (c Category) String() string {
	switch c {
	case CategoryChild:
		return "child"
	case CategoryWorkingAdult:
		return "working_adult"
	case CategoryRetiredAdult:
		return "retired_adult"
	default:
		return "default"
	}
}

// WalkingKPH returns the default walking speed of a category in km/h.
func (c Category) WalkingKPH() float64 {
	switch c {
	case CategoryChild:
		return 4.5
	case CategoryRetiredAdult:
		return 4.0
	default:
		return 5.0
	}
}

// Schedule returns the shared daily routine of the category.
func (c Category) Schedule() *schedule.Schedule {
	switch c {
	case CategoryChild:
		return schedule.ForType(schedule.TypeChild)
	case CategoryRetiredAdult:
		return schedule.ForType(schedule.TypeRetiredAdult)
	default:
		return schedule.ForType(schedule.TypeWorkingAdult)
	}
}

// Agent is a person evacuating along a fixed route to the nearest target.
type Agent struct {
	ID       AgentID  `json:"id"`
	Category Category `json:"category"`

	// Movement state. The agent sits DistanceAlongEdge metres past
	// Route[RouteIndex] on the edge towards Route[RouteIndex+1].
	Position          network.NodeID   `json:"position"` // last node fully reached
	Route             []network.NodeID `json:"route"`
	RouteIndex        int              `json:"route_index"`
	DistanceAlongEdge float64          `json:"distance_along_edge"`
	Point             orb.Point        `json:"point"` // interpolated lon, lat

	// Mode, fixed at creation.
	SpeedKPH float64 `json:"speed_kph"`
	InCar    bool    `json:"in_car"`

	// Status.
	Evacuated bool `json:"evacuated"` // terminal
	Stranded  bool `json:"stranded"`

	// Reporting only.
	RoadTag      string `json:"road_tag,omitempty"`
	RerouteCount int    `json:"reroute_count"`
	Activity     string `json:"activity,omitempty"` // schedule activity at placement
}

// SpeedMPS returns the agent's speed in metres per second.
func (a *Agent) SpeedMPS() float64 {
	return a.SpeedKPH / 3.6
}

// Edge returns the directed edge the agent is on. ok is false once the agent
// has reached the end of its route.
func (a *Agent) Edge() (from, to network.NodeID, ok bool) {
	if a.RouteIndex+1 >= len(a.Route) {
		return 0, 0, false
	}
	return a.Route[a.RouteIndex], a.Route[a.RouteIndex+1], true
}

// Target returns the final node of the route.
func (a *Agent) Target() network.NodeID {
	if len(a.Route) == 0 {
		return a.Position
	}
	return a.Route[len(a.Route)-1]
}

// RemainingOnEdge returns the distance left to the next node of the route.
func (a *Agent) RemainingOnEdge(g *network.Graph) float64 {
	from, to, ok := a.Edge()
	if !ok {
		return 0
	}
	length, _ := g.EdgeLength(from, to)
	return length - a.DistanceAlongEdge
}
