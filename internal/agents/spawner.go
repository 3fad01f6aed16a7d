// Agent spawning: draws the population's categories and buildings, resolves
// where each person is at the time of the alert, and places them on the road
// network with a route to the nearest safe point.
package agents

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/talgya/evacsim/internal/network"
	"github.com/talgya/evacsim/internal/routing"
	"github.com/talgya/evacsim/internal/schedule"
)

// Seed is a person before placement: who they are and where the schedule
// engine put them.
type Seed struct {
	Category   Category
	WalkingKPH float64 // 0 = category default
	Placement  schedule.Placement
}

// Spawner creates agents for the simulation.
type Spawner struct {
	graph   *network.Graph
	router  *routing.Router
	targets []network.NodeID
	rng     *rand.Rand
	nextID  AgentID

	// CarThreshold is the evacuation route length in metres above which an
	// agent drives. Agents already driving when the alert comes keep driving.
	CarThreshold float64
}

// NewSpawner creates a spawner that routes agents to the graph's targets.
// rng drives category and building draws.
func NewSpawner(g *network.Graph, r *routing.Router, rng *rand.Rand) *Spawner {
	return &Spawner{
		graph:        g,
		router:       r,
		targets:      g.Targets(),
		rng:          rng,
		nextID:       1,
		CarThreshold: schedule.DefaultCarThreshold,
	}
}

// SetNextID sets the next agent ID to be issued.
func (s *Spawner) SetNextID(id AgentID) {
	s.nextID = id
}

// Place turns a seed into an agent. The agent starts at the node it last
// passed when caught in transit, otherwise at the node nearest its point.
// Seeds that cannot reach any target return a *routing.NoPathError.
func (s *Spawner) Place(seed Seed) (*Agent, error) {
	start := seed.Placement.Node
	if !seed.Placement.InTransit {
		var err error
		start, err = s.graph.NearestNode(seed.Placement.Point)
		if err != nil {
			return nil, fmt.Errorf("placing agent: %w", err)
		}
	}

	route, err := s.router.Route(start, s.targets)
	if err != nil {
		return nil, fmt.Errorf("placing agent at node %d: %w", start, err)
	}

	walk := seed.WalkingKPH
	if walk <= 0 {
		walk = seed.Category.WalkingKPH()
	}
	inCar := seed.Placement.InCar || route.Distance > s.CarThreshold
	speed := walk
	if inCar {
		speed = VehicleSpeedKPH
	}

	id := s.nextID
	s.nextID++

	a := &Agent{
		ID:       id,
		Category: seed.Category,
		Position: start,
		Route:    route.Path,
		Point:    s.graph.Point(start),
		SpeedKPH: speed,
		InCar:    inCar,
		Activity: seed.Placement.Activity,
	}
	if len(route.Path) <= 1 {
		a.Evacuated = true
	} else {
		a.RoadTag = s.graph.EdgeTag(route.Path[0], route.Path[1])
	}
	return a, nil
}

// PlaceAll places every seed. With excludeUnroutable set, seeds that cannot
// reach a target are logged and dropped; otherwise the first one aborts.
func (s *Spawner) PlaceAll(seeds []Seed, excludeUnroutable bool) ([]*Agent, error) {
	agents := make([]*Agent, 0, len(seeds))
	excluded := 0
	for i, seed := range seeds {
		a, err := s.Place(seed)
		if err != nil {
			var np *routing.NoPathError
			if excludeUnroutable && errors.As(err, &np) {
				slog.Warn("excluding unroutable agent", "seed", i, "from", np.From)
				excluded++
				continue
			}
			return nil, fmt.Errorf("seed %d: %w", i, err)
		}
		agents = append(agents, a)
	}
	if excluded > 0 {
		slog.Info("agents placed", "placed", len(agents), "excluded", excluded)
	}
	return agents, nil
}

// Population draws n people, assigns each a set of buildings and resolves
// their position at time of day at with the planner. schedRng drives the
// schedule traversals so they stay reproducible whatever n is.
func (s *Spawner) Population(n int, at time.Duration, planner *schedule.Planner, b *network.Buildings, schedRng *rand.Rand) ([]Seed, error) {
	seeds := make([]Seed, 0, n)
	for i := 0; i < n; i++ {
		cat := s.categoryForAge(s.weightedAge())
		places, err := s.places(b)
		if err != nil {
			return nil, err
		}
		pl, err := planner.PositionAt(cat.Schedule(), at, places, cat.WalkingKPH(), schedRng)
		if err != nil {
			return nil, fmt.Errorf("person %d: %w", i, err)
		}
		seeds = append(seeds, Seed{Category: cat, Placement: pl})
	}
	return seeds, nil
}

func (s *Spawner) weightedAge() int {
	// Bell curve centered around 38, range 0–95.
	age := 38.0 + s.rng.NormFloat64()*20.0
	if age < 0 {
		age = 0
	}
	if age > 95 {
		age = 95
	}
	return int(age)
}

func (s *Spawner) categoryForAge(age int) Category {
	switch {
	case age < 16:
		return CategoryChild
	case age >= 65:
		return CategoryRetiredAdult
	default:
		return CategoryWorkingAdult
	}
}

// placeZones maps each place kind to the land use its buildings are drawn from.
var placeZones = [schedule.NumPlaces]network.Zone{
	schedule.PlaceHome:        network.ZoneResidential,
	schedule.PlaceWork:        network.ZoneCommercial,
	schedule.PlaceSchool:      network.ZoneSchool,
	schedule.PlaceSupermarket: network.ZoneCommercial,
	schedule.PlaceShop:        network.ZoneCommercial,
	schedule.PlaceRecreation:  network.ZoneCommercial,
}

func (s *Spawner) places(b *network.Buildings) (schedule.Places, error) {
	out := make(schedule.Places, schedule.NumPlaces)
	for p, z := range placeZones {
		poly, ok := b.Pick(z, s.rng)
		if !ok {
			return nil, fmt.Errorf("no %s buildings for %s", network.ZoneName(z), schedule.PlaceName(schedule.Place(p)))
		}
		out[schedule.Place(p)] = poly
	}
	return out, nil
}
