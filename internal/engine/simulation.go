// Simulation ties the road network and the agents together and advances
// them each tick.
package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/talgya/evacsim/internal/agents"
	"github.com/talgya/evacsim/internal/network"
)

// DefaultTickDuration is the simulated time one tick covers.
const DefaultTickDuration = 10 * time.Second

// TickStats is the aggregate state after one tick.
type TickStats struct {
	Tick      uint64  `json:"tick" db:"tick"`
	Evacuated int     `json:"evacuated" db:"evacuated"`
	Stranded  int     `json:"stranded" db:"stranded"`
	Moving    int     `json:"moving" db:"moving"`
	Blocked   int     `json:"blocked" db:"blocked"`
	Lanes     int     `json:"lanes" db:"lanes"`         // occupied lanes when the tick started
	Travelled float64 `json:"travelled" db:"travelled"` // metres, all agents
}

// AgentState is one agent's position after a tick.
type AgentState struct {
	Tick              uint64         `json:"tick" db:"tick"`
	AgentID           agents.AgentID `json:"agent_id" db:"agent_id"`
	Position          network.NodeID `json:"position" db:"position"`
	RouteIndex        int            `json:"route_index" db:"route_index"`
	DistanceAlongEdge float64        `json:"distance_along_edge" db:"distance_along_edge"`
	Lon               float64        `json:"lon" db:"lon"`
	Lat               float64        `json:"lat" db:"lat"`
	RoadTag           string         `json:"road_tag" db:"road_tag"`
	InCar             bool           `json:"in_car" db:"in_car"`
	Evacuated         bool           `json:"evacuated" db:"evacuated"`
	Stranded          bool           `json:"stranded" db:"stranded"`
	RerouteCount      int            `json:"reroute_count" db:"reroute_count"`
}

// Recorder receives the result of every tick, e.g. to persist it.
type Recorder interface {
	Record(stats TickStats, states []AgentState) error
}

// Simulation holds the complete run state. It is safe for concurrent
// readers while the engine goroutine steps it.
type Simulation struct {
	mu sync.RWMutex

	Graph        *network.Graph
	Agents       []*agents.Agent
	AgentIndex   map[agents.AgentID]*agents.Agent
	TickDuration time.Duration
	History      []TickStats
	LastTick     uint64 // Most recent tick processed

	// Recorder, if set, is handed the stats of every tick and, every
	// RecordAgentsEvery ticks, the state of every agent.
	Recorder          Recorder
	RecordAgentsEvery uint64
}

// NewSimulation creates a Simulation over placed agents.
func NewSimulation(g *network.Graph, ag []*agents.Agent, tickDuration time.Duration) *Simulation {
	if tickDuration <= 0 {
		tickDuration = DefaultTickDuration
	}
	return &Simulation{
		Graph:        g,
		Agents:       ag,
		AgentIndex:   lo.KeyBy(ag, func(a *agents.Agent) agents.AgentID { return a.ID }),
		TickDuration: tickDuration,
	}
}

// Step advances every agent by one tick. Congestion is resolved against the
// positions all agents held before the tick started, so the outcome does not
// depend on the order of s.Agents. The returned error comes from the
// Recorder only; the agents have moved either way.
func (s *Simulation) Step(tick uint64) (TickStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := agents.BuildEdgeIndex(s.Agents)
	stats := TickStats{Tick: tick, Lanes: idx.Lanes()}
	for _, a := range s.Agents {
		if a.Evacuated {
			continue
		}
		st := agents.Advance(a, s.Graph, idx, s.TickDuration)
		stats.Travelled += st.Travelled
		if st.Blocked {
			stats.Blocked++
		}
	}
	s.count(&stats)

	s.LastTick = tick
	s.History = append(s.History, stats)

	if s.Recorder == nil {
		return stats, nil
	}
	var states []AgentState
	if s.RecordAgentsEvery > 0 && tick%s.RecordAgentsEvery == 0 {
		states = s.states(tick)
	}
	if err := s.Recorder.Record(stats, states); err != nil {
		return stats, fmt.Errorf("recording tick %d: %w", tick, err)
	}
	return stats, nil
}

// count fills in the population counters of stats.
func (s *Simulation) count(stats *TickStats) {
	stats.Evacuated = lo.CountBy(s.Agents, func(a *agents.Agent) bool { return a.Evacuated })
	stats.Stranded = lo.CountBy(s.Agents, func(a *agents.Agent) bool { return a.Stranded })
	stats.Moving = len(s.Agents) - stats.Evacuated - stats.Stranded - stats.Blocked
}

func (s *Simulation) states(tick uint64) []AgentState {
	return lo.Map(s.Agents, func(a *agents.Agent, _ int) AgentState {
		return AgentState{
			Tick:              tick,
			AgentID:           a.ID,
			Position:          a.Position,
			RouteIndex:        a.RouteIndex,
			DistanceAlongEdge: a.DistanceAlongEdge,
			Lon:               a.Point.Lon(),
			Lat:               a.Point.Lat(),
			RoadTag:           a.RoadTag,
			InCar:             a.InCar,
			Evacuated:         a.Evacuated,
			Stranded:          a.Stranded,
			RerouteCount:      a.RerouteCount,
		}
	})
}

// CurrentTick returns the most recently processed tick number.
func (s *Simulation) CurrentTick() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.LastTick
}

// Done reports whether every agent has evacuated or is stranded.
func (s *Simulation) Done() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lo.EveryBy(s.Agents, func(a *agents.Agent) bool { return a.Evacuated || a.Stranded })
}

// Stats returns the counters of the latest tick, or the initial counts when
// no tick has run yet.
func (s *Simulation) Stats() TickStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n := len(s.History); n > 0 {
		return s.History[n-1]
	}
	var stats TickStats
	s.count(&stats)
	return stats
}

// HistorySince returns the stats of every tick after tick.
func (s *Simulation) HistorySince(tick uint64) []TickStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := lo.Filter(s.History, func(t TickStats, _ int) bool { return t.Tick > tick })
	return out
}

// AgentSnapshot returns copies of all agents, safe to use after the lock is
// released.
func (s *Simulation) AgentSnapshot() []agents.Agent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lo.Map(s.Agents, func(a *agents.Agent, _ int) agents.Agent { return *a })
}

// Agent returns a copy of one agent.
func (s *Simulation) Agent(id agents.AgentID) (agents.Agent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.AgentIndex[id]
	if !ok {
		return agents.Agent{}, false
	}
	return *a, true
}

// ElapsedTime returns the simulated time since the alert.
func (s *Simulation) ElapsedTime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return time.Duration(s.LastTick) * s.TickDuration
}
