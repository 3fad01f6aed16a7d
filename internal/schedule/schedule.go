package schedule

import (
	"fmt"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// Schedule is a directed graph of daily activities. It is validated on
// construction, read-only afterwards and shared by every agent of a type.
type Schedule struct {
	name       string
	activities []Activity
	ids        map[string]int64
	g          *simple.WeightedDirectedGraph
	start      int64
}

// NewSchedule builds and validates a schedule graph.
func NewSchedule(name string, activities []Activity, transitions []Transition) (*Schedule, error) {
	s := &Schedule{
		name:       name,
		activities: make([]Activity, 0, len(activities)),
		ids:        make(map[string]int64, len(activities)),
		g:          simple.NewWeightedDirectedGraph(0, 0),
	}

	for _, a := range activities {
		if _, dup := s.ids[a.Name]; dup {
			return nil, fmt.Errorf("%s: %w: %q", name, ErrDuplicateActivity, a.Name)
		}
		if err := checkTiming(a.Timing); err != nil {
			return nil, fmt.Errorf("%s: activity %q: %w", name, a.Name, err)
		}
		id := int64(len(s.activities))
		s.ids[a.Name] = id
		s.activities = append(s.activities, a)
		s.g.AddNode(simple.Node(id))
	}

	for _, t := range transitions {
		from, ok := s.ids[t.From]
		if !ok {
			return nil, fmt.Errorf("%s: %w: %q", name, ErrUnknownActivity, t.From)
		}
		to, ok := s.ids[t.To]
		if !ok {
			return nil, fmt.Errorf("%s: %w: %q", name, ErrUnknownActivity, t.To)
		}
		if from == to || s.g.HasEdgeFromTo(from, to) {
			return nil, fmt.Errorf("%s: %w: %q -> %q", name, ErrBadTransition, t.From, t.To)
		}
		if !(t.P > 0) {
			return nil, fmt.Errorf("%s: %w: %q -> %q p=%v", name, ErrBadProbability, t.From, t.To, t.P)
		}
		s.g.SetWeightedEdge(s.g.NewWeightedEdge(simple.Node(from), simple.Node(to), t.P))
	}

	starts := 0
	for id := range s.activities {
		if s.g.To(int64(id)).Len() == 0 {
			s.start = int64(id)
			starts++
		}
	}
	if starts != 1 {
		return nil, fmt.Errorf("%s: %w (found %d)", name, ErrStartNode, starts)
	}

	// A day only moves forward; a cycle could keep a traversal at the same
	// time of day forever.
	if _, err := topo.Sort(s.g); err != nil {
		return nil, fmt.Errorf("%s: %w", name, ErrCyclicSchedule)
	}

	return s, nil
}

func checkTiming(t Timing) error {
	switch v := t.(type) {
	case LeaveAt:
		if v.Jitter < 0 {
			return ErrBadJitter
		}
	case Stay:
		if v.Jitter < 0 || v.Duration < 0 {
			return ErrBadJitter
		}
	default:
		return ErrNoTiming
	}
	return nil
}

// Name returns the schedule's name.
func (s *Schedule) Name() string {
	return s.name
}

// Start returns the day's first activity.
func (s *Schedule) Start() Activity {
	return s.activities[s.start]
}

// Activities returns every activity in declaration order.
func (s *Schedule) Activities() []Activity {
	out := make([]Activity, len(s.activities))
	copy(out, s.activities)
	return out
}

// Activity looks an activity up by name.
func (s *Schedule) Activity(name string) (Activity, bool) {
	id, ok := s.ids[name]
	if !ok {
		return Activity{}, false
	}
	return s.activities[id], true
}

// Next returns the transitions out of an activity in declaration order of
// their targets. A terminal activity has none.
func (s *Schedule) Next(name string) []Transition {
	id, ok := s.ids[name]
	if !ok {
		return nil
	}
	it := s.g.From(id)
	to := make([]int64, 0, it.Len())
	for it.Next() {
		to = append(to, it.Node().ID())
	}
	sort.Slice(to, func(i, j int) bool { return to[i] < to[j] })

	out := make([]Transition, 0, len(to))
	for _, v := range to {
		w, _ := s.g.Weight(id, v)
		out = append(out, Transition{From: name, To: s.activities[v].Name, P: w})
	}
	return out
}

// choose samples the activity following name, using transition weights as
// relative probabilities. ok is false for terminal activities.
func (s *Schedule) choose(name string, rng *rand.Rand) (Activity, bool) {
	next := s.Next(name)
	if len(next) == 0 {
		return Activity{}, false
	}
	total := 0.0
	for _, t := range next {
		total += t.P
	}
	r := rng.Float64() * total
	for _, t := range next {
		r -= t.P
		if r < 0 {
			a, _ := s.Activity(t.To)
			return a, true
		}
	}
	a, _ := s.Activity(next[len(next)-1].To)
	return a, true
}
