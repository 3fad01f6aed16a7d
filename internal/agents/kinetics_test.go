package agents

import (
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/evacsim/internal/network"
)

const tick = 10 * time.Second

// walkStep is how far a 5 km/h walker gets in one tick.
const walkStep = 5.0 / 3.6 * 10

// straightRoad builds nodes 1..n along the equator joined by 100 m edges.
func straightRoad(t *testing.T, n int) *network.Graph {
	t.Helper()
	g := network.NewGraph()
	for i := 1; i <= n; i++ {
		require.NoError(t, g.AddNode(network.Node{ID: network.NodeID(i), Point: orb.Point{0.001 * float64(i-1), 0}}))
	}
	for i := 1; i < n; i++ {
		require.NoError(t, g.AddEdge(network.Edge{From: network.NodeID(i), To: network.NodeID(i + 1), Length: 100, Tag: network.TagResidential}))
	}
	return g
}

func walker(id AgentID, at float64, route ...network.NodeID) *Agent {
	return &Agent{
		ID:                id,
		Category:          CategoryWorkingAdult,
		Position:          route[0],
		Route:             route,
		DistanceAlongEdge: at,
		SpeedKPH:          5,
	}
}

func TestAdvanceFreeFlow(t *testing.T) {
	g := straightRoad(t, 3)
	a := walker(1, 0, 1, 2, 3)

	st := Advance(a, g, nil, tick)

	assert.InDelta(t, 13.89, a.DistanceAlongEdge, 0.01)
	assert.InDelta(t, walkStep, st.Travelled, 1e-9)
	assert.Equal(t, 0, a.RouteIndex)
	assert.False(t, st.Blocked)
	assert.InDelta(t, 0.001*a.DistanceAlongEdge/100, a.Point.Lon(), 1e-12)
}

func TestAdvanceQueuesOneMetreBehind(t *testing.T) {
	g := straightRoad(t, 3)
	a := walker(1, 50, 1, 2, 3)
	b := walker(2, 55, 1, 2, 3)
	idx := BuildEdgeIndex([]*Agent{a, b})

	st := Advance(a, g, idx, tick)

	assert.InDelta(t, 54.0, a.DistanceAlongEdge, 1e-9)
	assert.InDelta(t, 4.0, st.Travelled, 1e-9)
	assert.True(t, st.Blocked)
}

func TestAdvanceBlockerAlreadyWithinGap(t *testing.T) {
	g := straightRoad(t, 3)
	a := walker(1, 50, 1, 2, 3)
	b := walker(2, 50.5, 1, 2, 3)
	idx := BuildEdgeIndex([]*Agent{a, b})

	st := Advance(a, g, idx, tick)

	assert.InDelta(t, 50.0, a.DistanceAlongEdge, 1e-9)
	assert.Zero(t, st.Travelled)
	assert.True(t, st.Blocked)
}

func TestAdvanceIgnoresAgentsBehindAndLevel(t *testing.T) {
	g := straightRoad(t, 3)
	a := walker(1, 50, 1, 2, 3)
	behind := walker(2, 40, 1, 2, 3)
	level := walker(3, 50, 1, 2, 3)
	idx := BuildEdgeIndex([]*Agent{a, behind, level})

	st := Advance(a, g, idx, tick)

	assert.InDelta(t, 50+walkStep, a.DistanceAlongEdge, 1e-9)
	assert.False(t, st.Blocked)
}

func TestAdvanceIgnoresAgentsOutOfReach(t *testing.T) {
	g := straightRoad(t, 3)
	a := walker(1, 50, 1, 2, 3)
	far := walker(2, 80, 1, 2, 3)
	idx := BuildEdgeIndex([]*Agent{a, far})

	Advance(a, g, idx, tick)

	assert.InDelta(t, 50+walkStep, a.DistanceAlongEdge, 1e-9)
}

func TestAdvanceModesDoNotBlockEachOther(t *testing.T) {
	g := straightRoad(t, 3)
	a := walker(1, 50, 1, 2, 3)
	car := walker(2, 55, 1, 2, 3)
	car.InCar = true
	idx := BuildEdgeIndex([]*Agent{a, car})

	st := Advance(a, g, idx, tick)

	assert.InDelta(t, 50+walkStep, a.DistanceAlongEdge, 1e-9)
	assert.False(t, st.Blocked)
}

func TestAdvanceOppositeDirectionDoesNotBlock(t *testing.T) {
	g := straightRoad(t, 3)
	a := walker(1, 50, 1, 2, 3)
	oncoming := walker(2, 55, 2, 1)
	idx := BuildEdgeIndex([]*Agent{a, oncoming})

	Advance(a, g, idx, tick)

	assert.InDelta(t, 50+walkStep, a.DistanceAlongEdge, 1e-9)
}

func TestAdvanceCrossesNode(t *testing.T) {
	g := straightRoad(t, 4)
	a := walker(1, 95, 1, 2, 3, 4)

	st := Advance(a, g, nil, tick)

	assert.Equal(t, 1, a.RouteIndex)
	assert.Equal(t, network.NodeID(2), a.Position)
	assert.Equal(t, 1, st.EdgesCrossed)
	assert.InDelta(t, walkStep-5, a.DistanceAlongEdge, 1e-9)
	assert.InDelta(t, walkStep, st.Travelled, 1e-9)
	assert.Equal(t, network.TagResidential, a.RoadTag)
}

func TestAdvanceCrossesSeveralNodes(t *testing.T) {
	g := straightRoad(t, 6)
	a := walker(1, 50, 1, 2, 3, 4, 5, 6)
	a.SpeedKPH = 72 // 200 m per tick

	st := Advance(a, g, nil, tick)

	assert.Equal(t, 2, st.EdgesCrossed)
	assert.Equal(t, network.NodeID(3), a.Position)
	assert.InDelta(t, 50, a.DistanceAlongEdge, 1e-9)
	assert.InDelta(t, 200, st.Travelled, 1e-9)
}

func TestAdvanceBlockedOnNextEdge(t *testing.T) {
	g := straightRoad(t, 3)
	a := walker(1, 95, 1, 2, 3)
	b := walker(2, 3, 2, 3)
	idx := BuildEdgeIndex([]*Agent{a, b})

	st := Advance(a, g, idx, tick)

	assert.Equal(t, 1, a.RouteIndex)
	assert.InDelta(t, 2.0, a.DistanceAlongEdge, 1e-9)
	assert.InDelta(t, 7.0, st.Travelled, 1e-9)
	assert.True(t, st.Blocked)
}

func TestAdvanceReachesTarget(t *testing.T) {
	g := straightRoad(t, 2)
	a := walker(1, 95, 1, 2)

	st := Advance(a, g, nil, tick)

	assert.True(t, a.Evacuated)
	assert.True(t, st.Evacuated)
	assert.Equal(t, network.NodeID(2), a.Position)
	assert.Equal(t, 1, a.RouteIndex)
	assert.Zero(t, a.DistanceAlongEdge)
	assert.Equal(t, g.Point(2), a.Point)
	assert.InDelta(t, 5.0, st.Travelled, 1e-9)

	// Evacuation is terminal.
	before := *a
	st = Advance(a, g, nil, tick)
	assert.Equal(t, Step{}, st)
	assert.Equal(t, before, *a)
}

func TestAdvanceSingleNodeRoute(t *testing.T) {
	g := straightRoad(t, 2)
	a := walker(1, 0, 2)

	st := Advance(a, g, nil, tick)

	assert.True(t, a.Evacuated)
	assert.True(t, st.Evacuated)
	assert.Zero(t, st.Travelled)
}

func TestAdvanceZeroTickIsIdempotent(t *testing.T) {
	g := straightRoad(t, 3)
	a := walker(1, 42, 1, 2, 3)
	Advance(a, g, nil, 0)
	Advance(a, g, nil, 0)
	assert.InDelta(t, 42.0, a.DistanceAlongEdge, 1e-9)
	assert.Equal(t, 0, a.RouteIndex)
}

func TestAdvanceZeroLengthEdge(t *testing.T) {
	g := network.NewGraph()
	require.NoError(t, g.AddNode(network.Node{ID: 1, Point: orb.Point{0, 0}}))
	require.NoError(t, g.AddNode(network.Node{ID: 2, Point: orb.Point{0, 0}}))
	require.NoError(t, g.AddNode(network.Node{ID: 3, Point: orb.Point{0.001, 0}}))
	require.NoError(t, g.AddEdge(network.Edge{From: 1, To: 2, Length: 0}))
	require.NoError(t, g.AddEdge(network.Edge{From: 2, To: 3, Length: 100}))

	a := walker(1, 0, 1, 2, 3)
	assert.Equal(t, g.Point(1), locate(a, g))

	st := Advance(a, g, nil, tick)
	assert.Equal(t, 1, st.EdgesCrossed)
	assert.InDelta(t, walkStep, a.DistanceAlongEdge, 1e-9)
}

func TestAdvanceNeverOvertakes(t *testing.T) {
	g := straightRoad(t, 4)
	// A fast walker stuck behind a slow one must stay behind it.
	slow := walker(1, 20, 1, 2, 3, 4)
	slow.SpeedKPH = 1
	fast := walker(2, 10, 1, 2, 3, 4)
	fast.SpeedKPH = 20
	all := []*Agent{fast, slow}

	for i := 0; i < 100; i++ {
		idx := BuildEdgeIndex(all)
		for _, a := range all {
			Advance(a, g, idx, tick)
		}
		if slow.Evacuated {
			break
		}
		fastAt := float64(fast.RouteIndex)*100 + fast.DistanceAlongEdge
		slowAt := float64(slow.RouteIndex)*100 + slow.DistanceAlongEdge
		require.LessOrEqual(t, fastAt, slowAt, "tick %d", i)
	}
}

func TestAdvanceConservesDistance(t *testing.T) {
	g := straightRoad(t, 5)
	a := walker(1, 0, 1, 2, 3, 4, 5)
	a.SpeedKPH = 40

	total := 0.0
	for !a.Evacuated {
		total += Advance(a, g, nil, tick).Travelled
	}
	assert.InDelta(t, 400.0, total, 1e-6)
}

func TestEdgeIndex(t *testing.T) {
	a := walker(1, 30, 1, 2)
	b := walker(2, 10, 1, 2)
	done := walker(3, 60, 1, 2)
	done.Evacuated = true
	idx := BuildEdgeIndex([]*Agent{a, b, done})

	assert.Equal(t, 1, idx.Lanes())
	car := walker(4, 5, 1, 2)
	car.InCar = true
	assert.Equal(t, 2, BuildEdgeIndex([]*Agent{a, b, car}).Lanes())

	d, ok := idx.Blocker(1, 2, false, 10, 50)
	require.True(t, ok)
	assert.Equal(t, 30.0, d)

	_, ok = idx.Blocker(1, 2, false, 30, 50)
	assert.False(t, ok, "evacuated agents are not in the index")

	var nilIdx *EdgeIndex
	_, ok = nilIdx.Blocker(1, 2, false, 0, 100)
	assert.False(t, ok)
}
