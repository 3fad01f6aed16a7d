package agents

import (
	"sort"

	"github.com/talgya/evacsim/internal/network"
)

// lane is a directed edge as used by one movement mode. Walkers and cars do
// not block each other.
type lane struct {
	from, to network.NodeID
	inCar    bool
}

// EdgeIndex is a snapshot of where agents stand on each lane. It is built
// once at the start of a tick so every congestion check in that tick sees
// pre-tick positions, whatever order agents are advanced in.
type EdgeIndex struct {
	lanes map[lane][]float64 // ascending DistanceAlongEdge
}

// BuildEdgeIndex snapshots the positions of every agent still on the move.
func BuildEdgeIndex(all []*Agent) *EdgeIndex {
	ix := &EdgeIndex{lanes: make(map[lane][]float64)}
	for _, a := range all {
		if a.Evacuated {
			continue
		}
		from, to, ok := a.Edge()
		if !ok {
			continue
		}
		k := lane{from: from, to: to, inCar: a.InCar}
		ix.lanes[k] = append(ix.lanes[k], a.DistanceAlongEdge)
	}
	for _, ds := range ix.lanes {
		sort.Float64s(ds)
	}
	return ix
}

// Blocker returns the position of the nearest agent on the lane that is
// strictly ahead of offset after and less than within metres beyond it.
func (ix *EdgeIndex) Blocker(from, to network.NodeID, inCar bool, after, within float64) (float64, bool) {
	if ix == nil {
		return 0, false
	}
	ds := ix.lanes[lane{from: from, to: to, inCar: inCar}]
	i := sort.Search(len(ds), func(i int) bool { return ds[i] > after })
	if i < len(ds) && ds[i]-after < within {
		return ds[i], true
	}
	return 0, false
}

// Lanes returns the number of lanes holding at least one agent.
func (ix *EdgeIndex) Lanes() int {
	if ix == nil {
		return 0
	}
	return len(ix.lanes)
}
