package network

import (
	"fmt"
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// Graph holds the road network. It is built once before a run and treated as
// immutable afterwards, so it is shared without locking.
type Graph struct {
	g       *simple.WeightedUndirectedGraph
	nodes   map[NodeID]Node
	order   []NodeID // insertion order
	tags    map[edgeKey]string
	targets []NodeID
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		g:     simple.NewWeightedUndirectedGraph(0, math.Inf(1)),
		nodes: make(map[NodeID]Node),
		tags:  make(map[edgeKey]string),
	}
}

// AddNode inserts a node. A node flagged Target joins the target set.
func (g *Graph) AddNode(n Node) error {
	if _, ok := g.nodes[n.ID]; ok {
		return fmt.Errorf("%w: %d", ErrDuplicateNode, n.ID)
	}
	g.g.AddNode(simple.Node(n.ID))
	g.nodes[n.ID] = n
	g.order = append(g.order, n.ID)
	if n.Target {
		g.targets = append(g.targets, n.ID)
	}
	return nil
}

// AddEdge inserts an undirected edge between two existing nodes.
// Zero-length edges are allowed; parallel edges and self loops are not.
func (g *Graph) AddEdge(e Edge) error {
	if _, ok := g.nodes[e.From]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownNode, e.From)
	}
	if _, ok := g.nodes[e.To]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownNode, e.To)
	}
	if e.From == e.To || g.g.HasEdgeBetween(int64(e.From), int64(e.To)) {
		return fmt.Errorf("%w: %s", ErrDuplicateEdge, e)
	}
	if e.Length < 0 || math.IsNaN(e.Length) || math.IsInf(e.Length, 0) {
		return fmt.Errorf("%w: %s", ErrBadLength, e)
	}
	g.g.SetWeightedEdge(g.g.NewWeightedEdge(simple.Node(e.From), simple.Node(e.To), e.Length))
	if e.Tag != "" {
		g.tags[keyOf(e.From, e.To)] = e.Tag
	}
	return nil
}

// Node returns the node with the given ID.
func (g *Graph) Node(id NodeID) (Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// HasNode reports whether id is part of the graph.
func (g *Graph) HasNode(id NodeID) bool {
	_, ok := g.nodes[id]
	return ok
}

// Nodes returns every node ID in insertion order.
func (g *Graph) Nodes() []NodeID {
	out := make([]NodeID, len(g.order))
	copy(out, g.order)
	return out
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.order)
}

// EdgeCount returns the number of undirected edges.
func (g *Graph) EdgeCount() int {
	return g.g.Edges().Len()
}

// Point returns the coordinate of a node, or the zero point when unknown.
func (g *Graph) Point(id NodeID) orb.Point {
	return g.nodes[id].Point
}

// EdgeLength returns the length of the edge u-v in metres.
func (g *Graph) EdgeLength(u, v NodeID) (float64, bool) {
	if u == v {
		return 0, false
	}
	e := g.g.WeightedEdge(int64(u), int64(v))
	if e == nil {
		return 0, false
	}
	return e.Weight(), true
}

// EdgeTag returns the reporting tag of the edge u-v ("" if untagged).
func (g *Graph) EdgeTag(u, v NodeID) string {
	return g.tags[keyOf(u, v)]
}

// Neighbors returns the IDs adjacent to id in ascending order, so traversals
// built on top of it are deterministic.
func (g *Graph) Neighbors(id NodeID) []NodeID {
	if !g.HasNode(id) {
		return nil
	}
	it := g.g.From(int64(id))
	out := make([]NodeID, 0, it.Len())
	for it.Next() {
		out = append(out, NodeID(it.Node().ID()))
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// MarkTarget adds an existing node to the target set. Marking twice is a no-op.
func (g *Graph) MarkTarget(id NodeID) error {
	n, ok := g.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownNode, id)
	}
	if !n.Target {
		g.markTarget(n)
	}
	return nil
}

// markTarget flags a stored node that is not yet a target.
func (g *Graph) markTarget(n Node) {
	n.Target = true
	g.nodes[n.ID] = n
	g.targets = append(g.targets, n.ID)
}

// Targets returns the target set in the order nodes were marked. That order
// is the router's tie-break order.
func (g *Graph) Targets() []NodeID {
	out := make([]NodeID, len(g.targets))
	copy(out, g.targets)
	return out
}

// NearestNode returns the node closest to p by great-circle distance. Ties go
// to the node inserted first.
func (g *Graph) NearestNode(p orb.Point) (NodeID, error) {
	if len(g.order) == 0 {
		return 0, ErrEmptyGraph
	}
	best := g.order[0]
	bestDist := math.Inf(1)
	for _, id := range g.order {
		d := geo.Distance(p, g.nodes[id].Point)
		if d < bestDist {
			best, bestDist = id, d
		}
	}
	return best, nil
}

// Validate checks the preconditions of a run: a non-empty target set.
func (g *Graph) Validate() error {
	if len(g.order) == 0 {
		return ErrEmptyGraph
	}
	if len(g.targets) == 0 {
		return ErrNoTargets
	}
	return nil
}

// Components returns the connected components of the network, each sorted
// ascending and the list ordered by its smallest ID.
func (g *Graph) Components() [][]NodeID {
	cc := topo.ConnectedComponents(g.g)
	out := make([][]NodeID, 0, len(cc))
	for _, c := range cc {
		ids := make([]NodeID, 0, len(c))
		for _, n := range c {
			ids = append(ids, NodeID(n.ID()))
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		out = append(out, ids)
	}
	sort.Slice(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out
}

// Reachable reports whether a path exists between two nodes.
func (g *Graph) Reachable(from, to NodeID) bool {
	if !g.HasNode(from) || !g.HasNode(to) {
		return false
	}
	return topo.PathExistsIn(g.g, simple.Node(from), simple.Node(to))
}

// Weighted exposes the underlying gonum graph for read-only algorithms.
func (g *Graph) Weighted() *simple.WeightedUndirectedGraph {
	return g.g
}

// Interpolate returns the point frac of the way from a to b.
func Interpolate(a, b orb.Point, frac float64) orb.Point {
	return orb.Point{
		a[0] + (b[0]-a[0])*frac,
		a[1] + (b[1]-a[1])*frac,
	}
}

// String returns a summary of the graph.
func (g *Graph) String() string {
	return fmt.Sprintf("Graph(nodes=%d, edges=%d, targets=%d)", g.Len(), g.EdgeCount(), len(g.targets))
}
