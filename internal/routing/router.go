// Package routing finds shortest paths over the road network and picks the
// nearest safe target for an agent.
package routing

import (
	"errors"
	"fmt"
	"math"

	"github.com/talgya/evacsim/internal/network"
)

// Sentinel errors returned by the Router.
var (
	ErrUnknownNode = errors.New("routing: node not in graph")
	ErrNoTargets   = errors.New("routing: no targets given")
)

// NoPathError reports an origin that cannot reach any of the requested
// destinations. It is fatal for the placement of the agent concerned.
type NoPathError struct {
	From network.NodeID
	To   []network.NodeID
}

func (e *NoPathError) Error() string {
	if len(e.To) == 1 {
		return fmt.Sprintf("routing: no path from %d to %d", e.From, e.To[0])
	}
	return fmt.Sprintf("routing: no path from %d to any of %d targets", e.From, len(e.To))
}

// Route is a shortest path from an origin to a destination.
type Route struct {
	Target   network.NodeID   `json:"target"`
	Path     []network.NodeID `json:"path"`     // origin first, Target last
	Distance float64          `json:"distance"` // metres
}

// Router answers shortest-path queries over an immutable graph. It holds no
// mutable state and can be shared freely.
type Router struct {
	g *network.Graph
}

// NewRouter creates a router over g.
func NewRouter(g *network.Graph) *Router {
	return &Router{g: g}
}

// Route picks the target with the smallest shortest-path distance from
// origin and returns the path to it. When several targets tie, the first one
// in targets order wins.
func (r *Router) Route(origin network.NodeID, targets []network.NodeID) (Route, error) {
	if !r.g.HasNode(origin) {
		return Route{}, fmt.Errorf("%w: origin %d", ErrUnknownNode, origin)
	}
	if len(targets) == 0 {
		return Route{}, ErrNoTargets
	}

	tree := dijkstra(r.g, origin)

	best := -1
	bestDist := math.Inf(1)
	for i, t := range targets {
		if d := tree.distTo(t); d < bestDist {
			best, bestDist = i, d
		}
	}
	if best < 0 {
		to := make([]network.NodeID, len(targets))
		copy(to, targets)
		return Route{}, &NoPathError{From: origin, To: to}
	}

	target := targets[best]
	return Route{
		Target:   target,
		Path:     tree.pathTo(target),
		Distance: bestDist,
	}, nil
}

// Path returns the shortest path between two nodes.
func (r *Router) Path(from, to network.NodeID) (Route, error) {
	if !r.g.HasNode(to) {
		return Route{}, fmt.Errorf("%w: destination %d", ErrUnknownNode, to)
	}
	return r.Route(from, []network.NodeID{to})
}

// Distances returns the shortest-path distance from origin to every node it
// can reach.
func (r *Router) Distances(origin network.NodeID) (map[network.NodeID]float64, error) {
	if !r.g.HasNode(origin) {
		return nil, fmt.Errorf("%w: origin %d", ErrUnknownNode, origin)
	}
	tree := dijkstra(r.g, origin)
	out := make(map[network.NodeID]float64, len(tree.dist))
	for id, d := range tree.dist {
		out[id] = d
	}
	return out, nil
}

// Graph returns the graph the router runs on.
func (r *Router) Graph() *network.Graph {
	return r.g
}
