// Package network provides the read-only road graph the simulation runs on:
// nodes with WGS84 coordinates, undirected weighted edges and the target
// (safe) node set.
package network

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"
)

// NodeID identifies a node. IDs are opaque and stable for the whole run.
type NodeID int64

// Node is a point of the road network.
type Node struct {
	ID     NodeID    `json:"id"`
	Point  orb.Point `json:"point"` // lon, lat
	Target bool      `json:"target,omitempty"`
}

// Edge is an undirected road segment between two nodes.
type Edge struct {
	From   NodeID  `json:"from"`
	To     NodeID  `json:"to"`
	Length float64 `json:"length"` // metres
	Tag    string  `json:"tag,omitempty"`
}

func (e Edge) String() string {
	return fmt.Sprintf("%d-%d(%.1fm)", e.From, e.To, e.Length)
}

// edgeKey is the canonical (unordered) key of an undirected edge.
type edgeKey struct {
	a, b NodeID
}

func keyOf(u, v NodeID) edgeKey {
	if u > v {
		u, v = v, u
	}
	return edgeKey{a: u, b: v}
}

// Sentinel errors returned by Graph.
var (
	ErrDuplicateNode = errors.New("network: duplicate node")
	ErrUnknownNode   = errors.New("network: unknown node")
	ErrDuplicateEdge = errors.New("network: duplicate or self-loop edge")
	ErrBadLength     = errors.New("network: edge length must be a non-negative number")
	ErrNoTargets     = errors.New("network: target set is empty")
	ErrEmptyGraph    = errors.New("network: graph has no nodes")
)

// Road tags used by the synthetic generator.
const (
	TagPrimary     = "primary"
	TagResidential = "residential"
	TagFootway     = "footway"
)
