package routing

import (
	"container/heap"
	"math"

	"github.com/talgya/evacsim/internal/network"
)

// shortestTree is the result of a single-source Dijkstra run: best-known
// distance and predecessor for every reached node.
type shortestTree struct {
	source network.NodeID
	dist   map[network.NodeID]float64
	prev   map[network.NodeID]network.NodeID
}

// distTo returns the distance to id, +Inf when unreachable.
func (t *shortestTree) distTo(id network.NodeID) float64 {
	d, ok := t.dist[id]
	if !ok {
		return math.Inf(1)
	}
	return d
}

// pathTo rebuilds the node sequence source → id, or nil when unreachable.
func (t *shortestTree) pathTo(id network.NodeID) []network.NodeID {
	if _, ok := t.dist[id]; !ok {
		return nil
	}
	var rev []network.NodeID
	for cur := id; ; {
		rev = append(rev, cur)
		if cur == t.source {
			break
		}
		cur = t.prev[cur]
	}
	path := make([]network.NodeID, len(rev))
	for i, id := range rev {
		path[len(rev)-1-i] = id
	}
	return path
}

// dijkstra runs a lazy decrease-key Dijkstra from source over edge lengths.
// Neighbours are relaxed in ascending ID order and heap ties are broken by
// node ID, so equal-cost alternatives always resolve the same way.
func dijkstra(g *network.Graph, source network.NodeID) *shortestTree {
	t := &shortestTree{
		source: source,
		dist:   map[network.NodeID]float64{source: 0},
		prev:   make(map[network.NodeID]network.NodeID),
	}
	visited := make(map[network.NodeID]bool)

	pq := nodePQ{{id: source, dist: 0}}
	heap.Init(&pq)

	for pq.Len() > 0 {
		item := heap.Pop(&pq).(*nodeItem)
		u := item.id
		if visited[u] {
			continue // stale entry
		}
		visited[u] = true

		for _, v := range g.Neighbors(u) {
			if visited[v] {
				continue
			}
			w, _ := g.EdgeLength(u, v)
			nd := t.dist[u] + w
			if cur, ok := t.dist[v]; ok && nd >= cur {
				continue
			}
			t.dist[v] = nd
			t.prev[v] = u
			heap.Push(&pq, &nodeItem{id: v, dist: nd})
		}
	}
	return t
}

// nodeItem is a heap entry: a node and a candidate distance from the source.
type nodeItem struct {
	id   network.NodeID
	dist float64
}

// nodePQ is a min-heap of *nodeItem ordered by distance, then node ID.
type nodePQ []*nodeItem

func (pq nodePQ) Len() int { return len(pq) }

func (pq nodePQ) Less(i, j int) bool {
	if pq[i].dist != pq[j].dist {
		return pq[i].dist < pq[j].dist
	}
	return pq[i].id < pq[j].id
}

func (pq nodePQ) Swap(i, j int) { pq[i], pq[j] = pq[j], pq[i] }

func (pq *nodePQ) Push(x any) { *pq = append(*pq, x.(*nodeItem)) }

func (pq *nodePQ) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	*pq = old[:n-1]
	return item
}
