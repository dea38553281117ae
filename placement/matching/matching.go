// Package matching solves minimum-cost perfect matchings on complete
// bipartite graphs. The matching is computed as a min-cost flow: a source
// supplies one unit to every left node, every right node passes one unit
// to a sink, and every left/right arc has capacity one. Flow is pushed
// along successive shortest augmenting paths found with Dijkstra's
// algorithm on reduced costs.
package matching

import (
	"errors"
	"math"

	"github.com/emirpasic/gods/queues/priorityqueue"
)

var (
	// ErrNotSquare is returned when the cost matrix is not n x n
	ErrNotSquare = errors.New("cost matrix is not square")
	// ErrNoPerfectMatching is returned when forbidden pairs make
	// a perfect matching impossible
	ErrNoPerfectMatching = errors.New("no perfect matching exists")
)

// Forbidden returns the cost of a pair that must not be matched,
// which is positive infinity
func Forbidden() float64 {
	return math.Inf(1)
}

const (
	source = 0
	sink   = 1
)

// Matching is the result of a matching computation. Pairs[i]
// is the right node matched with left node i.
type Matching struct {
	Pairs []int
	Cost  float64
}

type arc struct {
	to       int
	rev      int
	capacity int
	cost     float64
	forward  bool
}

type network struct {
	arcs [][]arc
}

func newNetwork(nodes int) *network {
	return &network{arcs: make([][]arc, nodes)}
}

func (network *network) addArc(from, to int, capacity int, cost float64) {
	network.arcs[from] = append(network.arcs[from], arc{to: to, rev: len(network.arcs[to]), capacity: capacity, cost: cost, forward: true})
	network.arcs[to] = append(network.arcs[to], arc{to: from, rev: len(network.arcs[from]) - 1, capacity: 0, cost: -cost})
}

type queued struct {
	node     int
	distance float64
}

func byDistance(a, b interface{}) int {
	da := a.(queued).distance
	db := b.(queued).distance

	if da < db {
		return -1
	} else if da > db {
		return 1
	}

	return 0
}

// shortestPaths runs Dijkstra from the source over residual arcs using
// reduced costs. It returns the distances and, for every reached node,
// the node and arc index it was reached through.
func (network *network) shortestPaths(potential []float64) ([]float64, []int, []int) {
	nodes := len(network.arcs)
	distance := make([]float64, nodes)
	previousNode := make([]int, nodes)
	previousArc := make([]int, nodes)

	for i := range distance {
		distance[i] = math.Inf(1)
		previousNode[i] = -1
	}

	distance[source] = 0
	queue := priorityqueue.NewWith(byDistance)
	queue.Enqueue(queued{node: source, distance: 0})

	for !queue.Empty() {
		value, _ := queue.Dequeue()
		current := value.(queued)

		if current.distance > distance[current.node] {
			continue
		}

		for i, a := range network.arcs[current.node] {
			if a.capacity <= 0 {
				continue
			}

			reduced := a.cost + potential[current.node] - potential[a.to]

			// Rounding can leave reduced costs a hair below zero
			if reduced < 0 {
				reduced = 0
			}

			if next := current.distance + reduced; next < distance[a.to] {
				distance[a.to] = next
				previousNode[a.to] = current.node
				previousArc[a.to] = i
				queue.Enqueue(queued{node: a.to, distance: next})
			}
		}
	}

	return distance, previousNode, previousArc
}

// MinCostPerfectMatching returns the perfect matching between left node i
// and right node j with the smallest total cost[i][j]. Pairs whose cost is
// positive infinity, see Forbidden, are never matched.
func MinCostPerfectMatching(cost [][]float64) (Matching, error) {
	n := len(cost)

	for _, row := range cost {
		if len(row) != n {
			return Matching{}, ErrNotSquare
		}
	}

	left := func(i int) int { return 2 + i }
	right := func(j int) int { return 2 + n + j }

	network := newNetwork(2 + 2*n)

	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if math.IsInf(cost[i][j], 1) {
				continue
			}

			network.addArc(left(i), right(j), 1, cost[i][j])
		}
	}

	for i := 0; i < n; i++ {
		network.addArc(source, left(i), 1, 0)
	}

	for j := 0; j < n; j++ {
		network.addArc(right(j), sink, 1, 0)
	}

	potential := make([]float64, len(network.arcs))

	for flow := 0; flow < n; flow++ {
		distance, previousNode, previousArc := network.shortestPaths(potential)

		if math.IsInf(distance[sink], 1) {
			return Matching{}, ErrNoPerfectMatching
		}

		for node := range potential {
			if !math.IsInf(distance[node], 1) {
				potential[node] += distance[node]
			}
		}

		for node := sink; node != source; node = previousNode[node] {
			from := previousNode[node]
			a := &network.arcs[from][previousArc[node]]
			a.capacity--
			network.arcs[node][a.rev].capacity++
		}
	}

	matching := Matching{Pairs: make([]int, n)}

	for i := 0; i < n; i++ {
		for _, a := range network.arcs[left(i)] {
			if a.forward && a.capacity == 0 {
				j := a.to - 2 - n
				matching.Pairs[i] = j
				matching.Cost += cost[i][j]

				break
			}
		}
	}

	return matching, nil
}
