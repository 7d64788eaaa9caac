// Package pathfinding plans grid routes for players and decides whether a
// position is free to occupy.
package pathfinding

import (
	"container/heap"
	"math"

	"aitown/internal/domain/geometry"
)

type BlockedFunc func(p geometry.Point) bool

type Request struct {
	Start       geometry.Point
	Facing      geometry.Vector
	Now         int64
	Destination geometry.Point
	// Speed is in tiles per second.
	Speed   float64
	Blocked BlockedFunc
}

// Route is a dense, time-stamped path. NewDestination is set when the
// requested destination was unreachable and the route ends at the closest
// reachable point instead.
type Route struct {
	Path           geometry.Path
	NewDestination *geometry.Point
}

type candidate struct {
	position geometry.Point
	facing   geometry.Vector
	t        int64
	length   float64
	cost     float64
	prev     *candidate
	seq      int
}

type step struct {
	position geometry.Point
	facing   geometry.Vector
}

// FindRoute searches the grid ordered by travelled length plus remaining
// manhattan distance. It returns ok=false only when no movement at all is
// possible from the start.
func FindRoute(req Request) (Route, bool) {
	speed := req.Speed
	if speed <= 0 {
		speed = 1
	}
	minDistances := map[geometry.Point]*candidate{}
	queue := &candidateQueue{}
	seq := 0

	explore := func(current *candidate) {
		for _, n := range neighbors(current.position) {
			if req.Blocked != nil && req.Blocked(n.position) {
				continue
			}
			segment := geometry.Distance(current.position, n.position)
			length := current.length + segment
			remaining := geometry.Manhattan(n.position, req.Destination)
			next := &candidate{
				position: n.position,
				facing:   n.facing,
				t:        current.t + int64(math.Round(segment/speed*1000)),
				length:   length,
				cost:     length + remaining,
				prev:     current,
			}
			if existing, ok := minDistances[n.position]; ok && existing.cost <= next.cost {
				continue
			}
			seq++
			next.seq = seq
			minDistances[n.position] = next
			heap.Push(queue, next)
		}
	}

	current := &candidate{
		position: req.Start,
		facing:   req.Facing,
		t:        req.Now,
		cost:     geometry.Manhattan(req.Start, req.Destination),
	}
	best := current
	for current != nil {
		if geometry.PointsEqual(current.position, req.Destination) {
			break
		}
		if geometry.Manhattan(current.position, req.Destination) < geometry.Manhattan(best.position, req.Destination) {
			best = current
		}
		explore(current)
		if queue.Len() == 0 {
			current = nil
			break
		}
		current = heap.Pop(queue).(*candidate)
	}

	var route Route
	if current == nil {
		if best.length == 0 {
			return Route{}, false
		}
		current = best
		dest := current.position
		route.NewDestination = &dest
	}

	var dense geometry.Path
	facing := current.facing
	for c := current; c != nil; c = c.prev {
		dense = append(dense, geometry.PathComponent{Position: c.position, Facing: facing, T: c.t})
		facing = c.facing
	}
	for i, j := 0, len(dense)-1; i < j; i, j = i+1, j-1 {
		dense[i], dense[j] = dense[j], dense[i]
	}
	route.Path = dense
	return route, true
}

// neighbors snaps a fractional coordinate to the adjacent grid lines first;
// grid points expand to their four axis neighbors.
func neighbors(p geometry.Point) []step {
	fx := math.Floor(p.X)
	fy := math.Floor(p.Y)
	var out []step
	if p.X != fx {
		out = append(out,
			step{position: geometry.Point{X: fx, Y: p.Y}, facing: geometry.Vector{DX: -1}},
			step{position: geometry.Point{X: fx + 1, Y: p.Y}, facing: geometry.Vector{DX: 1}},
		)
	}
	if p.Y != fy {
		out = append(out,
			step{position: geometry.Point{X: p.X, Y: fy}, facing: geometry.Vector{DY: -1}},
			step{position: geometry.Point{X: p.X, Y: fy + 1}, facing: geometry.Vector{DY: 1}},
		)
	}
	if p.X == fx && p.Y == fy {
		out = append(out,
			step{position: geometry.Point{X: p.X + 1, Y: p.Y}, facing: geometry.Vector{DX: 1}},
			step{position: geometry.Point{X: p.X - 1, Y: p.Y}, facing: geometry.Vector{DX: -1}},
			step{position: geometry.Point{X: p.X, Y: p.Y + 1}, facing: geometry.Vector{DY: 1}},
			step{position: geometry.Point{X: p.X, Y: p.Y - 1}, facing: geometry.Vector{DY: -1}},
		)
	}
	return out
}

type candidateQueue []*candidate

func (q candidateQueue) Len() int { return len(q) }

func (q candidateQueue) Less(i, j int) bool {
	if q[i].cost != q[j].cost {
		return q[i].cost < q[j].cost
	}
	return q[i].seq < q[j].seq
}

func (q candidateQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *candidateQueue) Push(x any) { *q = append(*q, x.(*candidate)) }

func (q *candidateQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return item
}
