package pathfinding

import (
	"math"

	"aitown/internal/domain/geometry"
)

type Grid interface {
	Bounds() (width, height int)
	Impassable(x, y int) bool
}

type Reason string

const (
	NotBlocked   Reason = ""
	OutOfBounds  Reason = "out_of_bounds"
	WorldBlocked Reason = "world_blocked"
	Collision    Reason = "player_collision"
)

// Blocked reports why p cannot be occupied, or NotBlocked.
func Blocked(p geometry.Point, grid Grid, others []geometry.Point, threshold float64) Reason {
	if math.IsNaN(p.X) || math.IsNaN(p.Y) {
		return OutOfBounds
	}
	w, h := grid.Bounds()
	if p.X < 0 || p.Y < 0 || p.X >= float64(w) || p.Y >= float64(h) {
		return OutOfBounds
	}
	if grid.Impassable(int(math.Floor(p.X)), int(math.Floor(p.Y))) {
		return WorldBlocked
	}
	for _, o := range others {
		if geometry.Distance(o, p) < threshold {
			return Collision
		}
	}
	return NotBlocked
}
