package geometry

import (
	"errors"
	"math"
)

var ErrShortPath = errors.New("path must have at least two components")

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Vector struct {
	DX float64 `json:"dx"`
	DY float64 `json:"dy"`
}

// PathComponent is one sample of a dense path: where the entity is at time T
// (simulated ms) and which way it faces while leaving that point.
type PathComponent struct {
	Position Point  `json:"position"`
	Facing   Vector `json:"facing"`
	T        int64  `json:"t"`
}

type Path []PathComponent

func Distance(a, b Point) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	return math.Sqrt(dx*dx + dy*dy)
}

func Manhattan(a, b Point) float64 {
	return math.Abs(a.X-b.X) + math.Abs(a.Y-b.Y)
}

func PointsEqual(a, b Point) bool {
	const epsilon = 0.0001
	return math.Abs(a.X-b.X) < epsilon && math.Abs(a.Y-b.Y) < epsilon
}

func Floor(p Point) Point {
	return Point{X: math.Floor(p.X), Y: math.Floor(p.Y)}
}

func Round(p Point) Point {
	return Point{X: math.Round(p.X), Y: math.Round(p.Y)}
}

func Midpoint(a, b Point) Point {
	return Point{X: (a.X + b.X) / 2, Y: (a.Y + b.Y) / 2}
}

func Subtract(to, from Point) Vector {
	return Vector{DX: to.X - from.X, DY: to.Y - from.Y}
}

func IsIntegral(p Point) bool {
	return p.X == math.Floor(p.X) && p.Y == math.Floor(p.Y)
}

// Normalize returns the unit vector of v. A zero-length vector has no
// direction and reports ok=false.
func Normalize(v Vector) (Vector, bool) {
	l := math.Sqrt(v.DX*v.DX + v.DY*v.DY)
	if l == 0 {
		return Vector{}, false
	}
	return Vector{DX: v.DX / l, DY: v.DY / l}, true
}

// Orientation is the angle of v in degrees, in [0, 360).
func Orientation(v Vector) float64 {
	deg := math.Atan2(v.DY, v.DX) * 180 / math.Pi
	if deg < 0 {
		deg += 360
	}
	return deg
}

// PathPosition interpolates the position along path at time t. Outside the
// path's time range the entity rests at the first or last point.
func PathPosition(path Path, t int64) (Point, Vector, float64, error) {
	if len(path) < 2 {
		return Point{}, Vector{}, 0, ErrShortPath
	}
	first := path[0]
	if t < first.T {
		return first.Position, first.Facing, 0, nil
	}
	last := path[len(path)-1]
	if last.T < t {
		return last.Position, last.Facing, 0, nil
	}
	for i := 0; i < len(path)-1; i++ {
		start := path[i]
		end := path[i+1]
		if start.T <= t && t <= end.T {
			span := end.T - start.T
			if span <= 0 {
				return end.Position, start.Facing, 0, nil
			}
			f := float64(t-start.T) / float64(span)
			pos := Point{
				X: start.Position.X + f*(end.Position.X-start.Position.X),
				Y: start.Position.Y + f*(end.Position.Y-start.Position.Y),
			}
			velocity := Distance(start.Position, end.Position) / float64(span)
			return pos, start.Facing, velocity, nil
		}
	}
	return last.Position, last.Facing, 0, nil
}

// PathEnd is the time the last component of path is reached.
func PathEnd(path Path) int64 {
	if len(path) == 0 {
		return 0
	}
	return path[len(path)-1].T
}
