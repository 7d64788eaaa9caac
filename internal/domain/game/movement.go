package game

import (
	"errors"
	"math"

	"aitown/internal/domain/geometry"
	"aitown/internal/domain/pathfinding"
)

var (
	ErrNonIntegralDestination = errors.New("destination must be a grid point")
	ErrMoveInConversation     = errors.New("cannot move while participating in a conversation")
)

func (s *State) movePlayer(now int64, p *Player, dest *geometry.Point) error {
	if dest == nil {
		s.stopPlayer(now, p)
		return nil
	}
	if !geometry.IsIntegral(*dest) {
		return ErrNonIntegralDestination
	}
	if m, ok := s.Membership(p.ID); ok && m.Status.Kind == MemberParticipating {
		return ErrMoveInConversation
	}
	p.Pathfinding = &Pathfinding{
		Destination: *dest,
		Started:     now,
		State:       PathfindingState{Kind: PathNeedsPath},
	}
	s.players.markDirty(p.ID)
	return nil
}

// stopPlayer clears any movement and reports movementCompleted when the
// player was moving.
func (s *State) stopPlayer(now int64, p *Player) {
	if l, ok := s.locations.get(p.LocationID); ok && l.Velocity != 0 {
		l.Velocity = 0
		s.locations.markDirty(l.ID)
	}
	if p.Pathfinding == nil {
		return
	}
	p.Pathfinding = nil
	s.players.markDirty(p.ID)
	s.emit(Event{Kind: EventMovementCompleted, Time: now, PlayerID: p.ID})
}

// otherPositions lists the positions of every active player except the
// excluded ones.
func (s *State) otherPositions(exclude ...string) []geometry.Point {
	var out []geometry.Point
next:
	for _, id := range s.players.ids() {
		for _, ex := range exclude {
			if id == ex {
				continue next
			}
		}
		p, _ := s.players.get(id)
		if !p.Active {
			continue
		}
		if l, ok := s.locations.get(p.LocationID); ok {
			out = append(out, l.Position())
		}
	}
	return out
}

func (s *State) blocked(pos geometry.Point, exclude ...string) pathfinding.Reason {
	return pathfinding.Blocked(pos, s.gameMap, s.otherPositions(exclude...), s.tuning.CollisionThreshold)
}

func (s *State) tickPathfinding(now int64, p *Player) error {
	pf := p.Pathfinding
	if pf == nil {
		return nil
	}
	l, err := s.mustLocation(p)
	if err != nil {
		return err
	}
	if pf.State.Kind == PathMoving && geometry.PointsEqual(l.Position(), pf.Destination) {
		s.stopPlayer(now, p)
		return nil
	}
	if pf.Started+s.tuning.PathfindingTimeout < now {
		s.stopPlayer(now, p)
		return nil
	}
	if pf.State.Kind == PathWaiting && pf.State.Until < now {
		pf.State = PathfindingState{Kind: PathNeedsPath}
		s.players.markDirty(p.ID)
	}
	if pf.State.Kind != PathNeedsPath || s.numPathfinds >= s.tuning.MaxPathfindsPerStep {
		return nil
	}
	s.numPathfinds++
	others := s.otherPositions(p.ID)
	route, ok := pathfinding.FindRoute(pathfinding.Request{
		Start:       l.Position(),
		Facing:      l.Facing(),
		Now:         now,
		Destination: pf.Destination,
		Speed:       s.tuning.MovementSpeed,
		Blocked: func(pt geometry.Point) bool {
			return pathfinding.Blocked(pt, s.gameMap, others, s.tuning.CollisionThreshold) != pathfinding.NotBlocked
		},
	})
	if !ok || len(route.Path) < 2 {
		s.stopPlayer(now, p)
		return nil
	}
	if route.NewDestination != nil {
		pf.Destination = *route.NewDestination
	}
	pf.State = PathfindingState{Kind: PathMoving, Path: route.Path}
	s.players.markDirty(p.ID)
	return nil
}

func (s *State) tickPosition(now int64, p *Player) error {
	l, err := s.mustLocation(p)
	if err != nil {
		return err
	}
	if p.Pathfinding == nil || p.Pathfinding.State.Kind != PathMoving {
		if l.Velocity != 0 {
			l.Velocity = 0
			s.locations.markDirty(l.ID)
		}
		return nil
	}
	pos, facing, velocity, err := geometry.PathPosition(p.Pathfinding.State.Path, now)
	if err != nil {
		return invariantf("player %s: %v", p.ID, err)
	}
	if s.blocked(pos, p.ID) != pathfinding.NotBlocked {
		backoff := Rand(s.world.Seed, now, "backoff:"+p.ID).Float64() * float64(s.tuning.PathfindingBackoff)
		p.Pathfinding.State = PathfindingState{Kind: PathWaiting, Until: now + int64(math.Round(backoff))}
		s.players.markDirty(p.ID)
		l.Velocity = 0
		s.locations.markDirty(l.ID)
		return nil
	}
	l.X, l.Y = pos.X, pos.Y
	l.DX, l.DY = facing.DX, facing.DY
	l.Velocity = velocity
	s.locations.markDirty(l.ID)
	return nil
}
