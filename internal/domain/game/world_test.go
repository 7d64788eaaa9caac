package game

import (
	"errors"
	"testing"

	"aitown/internal/domain/geometry"
	"aitown/internal/domain/history"
)

func TestMoveTo_ReachesDestinationAndReportsCompletion(t *testing.T) {
	s := newTestState(t)
	a := addHuman(t, s, 0, "alice", 0, 0)
	mustApply(t, s, 0, InputMoveTo, MoveToArgs{PlayerID: a, Destination: &geometry.Point{X: 2, Y: 0}})
	s.DrainEvents()

	var completed bool
	tickUntil(t, s, 0, 10_000, func() bool {
		for _, e := range s.DrainEvents() {
			if e.Kind == EventMovementCompleted && e.PlayerID == a {
				completed = true
			}
		}
		return completed
	})
	p, _ := s.Player(a)
	if p.Pathfinding != nil {
		t.Fatalf("pathfinding should be cleared")
	}
	l, _ := s.Location(p.LocationID)
	if l.X != 2 || l.Y != 0 || l.Velocity != 0 {
		t.Fatalf("final location: got=%+v", *l)
	}
}

func TestMoveTo_Validation(t *testing.T) {
	s := newTestState(t)
	a, _, _ := participatingPair(t, s)
	if _, err := apply(s, 10, InputMoveTo, MoveToArgs{PlayerID: a, Destination: &geometry.Point{X: 3, Y: 3}}); !errors.Is(err, ErrMoveInConversation) {
		t.Fatalf("move while participating: got=%v want=%v", err, ErrMoveInConversation)
	}
	c := addHuman(t, s, 10, "carol", 7, 7)
	if _, err := apply(s, 10, InputMoveTo, MoveToArgs{PlayerID: c, Destination: &geometry.Point{X: 3.5, Y: 3}}); !errors.Is(err, ErrNonIntegralDestination) {
		t.Fatalf("fractional destination: got=%v want=%v", err, ErrNonIntegralDestination)
	}
}

func TestTickPosition_CollisionParksPlayer(t *testing.T) {
	s := newTestState(t)
	a := addHuman(t, s, 0, "alice", 0, 0)
	b := addHuman(t, s, 0, "bob", 5, 5)
	mustApply(t, s, 0, InputMoveTo, MoveToArgs{PlayerID: a, Destination: &geometry.Point{X: 3, Y: 0}})
	if err := s.Tick(0); err != nil {
		t.Fatalf("tick: %v", err)
	}
	place(t, s, b, 1, 0)
	if err := s.Tick(1000); err != nil {
		t.Fatalf("tick: %v", err)
	}
	p, _ := s.Player(a)
	if p.Pathfinding == nil || p.Pathfinding.State.Kind != PathWaiting {
		t.Fatalf("expected waiting state, got %+v", p.Pathfinding)
	}
	if until := p.Pathfinding.State.Until; until < 1000 || until > 1000+s.Tuning().PathfindingBackoff {
		t.Fatalf("backoff out of range: %d", until)
	}
}

func TestHumanIdleEviction(t *testing.T) {
	s := newTestState(t)
	a := addHuman(t, s, 0, "alice", 0, 0)
	if err := s.Tick(s.Tuning().HumanIdleTooLong + 1); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if p, _ := s.Player(a); p.Active {
		t.Fatalf("idle human should be evicted")
	}
}

func TestHumanIdleEviction_ReportsBrokenMembership(t *testing.T) {
	s := NewState(Snapshot{
		World:     World{ID: "w:test", Seed: 7},
		Map:       openMap(10, 10),
		Players:   []Player{{ID: "p:1", Name: "alice", Human: "tok", Active: true, LocationID: "l:1"}},
		Locations: []Location{{ID: "l:1"}},
		Members: []Member{{
			ID: "m:1", ConversationID: "c:missing", PlayerID: "p:1",
			Status: MemberStatus{Kind: MemberParticipating},
		}},
	}, DefaultTuning(), 0)
	err := s.Tick(s.Tuning().HumanIdleTooLong + 1)
	if !errors.Is(err, ErrInvariant) {
		t.Fatalf("tick: got=%v want=%v", err, ErrInvariant)
	}
}

func TestJoin_HumanLimitsAndDuplicates(t *testing.T) {
	s := newTestState(t)
	mustApply(t, s, 0, InputJoin, JoinArgs{Name: "alice", TokenIdentifier: "tok"})
	if _, err := apply(s, 0, InputJoin, JoinArgs{Name: "alice2", TokenIdentifier: "tok"}); !errors.Is(err, ErrAlreadyJoined) {
		t.Fatalf("duplicate join: got=%v want=%v", err, ErrAlreadyJoined)
	}
	for i := 1; i < s.Tuning().MaxHumanPlayers; i++ {
		mustApply(t, s, 0, InputJoin, JoinArgs{Name: "h", TokenIdentifier: string(rune('a' + i))})
	}
	if _, err := apply(s, 0, InputJoin, JoinArgs{Name: "late", TokenIdentifier: "late"}); !errors.Is(err, ErrTooManyHumans) {
		t.Fatalf("over capacity: got=%v want=%v", err, ErrTooManyHumans)
	}
}

func TestIdleUntil(t *testing.T) {
	s := newTestState(t)
	a := addHuman(t, s, 0, "alice", 0, 0)
	s.DrainEvents()
	idle := s.IdleUntil(100)
	if idle == nil || *idle != 100+s.Tuning().MaxIdleDuration {
		t.Fatalf("idle world: got=%v want=%d", idle, 100+s.Tuning().MaxIdleDuration)
	}
	mustApply(t, s, 100, InputMoveTo, MoveToArgs{PlayerID: a, Destination: &geometry.Point{X: 1, Y: 0}})
	if s.IdleUntil(100) != nil {
		t.Fatalf("pending path should keep the world busy")
	}

	s2 := newTestState(t)
	addAgent(t, s2, 0, "xavier", 4, 4)
	s2.DrainEvents()
	if s2.IdleUntil(0) != nil {
		t.Fatalf("undecided agent should keep the world busy")
	}
	ag, _ := s2.Agent("a:3")
	if err := s2.SetWaiting(ag.ID, []Condition{{Kind: WaitUntil, Deadline: 5000}}); err != nil {
		t.Fatalf("set waiting: %v", err)
	}
	if idle := s2.IdleUntil(0); idle == nil || *idle != 5000 {
		t.Fatalf("agent deadline: got=%v want=5000", idle)
	}
}

func TestDiff_OnlyTouchedRows(t *testing.T) {
	snap := Snapshot{
		World: World{ID: "w", NextID: 20},
		Map:   openMap(4, 4),
		Players: []Player{
			{ID: "p:2", Name: "a", Active: true, LocationID: "l:3"},
			{ID: "p:10", Name: "b", Active: true, LocationID: "l:11"},
		},
		Locations: []Location{{ID: "l:3"}, {ID: "l:11", X: 2}},
	}
	s := NewState(snap, DefaultTuning(), 0)
	if d := s.Diff(); !d.Empty() {
		t.Fatalf("fresh state diff should be empty: %+v", d)
	}
	p, _ := s.Player("p:10")
	p.Name = "renamed"
	s.MarkDirty(p.ID)
	d := s.Diff()
	if len(d.Players) != 1 || d.Players[0].Name != "renamed" || len(d.Locations) != 0 || d.World != nil {
		t.Fatalf("unexpected diff: %+v", d)
	}
	if ids := s.PlayerIDs(); ids[0] != "p:2" || ids[1] != "p:10" {
		t.Fatalf("ids should sort numerically: %v", ids)
	}
	if got := s.AllocID("c"); got != "c:21" {
		t.Fatalf("alloc id: got=%s want=c:21", got)
	}
}

func TestDiff_PacksMovedLocationHistory(t *testing.T) {
	s := newTestState(t)
	a := addHuman(t, s, 0, "alice", 0, 0)
	mustApply(t, s, 0, InputMoveTo, MoveToArgs{PlayerID: a, Destination: &geometry.Point{X: 1, Y: 0}})
	for now := int64(0); now <= 640; now += 16 {
		if err := s.Tick(now); err != nil {
			t.Fatalf("tick: %v", err)
		}
	}
	d := s.Diff()
	if len(d.Histories) == 0 {
		t.Fatalf("expected a location history")
	}
	p, _ := s.Player(a)
	var packed []byte
	for _, h := range d.Histories {
		if h.LocationID == p.LocationID {
			packed = h.Buffer
		}
	}
	buf, err := history.Unpack(packed)
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if x, _ := buf.ValueAt("x", 640); x <= 0 {
		t.Fatalf("x should advance, got %v", x)
	}
}
