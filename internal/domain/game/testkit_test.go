package game

import (
	"encoding/json"
	"testing"
)

func openMap(w, h int) Map {
	rows := make([][]bool, h)
	for y := range rows {
		rows[y] = make([]bool, w)
	}
	return Map{Width: w, Height: h, Blocked: rows}
}

func newTestState(t *testing.T) *State {
	t.Helper()
	return NewState(Snapshot{World: World{ID: "w:test", Seed: 7}, Map: openMap(10, 10)}, DefaultTuning(), 0)
}

func apply(s *State, now int64, name string, args any) (any, error) {
	b, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}
	return s.ApplyInput(now, name, b)
}

func mustApply(t *testing.T, s *State, now int64, name string, args any) any {
	t.Helper()
	v, err := apply(s, now, name, args)
	if err != nil {
		t.Fatalf("%s: %v", name, err)
	}
	return v
}

func place(t *testing.T, s *State, playerID string, x, y float64) {
	t.Helper()
	p, ok := s.Player(playerID)
	if !ok {
		t.Fatalf("player %s missing", playerID)
	}
	l, ok := s.Location(p.LocationID)
	if !ok {
		t.Fatalf("location of %s missing", playerID)
	}
	l.X, l.Y = x, y
}

func addHuman(t *testing.T, s *State, now int64, name string, x, y float64) string {
	t.Helper()
	id := mustApply(t, s, now, InputJoin, JoinArgs{Name: name, TokenIdentifier: "tok-" + name}).(string)
	place(t, s, id, x, y)
	return id
}

func addAgent(t *testing.T, s *State, now int64, name string, x, y float64) CreatedAgent {
	t.Helper()
	created := mustApply(t, s, now, InputCreateAgent, CreateAgentArgs{Name: name, Identity: name + " is friendly"}).(CreatedAgent)
	place(t, s, created.PlayerID, x, y)
	return created
}

func status(t *testing.T, s *State, playerID string) MemberStatusKind {
	t.Helper()
	m, ok := s.Membership(playerID)
	if !ok {
		return MemberLeft
	}
	return m.Status.Kind
}

func tickUntil(t *testing.T, s *State, from, to int64, done func() bool) int64 {
	t.Helper()
	for now := from; now <= to; now += s.Tuning().TickDuration {
		if err := s.Tick(now); err != nil {
			t.Fatalf("tick at %d: %v", now, err)
		}
		if done() {
			return now
		}
	}
	t.Fatalf("condition not reached by %d", to)
	return 0
}

// checkConversationInvariant asserts every conversation has two members and
// never mixes a participating member with a pending one.
func checkConversationInvariant(t *testing.T, s *State) {
	t.Helper()
	for _, id := range s.ConversationIDs() {
		members := s.conversationMembers(id)
		if len(members) != 2 {
			t.Fatalf("conversation %s has %d members", id, len(members))
		}
		a, b := members[0].Status.Kind, members[1].Status.Kind
		pending := func(k MemberStatusKind) bool { return k == MemberInvited || k == MemberWalkingOver }
		if (a == MemberParticipating && pending(b)) || (b == MemberParticipating && pending(a)) {
			t.Fatalf("conversation %s mixes statuses %s/%s", id, a, b)
		}
		c, _ := s.Conversation(id)
		if (a == MemberLeft) != (b == MemberLeft) || (a == MemberLeft) != (c.FinishedAt != nil) {
			t.Fatalf("conversation %s left state inconsistent: %s/%s finished=%v", id, a, b, c.FinishedAt != nil)
		}
	}
}
