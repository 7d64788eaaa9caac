package agent

import (
	"encoding/json"
	"testing"

	"aitown/internal/domain/game"
)

func newWorld(t *testing.T) *game.State {
	t.Helper()
	rows := make([][]bool, 12)
	for y := range rows {
		rows[y] = make([]bool, 12)
	}
	snap := game.Snapshot{
		World: game.World{ID: "w:agents", Seed: 42},
		Map:   game.Map{Width: 12, Height: 12, Blocked: rows},
	}
	return game.NewState(snap, game.DefaultTuning(), 0)
}

func applyInput(t *testing.T, s *game.State, now int64, name string, args any) any {
	t.Helper()
	b, err := json.Marshal(args)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	v, err := s.ApplyInput(now, name, b)
	if err != nil {
		t.Fatalf("%s: %v", name, err)
	}
	return v
}

func movePlayer(t *testing.T, s *game.State, playerID string, x, y float64) {
	t.Helper()
	p, ok := s.Player(playerID)
	if !ok {
		t.Fatalf("player %s missing", playerID)
	}
	l, _ := s.Location(p.LocationID)
	l.X, l.Y = x, y
}

func spawnAgent(t *testing.T, s *game.State, name string, x, y float64) game.CreatedAgent {
	t.Helper()
	created := applyInput(t, s, 0, game.InputCreateAgent, game.CreateAgentArgs{Name: name}).(game.CreatedAgent)
	movePlayer(t, s, created.PlayerID, x, y)
	return created
}

func spawnHuman(t *testing.T, s *game.State, name string, x, y float64) string {
	t.Helper()
	id := applyInput(t, s, 0, game.InputJoin, game.JoinArgs{Name: name, TokenIdentifier: "tok-" + name}).(string)
	movePlayer(t, s, id, x, y)
	return id
}

// setMoving gives the player a pending path so decisions see it as moving.
func setMoving(t *testing.T, s *game.State, playerID string) {
	t.Helper()
	p, _ := s.Player(playerID)
	p.Pathfinding = &game.Pathfinding{State: game.PathfindingState{Kind: game.PathNeedsPath}}
}

func decide(t *testing.T, s *game.State, now int64, agentID string) Plan {
	t.Helper()
	plan, err := Decide(now, agentID, s.View())
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	return plan
}

func names(p Plan) []string {
	out := make([]string, 0, len(p.Decisions))
	for _, d := range p.Decisions {
		out = append(out, Name(d))
	}
	return out
}

func hasCondition(p Plan, kind game.ConditionKind) bool {
	for _, c := range p.Wait {
		if c.Kind == kind {
			return true
		}
	}
	return false
}
