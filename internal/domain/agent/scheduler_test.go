package agent

import (
	"testing"

	"aitown/internal/domain/game"
)

func TestScheduler_FreshAgentDecidesOnce(t *testing.T) {
	s := newWorld(t)
	x := spawnAgent(t, s, "xavier", 3, 3)
	sch := NewScheduler(s)
	s.SetAgentRunner(sch)

	if err := s.Tick(100); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if sch.Decided != 1 {
		t.Fatalf("decisions: got=%d want=1", sch.Decided)
	}
	emitted := s.EmittedInputs()
	if len(emitted) != 1 || emitted[0].Name != game.InputMoveTo {
		t.Fatalf("emitted: got=%+v want one moveTo", emitted)
	}
	a, _ := s.Agent(x.AgentID)
	if a.WaitingOn == nil || len(a.WaitingOn) == 0 {
		t.Fatalf("agent should be waiting after deciding")
	}
	if got := sch.Index().Subscriptions(x.AgentID); len(got) != len(a.WaitingOn) {
		t.Fatalf("index subscriptions: got=%d want=%d", len(got), len(a.WaitingOn))
	}

	// Nothing happened since, so the agent stays asleep.
	if err := s.Tick(116); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if sch.Decided != 1 {
		t.Fatalf("sleeping agent re-decided: got=%d want=1", sch.Decided)
	}
}

func TestScheduler_WakesOnMatchingEvent(t *testing.T) {
	s := newWorld(t)
	x := spawnAgent(t, s, "xavier", 3, 3)
	sch := NewScheduler(s)
	s.SetAgentRunner(sch)
	if err := s.Tick(100); err != nil {
		t.Fatalf("tick: %v", err)
	}
	in := s.EmittedInputs()[0]

	s.Emit(game.Event{Kind: game.EventInputCompleted, Time: 116, InputID: in.ID})
	if err := s.Tick(116); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if sch.Decided != 2 {
		t.Fatalf("decisions after completion: got=%d want=2", sch.Decided)
	}
	a, _ := s.Agent(x.AgentID)
	if a.InProgress != nil {
		t.Fatalf("wander should not start an operation")
	}
}

func TestScheduler_RebuildsIndexFromPersistedWaits(t *testing.T) {
	s := newWorld(t)
	x := spawnAgent(t, s, "xavier", 3, 3)
	if err := s.SetWaiting(x.AgentID, []game.Condition{InputCompleted("in-7")}); err != nil {
		t.Fatalf("set waiting: %v", err)
	}
	sch := NewScheduler(s)
	if got := sch.Index().Wake(game.Event{Kind: game.EventInputCompleted, InputID: "in-7"}); len(got) != 1 || got[0] != x.AgentID {
		t.Fatalf("rebuilt index: got=%v want=[%s]", got, x.AgentID)
	}
}

func TestScheduler_DeadlineWakesAgent(t *testing.T) {
	s := newWorld(t)
	x := spawnAgent(t, s, "xavier", 3, 3)
	if err := s.SetWaiting(x.AgentID, []game.Condition{Until(500)}); err != nil {
		t.Fatalf("set waiting: %v", err)
	}
	sch := NewScheduler(s)
	s.SetAgentRunner(sch)
	if err := s.Tick(400); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if sch.Decided != 0 {
		t.Fatalf("woke before deadline")
	}
	if err := s.Tick(500); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if sch.Decided != 1 {
		t.Fatalf("deadline did not wake agent: got=%d", sch.Decided)
	}
}
