package observe

import (
	"context"
	"errors"
	"testing"

	"aitown/internal/app/ports"
	"aitown/internal/domain/game"
)

func TestUseCase_RejectsEmptyWorldID(t *testing.T) {
	uc := UseCase{}
	if _, err := uc.Execute(context.Background(), Request{WorldID: "  "}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	if _, err := uc.ListMessages(context.Background(), MessagesRequest{WorldID: "w1"}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestUseCase_PropagatesEngineError(t *testing.T) {
	uc := UseCase{Engines: observeEngineRepo{err: ports.ErrNotFound}}
	if _, err := uc.Execute(context.Background(), Request{WorldID: "w1"}); !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUseCase_ProjectsLiveWorld(t *testing.T) {
	now := int64(5000)
	snap := game.Snapshot{
		World: game.World{ID: "w1"},
		Map:   game.Map{Width: 4, Height: 3},
		Players: []game.Player{
			{ID: "p:1", Name: "Ada", Active: true, LocationID: "l:1"},
			{ID: "p:2", Name: "Bo", Active: false, LocationID: "l:2"},
		},
		Conversations: []game.Conversation{{ID: "c:1", Creator: "p:3"}},
		Members: []game.Member{
			{ID: "m:2", ConversationID: "c:1", PlayerID: "p:4", Status: game.MemberStatus{Kind: game.MemberInvited}},
			{ID: "m:1", ConversationID: "c:1", PlayerID: "p:3", Status: game.MemberStatus{Kind: game.MemberWalkingOver}},
		},
		Agents: []game.Agent{{ID: "a:1", PlayerID: "p:1", InProgress: &game.Operation{Name: game.OpGenerateMessage}}},
	}
	uc := UseCase{
		Engines: observeEngineRepo{rec: ports.EngineRecord{WorldID: "w1", Status: ports.EngineRunning, GenerationNumber: 9, CurrentTime: &now}},
		State:   observeStateRepo{snap: snap},
		Now:     func() int64 { return now },
	}
	out, err := uc.Execute(context.Background(), Request{WorldID: "w1"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out.Engine.Generation != 9 || out.Engine.Status != ports.EngineRunning {
		t.Fatalf("engine view: got=%+v", out.Engine)
	}
	if got, want := len(out.Players), 1; got != want {
		t.Fatalf("active players: got=%d want=%d", got, want)
	}
	if got := out.Conversations[0].Members; len(got) != 2 || got[0].PlayerID != "p:3" {
		t.Fatalf("members should be grouped and sorted: %+v", got)
	}
	if got, want := out.Agents[0].Busy, game.OpGenerateMessage; got != want {
		t.Fatalf("agent busy: got=%q want=%q", got, want)
	}
	if out.World.Width != 4 || out.World.Height != 3 {
		t.Fatalf("world meta: got=%+v", out.World)
	}
}

func TestUseCase_ListMessagesClampsLimit(t *testing.T) {
	repo := &observeMessageRepo{}
	uc := UseCase{Messages: repo}
	out, err := uc.ListMessages(context.Background(), MessagesRequest{WorldID: "w1", ConversationID: "c:1", Limit: 5000})
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if repo.limit != maxMessageLimit {
		t.Fatalf("limit: got=%d want=%d", repo.limit, maxMessageLimit)
	}
	if out.Messages == nil {
		t.Fatalf("messages should be an empty slice, not nil")
	}
}

type observeEngineRepo struct {
	ports.EngineRepository
	rec ports.EngineRecord
	err error
}

func (r observeEngineRepo) Get(_ context.Context, _ string) (ports.EngineRecord, error) {
	return r.rec, r.err
}

type observeStateRepo struct {
	ports.WorldStateRepository
	snap game.Snapshot
}

func (r observeStateRepo) Load(_ context.Context, _ string, _ int64) (game.Snapshot, error) {
	return r.snap, nil
}

type observeMessageRepo struct {
	limit int
}

func (r *observeMessageRepo) ListByConversation(_ context.Context, _ string, _ string, limit int) ([]game.Message, error) {
	r.limit = limit
	return nil, nil
}
