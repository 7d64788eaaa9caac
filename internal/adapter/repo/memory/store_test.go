package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"aitown/internal/app/ports"
	"aitown/internal/domain/game"
)

func TestTxManager_RollsBackOnError(t *testing.T) {
	store := NewStore()
	tx := NewTxManager(store)
	engines := NewEngineRepo(store)
	inputs := NewInputRepo(store)
	ctx := context.Background()
	if err := engines.Create(ctx, ports.EngineRecord{WorldID: "w1", Status: ports.EngineRunning}); err != nil {
		t.Fatalf("create: %v", err)
	}

	boom := errors.New("boom")
	err := tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := inputs.Append(txCtx, ports.InputRecord{ID: "in-1", WorldID: "w1", Number: 1, Name: "join"}); err != nil {
			return err
		}
		rec, _ := engines.Get(txCtx, "w1")
		rec.GenerationNumber = 7
		if err := engines.SaveWithGeneration(txCtx, rec, 0); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if n, _ := inputs.MaxNumber(ctx, "w1"); n != 0 {
		t.Fatalf("input survived rollback: max=%d", n)
	}
	if rec, _ := engines.Get(ctx, "w1"); rec.GenerationNumber != 0 {
		t.Fatalf("generation survived rollback: %d", rec.GenerationNumber)
	}
}

func TestEngineRepo_GenerationFence(t *testing.T) {
	store := NewStore()
	engines := NewEngineRepo(store)
	ctx := context.Background()
	_ = engines.Create(ctx, ports.EngineRecord{WorldID: "w1", GenerationNumber: 3})
	if err := engines.SaveWithGeneration(ctx, ports.EngineRecord{WorldID: "w1", GenerationNumber: 4}, 2); !errors.Is(err, ports.ErrConflict) {
		t.Fatalf("stale save: got=%v want=%v", err, ports.ErrConflict)
	}
	if err := engines.SaveWithGeneration(ctx, ports.EngineRecord{WorldID: "w1", GenerationNumber: 4}, 3); err != nil {
		t.Fatalf("fresh save: %v", err)
	}
}

func TestInputRepo_NumberConflict(t *testing.T) {
	inputs := NewInputRepo(NewStore())
	ctx := context.Background()
	if err := inputs.Append(ctx, ports.InputRecord{ID: "a", WorldID: "w1", Number: 1}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := inputs.Append(ctx, ports.InputRecord{ID: "b", WorldID: "w1", Number: 1}); !errors.Is(err, ports.ErrConflict) {
		t.Fatalf("duplicate number: got=%v want=%v", err, ports.ErrConflict)
	}
	got, _ := inputs.ListPending(ctx, "w1", 0, 10)
	if len(got) != 1 || got[0].ID != "a" {
		t.Fatalf("pending: %+v", got)
	}
}

func TestWorldStateRepo_LoadFiltersFinished(t *testing.T) {
	repo := NewWorldStateRepo(NewStore())
	ctx := context.Background()
	if err := repo.CreateWorld(ctx, game.World{ID: "w1"}, game.Map{Width: 2, Height: 2}); err != nil {
		t.Fatalf("create world: %v", err)
	}
	done := int64(50)
	diff := game.Diff{
		Conversations: []game.Conversation{{ID: "c:1"}, {ID: "c:2", FinishedAt: &done}},
		Members: []game.Member{
			{ID: "m:1", ConversationID: "c:1", PlayerID: "p:1", Status: game.MemberStatus{Kind: game.MemberInvited}},
			{ID: "m:2", ConversationID: "c:2", PlayerID: "p:2", Status: game.MemberStatus{Kind: game.MemberLeft, EndedAt: 50}},
			{ID: "m:3", ConversationID: "c:2", PlayerID: "p:3", Status: game.MemberStatus{Kind: game.MemberLeft, EndedAt: 10}},
		},
	}
	if err := repo.Save(ctx, "w1", diff); err != nil {
		t.Fatalf("save: %v", err)
	}
	snap, err := repo.Load(ctx, "w1", 40)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(snap.Conversations) != 1 || snap.Conversations[0].ID != "c:1" {
		t.Fatalf("conversations: %+v", snap.Conversations)
	}
	if len(snap.Members) != 1 || len(snap.RecentLeft) != 1 || snap.RecentLeft[0].ID != "m:2" {
		t.Fatalf("members=%+v recentLeft=%+v", snap.Members, snap.RecentLeft)
	}
}

func TestTxManager_UndoesWorldStateWrites(t *testing.T) {
	store := NewStore()
	tx := NewTxManager(store)
	repo := NewWorldStateRepo(store)
	inputs := NewInputRepo(store)
	ctx := context.Background()
	if err := repo.CreateWorld(ctx, game.World{ID: "w1"}, game.Map{Width: 2, Height: 2}); err != nil {
		t.Fatalf("create world: %v", err)
	}
	base := game.Diff{
		Players:  []game.Player{{ID: "p:1", Name: "ada"}},
		Messages: []game.Message{{ID: "msg:1", ConversationID: "c:1", Text: "hi"}},
	}
	if err := repo.Save(ctx, "w1", base); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := inputs.Append(ctx, ports.InputRecord{ID: "in-1", WorldID: "w1", Number: 1}); err != nil {
		t.Fatalf("append: %v", err)
	}

	boom := errors.New("boom")
	err := tx.RunInTx(ctx, func(txCtx context.Context) error {
		diff := game.Diff{
			Players:  []game.Player{{ID: "p:1", Name: "renamed"}, {ID: "p:2", Name: "bo"}},
			Messages: []game.Message{{ID: "msg:2", ConversationID: "c:1", Text: "bye"}},
		}
		if err := repo.Save(txCtx, "w1", diff); err != nil {
			return err
		}
		if err := inputs.Complete(txCtx, "w1", 1, ports.InputReturn{OK: true}); err != nil {
			return err
		}
		if err := inputs.Append(txCtx, ports.InputRecord{ID: "in-2", WorldID: "w1", Number: 2}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	snap, err := repo.Load(ctx, "w1", 0)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(snap.Players) != 1 || snap.Players[0].Name != "ada" {
		t.Fatalf("players after rollback: %+v", snap.Players)
	}
	msgs, _ := repo.ListByConversation(ctx, "w1", "c:1", 0)
	if len(msgs) != 1 || msgs[0].ID != "msg:1" {
		t.Fatalf("messages after rollback: %+v", msgs)
	}
	rec, err := inputs.GetByID(ctx, "in-1")
	if err != nil || rec.ReturnValue != nil {
		t.Fatalf("completion survived rollback: rec=%+v err=%v", rec, err)
	}
	if _, err := inputs.GetByID(ctx, "in-2"); !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("rolled back input: got=%v want=%v", err, ports.ErrNotFound)
	}
	if err := inputs.Append(ctx, ports.InputRecord{ID: "in-2", WorldID: "w1", Number: 2}); err != nil {
		t.Fatalf("id of rolled back input should be free: %v", err)
	}
}

func TestInputRepo_IDsAreUniqueAcrossWorlds(t *testing.T) {
	inputs := NewInputRepo(NewStore())
	ctx := context.Background()
	for i := int64(1); i <= 3; i++ {
		if err := inputs.Append(ctx, ports.InputRecord{ID: fmt.Sprintf("w1-%d", i), WorldID: "w1", Number: i}); err != nil {
			t.Fatalf("append w1: %v", err)
		}
	}
	if err := inputs.Append(ctx, ports.InputRecord{ID: "w1-2", WorldID: "w2", Number: 1}); !errors.Is(err, ports.ErrConflict) {
		t.Fatalf("duplicate id in another world: got=%v want=%v", err, ports.ErrConflict)
	}
	rec, err := inputs.GetByID(ctx, "w1-3")
	if err != nil || rec.Number != 3 || rec.WorldID != "w1" {
		t.Fatalf("get by id: rec=%+v err=%v", rec, err)
	}
	pending, _ := inputs.ListPending(ctx, "w1", 1, 0)
	if len(pending) != 2 || pending[0].Number != 2 {
		t.Fatalf("pending after 1: %+v", pending)
	}
}
