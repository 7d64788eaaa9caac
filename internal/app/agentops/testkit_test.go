package agentops

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	memstore "aitown/internal/adapter/repo/memory"
	"aitown/internal/app/engine"
	"aitown/internal/app/ports"
	"aitown/internal/domain/game"
)

const testWorld = "w-ops"

type stubText struct {
	mu    sync.Mutex
	reply func(req ports.GenerateRequest) (string, error)
	calls []ports.GenerateRequest
}

func (s *stubText) Generate(_ context.Context, req ports.GenerateRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, req)
	return s.reply(req)
}

type stubEmbedder struct{}

// Embed maps text to a fixed-size vector of letter counts.
func (stubEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	v := make([]float64, 4)
	for i, r := range strings.ToLower(text) {
		v[(int(r)+i)%4]++
	}
	return v, nil
}

type submitted struct {
	name string
	args json.RawMessage
}

type stubSubmitter struct {
	mu     sync.Mutex
	inputs []submitted
}

func (s *stubSubmitter) InsertInput(_ context.Context, req engine.InsertInputRequest) (engine.InsertInputResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inputs = append(s.inputs, submitted{name: req.Name, args: req.Args})
	return engine.InsertInputResponse{InputID: "in"}, nil
}

var errUnavailable = errors.New("service unavailable")

type fixture struct {
	d        *Dispatcher
	text     *stubText
	inputs   *stubSubmitter
	memories memstore.MemoryRepo
}

// newFixture seeds a finished conversation c:1 between ada (p:1, agent a:1)
// and bo (p:2).
func newFixture(t *testing.T, reply func(req ports.GenerateRequest) (string, error)) *fixture {
	t.Helper()
	store := memstore.NewStore()
	state := memstore.NewWorldStateRepo(store)
	ctx := context.Background()
	if err := state.CreateWorld(ctx, game.World{ID: testWorld}, game.Map{Width: 4, Height: 4}); err != nil {
		t.Fatalf("create world: %v", err)
	}
	started := int64(100)
	done := int64(900)
	diff := game.Diff{
		Players: []game.Player{
			{ID: "p:1", Name: "Ada", Active: true},
			{ID: "p:2", Name: "Bo", Description: "a baker", Active: true},
		},
		Agents:        []game.Agent{{ID: "a:1", PlayerID: "p:1", Identity: "a curious botanist", Plan: "make friends"}},
		Conversations: []game.Conversation{{ID: "c:1", Creator: "p:1", FinishedAt: &done, NumMessages: 2}},
		Members: []game.Member{
			{ID: "m:1", ConversationID: "c:1", PlayerID: "p:1", Status: game.MemberStatus{Kind: game.MemberLeft, StartedAt: &started, EndedAt: done, With: "p:2"}},
			{ID: "m:2", ConversationID: "c:1", PlayerID: "p:2", Status: game.MemberStatus{Kind: game.MemberLeft, StartedAt: &started, EndedAt: done, With: "p:1"}},
		},
		Messages: []game.Message{
			{ID: "msg:1", ConversationID: "c:1", Author: "p:1", Text: "Hi Bo!", Timestamp: 200},
			{ID: "msg:2", ConversationID: "c:1", Author: "p:2", Text: "Hello Ada, fresh bread today.", Timestamp: 300},
		},
	}
	if err := state.Save(ctx, testWorld, diff); err != nil {
		t.Fatalf("seed: %v", err)
	}
	f := &fixture{
		text:     &stubText{reply: reply},
		inputs:   &stubSubmitter{},
		memories: memstore.NewMemoryRepo(store),
	}
	tuning := game.DefaultTuning()
	tuning.ReflectionThreshold = 10
	f.d = NewDispatcher(Deps{
		Inputs:   f.inputs,
		State:    state,
		Messages: state,
		Memories: f.memories,
		Text:     f.text,
		Embedder: stubEmbedder{},
		Tuning:   tuning,
		Now:      func() time.Time { return time.UnixMilli(10_000) },
	}, 2)
	return f
}

func (f *fixture) only(t *testing.T, name string, dst any) {
	t.Helper()
	if len(f.inputs.inputs) != 1 || f.inputs.inputs[0].name != name {
		t.Fatalf("submitted: got=%+v want one %s", f.inputs.inputs, name)
	}
	if err := json.Unmarshal(f.inputs.inputs[0].args, dst); err != nil {
		t.Fatalf("decode %s: %v", name, err)
	}
}
