package input

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"aitown/internal/app/engine"
	"aitown/internal/app/ports"
	"aitown/internal/domain/game"
)

type stubEngine struct {
	inserted []engine.InsertInputRequest
	records  map[string]ports.InputRecord
}

func (s *stubEngine) InsertInput(_ context.Context, req engine.InsertInputRequest) (engine.InsertInputResponse, error) {
	s.inserted = append(s.inserted, req)
	return engine.InsertInputResponse{InputID: "in-1", Number: int64(len(s.inserted)), ReceivedTime: 42}, nil
}

func (s *stubEngine) InputStatus(_ context.Context, id string) (ports.InputRecord, error) {
	rec, ok := s.records[id]
	if !ok {
		return ports.InputRecord{}, ports.ErrNotFound
	}
	return rec, nil
}

func newUseCase(t *testing.T) (UseCase, *stubEngine) {
	t.Helper()
	e := &stubEngine{records: map[string]ports.InputRecord{}}
	u, err := NewUseCase(e)
	if err != nil {
		t.Fatalf("new use case: %v", err)
	}
	return u, e
}

func TestNewUseCase_HasSchemaForEveryInput(t *testing.T) {
	u, _ := newUseCase(t)
	for _, name := range game.InputNames() {
		if u.schemas[name] == nil {
			t.Fatalf("missing schema for %s", name)
		}
	}
}

func TestSubmit_Validation(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		args    string
		wantErr error
	}{
		{name: "valid move", input: game.InputMoveTo, args: `{"playerId":"p:1","destination":{"x":3,"y":4}}`},
		{name: "stop moving", input: game.InputMoveTo, args: `{"playerId":"p:1","destination":null}`},
		{name: "fractional destination", input: game.InputMoveTo, args: `{"playerId":"p:1","destination":{"x":3.5,"y":4}}`, wantErr: ErrInvalidArgs},
		{name: "missing invitee", input: game.InputStartConversation, args: `{"playerId":"p:1"}`, wantErr: ErrInvalidArgs},
		{name: "extra field", input: game.InputLeave, args: `{"playerId":"p:1","force":true}`, wantErr: ErrInvalidArgs},
		{name: "not json", input: game.InputLeave, args: `{`, wantErr: ErrInvalidArgs},
		{name: "unknown", input: "teleport", args: `{}`, wantErr: ErrUnknownInput},
		{name: "empty name", input: " ", args: `{}`, wantErr: ErrInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, e := newUseCase(t)
			_, err := u.Submit(context.Background(), SubmitRequest{WorldID: "w1", Name: tt.input, Args: json.RawMessage(tt.args)})
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("submit: %v", err)
				}
				if len(e.inserted) != 1 {
					t.Fatalf("inserted: got=%d want=1", len(e.inserted))
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("got=%v want=%v", err, tt.wantErr)
			}
			if len(e.inserted) != 0 {
				t.Fatalf("invalid input reached the engine")
			}
		})
	}
}

func TestStatus(t *testing.T) {
	u, e := newUseCase(t)
	e.records["pending"] = ports.InputRecord{ID: "pending", Name: game.InputJoin}
	e.records["done"] = ports.InputRecord{ID: "done", ReturnValue: &ports.InputReturn{OK: true, Value: json.RawMessage(`"p:1"`)}}
	e.records["failed"] = ports.InputRecord{ID: "failed", ReturnValue: &ports.InputReturn{Message: "too many human players"}}

	tests := []struct {
		id   string
		want Status
	}{
		{id: "pending", want: StatusPending},
		{id: "done", want: StatusOK},
		{id: "failed", want: StatusError},
	}
	for _, tt := range tests {
		got, err := u.Status(context.Background(), tt.id)
		if err != nil {
			t.Fatalf("%s: %v", tt.id, err)
		}
		if got.Status != tt.want {
			t.Fatalf("%s: got=%s want=%s", tt.id, got.Status, tt.want)
		}
	}
	if _, err := u.Status(context.Background(), "missing"); !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("missing: got=%v want=%v", err, ports.ErrNotFound)
	}
}
