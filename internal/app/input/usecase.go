package input

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"aitown/internal/app/engine"
	"aitown/internal/app/ports"
	"aitown/internal/domain/game"
)

var (
	ErrInvalidRequest = errors.New("invalid input request")
	ErrUnknownInput   = errors.New("unknown input name")
	ErrInvalidArgs    = errors.New("invalid input args")
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

type Engine interface {
	InsertInput(ctx context.Context, req engine.InsertInputRequest) (engine.InsertInputResponse, error)
	InputStatus(ctx context.Context, inputID string) (ports.InputRecord, error)
}

// UseCase validates external inputs against their JSON schema before they
// reach the engine queue.
type UseCase struct {
	Engine  Engine
	schemas map[string]*jsonschema.Schema
}

func NewUseCase(e Engine) (UseCase, error) {
	schemas, err := compileSchemas()
	if err != nil {
		return UseCase{}, err
	}
	return UseCase{Engine: e, schemas: schemas}, nil
}

func compileSchemas() (map[string]*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	out := make(map[string]*jsonschema.Schema, len(game.InputNames()))
	for _, name := range game.InputNames() {
		path := "schemas/" + name + ".schema.json"
		b, err := schemaFS.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("schema for %s: %w", name, err)
		}
		if err := c.AddResource(path, bytes.NewReader(b)); err != nil {
			return nil, fmt.Errorf("add schema %s: %w", name, err)
		}
		s, err := c.Compile(path)
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", name, err)
		}
		out[name] = s
	}
	return out, nil
}

func (u UseCase) Submit(ctx context.Context, req SubmitRequest) (SubmitResponse, error) {
	req.WorldID = strings.TrimSpace(req.WorldID)
	req.Name = strings.TrimSpace(req.Name)
	if req.WorldID == "" || req.Name == "" {
		return SubmitResponse{}, ErrInvalidRequest
	}
	schema, ok := u.schemas[req.Name]
	if !ok {
		return SubmitResponse{}, fmt.Errorf("%w: %s", ErrUnknownInput, req.Name)
	}
	if len(req.Args) == 0 {
		req.Args = json.RawMessage("{}")
	}
	var doc any
	if err := json.Unmarshal(req.Args, &doc); err != nil {
		return SubmitResponse{}, fmt.Errorf("%w: %v", ErrInvalidArgs, err)
	}
	if err := schema.Validate(doc); err != nil {
		return SubmitResponse{}, fmt.Errorf("%w: %v", ErrInvalidArgs, err)
	}
	resp, err := u.Engine.InsertInput(ctx, engine.InsertInputRequest{WorldID: req.WorldID, Name: req.Name, Args: req.Args})
	if err != nil {
		return SubmitResponse{}, err
	}
	return SubmitResponse{InputID: resp.InputID, Number: resp.Number, ReceivedTime: resp.ReceivedTime}, nil
}

func (u UseCase) Status(ctx context.Context, inputID string) (StatusResponse, error) {
	inputID = strings.TrimSpace(inputID)
	if inputID == "" {
		return StatusResponse{}, ErrInvalidRequest
	}
	rec, err := u.Engine.InputStatus(ctx, inputID)
	if err != nil {
		return StatusResponse{}, err
	}
	out := StatusResponse{InputID: rec.ID, Name: rec.Name, Number: rec.Number, Status: StatusPending}
	if rv := rec.ReturnValue; rv != nil {
		if rv.OK {
			out.Status = StatusOK
			out.Value = rv.Value
		} else {
			out.Status = StatusError
			out.Message = rv.Message
		}
	}
	return out, nil
}
