package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"aitown/internal/app/engine"
	"aitown/internal/app/input"
	"aitown/internal/app/observe"
	"aitown/internal/app/ports"
	"aitown/internal/app/replay"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
)

const defaultStepLimit = 50

type Handler struct {
	EngineUC  engine.UseCase
	InputUC   input.UseCase
	ObserveUC observe.UseCase
	ReplayUC  replay.UseCase
	Steps     ports.StepIndex
	KPI       kpiSnapshotProvider

	// CORSOrigins restricts browser origins; empty allows any.
	CORSOrigins []string
}

type kpiSnapshotProvider interface {
	SnapshotAny() any
}

func (h Handler) RegisterRoutes(s *server.Hertz) {
	s.Use(corsMiddleware(h.CORSOrigins))

	api := s.Group("/api")
	api.POST("/worlds", h.createWorld)
	api.GET("/inputs/:input_id", h.inputStatus)

	w := api.Group("/worlds/:world_id")
	w.POST("/inputs", h.submitInput)
	w.GET("/engine", h.engineStatus)
	w.POST("/engine/start", h.startEngine)
	w.POST("/engine/stop", h.stopEngine)
	w.POST("/engine/kick", h.kickEngine)
	w.GET("/state", h.state)
	w.GET("/replay", h.replay)
	w.GET("/steps", h.steps)
	w.GET("/conversations/:conversation_id/messages", h.messages)

	s.GET("/ops/kpi", h.kpi)
}

type createWorldRequest struct {
	WorldID string `json:"world_id"`
	Seed    int64  `json:"seed"`
}

func (h Handler) createWorld(c context.Context, ctx *app.RequestContext) {
	var body createWorldRequest
	if err := decodeJSON(ctx, &body); err != nil {
		writeErrorBody(ctx, consts.StatusBadRequest, "invalid_json", "invalid json")
		return
	}
	resp, err := h.EngineUC.CreateWorld(c, engine.CreateWorldRequest{WorldID: body.WorldID, Seed: body.Seed})
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(consts.StatusCreated, resp)
}

func (h Handler) submitInput(c context.Context, ctx *app.RequestContext) {
	var body input.SubmitRequest
	if err := decodeJSON(ctx, &body); err != nil {
		writeErrorBody(ctx, consts.StatusBadRequest, "invalid_json", "invalid json")
		return
	}
	body.WorldID = ctx.Param("world_id")
	resp, err := h.InputUC.Submit(c, body)
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(consts.StatusAccepted, resp)
}

func (h Handler) inputStatus(c context.Context, ctx *app.RequestContext) {
	resp, err := h.InputUC.Status(c, ctx.Param("input_id"))
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, resp)
}

func (h Handler) engineStatus(c context.Context, ctx *app.RequestContext) {
	h.engineCall(c, ctx, h.EngineUC.EngineStatus)
}

func (h Handler) startEngine(c context.Context, ctx *app.RequestContext) {
	h.engineCall(c, ctx, h.EngineUC.StartEngine)
}

func (h Handler) stopEngine(c context.Context, ctx *app.RequestContext) {
	h.engineCall(c, ctx, h.EngineUC.StopEngine)
}

func (h Handler) kickEngine(c context.Context, ctx *app.RequestContext) {
	h.engineCall(c, ctx, h.EngineUC.KickEngine)
}

func (h Handler) engineCall(c context.Context, ctx *app.RequestContext, fn func(context.Context, string) (engine.EngineResponse, error)) {
	resp, err := fn(c, ctx.Param("world_id"))
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, resp)
}

func (h Handler) state(c context.Context, ctx *app.RequestContext) {
	resp, err := h.ObserveUC.Execute(c, observe.Request{WorldID: ctx.Param("world_id")})
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, resp)
}

func (h Handler) replay(c context.Context, ctx *app.RequestContext) {
	var ids []string
	for _, id := range strings.Split(string(ctx.Query("location_ids")), ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	packed, _ := strconv.ParseBool(string(ctx.Query("packed")))
	resp, err := h.ReplayUC.Execute(c, replay.Request{
		WorldID:     ctx.Param("world_id"),
		LocationIDs: ids,
		Packed:      packed,
	})
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, resp)
}

func (h Handler) messages(c context.Context, ctx *app.RequestContext) {
	limit, _ := strconv.Atoi(string(ctx.Query("limit")))
	resp, err := h.ObserveUC.ListMessages(c, observe.MessagesRequest{
		WorldID:        ctx.Param("world_id"),
		ConversationID: ctx.Param("conversation_id"),
		Limit:          limit,
	})
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, resp)
}

func (h Handler) steps(c context.Context, ctx *app.RequestContext) {
	if h.Steps == nil {
		writeErrorBody(ctx, consts.StatusNotFound, "not_configured", "step index not configured")
		return
	}
	worldID := strings.TrimSpace(ctx.Param("world_id"))
	if worldID == "" {
		writeErrorBody(ctx, consts.StatusBadRequest, "bad_request", "world_id is required")
		return
	}
	limit, _ := strconv.Atoi(string(ctx.Query("limit")))
	if limit <= 0 {
		limit = defaultStepLimit
	}
	rows, err := h.Steps.RecentSteps(c, worldID, limit)
	if err != nil {
		writeError(ctx, err)
		return
	}
	if rows == nil {
		rows = []ports.StepRow{}
	}
	ctx.JSON(consts.StatusOK, map[string]any{"steps": rows})
}

func (h Handler) kpi(_ context.Context, ctx *app.RequestContext) {
	if h.KPI == nil {
		writeErrorBody(ctx, consts.StatusNotFound, "not_configured", "kpi provider not configured")
		return
	}
	ctx.JSON(consts.StatusOK, h.KPI.SnapshotAny())
}

func decodeJSON(ctx *app.RequestContext, out any) error {
	body := ctx.Request.Body()
	if len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, out)
}

func writeError(ctx *app.RequestContext, err error) {
	switch {
	case errors.Is(err, input.ErrUnknownInput):
		writeErrorBody(ctx, consts.StatusBadRequest, "unknown_input", err.Error())
	case errors.Is(err, input.ErrInvalidArgs):
		writeErrorBody(ctx, consts.StatusBadRequest, "invalid_args", err.Error())
	case errors.Is(err, input.ErrInvalidRequest),
		errors.Is(err, engine.ErrInvalidRequest),
		errors.Is(err, observe.ErrInvalidRequest),
		errors.Is(err, replay.ErrInvalidRequest):
		writeErrorBody(ctx, consts.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, engine.ErrEngineStopped):
		writeErrorBody(ctx, consts.StatusConflict, "engine_stopped", err.Error())
	case errors.Is(err, ports.ErrNotFound):
		writeErrorBody(ctx, consts.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, ports.ErrConflict):
		writeErrorBody(ctx, consts.StatusConflict, "conflict", err.Error())
	default:
		writeErrorBody(ctx, consts.StatusInternalServerError, "internal_error", "internal error")
	}
}

func writeErrorBody(ctx *app.RequestContext, status int, code, message string) {
	ctx.JSON(status, map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}
