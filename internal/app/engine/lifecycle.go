package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/hertz/pkg/common/hlog"

	"aitown/internal/app/ports"
	"aitown/internal/domain/game"
)

// CreateWorld stores a new world from the configured assets and queues one
// createAgent input per described agent. The engine starts running.
func (u UseCase) CreateWorld(ctx context.Context, req CreateWorldRequest) (EngineResponse, error) {
	req.WorldID = strings.TrimSpace(req.WorldID)
	if req.WorldID == "" || u.Assets == nil {
		return EngineResponse{}, ErrInvalidRequest
	}
	assets, err := u.Assets.Load(ctx)
	if err != nil {
		return EngineResponse{}, fmt.Errorf("load world assets: %w", err)
	}
	now := u.nowMs()
	rec := ports.EngineRecord{
		WorldID: req.WorldID,
		Status:  ports.EngineRunning,
		NextRun: &now,
	}
	err = u.TxManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := u.State.CreateWorld(txCtx, game.World{ID: req.WorldID, Seed: req.Seed}, assets.Map); err != nil {
			return err
		}
		if err := u.Engines.Create(txCtx, rec); err != nil {
			return err
		}
		for i, a := range assets.Agents {
			args, err := encodeArgs(a)
			if err != nil {
				return err
			}
			in := ports.InputRecord{
				ID:           u.newID(),
				WorldID:      req.WorldID,
				Number:       int64(i) + 1,
				Name:         game.InputCreateAgent,
				Args:         args,
				ReceivedTime: now,
			}
			if err := u.Inputs.Append(txCtx, in); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return EngineResponse{}, err
	}
	hlog.CtxInfof(ctx, "engine: created world %s with %d agents", req.WorldID, len(assets.Agents))
	u.schedule(req.WorldID, rec.GenerationNumber, now)
	return toEngineResponse(rec), nil
}

func (u UseCase) StartEngine(ctx context.Context, worldID string) (EngineResponse, error) {
	return u.transition(ctx, worldID, func(rec *ports.EngineRecord, now int64) error {
		rec.Status = ports.EngineRunning
		rec.NextRun = &now
		return nil
	})
}

func (u UseCase) StopEngine(ctx context.Context, worldID string) (EngineResponse, error) {
	return u.transition(ctx, worldID, func(rec *ports.EngineRecord, _ int64) error {
		rec.Status = ports.EngineStopped
		rec.NextRun = nil
		return nil
	})
}

// KickEngine forces an immediate run of a running engine.
func (u UseCase) KickEngine(ctx context.Context, worldID string) (EngineResponse, error) {
	return u.transition(ctx, worldID, func(rec *ports.EngineRecord, now int64) error {
		if rec.Status != ports.EngineRunning {
			return ErrEngineStopped
		}
		rec.NextRun = &now
		return nil
	})
}

func (u UseCase) EngineStatus(ctx context.Context, worldID string) (EngineResponse, error) {
	worldID = strings.TrimSpace(worldID)
	if worldID == "" {
		return EngineResponse{}, ErrInvalidRequest
	}
	rec, err := u.Engines.Get(ctx, worldID)
	if err != nil {
		return EngineResponse{}, err
	}
	return toEngineResponse(rec), nil
}

// transition bumps the generation so every outstanding run becomes stale,
// applies fn, and schedules the new run if the engine is left running.
func (u UseCase) transition(ctx context.Context, worldID string, fn func(rec *ports.EngineRecord, now int64) error) (EngineResponse, error) {
	worldID = strings.TrimSpace(worldID)
	if worldID == "" {
		return EngineResponse{}, ErrInvalidRequest
	}
	var (
		updated ports.EngineRecord
		err     error
	)
	for attempt := 0; attempt < maxInsertAttempts; attempt++ {
		err = u.TxManager.RunInTx(ctx, func(txCtx context.Context) error {
			rec, err := u.Engines.Get(txCtx, worldID)
			if err != nil {
				return err
			}
			updated = rec
			if err := fn(&updated, u.nowMs()); err != nil {
				return err
			}
			updated.GenerationNumber = rec.GenerationNumber + 1
			return u.Engines.SaveWithGeneration(txCtx, updated, rec.GenerationNumber)
		})
		if !errors.Is(err, ports.ErrConflict) {
			break
		}
	}
	if err != nil {
		return EngineResponse{}, err
	}
	if updated.Status == ports.EngineRunning && updated.NextRun != nil {
		u.schedule(worldID, updated.GenerationNumber, *updated.NextRun)
	}
	return toEngineResponse(updated), nil
}

// Resume reschedules every running engine, typically at process start.
// Runs are fenced by generation, so a duplicate schedule is harmless.
func (u UseCase) Resume(ctx context.Context) (int, error) {
	running, err := u.Engines.ListRunning(ctx)
	if err != nil {
		return 0, err
	}
	now := u.nowMs()
	for _, rec := range running {
		at := now
		if rec.NextRun != nil {
			at = max(*rec.NextRun, now)
		}
		u.schedule(rec.WorldID, rec.GenerationNumber, at)
	}
	if len(running) > 0 {
		hlog.CtxInfof(ctx, "engine: resumed %d running worlds", len(running))
	}
	return len(running), nil
}
