package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"aitown/internal/app/ports"
	"aitown/internal/domain/game"
)

var (
	ErrInvalidRequest = errors.New("invalid engine request")
	ErrClockBackward  = fmt.Errorf("%w: clock moved backward", game.ErrInvariant)
	ErrEngineStopped  = errors.New("engine stopped")
)

const maxInsertAttempts = 5

// UseCase owns the step loop of every world.
type UseCase struct {
	TxManager  ports.TxManager
	Engines    ports.EngineRepository
	Inputs     ports.InputRepository
	State      ports.WorldStateRepository
	Assets     ports.AssetProvider
	Scheduler  ports.Scheduler
	Dispatcher ports.OperationDispatcher
	Observer   ports.StepObserver
	Metrics    ports.EngineMetrics
	Tuning     game.Tuning
	Now        func() time.Time
	NewID      func() string
}

func (u UseCase) nowMs() int64 {
	if u.Now == nil {
		return time.Now().UnixMilli()
	}
	return u.Now().UnixMilli()
}

func (u UseCase) newID() string {
	if u.NewID == nil {
		return uuid.NewString()
	}
	return u.NewID()
}

func (u UseCase) tuning() game.Tuning {
	if u.Tuning.TickDuration <= 0 {
		return game.DefaultTuning()
	}
	return u.Tuning
}

// schedule queues exactly one run of worldID fenced by generation.
func (u UseCase) schedule(worldID string, generation, at int64) {
	if u.Scheduler == nil {
		return
	}
	u.Scheduler.ScheduleAt(time.UnixMilli(at), ports.Job{
		Name:    "runStep",
		WorldID: worldID,
		Run: func(ctx context.Context) error {
			_, err := u.RunStep(ctx, StepRequest{WorldID: worldID, Generation: generation})
			return err
		},
	})
}

func encodeArgs(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode input args: %w", err)
	}
	return b, nil
}
