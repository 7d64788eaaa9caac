package engine

import (
	"context"
	"errors"
	"strings"

	"github.com/cloudwego/hertz/pkg/common/hlog"

	"aitown/internal/app/ports"
)

// InsertInput appends an input to the world's queue. When the engine sleeps
// past the input's receipt by more than the preemption threshold, the
// pending run is superseded by an immediate one. A run overdue by more than
// the threshold is superseded the same way, so a world whose step was lost
// resumes on the next input.
func (u UseCase) InsertInput(ctx context.Context, req InsertInputRequest) (InsertInputResponse, error) {
	req.WorldID = strings.TrimSpace(req.WorldID)
	req.Name = strings.TrimSpace(req.Name)
	if req.WorldID == "" || req.Name == "" {
		return InsertInputResponse{}, ErrInvalidRequest
	}
	if len(req.Args) == 0 {
		req.Args = []byte("{}")
	}
	tuning := u.tuning()
	id := u.newID()

	var (
		out        InsertInputResponse
		preemptGen int64
		err        error
	)
	for attempt := 0; attempt < maxInsertAttempts; attempt++ {
		out, preemptGen = InsertInputResponse{}, 0
		err = u.TxManager.RunInTx(ctx, func(txCtx context.Context) error {
			eng, err := u.Engines.Get(txCtx, req.WorldID)
			if err != nil {
				return err
			}
			last, err := u.Inputs.MaxNumber(txCtx, req.WorldID)
			if err != nil {
				return err
			}
			now := u.nowMs()
			rec := ports.InputRecord{
				ID:           id,
				WorldID:      req.WorldID,
				Number:       last + 1,
				Name:         req.Name,
				Args:         req.Args,
				ReceivedTime: now,
			}
			if err := u.Inputs.Append(txCtx, rec); err != nil {
				return err
			}
			out = InsertInputResponse{InputID: id, Number: rec.Number, ReceivedTime: now}

			if eng.Status != ports.EngineRunning || !needsPreemption(eng.NextRun, now, tuning.PreemptionThreshold) {
				return nil
			}
			updated := eng
			updated.GenerationNumber = eng.GenerationNumber + 1
			updated.NextRun = &now
			if err := u.Engines.SaveWithGeneration(txCtx, updated, eng.GenerationNumber); err != nil {
				return err
			}
			preemptGen = updated.GenerationNumber
			out.Preempted = true
			return nil
		})
		if !errors.Is(err, ports.ErrConflict) {
			break
		}
		hlog.CtxDebugf(ctx, "engine: insert %s into world %s conflicted, attempt %d", req.Name, req.WorldID, attempt+1)
	}
	if err != nil {
		return InsertInputResponse{}, err
	}
	if out.Preempted {
		u.schedule(req.WorldID, preemptGen, out.ReceivedTime)
	}
	return out, nil
}

func needsPreemption(nextRun *int64, now, threshold int64) bool {
	if nextRun == nil {
		return true
	}
	return *nextRun > now+threshold || *nextRun < now-threshold
}

// InputStatus reports the stored input, including its result once processed.
func (u UseCase) InputStatus(ctx context.Context, inputID string) (ports.InputRecord, error) {
	inputID = strings.TrimSpace(inputID)
	if inputID == "" {
		return ports.InputRecord{}, ErrInvalidRequest
	}
	return u.Inputs.GetByID(ctx, inputID)
}
