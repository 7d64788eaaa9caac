package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/common/hlog"

	"aitown/internal/app/ports"
	"aitown/internal/domain/agent"
	"aitown/internal/domain/game"
)

type stepResult struct {
	skipped    SkipReason
	retryAt    int64
	generation int64
	nextRun    int64
	ops        []game.Operation
	summary    ports.StepSummary
}

// RunStep advances one world from its last simulated tick up to now. A call
// carrying an outdated generation is a no-op.
func (u UseCase) RunStep(ctx context.Context, req StepRequest) (StepResponse, error) {
	req.WorldID = strings.TrimSpace(req.WorldID)
	if req.WorldID == "" {
		return StepResponse{}, ErrInvalidRequest
	}
	began := time.Now()

	var res stepResult
	err := u.TxManager.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		res, err = u.step(txCtx, req)
		return err
	})
	if err != nil {
		if u.Metrics != nil {
			if errors.Is(err, ports.ErrConflict) {
				u.Metrics.RecordConflict()
			} else {
				u.Metrics.RecordFailure()
			}
		}
		if errors.Is(err, game.ErrInvariant) {
			hlog.CtxErrorf(ctx, "engine: world %s step aborted: %v", req.WorldID, err)
			return StepResponse{}, fmt.Errorf("%w: %w", ports.ErrPermanent, err)
		}
		if errors.Is(err, ports.ErrNotFound) {
			return StepResponse{}, fmt.Errorf("%w: %w", ports.ErrPermanent, err)
		}
		return StepResponse{}, err
	}

	switch res.skipped {
	case SkipStale, SkipStopped:
		hlog.CtxDebugf(ctx, "engine: world %s generation %d skipped: %s", req.WorldID, req.Generation, res.skipped)
		if u.Metrics != nil {
			u.Metrics.RecordStale()
		}
		return StepResponse{Skipped: res.skipped}, nil
	case SkipNotYetTime:
		u.schedule(req.WorldID, req.Generation, res.retryAt)
		return StepResponse{Skipped: res.skipped}, nil
	}

	u.schedule(req.WorldID, res.generation, res.nextRun)
	if u.Dispatcher != nil && len(res.ops) > 0 {
		u.Dispatcher.Dispatch(ctx, req.WorldID, res.ops)
	}
	res.summary.Duration = time.Since(began)
	if u.Observer != nil {
		u.Observer.StepCommitted(ctx, res.summary)
	}
	if u.Metrics != nil {
		u.Metrics.RecordStep(res.summary)
	}
	return StepResponse{Summary: res.summary}, nil
}

func (u UseCase) step(ctx context.Context, req StepRequest) (stepResult, error) {
	tuning := u.tuning()
	eng, err := u.Engines.Get(ctx, req.WorldID)
	if err != nil {
		return stepResult{}, err
	}
	if eng.GenerationNumber != req.Generation {
		return stepResult{skipped: SkipStale}, nil
	}
	if eng.Status != ports.EngineRunning {
		return stepResult{skipped: SkipStopped}, nil
	}
	now := u.nowMs()
	if eng.CurrentTime != nil && now < *eng.CurrentTime {
		return stepResult{}, fmt.Errorf("%w: now=%d current=%d world=%s", ErrClockBackward, now, *eng.CurrentTime, req.WorldID)
	}
	start := now
	if eng.CurrentTime != nil {
		start = *eng.CurrentTime + tuning.TickDuration
	}
	if start > now {
		return stepResult{skipped: SkipNotYetTime, retryAt: start}, nil
	}

	inputs, err := u.Inputs.ListPending(ctx, req.WorldID, eng.ProcessedInputNumber, tuning.MaxInputsPerStep)
	if err != nil {
		return stepResult{}, err
	}
	leftSince := now - max(tuning.PlayerConversationCooldown, tuning.ConversationCooldown)
	snap, err := u.State.Load(ctx, req.WorldID, leftSince)
	if err != nil {
		return stepResult{}, err
	}
	s := game.NewState(snap, tuning, start)
	sched := agent.NewScheduler(s)
	s.SetAgentRunner(sched)

	type completion struct {
		number int64
		rv     ports.InputReturn
	}
	var (
		completed    []completion
		inputErrors  int
		next         int
		ticks        int
		currentTs    = start
		tickExhaust  = true
		inputExhaust = len(inputs) >= tuning.MaxInputsPerStep
	)
	for ticks < tuning.MaxTicksPerStep {
		for next < len(inputs) && inputs[next].ReceivedTime <= currentTs {
			in := inputs[next]
			next++
			rv, err := applyInput(s, currentTs, in)
			if err != nil {
				return stepResult{}, err
			}
			if !rv.OK {
				inputErrors++
				hlog.CtxDebugf(ctx, "engine: input %s (%s) failed: %s", in.ID, in.Name, rv.Message)
			}
			completed = append(completed, completion{number: in.Number, rv: rv})
			s.Emit(game.Event{Kind: game.EventInputCompleted, Time: currentTs, InputID: in.ID})
		}
		if err := s.Tick(currentTs); err != nil {
			return stepResult{}, err
		}
		ticks++

		candidate := currentTs + tuning.TickDuration
		if idle := s.IdleUntil(currentTs); idle != nil {
			c := min(*idle, now)
			if next < len(inputs) {
				c = min(c, inputs[next].ReceivedTime)
			}
			candidate = max(candidate, c)
		}
		if now < candidate {
			tickExhaust = false
			break
		}
		currentTs = candidate
	}
	if ticks < tuning.MaxTicksPerStep {
		tickExhaust = false
	}
	inputExhaust = inputExhaust && next == len(inputs)

	nextRun := now + tuning.StepDuration
	switch {
	case tickExhaust || inputExhaust || len(s.EmittedInputs()) > 0:
		nextRun = now
	default:
		if idle := s.IdleUntil(currentTs); idle != nil {
			nextRun = *idle
		}
	}
	if next < len(inputs) {
		nextRun = min(nextRun, inputs[next].ReceivedTime)
	}
	nextRun = max(nextRun, now)

	diff := s.Diff()
	if err := u.State.Save(ctx, req.WorldID, diff); err != nil {
		return stepResult{}, err
	}
	for _, c := range completed {
		if err := u.Inputs.Complete(ctx, req.WorldID, c.number, c.rv); err != nil {
			return stepResult{}, err
		}
	}
	emitted := s.EmittedInputs()
	if len(emitted) > 0 {
		last, err := u.Inputs.MaxNumber(ctx, req.WorldID)
		if err != nil {
			return stepResult{}, err
		}
		for i, e := range emitted {
			rec := ports.InputRecord{
				ID:           e.ID,
				WorldID:      req.WorldID,
				Number:       last + int64(i) + 1,
				Name:         e.Name,
				Args:         e.Args,
				ReceivedTime: e.ReceivedTime,
			}
			if err := u.Inputs.Append(ctx, rec); err != nil {
				return stepResult{}, err
			}
		}
	}

	updated := eng
	updated.CurrentTime = &currentTs
	updated.LastStepTs = &start
	if next > 0 {
		updated.ProcessedInputNumber = inputs[next-1].Number
	}
	updated.GenerationNumber = eng.GenerationNumber + 1
	updated.NextRun = &nextRun
	if err := u.Engines.SaveWithGeneration(ctx, updated, eng.GenerationNumber); err != nil {
		return stepResult{}, err
	}

	summary := ports.StepSummary{
		WorldID:         req.WorldID,
		Generation:      updated.GenerationNumber,
		StartTs:         start,
		EndTs:           currentTs,
		Ticks:           ticks,
		Inputs:          len(completed),
		InputErrors:     inputErrors,
		EmittedInputs:   len(emitted),
		Operations:      len(s.PendingOperations()),
		AgentDecisions:  sched.Decided,
		BudgetExhausted: tickExhaust || inputExhaust,
		NextRun:         nextRun,
		Messages:        diff.Messages,
	}
	return stepResult{
		generation: updated.GenerationNumber,
		nextRun:    nextRun,
		ops:        s.PendingOperations(),
		summary:    summary,
	}, nil
}

// applyInput runs one input handler. Handler errors become the input's
// result; only invariant violations abort the step.
func applyInput(s *game.State, now int64, in ports.InputRecord) (ports.InputReturn, error) {
	v, err := s.ApplyInput(now, in.Name, in.Args)
	if err != nil {
		if errors.Is(err, game.ErrInvariant) {
			return ports.InputReturn{}, fmt.Errorf("input %s (%s): %w", in.ID, in.Name, err)
		}
		return ports.InputReturn{OK: false, Message: err.Error()}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ports.InputReturn{}, fmt.Errorf("encode %s result: %w", in.Name, err)
	}
	return ports.InputReturn{OK: true, Value: b}, nil
}
