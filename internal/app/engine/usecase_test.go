package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"aitown/internal/app/ports"
	"aitown/internal/domain/game"
	"aitown/internal/domain/geometry"
)

func TestRunStep_StaleGenerationIsNoop(t *testing.T) {
	h := newHarness(t, game.DefaultTuning(), game.CreateAgentArgs{Name: "ada"})
	h.step(t)
	engineBefore := h.engine(t)
	snapBefore := h.snapshot(t)
	jobs := h.sched.count()

	resp, err := h.uc.RunStep(context.Background(), StepRequest{WorldID: testWorld, Generation: engineBefore.GenerationNumber - 1})
	if err != nil {
		t.Fatalf("stale step: %v", err)
	}
	if resp.Skipped != SkipStale {
		t.Fatalf("skipped: got=%q want=%q", resp.Skipped, SkipStale)
	}
	if diff := cmp.Diff(engineBefore, h.engine(t)); diff != "" {
		t.Fatalf("engine changed (-before +after):\n%s", diff)
	}
	if diff := cmp.Diff(snapBefore, h.snapshot(t)); diff != "" {
		t.Fatalf("world changed (-before +after):\n%s", diff)
	}
	if h.sched.count() != jobs {
		t.Fatalf("stale step scheduled work: got=%d want=%d", h.sched.count(), jobs)
	}
}

func TestRunStep_BumpsGenerationAndSchedulesOnce(t *testing.T) {
	h := newHarness(t, game.DefaultTuning())
	before := h.engine(t)
	jobs := h.sched.count()
	h.step(t)
	after := h.engine(t)
	if after.GenerationNumber != before.GenerationNumber+1 {
		t.Fatalf("generation: got=%d want=%d", after.GenerationNumber, before.GenerationNumber+1)
	}
	if got := h.sched.count() - jobs; got != 1 {
		t.Fatalf("scheduled runs: got=%d want=1", got)
	}
	if at := h.sched.last().at.UnixMilli(); after.NextRun == nil || at != *after.NextRun {
		t.Fatalf("schedule time %d does not match next run %v", at, after.NextRun)
	}
}

func TestRunStep_IsDeterministic(t *testing.T) {
	agents := []game.CreateAgentArgs{{Name: "ada", Identity: "curious"}, {Name: "bo", Identity: "grumpy"}, {Name: "cy"}}
	run := func() (game.Snapshot, []ports.InputRecord) {
		h := newHarness(t, game.DefaultTuning(), agents...)
		for i := 0; i < 6; i++ {
			if i == 2 {
				h.insert(t, game.InputJoin, game.JoinArgs{Name: "human", TokenIdentifier: "tok-1"})
			}
			h.step(t)
			h.clock.Advance(700 * time.Millisecond)
		}
		inputs, err := h.uc.Inputs.ListPending(context.Background(), testWorld, 0, 0)
		if err != nil {
			t.Fatalf("list inputs: %v", err)
		}
		return h.snapshot(t), inputs
	}
	snapA, inputsA := run()
	snapB, inputsB := run()
	if diff := cmp.Diff(snapA, snapB); diff != "" {
		t.Fatalf("world state differs between runs (-a +b):\n%s", diff)
	}
	if diff := cmp.Diff(inputsA, inputsB); diff != "" {
		t.Fatalf("inputs differ between runs (-a +b):\n%s", diff)
	}
	if len(snapA.Players) != 4 {
		t.Fatalf("players: got=%d want=4", len(snapA.Players))
	}
}

func TestRunStep_AppliesInputsInNumberOrder(t *testing.T) {
	h := newHarness(t, game.DefaultTuning())
	first := h.insert(t, game.InputJoin, game.JoinArgs{Name: "first", TokenIdentifier: "tok"})
	second := h.insert(t, game.InputJoin, game.JoinArgs{Name: "second", TokenIdentifier: "tok"})
	h.step(t)

	a, b := h.input(t, first.InputID), h.input(t, second.InputID)
	if a.ReturnValue == nil || !a.ReturnValue.OK {
		t.Fatalf("first join should succeed: %+v", a.ReturnValue)
	}
	if b.ReturnValue == nil || b.ReturnValue.OK || b.ReturnValue.Message != game.ErrAlreadyJoined.Error() {
		t.Fatalf("second join should fail with %q: %+v", game.ErrAlreadyJoined, b.ReturnValue)
	}
	if got := h.engine(t).ProcessedInputNumber; got != second.Number {
		t.Fatalf("processed: got=%d want=%d", got, second.Number)
	}
}

func TestRunStep_CapturesInputErrors(t *testing.T) {
	h := newHarness(t, game.DefaultTuning())
	in := h.insert(t, "teleport", map[string]any{"x": 1})
	resp := h.step(t)
	rec := h.input(t, in.InputID)
	if rec.ReturnValue == nil || rec.ReturnValue.OK || !strings.Contains(rec.ReturnValue.Message, "unknown input") {
		t.Fatalf("unknown input result: %+v", rec.ReturnValue)
	}
	if resp.Summary.InputErrors != 1 {
		t.Fatalf("input errors: got=%d want=1", resp.Summary.InputErrors)
	}
}

func TestRunStep_InputBudgetForcesImmediateRerun(t *testing.T) {
	tuning := game.DefaultTuning()
	tuning.MaxInputsPerStep = 2
	h := newHarness(t, tuning)
	h.insert(t, game.InputJoin, game.JoinArgs{Name: "a", TokenIdentifier: "a"})
	h.insert(t, game.InputJoin, game.JoinArgs{Name: "b", TokenIdentifier: "b"})
	third := h.insert(t, game.InputJoin, game.JoinArgs{Name: "c", TokenIdentifier: "c"})

	resp := h.step(t)
	eng := h.engine(t)
	if !resp.Summary.BudgetExhausted {
		t.Fatalf("expected budget exhaustion")
	}
	if eng.ProcessedInputNumber != 2 {
		t.Fatalf("processed: got=%d want=2", eng.ProcessedInputNumber)
	}
	if now := h.clock.Now().UnixMilli(); *eng.NextRun != now {
		t.Fatalf("next run: got=%d want=%d", *eng.NextRun, now)
	}

	h.clock.Advance(100 * time.Millisecond)
	h.step(t)
	if rec := h.input(t, third.InputID); rec.ReturnValue == nil || !rec.ReturnValue.OK {
		t.Fatalf("third input not processed: %+v", rec.ReturnValue)
	}
}

func TestRunStep_TickBudgetForcesImmediateRerun(t *testing.T) {
	tuning := game.DefaultTuning()
	tuning.MaxTicksPerStep = 3
	h := newHarness(t, tuning)
	join := h.insert(t, game.InputJoin, game.JoinArgs{Name: "walker", TokenIdentifier: "w"})
	h.step(t)
	var playerID string
	if err := jsonValue(h.input(t, join.InputID), &playerID); err != nil {
		t.Fatalf("decode join result: %v", err)
	}
	dest := geometry.Point{X: 0, Y: 0}
	for _, l := range h.snapshot(t).Locations {
		if l.X < 5 {
			dest = geometry.Point{X: 9, Y: 9}
		}
	}
	h.insert(t, game.InputMoveTo, game.MoveToArgs{PlayerID: playerID, Destination: &dest})

	h.clock.Advance(time.Second)
	resp := h.step(t)
	if resp.Summary.Ticks != 3 || !resp.Summary.BudgetExhausted {
		t.Fatalf("ticks=%d exhausted=%v, want 3 and true", resp.Summary.Ticks, resp.Summary.BudgetExhausted)
	}
	if now := h.clock.Now().UnixMilli(); *h.engine(t).NextRun != now {
		t.Fatalf("next run: got=%d want=%d", *h.engine(t).NextRun, now)
	}
}

func TestRunStep_ClockBackwardIsFatal(t *testing.T) {
	h := newHarness(t, game.DefaultTuning())
	h.step(t)
	h.clock.Advance(-time.Second)
	_, err := h.uc.RunStep(context.Background(), StepRequest{WorldID: testWorld, Generation: h.engine(t).GenerationNumber})
	if !errors.Is(err, ErrClockBackward) || !errors.Is(err, game.ErrInvariant) {
		t.Fatalf("got=%v want=%v", err, ErrClockBackward)
	}
}

func TestRunStep_EarlyRunReschedulesWithoutTicking(t *testing.T) {
	h := newHarness(t, game.DefaultTuning())
	h.step(t)
	before := h.engine(t)
	resp := h.step(t)
	if resp.Skipped != SkipNotYetTime {
		t.Fatalf("skipped: got=%q want=%q", resp.Skipped, SkipNotYetTime)
	}
	if diff := cmp.Diff(before, h.engine(t)); diff != "" {
		t.Fatalf("early run changed the engine:\n%s", diff)
	}
	if at, want := h.sched.last().at.UnixMilli(), *before.CurrentTime+game.DefaultTuning().TickDuration; at != want {
		t.Fatalf("retry at: got=%d want=%d", at, want)
	}
}

func TestInsertInput_PreemptsLongIdle(t *testing.T) {
	h := newHarness(t, game.DefaultTuning())
	h.step(t)
	idle := h.engine(t)
	if *idle.NextRun <= h.clock.Now().UnixMilli()+game.DefaultTuning().PreemptionThreshold {
		t.Fatalf("empty world should idle, next run %d", *idle.NextRun)
	}

	resp := h.insert(t, game.InputJoin, game.JoinArgs{Name: "late", TokenIdentifier: "late"})
	if !resp.Preempted {
		t.Fatalf("expected preemption")
	}
	eng := h.engine(t)
	if eng.GenerationNumber != idle.GenerationNumber+1 {
		t.Fatalf("generation: got=%d want=%d", eng.GenerationNumber, idle.GenerationNumber+1)
	}
	last := h.sched.last()
	if last.at.UnixMilli() != resp.ReceivedTime {
		t.Fatalf("preempting run at %d, want %d", last.at.UnixMilli(), resp.ReceivedTime)
	}

	// The superseded run is now a no-op; the preempting one processes the input.
	stale, err := h.uc.RunStep(context.Background(), StepRequest{WorldID: testWorld, Generation: idle.GenerationNumber})
	if err != nil || stale.Skipped != SkipStale {
		t.Fatalf("superseded run: skipped=%q err=%v", stale.Skipped, err)
	}
	h.clock.Advance(50 * time.Millisecond)
	if err := last.job.Run(context.Background()); err != nil {
		t.Fatalf("preempting run: %v", err)
	}
	if rec := h.input(t, resp.InputID); rec.ReturnValue == nil || !rec.ReturnValue.OK {
		t.Fatalf("input not processed: %+v", rec.ReturnValue)
	}
}

func TestInsertInput_NoPreemptionWhenRunIsSoon(t *testing.T) {
	h := newHarness(t, game.DefaultTuning())
	before := h.engine(t)
	resp := h.insert(t, game.InputJoin, game.JoinArgs{Name: "early", TokenIdentifier: "early"})
	if resp.Preempted {
		t.Fatalf("run already due, should not preempt")
	}
	if got := h.engine(t).GenerationNumber; got != before.GenerationNumber {
		t.Fatalf("generation: got=%d want=%d", got, before.GenerationNumber)
	}
}

func TestInsertInput_RevivesWorldAfterFailedStep(t *testing.T) {
	h := newHarness(t, game.DefaultTuning())
	flaky := &flakyInputs{InputRepository: h.uc.Inputs, failures: 1}
	h.uc.Inputs = flaky
	before := h.engine(t)
	jobs := h.sched.count()

	_, err := h.uc.RunStep(context.Background(), StepRequest{WorldID: testWorld, Generation: before.GenerationNumber})
	if err == nil || errors.Is(err, ports.ErrPermanent) {
		t.Fatalf("transient failure: got=%v want retryable error", err)
	}
	if h.sched.count() != jobs {
		t.Fatalf("failed step scheduled work: got=%d want=%d", h.sched.count()-jobs, 0)
	}

	h.clock.Advance(12 * time.Second)
	resp := h.insert(t, game.InputJoin, game.JoinArgs{Name: "late", TokenIdentifier: "late"})
	if !resp.Preempted {
		t.Fatalf("overdue run %d at now=%d should be superseded", *before.NextRun, resp.ReceivedTime)
	}
	last := h.sched.last()
	if last.at.UnixMilli() != resp.ReceivedTime {
		t.Fatalf("reviving run at %d, want %d", last.at.UnixMilli(), resp.ReceivedTime)
	}
	if err := last.job.Run(context.Background()); err != nil {
		t.Fatalf("reviving run: %v", err)
	}
	if rec := h.input(t, resp.InputID); rec.ReturnValue == nil || !rec.ReturnValue.OK {
		t.Fatalf("input not processed: %+v", rec.ReturnValue)
	}
}

func TestRunStep_InvariantFailureIsPermanent(t *testing.T) {
	h := newHarness(t, game.DefaultTuning())
	h.step(t)
	h.clock.Advance(-time.Minute)
	_, err := h.uc.RunStep(context.Background(), StepRequest{WorldID: testWorld, Generation: h.engine(t).GenerationNumber})
	if !errors.Is(err, ports.ErrPermanent) || !errors.Is(err, ErrClockBackward) {
		t.Fatalf("clock backward: got=%v want permanent %v", err, ErrClockBackward)
	}
}

func TestLifecycle_StopStartKick(t *testing.T) {
	h := newHarness(t, game.DefaultTuning())
	ctx := context.Background()
	stopped, err := h.uc.StopEngine(ctx, testWorld)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if resp := h.step(t); resp.Skipped != SkipStopped {
		t.Fatalf("stopped engine ran: %q", resp.Skipped)
	}
	if _, err := h.uc.KickEngine(ctx, testWorld); !errors.Is(err, ErrEngineStopped) {
		t.Fatalf("kick stopped engine: got=%v want=%v", err, ErrEngineStopped)
	}

	started, err := h.uc.StartEngine(ctx, testWorld)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if started.GenerationNumber != stopped.GenerationNumber+1 || started.Status != ports.EngineRunning {
		t.Fatalf("start: %+v", started)
	}
	if err := h.sched.last().job.Run(ctx); err != nil {
		t.Fatalf("scheduled run: %v", err)
	}
	if h.engine(t).GenerationNumber != started.GenerationNumber+1 {
		t.Fatalf("scheduled run did not step the engine")
	}
}

func TestResume_SchedulesRunningEngines(t *testing.T) {
	h := newHarness(t, game.DefaultTuning())
	jobs := h.sched.count()
	n, err := h.uc.Resume(context.Background())
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if n != 1 || h.sched.count() != jobs+1 {
		t.Fatalf("resume: n=%d scheduled=%d", n, h.sched.count()-jobs)
	}
}

func TestCreateWorld_QueuesAgentsAndRejectsDuplicates(t *testing.T) {
	h := newHarness(t, game.DefaultTuning(), game.CreateAgentArgs{Name: "ada"}, game.CreateAgentArgs{Name: "bo"})
	h.step(t)
	snap := h.snapshot(t)
	if len(snap.Agents) != 2 {
		t.Fatalf("agents: got=%d want=2", len(snap.Agents))
	}
	_, err := h.uc.CreateWorld(context.Background(), CreateWorldRequest{WorldID: testWorld})
	if !errors.Is(err, ports.ErrConflict) {
		t.Fatalf("duplicate world: got=%v want=%v", err, ports.ErrConflict)
	}
}
