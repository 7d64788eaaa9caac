package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	memstore "aitown/internal/adapter/repo/memory"
	"aitown/internal/app/ports"
	"aitown/internal/domain/game"
)

const testWorld = "w-test"

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type scheduledJob struct {
	at  time.Time
	job ports.Job
}

type fakeScheduler struct {
	mu   sync.Mutex
	jobs []scheduledJob
}

func (f *fakeScheduler) ScheduleAt(at time.Time, job ports.Job) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, scheduledJob{at: at, job: job})
}

func (f *fakeScheduler) ScheduleAfter(d time.Duration, job ports.Job) {
	f.ScheduleAt(time.UnixMilli(0).Add(d), job)
}

func (f *fakeScheduler) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.jobs)
}

func (f *fakeScheduler) last() scheduledJob {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.jobs[len(f.jobs)-1]
}

// flakyInputs fails ListPending a fixed number of times.
type flakyInputs struct {
	ports.InputRepository
	failures int
}

func (f *flakyInputs) ListPending(ctx context.Context, worldID string, after int64, limit int) ([]ports.InputRecord, error) {
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("connection reset by peer")
	}
	return f.InputRepository.ListPending(ctx, worldID, after, limit)
}

type staticAssets struct {
	assets ports.WorldAssets
}

func (a staticAssets) Load(context.Context) (ports.WorldAssets, error) { return a.assets, nil }

type recordingDispatcher struct {
	ops []game.Operation
}

func (d *recordingDispatcher) Dispatch(_ context.Context, _ string, ops []game.Operation) {
	d.ops = append(d.ops, ops...)
}

type harness struct {
	uc    UseCase
	store *memstore.Store
	clock *fakeClock
	sched *fakeScheduler
	ops   *recordingDispatcher
}

func openMap(w, h int) game.Map {
	rows := make([][]bool, h)
	for y := range rows {
		rows[y] = make([]bool, w)
	}
	return game.Map{Width: w, Height: h, Blocked: rows}
}

func newHarness(t *testing.T, tuning game.Tuning, agents ...game.CreateAgentArgs) *harness {
	t.Helper()
	store := memstore.NewStore()
	clock := &fakeClock{now: time.UnixMilli(1_700_000_000_000)}
	sched := &fakeScheduler{}
	ops := &recordingDispatcher{}
	var n int
	state := memstore.NewWorldStateRepo(store)
	h := &harness{
		store: store,
		clock: clock,
		sched: sched,
		ops:   ops,
		uc: UseCase{
			TxManager:  memstore.NewTxManager(store),
			Engines:    memstore.NewEngineRepo(store),
			Inputs:     memstore.NewInputRepo(store),
			State:      state,
			Assets:     staticAssets{assets: ports.WorldAssets{Map: openMap(10, 10), Agents: agents}},
			Scheduler:  sched,
			Dispatcher: ops,
			Tuning:     tuning,
			Now:        clock.Now,
			NewID: func() string {
				n++
				return fmt.Sprintf("in-%03d", n)
			},
		},
	}
	if _, err := h.uc.CreateWorld(context.Background(), CreateWorldRequest{WorldID: testWorld, Seed: 7}); err != nil {
		t.Fatalf("create world: %v", err)
	}
	return h
}

func (h *harness) engine(t *testing.T) ports.EngineRecord {
	t.Helper()
	rec, err := h.uc.Engines.Get(context.Background(), testWorld)
	if err != nil {
		t.Fatalf("get engine: %v", err)
	}
	return rec
}

// step runs the world with its current generation.
func (h *harness) step(t *testing.T) StepResponse {
	t.Helper()
	resp, err := h.uc.RunStep(context.Background(), StepRequest{WorldID: testWorld, Generation: h.engine(t).GenerationNumber})
	if err != nil {
		t.Fatalf("run step: %v", err)
	}
	return resp
}

func (h *harness) insert(t *testing.T, name string, args any) InsertInputResponse {
	t.Helper()
	b, err := json.Marshal(args)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	resp, err := h.uc.InsertInput(context.Background(), InsertInputRequest{WorldID: testWorld, Name: name, Args: b})
	if err != nil {
		t.Fatalf("insert %s: %v", name, err)
	}
	return resp
}

func (h *harness) input(t *testing.T, id string) ports.InputRecord {
	t.Helper()
	rec, err := h.uc.InputStatus(context.Background(), id)
	if err != nil {
		t.Fatalf("input %s: %v", id, err)
	}
	return rec
}

func (h *harness) snapshot(t *testing.T) game.Snapshot {
	t.Helper()
	snap, err := h.uc.State.Load(context.Background(), testWorld, 0)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	return snap
}

func jsonValue(rec ports.InputRecord, dst any) error {
	if rec.ReturnValue == nil || !rec.ReturnValue.OK {
		return fmt.Errorf("input %s has no ok result", rec.ID)
	}
	return json.Unmarshal(rec.ReturnValue.Value, dst)
}
