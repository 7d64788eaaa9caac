package inmemory

import (
	"sync"
	"time"

	"aitown/internal/app/ports"
)

type Snapshot struct {
	StepTotal       uint64            `json:"step_total"`
	StepCommitted   uint64            `json:"step_committed"`
	StepStale       uint64            `json:"step_stale"`
	StepConflict    uint64            `json:"step_conflict"`
	StepFailure     uint64            `json:"step_failure"`
	TicksTotal      uint64            `json:"ticks_total"`
	InputsTotal     uint64            `json:"inputs_total"`
	InputErrors     uint64            `json:"input_errors"`
	AgentDecisions  uint64            `json:"agent_decisions"`
	BudgetExhausted uint64            `json:"budget_exhausted"`
	AvgStepMillis   float64           `json:"avg_step_ms"`
	ByWorld         map[string]uint64 `json:"steps_by_world"`
}

type Recorder struct {
	mu        sync.Mutex
	committed uint64
	stale     uint64
	conflict  uint64
	failure   uint64
	ticks     uint64
	inputs    uint64
	inputErrs uint64
	decisions uint64
	exhausted uint64
	elapsed   time.Duration
	byWorld   map[string]uint64
}

func NewRecorder() *Recorder {
	return &Recorder{
		byWorld: map[string]uint64{},
	}
}

func (r *Recorder) RecordStep(s ports.StepSummary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed++
	r.ticks += uint64(s.Ticks)
	r.inputs += uint64(s.Inputs)
	r.inputErrs += uint64(s.InputErrors)
	r.decisions += uint64(s.AgentDecisions)
	if s.BudgetExhausted {
		r.exhausted++
	}
	r.elapsed += s.Duration
	r.byWorld[s.WorldID]++
}

func (r *Recorder) RecordStale() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stale++
}

func (r *Recorder) RecordConflict() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conflict++
}

func (r *Recorder) RecordFailure() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failure++
}

func (r *Recorder) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := Snapshot{
		StepCommitted:   r.committed,
		StepStale:       r.stale,
		StepConflict:    r.conflict,
		StepFailure:     r.failure,
		StepTotal:       r.committed + r.stale + r.conflict + r.failure,
		TicksTotal:      r.ticks,
		InputsTotal:     r.inputs,
		InputErrors:     r.inputErrs,
		AgentDecisions:  r.decisions,
		BudgetExhausted: r.exhausted,
		ByWorld:         make(map[string]uint64, len(r.byWorld)),
	}
	if r.committed > 0 {
		out.AvgStepMillis = float64(r.elapsed.Microseconds()) / 1000 / float64(r.committed)
	}
	for k, v := range r.byWorld {
		out.ByWorld[k] = v
	}
	return out
}

func (r *Recorder) SnapshotAny() any {
	return r.Snapshot()
}
