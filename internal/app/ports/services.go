package ports

import (
	"context"
	"time"

	"aitown/internal/domain/game"
)

// Job is deferred work. Delivery is at least once; Run re-checks whatever
// fence it depends on.
type Job struct {
	Name    string
	WorldID string
	Run     func(ctx context.Context) error
}

type Scheduler interface {
	ScheduleAt(at time.Time, job Job)
	ScheduleAfter(d time.Duration, job Job)
}

type ChatMessage struct {
	Role    string
	Content string
}

type GenerateRequest struct {
	Messages      []ChatMessage
	MaxTokens     int
	StopSequences []string
}

type TextGenerator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// StepRow is one step as kept by a step index.
type StepRow struct {
	WorldID         string `json:"world_id"`
	Generation      int64  `json:"generation"`
	StartTs         int64  `json:"start_ts"`
	EndTs           int64  `json:"end_ts"`
	Ticks           int    `json:"ticks"`
	Inputs          int    `json:"inputs"`
	InputErrors     int    `json:"input_errors"`
	AgentDecisions  int    `json:"agent_decisions"`
	Messages        int    `json:"messages"`
	BudgetExhausted bool   `json:"budget_exhausted"`
	DurationMicros  int64  `json:"duration_us"`
}

// StepIndex answers queries over recently committed steps, newest first.
type StepIndex interface {
	RecentSteps(ctx context.Context, worldID string, limit int) ([]StepRow, error)
}

// StepSummary describes one committed engine step.
type StepSummary struct {
	WorldID         string         `json:"world_id"`
	Generation      int64          `json:"generation"`
	StartTs         int64          `json:"start_ts"`
	EndTs           int64          `json:"end_ts"`
	Ticks           int            `json:"ticks"`
	Inputs          int            `json:"inputs"`
	InputErrors     int            `json:"input_errors"`
	EmittedInputs   int            `json:"emitted_inputs"`
	Operations      int            `json:"operations"`
	AgentDecisions  int            `json:"agent_decisions"`
	BudgetExhausted bool           `json:"budget_exhausted"`
	NextRun         int64          `json:"next_run"`
	Messages        []game.Message `json:"messages,omitempty"`
	Duration        time.Duration  `json:"duration_ns"`
}

type StepObserver interface {
	StepCommitted(ctx context.Context, summary StepSummary)
}

// OperationDispatcher runs agent operations after the step that started
// them commits.
type OperationDispatcher interface {
	Dispatch(ctx context.Context, worldID string, ops []game.Operation)
}

// WorldAssets seed a new world.
type WorldAssets struct {
	Map    game.Map
	Agents []game.CreateAgentArgs
}

type AssetProvider interface {
	Load(ctx context.Context) (WorldAssets, error)
}
