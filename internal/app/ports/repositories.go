package ports

import (
	"context"
	"encoding/json"

	"aitown/internal/domain/game"
	"aitown/internal/domain/memory"
)

type EngineStatus string

const (
	EngineRunning EngineStatus = "running"
	EngineStopped EngineStatus = "stopped"
)

// EngineRecord is the persisted step-loop state of one world. Times are
// simulated milliseconds.
type EngineRecord struct {
	WorldID              string
	CurrentTime          *int64
	LastStepTs           *int64
	ProcessedInputNumber int64
	GenerationNumber     int64
	Status               EngineStatus
	NextRun              *int64
}

type InputReturn struct {
	OK      bool            `json:"ok"`
	Value   json.RawMessage `json:"value,omitempty"`
	Message string          `json:"message,omitempty"`
}

type InputRecord struct {
	ID           string
	WorldID      string
	Number       int64
	Name         string
	Args         json.RawMessage
	ReceivedTime int64
	ReturnValue  *InputReturn
}

type EngineRepository interface {
	Get(ctx context.Context, worldID string) (EngineRecord, error)
	Create(ctx context.Context, rec EngineRecord) error
	// SaveWithGeneration writes rec only if the stored generation still
	// equals expectedGeneration, otherwise it returns ErrConflict.
	SaveWithGeneration(ctx context.Context, rec EngineRecord, expectedGeneration int64) error
	ListRunning(ctx context.Context) ([]EngineRecord, error)
}

type InputRepository interface {
	// Append returns ErrConflict when rec.Number is already taken.
	Append(ctx context.Context, rec InputRecord) error
	MaxNumber(ctx context.Context, worldID string) (int64, error)
	ListPending(ctx context.Context, worldID string, afterNumber int64, limit int) ([]InputRecord, error)
	Complete(ctx context.Context, worldID string, number int64, rv InputReturn) error
	GetByID(ctx context.Context, inputID string) (InputRecord, error)
}

type WorldStateRepository interface {
	CreateWorld(ctx context.Context, w game.World, m game.Map) error
	// Load returns the step working set: all players, locations and agents,
	// unfinished conversations with their members, and memberships that
	// ended at or after leftSince.
	Load(ctx context.Context, worldID string, leftSince int64) (game.Snapshot, error)
	Save(ctx context.Context, worldID string, diff game.Diff) error
	Histories(ctx context.Context, worldID string) ([]game.LocationHistory, error)
}

type MessageRepository interface {
	ListByConversation(ctx context.Context, worldID, conversationID string, limit int) ([]game.Message, error)
}

type MemoryRepository interface {
	Save(ctx context.Context, worldID string, m memory.Memory) error
	ListByPlayer(ctx context.Context, worldID, playerID string) ([]memory.Memory, error)
	Touch(ctx context.Context, worldID string, ids []string, at int64) error
}
