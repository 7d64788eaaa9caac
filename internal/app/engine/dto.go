package engine

import (
	"encoding/json"

	"aitown/internal/app/ports"
)

type StepRequest struct {
	WorldID    string
	Generation int64
}

type SkipReason string

const (
	SkipNone       SkipReason = ""
	SkipStale      SkipReason = "stale_generation"
	SkipStopped    SkipReason = "engine_stopped"
	SkipNotYetTime SkipReason = "not_yet_time"
)

type StepResponse struct {
	Skipped SkipReason
	Summary ports.StepSummary
}

type InsertInputRequest struct {
	WorldID string
	Name    string
	Args    json.RawMessage
}

type InsertInputResponse struct {
	InputID      string `json:"input_id"`
	Number       int64  `json:"number"`
	ReceivedTime int64  `json:"received_time"`
	Preempted    bool   `json:"preempted"`
}

type CreateWorldRequest struct {
	WorldID string
	Seed    int64
}

type EngineResponse struct {
	WorldID              string             `json:"world_id"`
	Status               ports.EngineStatus `json:"status"`
	GenerationNumber     int64              `json:"generation_number"`
	CurrentTime          *int64             `json:"current_time,omitempty"`
	NextRun              *int64             `json:"next_run,omitempty"`
	ProcessedInputNumber int64              `json:"processed_input_number"`
}

func toEngineResponse(rec ports.EngineRecord) EngineResponse {
	return EngineResponse{
		WorldID:              rec.WorldID,
		Status:               rec.Status,
		GenerationNumber:     rec.GenerationNumber,
		CurrentTime:          rec.CurrentTime,
		NextRun:              rec.NextRun,
		ProcessedInputNumber: rec.ProcessedInputNumber,
	}
}
