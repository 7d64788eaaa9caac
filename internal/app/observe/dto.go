package observe

import (
	"aitown/internal/app/ports"
	"aitown/internal/domain/game"
)

type Request struct {
	WorldID string
}

type Response struct {
	Engine        EngineView         `json:"engine"`
	World         WorldMeta          `json:"world"`
	Players       []game.Player      `json:"players"`
	Locations     []game.Location    `json:"locations"`
	Conversations []ConversationView `json:"conversations"`
	Agents        []AgentView        `json:"agents"`
	Recent        []game.Member      `json:"recentlyLeft,omitempty"`
}

type EngineView struct {
	Status           ports.EngineStatus `json:"status"`
	CurrentTime      *int64             `json:"currentTime,omitempty"`
	LastStepTs       *int64             `json:"lastStepTs,omitempty"`
	Generation       int64              `json:"generation"`
	ProcessedInputNo int64              `json:"processedInputNumber"`
	NextRun          *int64             `json:"nextRun,omitempty"`
}

type WorldMeta struct {
	ID     string `json:"id"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type ConversationView struct {
	game.Conversation
	Members []game.Member `json:"members"`
}

// AgentView hides the wait set and operation bookkeeping.
type AgentView struct {
	ID          string `json:"id"`
	PlayerID    string `json:"playerId"`
	Identity    string `json:"identity"`
	Plan        string `json:"plan"`
	Busy        string `json:"busy,omitempty"`
	Remembering string `json:"remembering,omitempty"`
}

type MessagesRequest struct {
	WorldID        string
	ConversationID string
	Limit          int
}

type MessagesResponse struct {
	ConversationID string         `json:"conversationId"`
	Messages       []game.Message `json:"messages"`
}
