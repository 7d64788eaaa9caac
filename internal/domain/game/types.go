// Package game holds the simulated town: the entities persisted between
// steps, the per-step working set, the input handlers and the tick logic.
package game

import (
	"encoding/json"
	"errors"
	"fmt"

	"aitown/internal/domain/geometry"
)

// ErrInvariant marks a programming or data error that must abort the step.
var ErrInvariant = errors.New("game invariant violated")

func invariantf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvariant, fmt.Sprintf(format, args...))
}

type World struct {
	ID     string `json:"id"`
	Seed   int64  `json:"seed"`
	NextID int64  `json:"nextId"`
}

// Map is the static tile grid. Rows are indexed [y][x].
type Map struct {
	Width   int      `json:"width"`
	Height  int      `json:"height"`
	Blocked [][]bool `json:"blocked"`
}

func (m Map) Impassable(x, y int) bool {
	if y < 0 || y >= len(m.Blocked) || x < 0 || x >= len(m.Blocked[y]) {
		return false
	}
	return m.Blocked[y][x]
}

func (m Map) Bounds() (int, int) { return m.Width, m.Height }

type PathfindingKind string

const (
	PathNeedsPath PathfindingKind = "needsPath"
	PathWaiting   PathfindingKind = "waiting"
	PathMoving    PathfindingKind = "moving"
)

type PathfindingState struct {
	Kind  PathfindingKind `json:"kind"`
	Until int64           `json:"until,omitempty"`
	Path  geometry.Path   `json:"path,omitempty"`
}

type Pathfinding struct {
	Destination geometry.Point   `json:"destination"`
	Started     int64            `json:"started"`
	State       PathfindingState `json:"state"`
}

type Activity struct {
	Description string `json:"description"`
	Emoji       string `json:"emoji,omitempty"`
	Until       int64  `json:"until"`
}

type Player struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Character   string       `json:"character,omitempty"`
	Human       string       `json:"human,omitempty"`
	Active      bool         `json:"active"`
	LocationID  string       `json:"locationId"`
	Pathfinding *Pathfinding `json:"pathfinding,omitempty"`
	Activity    *Activity    `json:"activity,omitempty"`
	LastInput   int64        `json:"lastInput"`
}

func (p Player) IsHuman() bool { return p.Human != "" }

type Location struct {
	ID       string  `json:"id"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	DX       float64 `json:"dx"`
	DY       float64 `json:"dy"`
	Velocity float64 `json:"velocity"`
}

func (l Location) Position() geometry.Point { return geometry.Point{X: l.X, Y: l.Y} }
func (l Location) Facing() geometry.Vector  { return geometry.Vector{DX: l.DX, DY: l.DY} }

type Typing struct {
	PlayerID    string `json:"playerId"`
	MessageUUID string `json:"messageUuid"`
	Since       int64  `json:"since"`
}

type LastMessage struct {
	Author    string `json:"author"`
	Timestamp int64  `json:"timestamp"`
}

type Conversation struct {
	ID          string       `json:"id"`
	Creator     string       `json:"creator"`
	Created     int64        `json:"created"`
	IsTyping    *Typing      `json:"isTyping,omitempty"`
	LastMessage *LastMessage `json:"lastMessage,omitempty"`
	NumMessages int          `json:"numMessages"`
	FinishedAt  *int64       `json:"finishedAt,omitempty"`
}

type MemberStatusKind string

const (
	MemberInvited       MemberStatusKind = "invited"
	MemberWalkingOver   MemberStatusKind = "walkingOver"
	MemberParticipating MemberStatusKind = "participating"
	MemberLeft          MemberStatusKind = "left"
)

type MemberStatus struct {
	Kind      MemberStatusKind `json:"kind"`
	InvitedAt int64            `json:"invitedAt"`
	StartedAt *int64           `json:"startedAt,omitempty"`
	EndedAt   int64            `json:"endedAt,omitempty"`
	With      string           `json:"with,omitempty"`
}

type Member struct {
	ID             string       `json:"id"`
	ConversationID string       `json:"conversationId"`
	PlayerID       string       `json:"playerId"`
	Status         MemberStatus `json:"status"`
}

type Operation struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	AgentID        string `json:"agentId"`
	PlayerID       string `json:"playerId"`
	ConversationID string `json:"conversationId,omitempty"`
	OtherPlayerID  string `json:"otherPlayerId,omitempty"`
	MessageUUID    string `json:"messageUuid,omitempty"`
	MessageKind    string `json:"messageKind,omitempty"`
	Generation     int64  `json:"generation"`
	Started        int64  `json:"started"`
}

const (
	OpGenerateMessage      = "generateMessage"
	OpRememberConversation = "rememberConversation"
)

type Agent struct {
	ID                  string      `json:"id"`
	PlayerID            string      `json:"playerId"`
	Identity            string      `json:"identity"`
	Plan                string      `json:"plan"`
	ToRemember          string      `json:"toRemember,omitempty"`
	LastConversationAt  *int64      `json:"lastConversationAt,omitempty"`
	LastInviteAttemptAt *int64      `json:"lastInviteAttemptAt,omitempty"`
	InProgress          *Operation  `json:"inProgressOperation,omitempty"`
	Generation          int64       `json:"generation"`
	WaitingOn           []Condition `json:"waitingOn"`
	WakeAt              int64       `json:"wakeAt,omitempty"`
}

type Message struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversationId"`
	Author         string `json:"author"`
	MessageUUID    string `json:"messageUuid"`
	Text           string `json:"text"`
	Timestamp      int64  `json:"timestamp"`
}

// EmittedInput is a command produced during a tick, queued for a later step.
type EmittedInput struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Args         json.RawMessage `json:"args"`
	ReceivedTime int64           `json:"receivedTime"`
}
