package game

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"aitown/internal/domain/geometry"
	"aitown/internal/domain/pathfinding"
)

const (
	InputJoin                       = "join"
	InputLeave                      = "leave"
	InputMoveTo                     = "moveTo"
	InputStartConversation          = "startConversation"
	InputAcceptInvite               = "acceptInvite"
	InputRejectInvite               = "rejectInvite"
	InputLeaveConversation          = "leaveConversation"
	InputStartTyping                = "startTyping"
	InputFinishSendingMessage       = "finishSendingMessage"
	InputCreateAgent                = "createAgent"
	InputFinishRememberConversation = "finishRememberConversation"
)

var (
	ErrUnknownInput  = errors.New("unknown input")
	ErrBadInputArgs  = errors.New("invalid input arguments")
	ErrTooManyHumans = errors.New("too many human players")
	ErrAlreadyJoined = errors.New("human player already joined")
	ErrNoFreeSpace   = errors.New("no free space to spawn a player")
)

type JoinArgs struct {
	Name            string `json:"name"`
	Character       string `json:"character"`
	Description     string `json:"description"`
	TokenIdentifier string `json:"tokenIdentifier,omitempty"`
}

type PlayerArgs struct {
	PlayerID string `json:"playerId"`
}

type MoveToArgs struct {
	PlayerID    string          `json:"playerId"`
	Destination *geometry.Point `json:"destination"`
}

type StartConversationArgs struct {
	PlayerID string `json:"playerId"`
	Invitee  string `json:"invitee"`
}

type ConversationArgs struct {
	PlayerID       string `json:"playerId"`
	ConversationID string `json:"conversationId"`
}

type StartTypingArgs struct {
	PlayerID       string `json:"playerId"`
	ConversationID string `json:"conversationId"`
	MessageUUID    string `json:"messageUuid"`
}

type FinishSendingMessageArgs struct {
	PlayerID          string `json:"playerId"`
	ConversationID    string `json:"conversationId"`
	Text              string `json:"text"`
	MessageUUID       string `json:"messageUuid"`
	LeaveConversation bool   `json:"leaveConversation,omitempty"`
	AgentID           string `json:"agentId,omitempty"`
	OperationID       string `json:"operationId,omitempty"`
	Generation        int64  `json:"generation,omitempty"`
}

type CreateAgentArgs struct {
	Name        string `json:"name"`
	Character   string `json:"character"`
	Description string `json:"description"`
	Identity    string `json:"identity"`
	Plan        string `json:"plan"`
}

type FinishRememberArgs struct {
	AgentID     string `json:"agentId"`
	OperationID string `json:"operationId"`
	Generation  int64  `json:"generation"`
}

type CreatedAgent struct {
	AgentID  string `json:"agentId"`
	PlayerID string `json:"playerId"`
}

type inputHandler func(s *State, now int64, args json.RawMessage) (any, error)

var inputHandlers = map[string]inputHandler{
	InputJoin: func(s *State, now int64, raw json.RawMessage) (any, error) {
		var a JoinArgs
		if err := decodeArgs(raw, &a); err != nil {
			return nil, err
		}
		return s.join(now, a.Name, a.Character, a.Description, a.TokenIdentifier)
	},
	InputLeave: func(s *State, now int64, raw json.RawMessage) (any, error) {
		var a PlayerArgs
		if err := decodeArgs(raw, &a); err != nil {
			return nil, err
		}
		p, err := s.activePlayer(a.PlayerID)
		if err != nil {
			return nil, err
		}
		return nil, s.leaveGame(now, p)
	},
	InputMoveTo: func(s *State, now int64, raw json.RawMessage) (any, error) {
		var a MoveToArgs
		if err := decodeArgs(raw, &a); err != nil {
			return nil, err
		}
		p, err := s.activePlayer(a.PlayerID)
		if err != nil {
			return nil, err
		}
		s.touch(now, p)
		return nil, s.movePlayer(now, p, a.Destination)
	},
	InputStartConversation: func(s *State, now int64, raw json.RawMessage) (any, error) {
		var a StartConversationArgs
		if err := decodeArgs(raw, &a); err != nil {
			return nil, err
		}
		p, err := s.activePlayer(a.PlayerID)
		if err != nil {
			return nil, err
		}
		invitee, err := s.activePlayer(a.Invitee)
		if err != nil {
			return nil, err
		}
		s.touch(now, p)
		return s.startConversation(now, p, invitee)
	},
	InputAcceptInvite: conversationInput(func(s *State, now int64, playerID, conversationID string) error {
		return s.acceptInvite(now, playerID, conversationID)
	}),
	InputRejectInvite: conversationInput(func(s *State, now int64, playerID, conversationID string) error {
		return s.rejectInvite(now, playerID, conversationID)
	}),
	InputLeaveConversation: conversationInput(func(s *State, now int64, playerID, conversationID string) error {
		return s.leaveConversation(now, playerID, conversationID)
	}),
	InputStartTyping: func(s *State, now int64, raw json.RawMessage) (any, error) {
		var a StartTypingArgs
		if err := decodeArgs(raw, &a); err != nil {
			return nil, err
		}
		p, err := s.activePlayer(a.PlayerID)
		if err != nil {
			return nil, err
		}
		s.touch(now, p)
		return nil, s.ClaimTyping(now, a.ConversationID, a.PlayerID, a.MessageUUID)
	},
	InputFinishSendingMessage: func(s *State, now int64, raw json.RawMessage) (any, error) {
		var a FinishSendingMessageArgs
		if err := decodeArgs(raw, &a); err != nil {
			return nil, err
		}
		if a.AgentID != "" {
			if err := s.finishOperation(now, a.AgentID, a.OperationID, a.Generation); err != nil {
				return nil, err
			}
		}
		p, err := s.activePlayer(a.PlayerID)
		if err != nil {
			return nil, err
		}
		s.touch(now, p)
		return s.writeMessage(now, messageRequest{
			conversationID: a.ConversationID,
			playerID:       a.PlayerID,
			messageUUID:    a.MessageUUID,
			text:           a.Text,
			leave:          a.LeaveConversation,
		})
	},
	InputCreateAgent: func(s *State, now int64, raw json.RawMessage) (any, error) {
		var a CreateAgentArgs
		if err := decodeArgs(raw, &a); err != nil {
			return nil, err
		}
		playerID, err := s.join(now, a.Name, a.Character, a.Description, "")
		if err != nil {
			return nil, err
		}
		agentID := s.AllocID("a")
		s.insertAgent(Agent{ID: agentID, PlayerID: playerID, Identity: a.Identity, Plan: a.Plan})
		return CreatedAgent{AgentID: agentID, PlayerID: playerID}, nil
	},
	InputFinishRememberConversation: func(s *State, now int64, raw json.RawMessage) (any, error) {
		var a FinishRememberArgs
		if err := decodeArgs(raw, &a); err != nil {
			return nil, err
		}
		if err := s.finishOperation(now, a.AgentID, a.OperationID, a.Generation); err != nil {
			return nil, err
		}
		ag, _ := s.agents.get(a.AgentID)
		ag.ToRemember = ""
		s.agents.markDirty(ag.ID)
		return nil, nil
	},
}

// InputNames lists every registered input, sorted.
func InputNames() []string {
	out := make([]string, 0, len(inputHandlers))
	for name := range inputHandlers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// ApplyInput runs the named handler. Errors wrapping ErrInvariant are fatal
// to the step; any other error belongs to the input alone.
func (s *State) ApplyInput(now int64, name string, args json.RawMessage) (any, error) {
	h, ok := inputHandlers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownInput, name)
	}
	return h(s, now, args)
}

func conversationInput(fn func(s *State, now int64, playerID, conversationID string) error) inputHandler {
	return func(s *State, now int64, raw json.RawMessage) (any, error) {
		var a ConversationArgs
		if err := decodeArgs(raw, &a); err != nil {
			return nil, err
		}
		p, err := s.activePlayer(a.PlayerID)
		if err != nil {
			return nil, err
		}
		s.touch(now, p)
		return nil, fn(s, now, a.PlayerID, a.ConversationID)
	}
}

func decodeArgs(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrBadInputArgs, err)
	}
	return nil
}

func (s *State) activePlayer(id string) (*Player, error) {
	p, ok := s.players.get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPlayerInactive, id)
	}
	if !p.Active {
		return nil, fmt.Errorf("%w: %s", ErrPlayerInactive, id)
	}
	return p, nil
}

// touch records human activity for idle eviction.
func (s *State) touch(now int64, p *Player) {
	if !p.IsHuman() {
		return
	}
	p.LastInput = now
	s.players.markDirty(p.ID)
}

func (s *State) finishOperation(now int64, agentID, operationID string, generation int64) error {
	a, ok := s.agents.get(agentID)
	if !ok {
		return fmt.Errorf("%w: agent %s", ErrStaleOperation, agentID)
	}
	if a.InProgress == nil || a.InProgress.ID != operationID || a.Generation != generation {
		return fmt.Errorf("%w: agent %s operation %s", ErrStaleOperation, agentID, operationID)
	}
	a.InProgress = nil
	s.agents.markDirty(a.ID)
	s.emit(Event{Kind: EventOperationFinished, Time: now, AgentID: a.ID})
	return nil
}

func (s *State) join(now int64, name, character, description, human string) (string, error) {
	if human != "" {
		humans := 0
		for _, id := range s.players.ids() {
			p, _ := s.players.get(id)
			if !p.Active || !p.IsHuman() {
				continue
			}
			if p.Human == human {
				return "", ErrAlreadyJoined
			}
			humans++
		}
		if humans >= s.tuning.MaxHumanPlayers {
			return "", ErrTooManyHumans
		}
	}
	rng := Rand(s.world.Seed, now, "join:"+name)
	var pos geometry.Point
	found := false
	for attempt := 0; attempt < 16 && s.gameMap.Width > 0 && s.gameMap.Height > 0; attempt++ {
		candidate := geometry.Point{X: float64(rng.IntN(s.gameMap.Width)), Y: float64(rng.IntN(s.gameMap.Height))}
		if s.blocked(candidate) == pathfinding.NotBlocked {
			pos = candidate
			found = true
			break
		}
	}
	if !found {
		return "", ErrNoFreeSpace
	}
	directions := []geometry.Vector{{DX: 1}, {DX: -1}, {DY: 1}, {DY: -1}}
	facing := directions[rng.IntN(len(directions))]

	playerID := s.AllocID("p")
	locationID := s.AllocID("l")
	loc := s.locations.insert(locationID, Location{ID: locationID, X: pos.X, Y: pos.Y, DX: facing.DX, DY: facing.DY})
	s.resetHistory(*loc, now)
	s.players.insert(playerID, Player{
		ID:          playerID,
		Name:        name,
		Description: description,
		Character:   character,
		Human:       human,
		Active:      true,
		LocationID:  locationID,
		LastInput:   now,
	})
	return playerID, nil
}

// leaveGame ends any conversation the player is in and deactivates it.
func (s *State) leaveGame(now int64, p *Player) error {
	if m, ok := s.Membership(p.ID); ok {
		c, ok := s.conversations.get(m.ConversationID)
		if !ok {
			return invariantf("membership %s references missing conversation %s", m.ID, m.ConversationID)
		}
		if err := s.stopConversation(now, c); err != nil {
			return err
		}
	}
	s.stopPlayer(now, p)
	p.Active = false
	s.players.markDirty(p.ID)
	return nil
}
