package observe

import (
	"context"
	"errors"
	"sort"
	"strings"

	"aitown/internal/app/ports"
	"aitown/internal/domain/game"
)

var ErrInvalidRequest = errors.New("invalid observe request")

const (
	defaultMessageLimit = 100
	maxMessageLimit     = 1000
)

type UseCase struct {
	Engines  ports.EngineRepository
	State    ports.WorldStateRepository
	Messages ports.MessageRepository
	Tuning   game.Tuning
	Now      func() int64
}

// Execute returns the live world: active players, unfinished conversations
// and the engine's bookkeeping.
func (u UseCase) Execute(ctx context.Context, req Request) (Response, error) {
	req.WorldID = strings.TrimSpace(req.WorldID)
	if req.WorldID == "" {
		return Response{}, ErrInvalidRequest
	}
	eng, err := u.Engines.Get(ctx, req.WorldID)
	if err != nil {
		return Response{}, err
	}
	leftSince := int64(0)
	if u.Now != nil {
		leftSince = u.Now() - max(u.Tuning.ConversationCooldown, u.Tuning.PlayerConversationCooldown)
	}
	snap, err := u.State.Load(ctx, req.WorldID, leftSince)
	if err != nil {
		return Response{}, err
	}
	return Response{
		Engine: EngineView{
			Status:           eng.Status,
			CurrentTime:      eng.CurrentTime,
			LastStepTs:       eng.LastStepTs,
			Generation:       eng.GenerationNumber,
			ProcessedInputNo: eng.ProcessedInputNumber,
			NextRun:          eng.NextRun,
		},
		World:         WorldMeta{ID: snap.World.ID, Width: snap.Map.Width, Height: snap.Map.Height},
		Players:       activePlayers(snap.Players),
		Locations:     snap.Locations,
		Conversations: groupConversations(snap.Conversations, snap.Members),
		Agents:        projectAgents(snap.Agents),
		Recent:        snap.RecentLeft,
	}, nil
}

func (u UseCase) ListMessages(ctx context.Context, req MessagesRequest) (MessagesResponse, error) {
	req.WorldID = strings.TrimSpace(req.WorldID)
	req.ConversationID = strings.TrimSpace(req.ConversationID)
	if req.WorldID == "" || req.ConversationID == "" {
		return MessagesResponse{}, ErrInvalidRequest
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultMessageLimit
	}
	limit = min(limit, maxMessageLimit)
	msgs, err := u.Messages.ListByConversation(ctx, req.WorldID, req.ConversationID, limit)
	if err != nil {
		return MessagesResponse{}, err
	}
	if msgs == nil {
		msgs = []game.Message{}
	}
	return MessagesResponse{ConversationID: req.ConversationID, Messages: msgs}, nil
}

func activePlayers(players []game.Player) []game.Player {
	out := make([]game.Player, 0, len(players))
	for _, p := range players {
		if p.Active {
			out = append(out, p)
		}
	}
	return out
}

func groupConversations(convs []game.Conversation, members []game.Member) []ConversationView {
	byConv := make(map[string][]game.Member, len(convs))
	for _, m := range members {
		byConv[m.ConversationID] = append(byConv[m.ConversationID], m)
	}
	out := make([]ConversationView, 0, len(convs))
	for _, c := range convs {
		ms := byConv[c.ID]
		sort.Slice(ms, func(i, j int) bool { return ms[i].PlayerID < ms[j].PlayerID })
		out = append(out, ConversationView{Conversation: c, Members: ms})
	}
	return out
}

func projectAgents(agents []game.Agent) []AgentView {
	out := make([]AgentView, 0, len(agents))
	for _, a := range agents {
		v := AgentView{ID: a.ID, PlayerID: a.PlayerID, Identity: a.Identity, Plan: a.Plan, Remembering: a.ToRemember}
		if a.InProgress != nil {
			v.Busy = a.InProgress.Name
		}
		out = append(out, v)
	}
	return out
}
