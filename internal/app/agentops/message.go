package agentops

import (
	"context"
	"fmt"

	"github.com/cloudwego/hertz/pkg/common/hlog"

	"aitown/internal/app/ports"
	"aitown/internal/domain/agent"
	"aitown/internal/domain/game"
	"aitown/internal/domain/memory"
)

func (d *Dispatcher) generateMessage(ctx context.Context, worldID string, op game.Operation) error {
	c, err := d.conversation(ctx, worldID, op.AgentID, op.PlayerID, op.OtherPlayerID, op.ConversationID, historyLimit)
	if err != nil {
		return err
	}
	c.kind = agent.MessageKind(op.MessageKind)
	if c.kind == agent.MessageStart {
		c.memories = d.recall(ctx, worldID, c.self.ID, fmt.Sprintf("What do you think about %s?", c.other.Name))
	}

	text, err := d.deps.Text.Generate(ctx, ports.GenerateRequest{
		Messages:      messagePrompt(c),
		MaxTokens:     messageMaxTokens,
		StopSequences: stopSequences(c),
	})
	text = cleanMessage(c, text)
	if err != nil || text == "" {
		hlog.CtxWarnf(ctx, "agentops: message for %s falls back to script: %v", op.AgentID, err)
		text = fallbackMessage(c)
	}
	return d.submit(ctx, worldID, game.InputFinishSendingMessage, game.FinishSendingMessageArgs{
		PlayerID:          op.PlayerID,
		ConversationID:    op.ConversationID,
		Text:              text,
		MessageUUID:       op.MessageUUID,
		LeaveConversation: c.kind == agent.MessageLeave,
		AgentID:           op.AgentID,
		OperationID:       op.ID,
		Generation:        op.Generation,
	})
}

// conversation gathers the two players, the agent and the latest messages.
func (d *Dispatcher) conversation(ctx context.Context, worldID, agentID, selfID, otherID, conversationID string, limit int) (conversationContext, error) {
	snap, err := d.deps.State.Load(ctx, worldID, 0)
	if err != nil {
		return conversationContext{}, err
	}
	var c conversationContext
	for _, a := range snap.Agents {
		if a.ID == agentID {
			c.agent = a
		}
	}
	if otherID == "" {
		for _, m := range append(snap.RecentLeft, snap.Members...) {
			if m.ConversationID == conversationID && m.PlayerID == selfID && m.Status.With != "" {
				otherID = m.Status.With
			}
		}
	}
	for _, p := range snap.Players {
		switch p.ID {
		case selfID:
			c.self = p
		case otherID:
			c.other = p
		}
	}
	if c.self.ID == "" {
		return conversationContext{}, fmt.Errorf("player %s: %w", selfID, ports.ErrNotFound)
	}
	if c.other.ID == "" {
		c.other = game.Player{ID: otherID, Name: "someone"}
	}
	c.messages, err = d.deps.Messages.ListByConversation(ctx, worldID, conversationID, limit)
	if err != nil {
		return conversationContext{}, err
	}
	return c, nil
}

// recall returns the player's memories most relevant to query. Failures
// only cost context, so they are logged and swallowed.
func (d *Dispatcher) recall(ctx context.Context, worldID, playerID, query string) []memory.Scored {
	if d.deps.Embedder == nil || d.deps.Memories == nil {
		return nil
	}
	mems, err := d.deps.Memories.ListByPlayer(ctx, worldID, playerID)
	if err != nil || len(mems) == 0 {
		return nil
	}
	vec, err := d.deps.Embedder.Embed(ctx, query)
	if err != nil {
		hlog.CtxWarnf(ctx, "agentops: embed recall query: %v", err)
		return nil
	}
	now := d.nowMs()
	var usable []memory.Memory
	for _, m := range mems {
		if m.Kind != memory.KindCheckpoint && len(m.Embedding) == len(vec) {
			usable = append(usable, m)
		}
	}
	ranked, err := memory.Rank(usable, vec, now, d.deps.Tuning.MemoryRecallCount)
	if err != nil {
		return nil
	}
	ids := make([]string, 0, len(ranked))
	for _, r := range ranked {
		ids = append(ids, r.ID)
	}
	if err := d.deps.Memories.Touch(ctx, worldID, ids, now); err != nil {
		hlog.CtxWarnf(ctx, "agentops: touch memories: %v", err)
	}
	return ranked
}
