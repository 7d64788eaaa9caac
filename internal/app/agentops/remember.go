package agentops

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"aitown/internal/app/ports"
	"aitown/internal/domain/game"
	"aitown/internal/domain/memory"
)

const defaultImportance = 5

var memoryNamespace = uuid.MustParse("0f7b8f52-6a41-4e0c-9d3c-54c0b1a1d2e7")

func (d *Dispatcher) rememberConversation(ctx context.Context, worldID string, op game.Operation) error {
	if err := d.remember(ctx, worldID, op); err != nil {
		hlog.CtxWarnf(ctx, "agentops: remember %s for %s: %v", op.ConversationID, op.AgentID, err)
	}
	return d.submit(ctx, worldID, game.InputFinishRememberConversation, game.FinishRememberArgs{
		AgentID:     op.AgentID,
		OperationID: op.ID,
		Generation:  op.Generation,
	})
}

func (d *Dispatcher) remember(ctx context.Context, worldID string, op game.Operation) error {
	c, err := d.conversation(ctx, worldID, op.AgentID, op.PlayerID, op.OtherPlayerID, op.ConversationID, 0)
	if err != nil {
		return err
	}
	if len(c.messages) == 0 {
		return nil
	}
	summary, err := d.deps.Text.Generate(ctx, ports.GenerateRequest{Messages: summaryPrompt(c), MaxTokens: summaryMaxTokens})
	summary = strings.TrimSpace(summary)
	if err != nil || summary == "" {
		summary = fmt.Sprintf("I talked with %s.", c.other.Name)
	}
	now := d.nowMs()
	m := memory.Memory{
		ID:             uuid.NewSHA1(memoryNamespace, []byte(worldID+"/"+op.ID)).String(),
		PlayerID:       c.self.ID,
		Description:    fmt.Sprintf("Conversation with %s at %d: %s", c.other.Name, now, summary),
		Importance:     d.importance(ctx, summary),
		Created:        now,
		LastAccess:     now,
		Kind:           memory.KindConversation,
		ConversationID: op.ConversationID,
	}
	if m.Embedding, err = d.deps.Embedder.Embed(ctx, m.Description); err != nil {
		return fmt.Errorf("embed summary: %w", err)
	}
	if err := d.deps.Memories.Save(ctx, worldID, m); err != nil {
		return err
	}
	return d.maybeReflect(ctx, worldID, c.self)
}

// importance asks for a 0-9 rating and keeps the first digit in the reply.
func (d *Dispatcher) importance(ctx context.Context, description string) float64 {
	out, err := d.deps.Text.Generate(ctx, ports.GenerateRequest{Messages: importancePrompt(description), MaxTokens: importanceMaxTokens})
	if err != nil {
		return defaultImportance
	}
	return parseImportance(out)
}

func parseImportance(s string) float64 {
	for _, r := range s {
		if r >= '0' && r <= '9' {
			return float64(r - '0')
		}
	}
	return defaultImportance
}

// maybeReflect turns recent memories into higher-level insights once their
// accumulated importance passes the reflection threshold.
func (d *Dispatcher) maybeReflect(ctx context.Context, worldID string, self game.Player) error {
	mems, err := d.deps.Memories.ListByPlayer(ctx, worldID, self.ID)
	if err != nil {
		return err
	}
	var lastReflection int64
	for _, m := range mems {
		if (m.Kind == memory.KindReflection || m.Kind == memory.KindCheckpoint) && m.Created > lastReflection {
			lastReflection = m.Created
		}
	}
	var recent []memory.Memory
	var sum float64
	for _, m := range mems {
		if m.Kind == memory.KindConversation && m.Created > lastReflection {
			recent = append(recent, m)
			sum += m.Importance
		}
	}
	if sum <= float64(d.deps.Tuning.ReflectionThreshold) {
		return nil
	}
	if len(recent) > reflectionWindow {
		recent = recent[len(recent)-reflectionWindow:]
	}

	out, err := d.deps.Text.Generate(ctx, ports.GenerateRequest{Messages: reflectionPrompt(self.Name, recent), MaxTokens: reflectMaxTokens})
	if err != nil {
		return fmt.Errorf("reflect: %w", err)
	}
	insights := parseInsights(out, recent)
	now := d.nowMs()
	if len(insights) == 0 {
		hlog.CtxDebugf(ctx, "agentops: %s reflected on %d memories without insights", self.ID, len(recent))
		return d.deps.Memories.Save(ctx, worldID, memory.Memory{
			ID:         uuid.NewSHA1(memoryNamespace, []byte(fmt.Sprintf("%s/%s/checkpoint/%d", worldID, self.ID, now))).String(),
			PlayerID:   self.ID,
			Created:    now,
			LastAccess: now,
			Kind:       memory.KindCheckpoint,
		})
	}
	for i, in := range insights {
		m := memory.Memory{
			ID:          uuid.NewSHA1(memoryNamespace, []byte(fmt.Sprintf("%s/%s/reflection/%d/%d", worldID, self.ID, now, i))).String(),
			PlayerID:    self.ID,
			Description: in.text,
			Importance:  d.importance(ctx, in.text),
			Created:     now,
			LastAccess:  now,
			Kind:        memory.KindReflection,
			RelatedIDs:  in.related,
		}
		if m.Embedding, err = d.deps.Embedder.Embed(ctx, m.Description); err != nil {
			return fmt.Errorf("embed insight: %w", err)
		}
		if err := d.deps.Memories.Save(ctx, worldID, m); err != nil {
			return err
		}
	}
	hlog.CtxInfof(ctx, "agentops: %s reflected on %d memories into %d insights", self.ID, len(recent), len(insights))
	return nil
}

type insight struct {
	text    string
	related []string
}

// parseInsights reads [{"insight": ..., "statementIds": [...]}] from a model
// reply, tolerating prose around the array.
func parseInsights(out string, statements []memory.Memory) []insight {
	start, end := strings.IndexByte(out, '['), strings.LastIndexByte(out, ']')
	if start < 0 || end <= start {
		return nil
	}
	raw := out[start : end+1]
	if !gjson.Valid(raw) {
		return nil
	}
	var insights []insight
	gjson.Parse(raw).ForEach(func(_, v gjson.Result) bool {
		text := strings.TrimSpace(v.Get("insight").String())
		if text == "" {
			return true
		}
		in := insight{text: text}
		for _, id := range v.Get("statementIds").Array() {
			if i := int(id.Int()); i >= 0 && i < len(statements) {
				in.related = append(in.related, statements[i].ID)
			}
		}
		insights = append(insights, in)
		return true
	})
	return insights
}
