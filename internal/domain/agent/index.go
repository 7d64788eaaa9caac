package agent

import (
	"sort"

	"aitown/internal/domain/game"
)

func InputCompleted(inputID string) game.Condition {
	return game.Condition{Kind: game.WaitInputCompleted, InputID: inputID}
}

func MovementCompleted(playerID string) game.Condition {
	return game.Condition{Kind: game.WaitMovementCompleted, PlayerID: playerID}
}

func ConversationParticipating(conversationID string, deadline int64) game.Condition {
	return game.Condition{Kind: game.WaitConversationParticipating, ConversationID: conversationID, Deadline: deadline}
}

func NobodyTyping(conversationID string, deadline int64) game.Condition {
	return game.Condition{Kind: game.WaitNobodyTyping, ConversationID: conversationID, Deadline: deadline}
}

func NewMessage(conversationID string, after, until int64) game.Condition {
	return game.Condition{Kind: game.WaitNewMessage, ConversationID: conversationID, After: after, Deadline: until}
}

func MembershipChanged(playerID string) game.Condition {
	return game.Condition{Kind: game.WaitMembershipChanged, PlayerID: playerID}
}

func OperationFinished(agentID string, deadline int64) game.Condition {
	return game.Condition{Kind: game.WaitOperationFinished, AgentID: agentID, Deadline: deadline}
}

func Until(deadline int64) game.Condition {
	return game.Condition{Kind: game.WaitUntil, Deadline: deadline}
}

type indexKey struct {
	kind game.ConditionKind
	id   string
}

// Index maps wake conditions to the agents sleeping on them.
type Index struct {
	subs    map[indexKey]map[string]struct{}
	byAgent map[string][]game.Condition
}

func NewIndex() *Index {
	return &Index{
		subs:    map[indexKey]map[string]struct{}{},
		byAgent: map[string][]game.Condition{},
	}
}

func conditionKey(c game.Condition) (indexKey, bool) {
	switch c.Kind {
	case game.WaitInputCompleted:
		return indexKey{c.Kind, c.InputID}, true
	case game.WaitMovementCompleted, game.WaitMembershipChanged:
		return indexKey{c.Kind, c.PlayerID}, true
	case game.WaitConversationParticipating, game.WaitNobodyTyping, game.WaitNewMessage:
		return indexKey{c.Kind, c.ConversationID}, true
	case game.WaitOperationFinished:
		return indexKey{c.Kind, c.AgentID}, true
	}
	return indexKey{}, false
}

// Replace swaps every subscription of agentID for conds.
func (x *Index) Replace(agentID string, conds []game.Condition) {
	x.Remove(agentID)
	x.byAgent[agentID] = conds
	for _, c := range conds {
		k, ok := conditionKey(c)
		if !ok {
			continue
		}
		set, ok := x.subs[k]
		if !ok {
			set = map[string]struct{}{}
			x.subs[k] = set
		}
		set[agentID] = struct{}{}
	}
}

func (x *Index) Remove(agentID string) {
	for _, c := range x.byAgent[agentID] {
		k, ok := conditionKey(c)
		if !ok {
			continue
		}
		if set, ok := x.subs[k]; ok {
			delete(set, agentID)
			if len(set) == 0 {
				delete(x.subs, k)
			}
		}
	}
	delete(x.byAgent, agentID)
}

// Wake returns, sorted, the agents holding a condition satisfied by e.
func (x *Index) Wake(e game.Event) []string {
	var keys []indexKey
	switch e.Kind {
	case game.EventInputCompleted:
		keys = append(keys, indexKey{game.WaitInputCompleted, e.InputID})
	case game.EventMovementCompleted:
		keys = append(keys, indexKey{game.WaitMovementCompleted, e.PlayerID})
	case game.EventMembershipChanged:
		keys = append(keys, indexKey{game.WaitMembershipChanged, e.PlayerID})
		if e.Status == game.MemberParticipating {
			keys = append(keys, indexKey{game.WaitConversationParticipating, e.ConversationID})
		}
	case game.EventTypingCleared:
		keys = append(keys, indexKey{game.WaitNobodyTyping, e.ConversationID})
	case game.EventMessageWritten:
		keys = append(keys, indexKey{game.WaitNewMessage, e.ConversationID})
	case game.EventOperationFinished:
		keys = append(keys, indexKey{game.WaitOperationFinished, e.AgentID})
	}
	woken := map[string]struct{}{}
	for _, k := range keys {
		for agentID := range x.subs[k] {
			if k.kind == game.WaitNewMessage && !x.newerMessage(agentID, e) {
				continue
			}
			woken[agentID] = struct{}{}
		}
	}
	out := make([]string, 0, len(woken))
	for id := range woken {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (x *Index) newerMessage(agentID string, e game.Event) bool {
	for _, c := range x.byAgent[agentID] {
		if c.Kind == game.WaitNewMessage && c.ConversationID == e.ConversationID && e.MessageTime > c.After {
			return true
		}
	}
	return false
}

// Subscriptions returns the conditions currently held for agentID.
func (x *Index) Subscriptions(agentID string) []game.Condition {
	return x.byAgent[agentID]
}
