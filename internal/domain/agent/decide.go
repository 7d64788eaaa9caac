package agent

import (
	"fmt"

	"aitown/internal/domain/game"
	"aitown/internal/domain/geometry"
)

// Decide picks the agent's next effects from a read-only view of the world.
// It never mutates w; the same view and time always yield the same plan.
func Decide(now int64, agentID string, w game.Reader) (Plan, error) {
	a, ok := w.Agent(agentID)
	if !ok {
		return Plan{}, fmt.Errorf("%w: agent %s not found", game.ErrInvariant, agentID)
	}
	player, ok := w.Player(a.PlayerID)
	if !ok {
		return Plan{}, fmt.Errorf("%w: player %s of agent %s not found", game.ErrInvariant, a.PlayerID, agentID)
	}
	if !player.Active {
		return sleep(MembershipChanged(player.ID)), nil
	}
	loc, ok := w.PlayerLocation(player.ID)
	if !ok {
		return Plan{}, fmt.Errorf("%w: location of player %s not found", game.ErrInvariant, player.ID)
	}
	d := decider{now: now, w: w, t: w.Tuning(), agent: a, player: player, loc: loc}

	var prefix []Decision
	if op := a.InProgress; op != nil {
		deadline := op.Started + d.t.ActionTimeout
		if now <= deadline {
			return sleep(OperationFinished(a.ID, deadline+1), MembershipChanged(player.ID)), nil
		}
		prefix = append(prefix, TimeoutOperation{OperationID: op.ID})
		d.agent.InProgress = nil
		d.agent.Generation++
	}
	plan, err := d.decide()
	if err != nil {
		return Plan{}, err
	}
	plan.Decisions = append(prefix, plan.Decisions...)
	return plan, nil
}

type decider struct {
	now    int64
	w      game.Reader
	t      game.Tuning
	agent  game.Agent
	player game.Player
	loc    game.Location
}

func sleep(conds ...game.Condition) Plan {
	return Plan{Decisions: []Decision{Sleep{}}, Wait: conds}
}

func (d decider) id(purpose string) string {
	return derivedID(d.w.World().ID, d.agent.ID, d.now, purpose)
}

func (d decider) moving() bool {
	return d.player.Pathfinding != nil
}

func (d decider) decide() (Plan, error) {
	if d.agent.ToRemember != "" {
		if d.moving() {
			return sleep(MovementCompleted(d.player.ID)), nil
		}
		// The agent keeps walking while the summary is written.
		opID := d.id("remember")
		return Plan{
			Decisions: []Decision{
				Remember{OperationID: opID, ConversationID: d.agent.ToRemember},
				Wander{InputID: d.id("wander"), Destination: d.wanderDestination()},
			},
			Wait: []game.Condition{OperationFinished(d.agent.ID, d.now+d.t.ActionTimeout+1)},
		}, nil
	}
	m, ok := d.w.Membership(d.player.ID)
	if !ok {
		return d.idle(), nil
	}
	return d.inConversation(m)
}

// idle handles an agent outside any conversation: wander, then look for
// someone to talk to once the cooldowns have passed.
func (d decider) idle() Plan {
	self := MembershipChanged(d.player.ID)
	if !d.moving() {
		inputID := d.id("wander")
		return Plan{
			Decisions: []Decision{Wander{InputID: inputID, Destination: d.wanderDestination()}},
			Wait:      []game.Condition{InputCompleted(inputID), self},
		}
	}
	var cooldownEnd int64
	if last := d.agent.LastConversationAt; last != nil {
		cooldownEnd = max(cooldownEnd, *last+d.t.ConversationCooldown)
	}
	if last := d.agent.LastInviteAttemptAt; last != nil {
		cooldownEnd = max(cooldownEnd, *last+d.t.ConversationCooldown)
	}
	if d.now < cooldownEnd {
		return sleep(MovementCompleted(d.player.ID), self, Until(cooldownEnd))
	}
	if invitee, ok := d.choosePartner(); ok {
		inputID := d.id("invite")
		return Plan{
			Decisions: []Decision{Invite{InputID: inputID, Invitee: invitee}},
			Wait:      []game.Condition{InputCompleted(inputID), self},
		}
	}
	return sleep(MovementCompleted(d.player.ID), self)
}

func (d decider) wanderDestination() geometry.Point {
	m := d.w.Map()
	rng := game.Rand(d.w.World().Seed, d.now, "wander:"+d.agent.ID)
	if m.Width <= 0 || m.Height <= 0 {
		return geometry.Floor(d.loc.Position())
	}
	var p geometry.Point
	for attempt := 0; attempt < 10; attempt++ {
		p = geometry.Point{X: float64(rng.IntN(m.Width)), Y: float64(rng.IntN(m.Height))}
		if !m.Impassable(int(p.X), int(p.Y)) {
			break
		}
	}
	return p
}

// choosePartner picks uniformly among active players that are free to talk
// and not cooling down with this agent.
func (d decider) choosePartner() (string, bool) {
	var eligible []string
	for _, id := range d.w.ActivePlayerIDs() {
		if id == d.player.ID {
			continue
		}
		if _, busy := d.w.Membership(id); busy {
			continue
		}
		if ended, ok := d.w.LastConversationWith(d.player.ID, id); ok && d.now < ended+d.t.PlayerConversationCooldown {
			continue
		}
		if other, ok := d.w.AgentForPlayer(id); ok {
			if other.LastConversationAt != nil && d.now < *other.LastConversationAt+d.t.ConversationCooldown {
				continue
			}
			if other.ToRemember != "" {
				continue
			}
		}
		if _, ok := d.w.PlayerLocation(id); !ok {
			continue
		}
		eligible = append(eligible, id)
	}
	if len(eligible) == 0 {
		return "", false
	}
	rng := game.Rand(d.w.World().Seed, d.now, "partner:"+d.agent.ID)
	return eligible[rng.IntN(len(eligible))], true
}

func (d decider) inConversation(m game.Member) (Plan, error) {
	conv, ok := d.w.Conversation(m.ConversationID)
	if !ok {
		return Plan{}, fmt.Errorf("%w: conversation %s not found", game.ErrInvariant, m.ConversationID)
	}
	other, err := d.w.OtherMember(conv.ID, d.player.ID)
	if err != nil {
		return Plan{}, err
	}
	otherPlayer, ok := d.w.Player(other.PlayerID)
	if !ok {
		return Plan{}, fmt.Errorf("%w: player %s not found", game.ErrInvariant, other.PlayerID)
	}
	otherLoc, ok := d.w.PlayerLocation(other.PlayerID)
	if !ok {
		return Plan{}, fmt.Errorf("%w: location of player %s not found", game.ErrInvariant, other.PlayerID)
	}
	self := MembershipChanged(d.player.ID)

	switch m.Status.Kind {
	case game.MemberInvited:
		inputID := d.id("respond")
		rng := game.Rand(d.w.World().Seed, d.now, "accept:"+d.agent.ID)
		if otherPlayer.IsHuman() || rng.Float64() < d.t.InviteAcceptProbability {
			return Plan{
				Decisions: []Decision{AcceptInvite{InputID: inputID, ConversationID: conv.ID}},
				Wait:      []game.Condition{InputCompleted(inputID), self},
			}, nil
		}
		return Plan{
			Decisions: []Decision{RejectInvite{InputID: inputID, ConversationID: conv.ID}},
			Wait:      []game.Condition{InputCompleted(inputID), self},
		}, nil

	case game.MemberWalkingOver:
		timeout := m.Status.InvitedAt + d.t.InviteTimeout
		if timeout < d.now {
			inputID := d.id("leave")
			return Plan{
				Decisions: []Decision{LeaveConversation{InputID: inputID, ConversationID: conv.ID}},
				Wait:      []game.Condition{InputCompleted(inputID), self},
			}, nil
		}
		participating := ConversationParticipating(conv.ID, timeout+1)
		dist := geometry.Distance(d.loc.Position(), otherLoc.Position())
		if dist < d.t.ConversationDistance {
			return sleep(participating, self), nil
		}
		if d.moving() {
			return sleep(MovementCompleted(d.player.ID), participating, self), nil
		}
		dest := geometry.Floor(otherLoc.Position())
		if dist >= d.t.MidpointThreshold {
			dest = geometry.Floor(geometry.Midpoint(d.loc.Position(), otherLoc.Position()))
		}
		inputID := d.id("walkOver")
		return Plan{
			Decisions: []Decision{WalkOver{InputID: inputID, ConversationID: conv.ID, Destination: dest}},
			Wait:      []game.Condition{InputCompleted(inputID), participating, self},
		}, nil

	case game.MemberParticipating:
		return d.participating(conv, m, other.PlayerID), nil
	}
	return Plan{}, fmt.Errorf("%w: unexpected membership status %q", game.ErrInvariant, m.Status.Kind)
}

func (d decider) participating(conv game.Conversation, m game.Member, otherID string) Plan {
	self := MembershipChanged(d.player.ID)
	if conv.IsTyping != nil && conv.IsTyping.PlayerID != d.player.ID {
		return sleep(NobodyTyping(conv.ID, conv.IsTyping.Since+d.t.TypingTimeout+1), self)
	}
	started := m.Status.InvitedAt
	if m.Status.StartedAt != nil {
		started = *m.Status.StartedAt
	}
	if conv.LastMessage == nil {
		awkward := started + d.t.AwkwardConversationTimeout
		if conv.Creator == d.player.ID || awkward < d.now {
			return d.sendMessage(conv.ID, otherID, MessageStart)
		}
		return sleep(NewMessage(conv.ID, 0, awkward+1), self)
	}
	if started+d.t.MaxConversationDuration < d.now || conv.NumMessages > d.t.MaxConversationMessages {
		return d.sendMessage(conv.ID, otherID, MessageLeave)
	}
	if conv.LastMessage.Author == d.player.ID {
		awkward := conv.LastMessage.Timestamp + d.t.AwkwardConversationTimeout
		if d.now < awkward {
			return sleep(NewMessage(conv.ID, conv.LastMessage.Timestamp, awkward), self)
		}
	}
	if cooldown := conv.LastMessage.Timestamp + d.t.MessageCooldown; d.now < cooldown {
		return sleep(Until(cooldown), self)
	}
	return d.sendMessage(conv.ID, otherID, MessageContinue)
}

func (d decider) sendMessage(conversationID, otherID string, kind MessageKind) Plan {
	opID := d.id("message")
	return Plan{
		Decisions: []Decision{SendMessage{
			OperationID:    opID,
			MessageUUID:    d.id("messageUuid"),
			ConversationID: conversationID,
			OtherPlayerID:  otherID,
			Kind:           kind,
		}},
		Wait: []game.Condition{OperationFinished(d.agent.ID, d.now+d.t.ActionTimeout+1), MembershipChanged(d.player.ID)},
	}
}
