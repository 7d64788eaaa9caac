package game

import (
	"errors"
	"sort"

	"aitown/internal/domain/geometry"
	"aitown/internal/domain/pathfinding"
)

var (
	ErrInviteSelf          = errors.New("cannot invite yourself to a conversation")
	ErrAlreadyConversing   = errors.New("player is already in a conversation")
	ErrNotMember           = errors.New("player is not a member of the conversation")
	ErrUnexpectedStatus    = errors.New("membership is not in the required status")
	ErrConversationOver    = errors.New("conversation already finished")
	ErrSomeoneElseTyping   = errors.New("another player is typing")
	ErrPlayerInactive      = errors.New("player is not active")
	ErrStaleOperation      = errors.New("operation result is stale")
	ErrConversationMissing = errors.New("conversation not found")
)

func (s *State) startConversation(now int64, player, invitee *Player) (string, error) {
	if player.ID == invitee.ID {
		return "", ErrInviteSelf
	}
	if !player.Active || !invitee.Active {
		return "", ErrPlayerInactive
	}
	if _, ok := s.Membership(player.ID); ok {
		return "", ErrAlreadyConversing
	}
	if _, ok := s.Membership(invitee.ID); ok {
		return "", ErrAlreadyConversing
	}
	convID := s.AllocID("c")
	s.conversations.insert(convID, Conversation{ID: convID, Creator: player.ID, Created: now})
	creatorID := s.AllocID("m")
	s.insertMember(Member{
		ID:             creatorID,
		ConversationID: convID,
		PlayerID:       player.ID,
		Status:         MemberStatus{Kind: MemberWalkingOver, InvitedAt: now},
	})
	inviteeID := s.AllocID("m")
	s.insertMember(Member{
		ID:             inviteeID,
		ConversationID: convID,
		PlayerID:       invitee.ID,
		Status:         MemberStatus{Kind: MemberInvited, InvitedAt: now},
	})
	s.membershipChanged(now, player.ID, convID, MemberWalkingOver)
	s.membershipChanged(now, invitee.ID, convID, MemberInvited)
	return convID, nil
}

func (s *State) membershipChanged(now int64, playerID, conversationID string, status MemberStatusKind) {
	s.emit(Event{
		Kind:           EventMembershipChanged,
		Time:           now,
		PlayerID:       playerID,
		ConversationID: conversationID,
		Status:         status,
	})
}

// memberOf returns the current membership of playerID in conversationID.
func (s *State) memberOf(conversationID, playerID string) (*Conversation, *Member, error) {
	c, ok := s.conversations.get(conversationID)
	if !ok {
		return nil, nil, ErrConversationMissing
	}
	if c.FinishedAt != nil {
		return nil, nil, ErrConversationOver
	}
	m, ok := s.Membership(playerID)
	if !ok || m.ConversationID != conversationID {
		return nil, nil, ErrNotMember
	}
	return c, m, nil
}

func (s *State) acceptInvite(now int64, playerID, conversationID string) error {
	_, m, err := s.memberOf(conversationID, playerID)
	if err != nil {
		return err
	}
	if m.Status.Kind != MemberInvited {
		return ErrUnexpectedStatus
	}
	m.Status = MemberStatus{Kind: MemberWalkingOver, InvitedAt: m.Status.InvitedAt}
	s.members.markDirty(m.ID)
	s.membershipChanged(now, playerID, conversationID, MemberWalkingOver)
	return nil
}

func (s *State) rejectInvite(now int64, playerID, conversationID string) error {
	c, m, err := s.memberOf(conversationID, playerID)
	if err != nil {
		return err
	}
	if m.Status.Kind != MemberInvited {
		return ErrUnexpectedStatus
	}
	return s.stopConversation(now, c)
}

func (s *State) leaveConversation(now int64, playerID, conversationID string) error {
	c, _, err := s.memberOf(conversationID, playerID)
	if err != nil {
		return err
	}
	return s.stopConversation(now, c)
}

// stopConversation finalizes both memberships and hands the conversation to
// each side's agent for remembering.
func (s *State) stopConversation(now int64, c *Conversation) error {
	members := s.conversationMembers(c.ID)
	if len(members) != 2 {
		return invariantf("conversation %s has %d members", c.ID, len(members))
	}
	for i, m := range members {
		other := members[1-i]
		var started *int64
		if m.Status.Kind == MemberParticipating {
			started = m.Status.StartedAt
		}
		m.Status = MemberStatus{
			Kind:      MemberLeft,
			InvitedAt: m.Status.InvitedAt,
			StartedAt: started,
			EndedAt:   now,
			With:      other.PlayerID,
		}
		s.members.markDirty(m.ID)
		s.recentLeft = append(s.recentLeft, *m)
		if a, ok := s.AgentForPlayer(m.PlayerID); ok {
			a.ToRemember = c.ID
			at := now
			a.LastConversationAt = &at
			s.agents.markDirty(a.ID)
		}
	}
	finished := now
	c.FinishedAt = &finished
	if c.IsTyping != nil {
		c.IsTyping = nil
		s.emit(Event{Kind: EventTypingCleared, Time: now, ConversationID: c.ID})
	}
	s.conversations.markDirty(c.ID)
	for _, m := range members {
		s.membershipChanged(now, m.PlayerID, c.ID, MemberLeft)
	}
	return nil
}

// ClaimTyping takes the conversation's typing lock for playerID. A lock
// held by someone else is refused.
func (s *State) ClaimTyping(now int64, conversationID, playerID, messageUUID string) error {
	c, m, err := s.memberOf(conversationID, playerID)
	if err != nil {
		return err
	}
	if m.Status.Kind != MemberParticipating {
		return ErrUnexpectedStatus
	}
	if c.IsTyping != nil && c.IsTyping.PlayerID != playerID {
		return ErrSomeoneElseTyping
	}
	c.IsTyping = &Typing{PlayerID: playerID, MessageUUID: messageUUID, Since: now}
	s.conversations.markDirty(c.ID)
	return nil
}

type messageRequest struct {
	conversationID string
	playerID       string
	messageUUID    string
	text           string
	leave          bool
}

func (s *State) writeMessage(now int64, req messageRequest) (string, error) {
	c, m, err := s.memberOf(req.conversationID, req.playerID)
	if err != nil {
		return "", err
	}
	if m.Status.Kind != MemberParticipating {
		return "", ErrUnexpectedStatus
	}
	if c.IsTyping != nil && c.IsTyping.MessageUUID == req.messageUUID {
		c.IsTyping = nil
		s.emit(Event{Kind: EventTypingCleared, Time: now, ConversationID: c.ID})
	}
	msgID := s.AllocID("msg")
	s.messages = append(s.messages, Message{
		ID:             msgID,
		ConversationID: c.ID,
		Author:         req.playerID,
		MessageUUID:    req.messageUUID,
		Text:           req.text,
		Timestamp:      now,
	})
	c.NumMessages++
	c.LastMessage = &LastMessage{Author: req.playerID, Timestamp: now}
	s.conversations.markDirty(c.ID)
	s.emit(Event{Kind: EventMessageWritten, Time: now, ConversationID: c.ID, PlayerID: req.playerID, MessageTime: now})
	if req.leave {
		if err := s.stopConversation(now, c); err != nil {
			return "", err
		}
	}
	return msgID, nil
}

func (s *State) tickConversation(now int64, c *Conversation) error {
	if c.FinishedAt != nil {
		return nil
	}
	t := s.tuning
	if c.IsTyping != nil && c.IsTyping.Since+t.TypingTimeout < now {
		c.IsTyping = nil
		s.conversations.markDirty(c.ID)
		s.emit(Event{Kind: EventTypingCleared, Time: now, ConversationID: c.ID})
	}
	members := s.conversationMembers(c.ID)
	if len(members) != 2 {
		return invariantf("conversation %s has %d members", c.ID, len(members))
	}
	m1, m2 := members[0], members[1]

	if m1.Status.Kind != MemberParticipating || m2.Status.Kind != MemberParticipating {
		if c.Created+t.InviteTimeout+t.ConversationGrace < now {
			return s.stopConversation(now, c)
		}
	}
	if m1.Status.Kind == MemberWalkingOver && m2.Status.Kind == MemberWalkingOver {
		return s.maybeStartParticipating(now, m1, m2)
	}
	if m1.Status.Kind == MemberParticipating && m2.Status.Kind == MemberParticipating {
		started := *m1.Status.StartedAt
		if started+t.MaxConversationDuration+t.ConversationGrace < now ||
			c.NumMessages > t.MaxConversationMessages+1 {
			return s.stopConversation(now, c)
		}
	}
	return nil
}

func (s *State) maybeStartParticipating(now int64, m1, m2 *Member) error {
	p1, err := s.mustPlayer(m1.PlayerID)
	if err != nil {
		return err
	}
	p2, err := s.mustPlayer(m2.PlayerID)
	if err != nil {
		return err
	}
	l1, err := s.mustLocation(p1)
	if err != nil {
		return err
	}
	l2, err := s.mustLocation(p2)
	if err != nil {
		return err
	}
	if geometry.Distance(l1.Position(), l2.Position()) >= s.tuning.ConversationDistance {
		return nil
	}
	s.stopPlayer(now, p1)
	s.stopPlayer(now, p2)
	started := now
	for _, m := range []*Member{m1, m2} {
		m.Status = MemberStatus{Kind: MemberParticipating, InvitedAt: m.Status.InvitedAt, StartedAt: &started}
		s.members.markDirty(m.ID)
		s.membershipChanged(now, m.PlayerID, m.ConversationID, MemberParticipating)
	}
	s.faceEachOther(p1, p2, l1, l2)
	return nil
}

// faceEachOther snaps the first player to its nearest grid point and the
// second to the free axis neighbor of that point closest to it.
func (s *State) faceEachOther(p1, p2 *Player, l1, l2 *Location) {
	others := s.otherPositions(p1.ID, p2.ID)
	free := func(pt geometry.Point) bool {
		return pathfinding.Blocked(pt, s.gameMap, others, s.tuning.CollisionThreshold) == pathfinding.NotBlocked
	}
	snap1 := geometry.Round(l1.Position())
	if free(snap1) {
		l1.X, l1.Y = snap1.X, snap1.Y
	}
	anchor := l1.Position()
	candidates := []geometry.Point{
		{X: anchor.X + 1, Y: anchor.Y},
		{X: anchor.X - 1, Y: anchor.Y},
		{X: anchor.X, Y: anchor.Y + 1},
		{X: anchor.X, Y: anchor.Y - 1},
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return geometry.Distance(candidates[i], l2.Position()) < geometry.Distance(candidates[j], l2.Position())
	})
	for _, c := range candidates {
		if free(c) {
			l2.X, l2.Y = c.X, c.Y
			break
		}
	}
	if v, ok := geometry.Normalize(geometry.Subtract(l2.Position(), l1.Position())); ok {
		l1.DX, l1.DY = v.DX, v.DY
		l2.DX, l2.DY = -v.DX, -v.DY
	}
	l1.Velocity, l2.Velocity = 0, 0
	s.locations.markDirty(l1.ID)
	s.locations.markDirty(l2.ID)
}
