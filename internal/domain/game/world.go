package game

import "fmt"

// Tick advances the world by one simulated tick at now.
func (s *State) Tick(now int64) error {
	if err := s.evictIdleHumans(now); err != nil {
		return err
	}
	for _, id := range s.players.ids() {
		p, _ := s.players.get(id)
		if !p.Active {
			continue
		}
		if err := s.tickPathfinding(now, p); err != nil {
			return err
		}
		if err := s.tickPosition(now, p); err != nil {
			return err
		}
	}
	s.updateHistory(now)
	for _, id := range s.conversations.ids() {
		c, _ := s.conversations.get(id)
		if err := s.tickConversation(now, c); err != nil {
			return err
		}
	}
	if s.runner != nil {
		if err := s.runner.RunAgents(s, now); err != nil {
			return err
		}
	}
	return nil
}

func (s *State) evictIdleHumans(now int64) error {
	for _, id := range s.players.ids() {
		p, _ := s.players.get(id)
		if !p.Active || !p.IsHuman() {
			continue
		}
		if p.LastInput+s.tuning.HumanIdleTooLong < now {
			if err := s.leaveGame(now, p); err != nil {
				return fmt.Errorf("evict idle player %s: %w", p.ID, err)
			}
		}
	}
	return nil
}

// IdleUntil reports how long the world can sleep after now without missing
// a state change. It returns nil while anything needs ticking.
func (s *State) IdleUntil(now int64) *int64 {
	if len(s.events) > 0 {
		return nil
	}
	t := s.tuning
	until := now + t.MaxIdleDuration
	consider := func(deadline int64) {
		if deadline < until {
			until = deadline
		}
	}
	for _, id := range s.players.ids() {
		p, _ := s.players.get(id)
		if !p.Active {
			continue
		}
		if p.IsHuman() {
			consider(p.LastInput + t.HumanIdleTooLong + 1)
		}
		if pf := p.Pathfinding; pf != nil {
			if pf.State.Kind != PathWaiting {
				return nil
			}
			consider(pf.State.Until + 1)
			consider(pf.Started + t.PathfindingTimeout + 1)
		}
	}
	for _, id := range s.agents.ids() {
		a, _ := s.agents.get(id)
		if p, ok := s.players.get(a.PlayerID); !ok || !p.Active {
			continue
		}
		if a.WaitingOn == nil {
			return nil
		}
		if a.WakeAt != 0 {
			consider(a.WakeAt)
		}
	}
	for _, id := range s.conversations.ids() {
		c, _ := s.conversations.get(id)
		if c.FinishedAt != nil {
			continue
		}
		if c.IsTyping != nil {
			consider(c.IsTyping.Since + t.TypingTimeout + 1)
		}
		members := s.conversationMembers(c.ID)
		participating := len(members) == 2
		for _, m := range members {
			if m.Status.Kind != MemberParticipating {
				participating = false
			}
		}
		if !participating {
			consider(c.Created + t.InviteTimeout + t.ConversationGrace + 1)
		} else if started := members[0].Status.StartedAt; started != nil {
			consider(*started + t.MaxConversationDuration + t.ConversationGrace + 1)
		}
	}
	if until < now {
		until = now
	}
	return &until
}
