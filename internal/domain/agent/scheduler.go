package agent

import (
	"errors"

	"aitown/internal/domain/game"
)

// Scheduler runs agents inside world ticks. Each tick it wakes only the
// agents whose conditions were met by the tick's events or whose deadline
// passed.
type Scheduler struct {
	index *Index
	// Decided counts decision runs, for metrics.
	Decided int
}

// NewScheduler rebuilds the wake index from the agents' persisted
// conditions.
func NewScheduler(s *game.State) *Scheduler {
	sch := &Scheduler{index: NewIndex()}
	for _, id := range s.AgentIDs() {
		a, _ := s.Agent(id)
		if a.WaitingOn != nil {
			sch.index.Replace(id, a.WaitingOn)
		}
	}
	return sch
}

func (sch *Scheduler) Index() *Index { return sch.index }

func (sch *Scheduler) RunAgents(s *game.State, now int64) error {
	woken := map[string]bool{}
	for _, e := range s.DrainEvents() {
		for _, id := range sch.index.Wake(e) {
			woken[id] = true
		}
	}
	for _, id := range s.AgentIDs() {
		a, _ := s.Agent(id)
		p, ok := s.Player(a.PlayerID)
		if !ok || !p.Active {
			continue
		}
		if a.WaitingOn == nil || (a.WakeAt != 0 && a.WakeAt <= now) {
			woken[id] = true
		}
	}
	for _, id := range s.AgentIDs() {
		if !woken[id] {
			continue
		}
		plan, err := Decide(now, id, s.View())
		if err != nil {
			return err
		}
		sch.Decided++
		wait := plan.Wait
		ex := &executor{s: s, now: now, agentID: id}
		for _, d := range plan.Decisions {
			if err := d.Accept(ex); err != nil {
				if errors.Is(err, game.ErrInvariant) {
					return err
				}
				// The world refused the effect; look again once it settles.
				wait = []game.Condition{MembershipChanged(ex.playerID()), Until(now + s.Tuning().MessageCooldown)}
				break
			}
		}
		if err := s.SetWaiting(id, wait); err != nil {
			return err
		}
		sch.index.Replace(id, wait)
	}
	return nil
}

// executor applies decisions to the working set. World changes that other
// players could observe go through queued inputs; only the agent's own
// bookkeeping and the typing lock are written directly.
type executor struct {
	s       *game.State
	now     int64
	agentID string
}

func (e *executor) agent() (*game.Agent, error) {
	a, ok := e.s.Agent(e.agentID)
	if !ok {
		return nil, errors.Join(game.ErrInvariant, errors.New("agent "+e.agentID+" not found"))
	}
	return a, nil
}

func (e *executor) playerID() string {
	a, err := e.agent()
	if err != nil {
		return ""
	}
	return a.PlayerID
}

func (e *executor) Sleep(Sleep) error { return nil }

func (e *executor) TimeoutOperation(TimeoutOperation) error {
	return e.s.TimeoutOperation(e.agentID)
}

func (e *executor) Wander(d Wander) error {
	dest := d.Destination
	return e.s.EmitInput(d.InputID, game.InputMoveTo, game.MoveToArgs{PlayerID: e.playerID(), Destination: &dest}, e.now)
}

func (e *executor) Invite(d Invite) error {
	a, err := e.agent()
	if err != nil {
		return err
	}
	at := e.now
	a.LastInviteAttemptAt = &at
	e.s.MarkDirty(a.ID)
	return e.s.EmitInput(d.InputID, game.InputStartConversation, game.StartConversationArgs{PlayerID: a.PlayerID, Invitee: d.Invitee}, e.now)
}

func (e *executor) AcceptInvite(d AcceptInvite) error {
	return e.s.EmitInput(d.InputID, game.InputAcceptInvite, game.ConversationArgs{PlayerID: e.playerID(), ConversationID: d.ConversationID}, e.now)
}

func (e *executor) RejectInvite(d RejectInvite) error {
	return e.s.EmitInput(d.InputID, game.InputRejectInvite, game.ConversationArgs{PlayerID: e.playerID(), ConversationID: d.ConversationID}, e.now)
}

func (e *executor) WalkOver(d WalkOver) error {
	dest := d.Destination
	return e.s.EmitInput(d.InputID, game.InputMoveTo, game.MoveToArgs{PlayerID: e.playerID(), Destination: &dest}, e.now)
}

func (e *executor) LeaveConversation(d LeaveConversation) error {
	return e.s.EmitInput(d.InputID, game.InputLeaveConversation, game.ConversationArgs{PlayerID: e.playerID(), ConversationID: d.ConversationID}, e.now)
}

func (e *executor) SendMessage(d SendMessage) error {
	a, err := e.agent()
	if err != nil {
		return err
	}
	if err := e.s.ClaimTyping(e.now, d.ConversationID, a.PlayerID, d.MessageUUID); err != nil {
		return err
	}
	return e.s.StartOperation(game.Operation{
		ID:             d.OperationID,
		Name:           game.OpGenerateMessage,
		AgentID:        a.ID,
		PlayerID:       a.PlayerID,
		ConversationID: d.ConversationID,
		OtherPlayerID:  d.OtherPlayerID,
		MessageUUID:    d.MessageUUID,
		MessageKind:    string(d.Kind),
		Started:        e.now,
	})
}

func (e *executor) Remember(d Remember) error {
	a, err := e.agent()
	if err != nil {
		return err
	}
	return e.s.StartOperation(game.Operation{
		ID:             d.OperationID,
		Name:           game.OpRememberConversation,
		AgentID:        a.ID,
		PlayerID:       a.PlayerID,
		ConversationID: d.ConversationID,
		Started:        e.now,
	})
}
