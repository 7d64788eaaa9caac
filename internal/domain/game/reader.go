package game

// Reader is a read-only view of the working set. Every method returns
// copies, so holders cannot mutate the state through it.
type Reader interface {
	World() World
	Map() Map
	Tuning() Tuning
	Player(id string) (Player, bool)
	PlayerLocation(playerID string) (Location, bool)
	ActivePlayerIDs() []string
	Agent(id string) (Agent, bool)
	AgentForPlayer(playerID string) (Agent, bool)
	Conversation(id string) (Conversation, bool)
	Membership(playerID string) (Member, bool)
	OtherMember(conversationID, playerID string) (Member, error)
	LastConversationWith(playerID, otherID string) (int64, bool)
}

type view struct{ s *State }

func (s *State) View() Reader { return view{s: s} }

func (v view) World() World   { return v.s.world }
func (v view) Map() Map       { return v.s.gameMap }
func (v view) Tuning() Tuning { return v.s.tuning }

func (v view) Player(id string) (Player, bool) {
	p, ok := v.s.players.get(id)
	if !ok {
		return Player{}, false
	}
	return *p, true
}

func (v view) PlayerLocation(playerID string) (Location, bool) {
	p, ok := v.s.players.get(playerID)
	if !ok {
		return Location{}, false
	}
	l, ok := v.s.locations.get(p.LocationID)
	if !ok {
		return Location{}, false
	}
	return *l, true
}

func (v view) ActivePlayerIDs() []string {
	var out []string
	for _, id := range v.s.players.ids() {
		p, _ := v.s.players.get(id)
		if p.Active {
			out = append(out, id)
		}
	}
	return out
}

func (v view) Agent(id string) (Agent, bool) {
	a, ok := v.s.agents.get(id)
	if !ok {
		return Agent{}, false
	}
	return *a, true
}

func (v view) AgentForPlayer(playerID string) (Agent, bool) {
	a, ok := v.s.AgentForPlayer(playerID)
	if !ok {
		return Agent{}, false
	}
	return *a, true
}

func (v view) Conversation(id string) (Conversation, bool) {
	c, ok := v.s.conversations.get(id)
	if !ok {
		return Conversation{}, false
	}
	return *c, true
}

func (v view) Membership(playerID string) (Member, bool) {
	m, ok := v.s.Membership(playerID)
	if !ok {
		return Member{}, false
	}
	return *m, true
}

func (v view) OtherMember(conversationID, playerID string) (Member, error) {
	m, err := v.s.OtherMember(conversationID, playerID)
	if err != nil {
		return Member{}, err
	}
	return *m, nil
}

func (v view) LastConversationWith(playerID, otherID string) (int64, bool) {
	return v.s.LastConversationWith(playerID, otherID)
}
