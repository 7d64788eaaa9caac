package game

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"aitown/internal/domain/history"
)

// Snapshot is the persisted world as loaded at the start of a step.
type Snapshot struct {
	World         World
	Map           Map
	Players       []Player
	Locations     []Location
	Conversations []Conversation
	Members       []Member
	Agents        []Agent
	// RecentLeft holds finished memberships still inside a cooldown window.
	RecentLeft []Member
}

type LocationHistory struct {
	LocationID string
	Buffer     []byte
}

// Diff is everything a step changed, ready to be committed.
type Diff struct {
	World         *World
	Players       []Player
	Locations     []Location
	Conversations []Conversation
	Members       []Member
	Agents        []Agent
	Messages      []Message
	Histories     []LocationHistory
}

func (d Diff) Empty() bool {
	return d.World == nil && len(d.Players) == 0 && len(d.Locations) == 0 &&
		len(d.Conversations) == 0 && len(d.Members) == 0 && len(d.Agents) == 0 &&
		len(d.Messages) == 0 && len(d.Histories) == 0
}

// AgentRunner advances agents by one tick. The agent package provides the
// implementation; the engine injects it to keep the dependency one-way.
type AgentRunner interface {
	RunAgents(s *State, now int64) error
}

var historyFields = []history.Field{
	{Name: "x", Precision: 8},
	{Name: "y", Precision: 8},
	{Name: "dx", Precision: 8},
	{Name: "dy", Precision: 8},
	{Name: "velocity", Precision: 16},
}

type State struct {
	world      World
	worldDirty bool
	gameMap    Map
	tuning     Tuning

	players       table[Player]
	locations     table[Location]
	conversations table[Conversation]
	members       table[Member]
	agents        table[Agent]

	// Secondary indexes. Member and agent foreign keys never change after
	// insert, so they are maintained only on load and insert.
	membersByPlayer       map[string][]string
	membersByConversation map[string][]string
	agentByPlayer         map[string]string

	recentLeft []Member
	messages   []Message
	events     []Event
	emitted    []EmittedInput
	operations []Operation
	histories  map[string]*history.Buffer

	numPathfinds int
	runner       AgentRunner
}

func NewState(snap Snapshot, tuning Tuning, start int64) *State {
	s := &State{
		world:         snap.World,
		gameMap:       snap.Map,
		tuning:        tuning,
		players:       newTable[Player](),
		locations:     newTable[Location](),
		conversations: newTable[Conversation](),
		members:       newTable[Member](),
		agents:        newTable[Agent](),

		membersByPlayer:       map[string][]string{},
		membersByConversation: map[string][]string{},
		agentByPlayer:         map[string]string{},

		recentLeft:    append([]Member(nil), snap.RecentLeft...),
		histories:     map[string]*history.Buffer{},
	}
	for _, p := range snap.Players {
		s.players.load(p.ID, p)
	}
	for _, l := range snap.Locations {
		s.locations.load(l.ID, l)
		s.resetHistory(l, start)
	}
	for _, c := range snap.Conversations {
		s.conversations.load(c.ID, c)
	}
	for _, m := range snap.Members {
		s.members.load(m.ID, m)
		s.indexMember(m)
	}
	for _, a := range snap.Agents {
		s.agents.load(a.ID, a)
		s.agentByPlayer[a.PlayerID] = a.ID
	}
	return s
}

func (s *State) SetAgentRunner(r AgentRunner) { s.runner = r }

func (s *State) World() World   { return s.world }
func (s *State) Map() Map       { return s.gameMap }
func (s *State) Tuning() Tuning { return s.tuning }

// AllocID returns the next sequential entity id with the given prefix.
func (s *State) AllocID(prefix string) string {
	s.world.NextID++
	s.worldDirty = true
	return prefix + ":" + strconv.FormatInt(s.world.NextID, 10)
}

func (s *State) Player(id string) (*Player, bool)             { return s.players.get(id) }
func (s *State) Location(id string) (*Location, bool)         { return s.locations.get(id) }
func (s *State) Conversation(id string) (*Conversation, bool) { return s.conversations.get(id) }
func (s *State) Member(id string) (*Member, bool)             { return s.members.get(id) }
func (s *State) Agent(id string) (*Agent, bool)               { return s.agents.get(id) }

// MarkDirty flags the entity with the given id for the next Diff. The table
// is chosen by id prefix.
func (s *State) MarkDirty(id string) {
	switch prefixOf(id) {
	case "p":
		s.players.markDirty(id)
	case "l":
		s.locations.markDirty(id)
	case "c":
		s.conversations.markDirty(id)
	case "m":
		s.members.markDirty(id)
	case "a":
		s.agents.markDirty(id)
	}
}

func (s *State) PlayerIDs() []string       { return s.players.ids() }
func (s *State) AgentIDs() []string        { return s.agents.ids() }
func (s *State) ConversationIDs() []string { return s.conversations.ids() }

func (s *State) mustPlayer(id string) (*Player, error) {
	p, ok := s.players.get(id)
	if !ok {
		return nil, invariantf("player %s not found", id)
	}
	return p, nil
}

func (s *State) mustLocation(p *Player) (*Location, error) {
	l, ok := s.locations.get(p.LocationID)
	if !ok {
		return nil, invariantf("location %s of player %s not found", p.LocationID, p.ID)
	}
	return l, nil
}

func (s *State) AgentForPlayer(playerID string) (*Agent, bool) {
	id, ok := s.agentByPlayer[playerID]
	if !ok {
		return nil, false
	}
	return s.agents.get(id)
}

// Membership returns the player's current, not yet left, membership.
func (s *State) Membership(playerID string) (*Member, bool) {
	for _, id := range s.membersByPlayer[playerID] {
		m, _ := s.members.get(id)
		if m.Status.Kind != MemberLeft {
			return m, true
		}
	}
	return nil, false
}

func (s *State) conversationMembers(conversationID string) []*Member {
	ids := s.membersByConversation[conversationID]
	out := make([]*Member, 0, len(ids))
	for _, id := range ids {
		m, _ := s.members.get(id)
		out = append(out, m)
	}
	return out
}

func (s *State) insertMember(m Member) *Member {
	s.indexMember(m)
	return s.members.insert(m.ID, m)
}

func (s *State) insertAgent(a Agent) *Agent {
	s.agentByPlayer[a.PlayerID] = a.ID
	return s.agents.insert(a.ID, a)
}

func (s *State) indexMember(m Member) {
	s.membersByPlayer[m.PlayerID] = insertSorted(s.membersByPlayer[m.PlayerID], m.ID)
	s.membersByConversation[m.ConversationID] = insertSorted(s.membersByConversation[m.ConversationID], m.ID)
}

func insertSorted(ids []string, id string) []string {
	i := sort.Search(len(ids), func(i int) bool { return !IDLess(ids[i], id) })
	if i < len(ids) && ids[i] == id {
		return ids
	}
	ids = append(ids, "")
	copy(ids[i+1:], ids[i:])
	ids[i] = id
	return ids
}

// OtherMember returns the membership of the other participant.
func (s *State) OtherMember(conversationID, playerID string) (*Member, error) {
	members := s.conversationMembers(conversationID)
	if len(members) != 2 {
		return nil, invariantf("conversation %s has %d members", conversationID, len(members))
	}
	for _, m := range members {
		if m.PlayerID != playerID {
			return m, nil
		}
	}
	return nil, invariantf("conversation %s has no member other than %s", conversationID, playerID)
}

// LastConversationWith returns when playerID last left a conversation with
// otherID, if that is still remembered.
func (s *State) LastConversationWith(playerID, otherID string) (int64, bool) {
	var last int64
	found := false
	for _, m := range s.recentLeft {
		if m.PlayerID == playerID && m.Status.With == otherID && (!found || m.Status.EndedAt > last) {
			last = m.Status.EndedAt
			found = true
		}
	}
	return last, found
}

func (s *State) emit(e Event) {
	s.events = append(s.events, e)
}

// Emit records an external state change, such as an input completing.
func (s *State) Emit(e Event) { s.emit(e) }

// DrainEvents returns the events recorded since the last drain.
func (s *State) DrainEvents() []Event {
	out := s.events
	s.events = nil
	return out
}

func (s *State) PendingEvents() int { return len(s.events) }

// EmitInput queues a command for a later step.
func (s *State) EmitInput(id, name string, args any, now int64) error {
	b, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode %s args: %w", name, err)
	}
	s.emitted = append(s.emitted, EmittedInput{ID: id, Name: name, Args: b, ReceivedTime: now})
	return nil
}

func (s *State) EmittedInputs() []EmittedInput { return s.emitted }

// StartOperation records op as the agent's in-progress operation and queues
// it for dispatch once the step commits.
func (s *State) StartOperation(op Operation) error {
	a, ok := s.agents.get(op.AgentID)
	if !ok {
		return invariantf("agent %s not found", op.AgentID)
	}
	if a.InProgress != nil {
		return invariantf("agent %s already running %s", a.ID, a.InProgress.Name)
	}
	op.Generation = a.Generation
	a.InProgress = &op
	s.agents.markDirty(a.ID)
	s.operations = append(s.operations, op)
	return nil
}

// TimeoutOperation drops the agent's in-progress operation and bumps its
// generation so a late result is rejected.
func (s *State) TimeoutOperation(agentID string) error {
	a, ok := s.agents.get(agentID)
	if !ok {
		return invariantf("agent %s not found", agentID)
	}
	a.InProgress = nil
	a.Generation++
	s.agents.markDirty(a.ID)
	return nil
}

func (s *State) PendingOperations() []Operation { return s.operations }

// SetWaiting replaces the agent's wake conditions wholesale.
func (s *State) SetWaiting(agentID string, conds []Condition) error {
	a, ok := s.agents.get(agentID)
	if !ok {
		return invariantf("agent %s not found", agentID)
	}
	if conds == nil {
		conds = []Condition{}
	}
	a.WaitingOn = conds
	a.WakeAt = EarliestDeadline(conds)
	s.agents.markDirty(a.ID)
	return nil
}

func (s *State) Messages() []Message { return s.messages }

func (s *State) resetHistory(l Location, now int64) {
	b := history.New(historyFields)
	_ = b.Reset(now, locationValues(l))
	s.histories[l.ID] = b
}

func (s *State) updateHistory(now int64) {
	for _, id := range s.locations.ids() {
		l, _ := s.locations.get(id)
		b, ok := s.histories[id]
		if !ok {
			s.resetHistory(*l, now)
			continue
		}
		_ = b.Update(now, locationValues(*l))
	}
}

func locationValues(l Location) []float64 {
	return []float64{l.X, l.Y, l.DX, l.DY, l.Velocity}
}

// Diff collects touched rows sorted by id plus the step's new messages and
// non-empty location histories.
func (s *State) Diff() Diff {
	d := Diff{
		Players:       s.players.diff(),
		Locations:     s.locations.diff(),
		Conversations: s.conversations.diff(),
		Members:       s.members.diff(),
		Agents:        s.agents.diff(),
		Messages:      append([]Message(nil), s.messages...),
	}
	if s.worldDirty {
		w := s.world
		d.World = &w
	}
	ids := make([]string, 0, len(s.histories))
	for id := range s.histories {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return IDLess(ids[i], ids[j]) })
	for _, id := range ids {
		b := s.histories[id]
		if b.NumSamples() == 0 {
			continue
		}
		d.Histories = append(d.Histories, LocationHistory{LocationID: id, Buffer: b.Pack()})
	}
	return d
}

type table[T any] struct {
	rows  map[string]*T
	dirty map[string]struct{}
}

func newTable[T any]() table[T] {
	return table[T]{rows: map[string]*T{}, dirty: map[string]struct{}{}}
}

func (t *table[T]) load(id string, v T) {
	t.rows[id] = &v
}

func (t *table[T]) insert(id string, v T) *T {
	t.rows[id] = &v
	t.dirty[id] = struct{}{}
	return t.rows[id]
}

func (t *table[T]) get(id string) (*T, bool) {
	v, ok := t.rows[id]
	return v, ok
}

func (t *table[T]) markDirty(id string) {
	if _, ok := t.rows[id]; ok {
		t.dirty[id] = struct{}{}
	}
}

func (t *table[T]) ids() []string {
	out := make([]string, 0, len(t.rows))
	for id := range t.rows {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return IDLess(out[i], out[j]) })
	return out
}

func (t *table[T]) diff() []T {
	ids := make([]string, 0, len(t.dirty))
	for id := range t.dirty {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return IDLess(ids[i], ids[j]) })
	out := make([]T, 0, len(ids))
	for _, id := range ids {
		out = append(out, *t.rows[id])
	}
	return out
}

func prefixOf(id string) string {
	prefix, _, _ := strings.Cut(id, ":")
	return prefix
}

// IDLess orders "p:2" before "p:10". Ids without a numeric suffix compare
// as plain strings.
func IDLess(a, b string) bool {
	pa, na, okA := splitID(a)
	pb, nb, okB := splitID(b)
	if !okA || !okB || pa != pb {
		return a < b
	}
	return na < nb
}

func splitID(id string) (string, int64, bool) {
	prefix, num, ok := strings.Cut(id, ":")
	if !ok {
		return "", 0, false
	}
	n, err := strconv.ParseInt(num, 10, 64)
	if err != nil {
		return "", 0, false
	}
	return prefix, n, true
}
