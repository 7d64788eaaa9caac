package memory

import (
	"context"
	"sort"

	"aitown/internal/app/ports"
	"aitown/internal/domain/game"
)

type WorldStateRepo struct {
	store *Store
}

func NewWorldStateRepo(store *Store) WorldStateRepo {
	return WorldStateRepo{store: store}
}

func (r WorldStateRepo) CreateWorld(ctx context.Context, w game.World, m game.Map) error {
	defer r.store.lock(ctx)()
	if _, ok := r.store.worlds[w.ID]; ok {
		return ports.ErrConflict
	}
	setKey(r.store, r.store.worlds, w.ID, newWorldData(clone(w), clone(m)))
	return nil
}

func (r WorldStateRepo) world(worldID string) (*worldData, error) {
	w, ok := r.store.worlds[worldID]
	if !ok {
		return nil, ports.ErrNotFound
	}
	return w, nil
}

func (r WorldStateRepo) Load(ctx context.Context, worldID string, leftSince int64) (game.Snapshot, error) {
	defer r.store.lock(ctx)()
	w, err := r.world(worldID)
	if err != nil {
		return game.Snapshot{}, err
	}
	snap := game.Snapshot{World: clone(w.world), Map: clone(w.gameMap)}
	for _, p := range w.players {
		snap.Players = append(snap.Players, clone(p))
	}
	for _, l := range w.locations {
		snap.Locations = append(snap.Locations, clone(l))
	}
	for _, a := range w.agents {
		snap.Agents = append(snap.Agents, clone(a))
	}
	for _, c := range w.conversations {
		if c.FinishedAt == nil {
			snap.Conversations = append(snap.Conversations, clone(c))
		}
	}
	for _, m := range w.members {
		if m.Status.Kind != game.MemberLeft {
			snap.Members = append(snap.Members, clone(m))
			continue
		}
		if m.Status.EndedAt >= leftSince {
			snap.RecentLeft = append(snap.RecentLeft, clone(m))
		}
	}
	sortByID(snap.Players, func(p game.Player) string { return p.ID })
	sortByID(snap.Locations, func(l game.Location) string { return l.ID })
	sortByID(snap.Agents, func(a game.Agent) string { return a.ID })
	sortByID(snap.Conversations, func(c game.Conversation) string { return c.ID })
	sortByID(snap.Members, func(m game.Member) string { return m.ID })
	sortByID(snap.RecentLeft, func(m game.Member) string { return m.ID })
	return snap, nil
}

func (r WorldStateRepo) Save(ctx context.Context, worldID string, diff game.Diff) error {
	defer r.store.lock(ctx)()
	w, err := r.world(worldID)
	if err != nil {
		return err
	}
	if diff.World != nil {
		old := w.world
		r.store.onUndo(func() { w.world = old })
		w.world = clone(*diff.World)
	}
	for _, p := range diff.Players {
		setKey(r.store, w.players, p.ID, clone(p))
	}
	for _, l := range diff.Locations {
		setKey(r.store, w.locations, l.ID, clone(l))
	}
	for _, c := range diff.Conversations {
		setKey(r.store, w.conversations, c.ID, clone(c))
	}
	for _, m := range diff.Members {
		setKey(r.store, w.members, m.ID, clone(m))
	}
	for _, a := range diff.Agents {
		setKey(r.store, w.agents, a.ID, clone(a))
	}
	if len(diff.Messages) > 0 {
		n := len(w.messages)
		r.store.onUndo(func() { w.messages = w.messages[:n] })
		for _, m := range diff.Messages {
			w.messages = append(w.messages, clone(m))
		}
	}
	oldHistories := w.histories
	r.store.onUndo(func() { w.histories = oldHistories })
	w.histories = clone(diff.Histories)
	return nil
}

func (r WorldStateRepo) Histories(ctx context.Context, worldID string) ([]game.LocationHistory, error) {
	defer r.store.lock(ctx)()
	w, err := r.world(worldID)
	if err != nil {
		return nil, err
	}
	return clone(w.histories), nil
}

func (r WorldStateRepo) ListByConversation(ctx context.Context, worldID, conversationID string, limit int) ([]game.Message, error) {
	defer r.store.lock(ctx)()
	w, err := r.world(worldID)
	if err != nil {
		return nil, err
	}
	var out []game.Message
	for _, m := range w.messages {
		if m.ConversationID == conversationID {
			out = append(out, clone(m))
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func sortByID[T any](rows []T, id func(T) string) {
	sort.Slice(rows, func(i, j int) bool { return game.IDLess(id(rows[i]), id(rows[j])) })
}
