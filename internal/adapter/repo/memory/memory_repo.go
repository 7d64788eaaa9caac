package memory

import (
	"context"
	"sort"

	"aitown/internal/app/ports"
	"aitown/internal/domain/memory"
)

type MemoryRepo struct {
	store *Store
}

func NewMemoryRepo(store *Store) MemoryRepo {
	return MemoryRepo{store: store}
}

func (r MemoryRepo) Save(ctx context.Context, worldID string, m memory.Memory) error {
	defer r.store.lock(ctx)()
	w, ok := r.store.worlds[worldID]
	if !ok {
		return ports.ErrNotFound
	}
	setKey(r.store, w.memories, m.ID, clone(m))
	return nil
}

func (r MemoryRepo) ListByPlayer(ctx context.Context, worldID, playerID string) ([]memory.Memory, error) {
	defer r.store.lock(ctx)()
	w, ok := r.store.worlds[worldID]
	if !ok {
		return nil, ports.ErrNotFound
	}
	var out []memory.Memory
	for _, m := range w.memories {
		if m.PlayerID == playerID {
			out = append(out, clone(m))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Created != out[j].Created {
			return out[i].Created < out[j].Created
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r MemoryRepo) Touch(ctx context.Context, worldID string, ids []string, at int64) error {
	defer r.store.lock(ctx)()
	w, ok := r.store.worlds[worldID]
	if !ok {
		return ports.ErrNotFound
	}
	for _, id := range ids {
		if m, ok := w.memories[id]; ok {
			m.LastAccess = at
			setKey(r.store, w.memories, id, m)
		}
	}
	return nil
}
