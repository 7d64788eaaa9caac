package memory

import (
	"context"
	"sort"

	"aitown/internal/app/ports"
)

type EngineRepo struct {
	store *Store
}

func NewEngineRepo(store *Store) EngineRepo {
	return EngineRepo{store: store}
}

func (r EngineRepo) Get(ctx context.Context, worldID string) (ports.EngineRecord, error) {
	defer r.store.lock(ctx)()
	rec, ok := r.store.engines[worldID]
	if !ok {
		return ports.EngineRecord{}, ports.ErrNotFound
	}
	return clone(rec), nil
}

func (r EngineRepo) Create(ctx context.Context, rec ports.EngineRecord) error {
	defer r.store.lock(ctx)()
	if _, ok := r.store.engines[rec.WorldID]; ok {
		return ports.ErrConflict
	}
	setKey(r.store, r.store.engines, rec.WorldID, clone(rec))
	return nil
}

func (r EngineRepo) SaveWithGeneration(ctx context.Context, rec ports.EngineRecord, expectedGeneration int64) error {
	defer r.store.lock(ctx)()
	current, ok := r.store.engines[rec.WorldID]
	if !ok {
		return ports.ErrNotFound
	}
	if current.GenerationNumber != expectedGeneration {
		return ports.ErrConflict
	}
	setKey(r.store, r.store.engines, rec.WorldID, clone(rec))
	return nil
}

func (r EngineRepo) ListRunning(ctx context.Context) ([]ports.EngineRecord, error) {
	defer r.store.lock(ctx)()
	var out []ports.EngineRecord
	for _, rec := range r.store.engines {
		if rec.Status == ports.EngineRunning {
			out = append(out, clone(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WorldID < out[j].WorldID })
	return out, nil
}
