package memory

import (
	"context"
	"sort"

	"aitown/internal/app/ports"
)

type InputRepo struct {
	store *Store
}

func NewInputRepo(store *Store) InputRepo {
	return InputRepo{store: store}
}

func (r InputRepo) Append(ctx context.Context, rec ports.InputRecord) error {
	defer r.store.lock(ctx)()
	queue := r.store.inputs[rec.WorldID]
	if n := len(queue); n > 0 && queue[n-1].Number >= rec.Number {
		return ports.ErrConflict
	}
	if _, ok := r.store.inputIDs[rec.ID]; ok {
		return ports.ErrConflict
	}
	n := len(queue)
	r.store.onUndo(func() { r.store.inputs[rec.WorldID] = r.store.inputs[rec.WorldID][:n] })
	r.store.inputs[rec.WorldID] = append(queue, clone(rec))
	setKey(r.store, r.store.inputIDs, rec.ID, inputRef{worldID: rec.WorldID, number: rec.Number})
	return nil
}

func (r InputRepo) MaxNumber(ctx context.Context, worldID string) (int64, error) {
	defer r.store.lock(ctx)()
	queue := r.store.inputs[worldID]
	if len(queue) == 0 {
		return 0, nil
	}
	return queue[len(queue)-1].Number, nil
}

// ListPending relies on queue numbers being strictly increasing.
func (r InputRepo) ListPending(ctx context.Context, worldID string, afterNumber int64, limit int) ([]ports.InputRecord, error) {
	defer r.store.lock(ctx)()
	queue := r.store.inputs[worldID]
	start := sort.Search(len(queue), func(i int) bool { return queue[i].Number > afterNumber })
	var out []ports.InputRecord
	for _, in := range queue[start:] {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, clone(in))
	}
	return out, nil
}

func (r InputRepo) Complete(ctx context.Context, worldID string, number int64, rv ports.InputReturn) error {
	defer r.store.lock(ctx)()
	i, ok := r.find(worldID, number)
	if !ok {
		return ports.ErrNotFound
	}
	queue := r.store.inputs[worldID]
	old := queue[i].ReturnValue
	r.store.onUndo(func() { r.store.inputs[worldID][i].ReturnValue = old })
	v := clone(rv)
	queue[i].ReturnValue = &v
	return nil
}

func (r InputRepo) GetByID(ctx context.Context, inputID string) (ports.InputRecord, error) {
	defer r.store.lock(ctx)()
	ref, ok := r.store.inputIDs[inputID]
	if !ok {
		return ports.InputRecord{}, ports.ErrNotFound
	}
	i, ok := r.find(ref.worldID, ref.number)
	if !ok {
		return ports.InputRecord{}, ports.ErrNotFound
	}
	return clone(r.store.inputs[ref.worldID][i]), nil
}

func (r InputRepo) find(worldID string, number int64) (int, bool) {
	queue := r.store.inputs[worldID]
	i := sort.Search(len(queue), func(i int) bool { return queue[i].Number >= number })
	return i, i < len(queue) && queue[i].Number == number
}
