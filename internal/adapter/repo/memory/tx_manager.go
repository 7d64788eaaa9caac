package memory

import "context"

type TxManager struct {
	store *Store
}

func NewTxManager(store *Store) TxManager {
	return TxManager{store: store}
}

// RunInTx serializes transactions and undoes the writes of fn when it fails.
func (t TxManager) RunInTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if inTx(ctx) {
		return fn(ctx)
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	t.store.begin()
	defer func() {
		if r := recover(); r != nil {
			t.store.rollback()
			panic(r)
		}
		if err != nil {
			t.store.rollback()
			return
		}
		t.store.commit()
	}()
	return fn(context.WithValue(ctx, txKey{}, true))
}
