package memory

import (
	"context"
	"encoding/json"
	"sync"

	"aitown/internal/app/ports"
	"aitown/internal/domain/game"
	"aitown/internal/domain/memory"
)

type worldData struct {
	world         game.World
	gameMap       game.Map
	players       map[string]game.Player
	locations     map[string]game.Location
	conversations map[string]game.Conversation
	members       map[string]game.Member
	agents        map[string]game.Agent
	messages      []game.Message
	histories     []game.LocationHistory
	memories      map[string]memory.Memory
}

func newWorldData(w game.World, m game.Map) *worldData {
	return &worldData{
		world:         w,
		gameMap:       m,
		players:       map[string]game.Player{},
		locations:     map[string]game.Location{},
		conversations: map[string]game.Conversation{},
		members:       map[string]game.Member{},
		agents:        map[string]game.Agent{},
		memories:      map[string]memory.Memory{},
	}
}

// Store keeps every world in process memory. Rows are deep-copied on the
// way in and out, so callers never share mutable state with the store.
// Writes inside a transaction record their inverse so a failed transaction
// undoes only what it touched.
type Store struct {
	mu       sync.Mutex
	engines  map[string]ports.EngineRecord
	inputs   map[string][]ports.InputRecord
	inputIDs map[string]inputRef
	worlds   map[string]*worldData

	inTx bool
	undo []func()
}

type inputRef struct {
	worldID string
	number  int64
}

func NewStore() *Store {
	return &Store{
		engines:  make(map[string]ports.EngineRecord),
		inputs:   make(map[string][]ports.InputRecord),
		inputIDs: make(map[string]inputRef),
		worlds:   make(map[string]*worldData),
	}
}

func (s *Store) onUndo(fn func()) {
	if s.inTx {
		s.undo = append(s.undo, fn)
	}
}

func (s *Store) begin() {
	s.inTx = true
	s.undo = s.undo[:0]
}

func (s *Store) commit() {
	s.inTx = false
	clear(s.undo)
	s.undo = s.undo[:0]
}

func (s *Store) rollback() {
	for i := len(s.undo) - 1; i >= 0; i-- {
		s.undo[i]()
	}
	s.commit()
}

// setKey writes m[k] and records how to put the old value back.
func setKey[K comparable, V any](s *Store, m map[K]V, k K, v V) {
	old, had := m[k]
	s.onUndo(func() {
		if had {
			m[k] = old
		} else {
			delete(m, k)
		}
	})
	m[k] = v
}

type txKey struct{}

func inTx(ctx context.Context) bool {
	v, _ := ctx.Value(txKey{}).(bool)
	return v
}

// lock takes the store lock unless ctx already runs inside a transaction.
func (s *Store) lock(ctx context.Context) func() {
	if inTx(ctx) {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func clone[T any](v T) T {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	var out T
	if err := json.Unmarshal(b, &out); err != nil {
		panic(err)
	}
	return out
}
