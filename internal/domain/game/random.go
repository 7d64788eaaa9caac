package game

import (
	"encoding/binary"
	"hash/fnv"
	"math/rand/v2"
)

// Rand returns a generator determined by the world seed, the simulated time
// and a caller key, so replays of the same inputs draw the same numbers.
func Rand(seed, now int64, key string) *rand.Rand {
	h := fnv.New64a()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(now))
	_, _ = h.Write(buf[:])
	_, _ = h.Write([]byte(key))
	return rand.New(rand.NewPCG(uint64(seed), h.Sum64()))
}
