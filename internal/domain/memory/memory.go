package memory

import (
	"errors"
	"math"
	"sort"
)

type Kind string

const (
	KindConversation Kind = "conversation"
	KindReflection   Kind = "reflection"
	// KindCheckpoint marks a reflection pass that produced no insights. It
	// carries no description and is never recalled.
	KindCheckpoint Kind = "checkpoint"
)

var ErrDimensionMismatch = errors.New("memory: embedding dimensions differ")

// Memory is one long-term observation of a player.
type Memory struct {
	ID             string
	PlayerID       string
	Description    string
	Embedding      []float64
	Importance     float64
	Created        int64
	LastAccess     int64
	Kind           Kind
	ConversationID string
	// RelatedIDs lists the memories a reflection was drawn from.
	RelatedIDs []string
}

type Scored struct {
	Memory
	Relevance float64
	Score     float64
}

// Recency per elapsed hour since the memory was last accessed.
const RecencyDecay = 0.99

// Rank orders memories by normalized relevance, importance and recency and
// returns the top k. Ties go to the more recent memory, then the lower id.
func Rank(memories []Memory, query []float64, now int64, k int) ([]Scored, error) {
	if len(memories) == 0 || k <= 0 {
		return nil, nil
	}
	relevance := make([]float64, len(memories))
	importance := make([]float64, len(memories))
	recency := make([]float64, len(memories))
	for i, m := range memories {
		r, err := Cosine(m.Embedding, query)
		if err != nil {
			return nil, err
		}
		relevance[i] = r
		importance[i] = m.Importance
		hours := float64(now-m.LastAccess) / float64(3600*1000)
		recency[i] = math.Pow(RecencyDecay, math.Max(hours, 0))
	}
	normalize(relevance)
	normalize(importance)
	normalize(recency)

	out := make([]Scored, len(memories))
	for i, m := range memories {
		out[i] = Scored{
			Memory:    m,
			Relevance: relevance[i],
			Score:     relevance[i] + importance[i] + recency[i],
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].LastAccess != out[j].LastAccess {
			return out[i].LastAccess > out[j].LastAccess
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

// Cosine similarity of a and b; zero vectors score 0.
func Cosine(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, ErrDimensionMismatch
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), nil
}

// normalize rescales xs to [0, 1] in place. A constant slice becomes all 0.5.
func normalize(xs []float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, x := range xs {
		lo = math.Min(lo, x)
		hi = math.Max(hi, x)
	}
	for i, x := range xs {
		if hi-lo < 1e-9 {
			xs[i] = 0.5
			continue
		}
		xs[i] = (x - lo) / (hi - lo)
	}
}
