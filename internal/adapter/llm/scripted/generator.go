// Package scripted is an offline TextGenerator and Embedder. Output depends
// only on the request, so simulations stay reproducible without a model.
package scripted

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"aitown/internal/app/ports"
)

// Dimensions of the hashed bag-of-words embedding.
const Dimensions = 64

var DefaultLines = []string{
	"Nice weather for a walk today.",
	"I've been thinking about the garden by the square.",
	"Have you seen anything interesting around town?",
	"I should get back to my plans soon.",
	"That reminds me of something I read last week.",
	"It's good to see a friendly face.",
}

type Generator struct {
	Lines []string
}

func (g Generator) Generate(_ context.Context, req ports.GenerateRequest) (string, error) {
	lines := g.Lines
	if len(lines) == 0 {
		lines = DefaultLines
	}
	h := fnv.New64a()
	for _, m := range req.Messages {
		_, _ = h.Write([]byte(m.Role))
		_, _ = h.Write([]byte(m.Content))
	}
	line := lines[h.Sum64()%uint64(len(lines))]
	if req.MaxTokens > 0 && len(line) > req.MaxTokens*4 {
		line = line[:req.MaxTokens*4]
	}
	return line, nil
}

// Embed hashes lowercased words into a fixed-size unit vector.
func (g Generator) Embed(_ context.Context, text string) ([]float64, error) {
	out := make([]float64, Dimensions)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		out[h.Sum32()%Dimensions]++
	}
	var norm float64
	for _, v := range out {
		norm += v * v
	}
	if norm == 0 {
		return out, nil
	}
	norm = math.Sqrt(norm)
	for i := range out {
		out[i] /= norm
	}
	return out, nil
}

var (
	_ ports.TextGenerator = Generator{}
	_ ports.Embedder      = Generator{}
)
