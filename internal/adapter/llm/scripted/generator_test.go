package scripted

import (
	"context"
	"math"
	"testing"

	"aitown/internal/app/ports"
	"aitown/internal/domain/memory"
)

func TestGenerator_IsDeterministic(t *testing.T) {
	g := Generator{}
	req := ports.GenerateRequest{Messages: []ports.ChatMessage{{Role: "user", Content: "Bo to Ada:"}}}
	a, _ := g.Generate(context.Background(), req)
	b, _ := g.Generate(context.Background(), req)
	if a != b || a == "" {
		t.Fatalf("generate: got %q and %q", a, b)
	}
}

func TestEmbed_SimilarTextScoresHigher(t *testing.T) {
	g := Generator{}
	ctx := context.Background()
	garden, _ := g.Embed(ctx, "We talked about the garden")
	garden2, _ := g.Embed(ctx, "the garden talk")
	weather, _ := g.Embed(ctx, "rain tomorrow morning")

	near, err := memory.Cosine(garden, garden2)
	if err != nil {
		t.Fatalf("cosine: %v", err)
	}
	far, _ := memory.Cosine(garden, weather)
	if near <= far {
		t.Fatalf("expected overlap to score higher: near=%v far=%v", near, far)
	}
	var norm float64
	for _, v := range garden {
		norm += v * v
	}
	if math.Abs(norm-1) > 1e-9 {
		t.Fatalf("embedding not unit length: %v", norm)
	}
}
