package staticassets

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const sample = `
map:
  rows:
    - "...."
    - ".##."
agents:
  - name: Lucky
    character: f1
    identity: |
      Lucky is always happy and curious.
    plan: You want to hear all the gossip.
`

func TestProvider_LoadsWorldFile(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, DefaultFile), []byte(sample), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := Provider{Root: root}.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Map.Width != 4 || got.Map.Height != 2 {
		t.Fatalf("map size: got=%dx%d want=4x2", got.Map.Width, got.Map.Height)
	}
	if !got.Map.Impassable(1, 1) || got.Map.Impassable(0, 1) {
		t.Fatalf("blocked tiles mismatch: %+v", got.Map.Blocked)
	}
	if len(got.Agents) != 1 || got.Agents[0].Identity != "Lucky is always happy and curious." {
		t.Fatalf("agents mismatch: %+v", got.Agents)
	}
}

func TestProvider_RejectsTraversal(t *testing.T) {
	p := Provider{Root: t.TempDir(), Path: "../secret.yaml"}
	if _, err := p.Load(context.Background()); !errors.Is(err, ErrInvalidAssetsPath) {
		t.Fatalf("expected ErrInvalidAssetsPath, got %v", err)
	}
	p.Path = "/etc/passwd"
	if _, err := p.Load(context.Background()); !errors.Is(err, ErrInvalidAssetsPath) {
		t.Fatalf("expected ErrInvalidAssetsPath for absolute path, got %v", err)
	}
}

func TestParse_RejectsRaggedMap(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{name: "ragged", in: "map:\n  rows: [\"...\", \"..\"]\n"},
		{name: "empty", in: "map:\n  rows: []\n"},
		{name: "all walls", in: "map:\n  rows: [\"##\"]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.in)); !errors.Is(err, ErrInvalidMap) {
				t.Fatalf("expected ErrInvalidMap, got %v", err)
			}
		})
	}
}

func TestParse_ShippedWorld(t *testing.T) {
	b, err := os.ReadFile(filepath.Join("..", "..", "..", "..", "assets", DefaultFile))
	if err != nil {
		t.Fatalf("read shipped assets: %v", err)
	}
	got, err := Parse(b)
	if err != nil {
		t.Fatalf("parse shipped assets: %v", err)
	}
	if len(got.Agents) == 0 {
		t.Fatalf("shipped world has no agents")
	}
}
