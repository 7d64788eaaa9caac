// Package staticassets loads world seed data from a yaml file.
package staticassets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"aitown/internal/app/ports"
	"aitown/internal/domain/game"
)

var (
	ErrInvalidAssetsPath = errors.New("invalid assets filepath")
	ErrInvalidMap        = errors.New("invalid world map")
)

const DefaultFile = "world.yaml"

// File is the yaml layout. Map rows use '#' for blocked tiles and any other
// character for open ground; all rows must have the same width.
type File struct {
	Map struct {
		Rows []string `yaml:"rows"`
	} `yaml:"map"`
	Agents []struct {
		Name        string `yaml:"name"`
		Character   string `yaml:"character"`
		Description string `yaml:"description"`
		Identity    string `yaml:"identity"`
		Plan        string `yaml:"plan"`
	} `yaml:"agents"`
}

type Provider struct {
	Root string
	// Path is relative to Root; defaults to DefaultFile.
	Path string
}

func (p Provider) Load(_ context.Context) (ports.WorldAssets, error) {
	rel := p.Path
	if rel == "" {
		rel = DefaultFile
	}
	path, err := secureJoin(p.Root, rel)
	if err != nil {
		return ports.WorldAssets{}, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return ports.WorldAssets{}, err
	}
	return Parse(b)
}

func Parse(b []byte) (ports.WorldAssets, error) {
	var f File
	if err := yaml.Unmarshal(b, &f); err != nil {
		return ports.WorldAssets{}, fmt.Errorf("decode assets: %w", err)
	}
	m, err := parseMap(f.Map.Rows)
	if err != nil {
		return ports.WorldAssets{}, err
	}
	out := ports.WorldAssets{Map: m, Agents: make([]game.CreateAgentArgs, 0, len(f.Agents))}
	for i, a := range f.Agents {
		if strings.TrimSpace(a.Name) == "" {
			return ports.WorldAssets{}, fmt.Errorf("agent %d: name is required", i)
		}
		out.Agents = append(out.Agents, game.CreateAgentArgs{
			Name:        a.Name,
			Character:   a.Character,
			Description: strings.TrimSpace(a.Description),
			Identity:    strings.TrimSpace(a.Identity),
			Plan:        strings.TrimSpace(a.Plan),
		})
	}
	return out, nil
}

func parseMap(rows []string) (game.Map, error) {
	if len(rows) == 0 {
		return game.Map{}, fmt.Errorf("%w: no rows", ErrInvalidMap)
	}
	width := len(rows[0])
	if width == 0 {
		return game.Map{}, fmt.Errorf("%w: empty row", ErrInvalidMap)
	}
	blocked := make([][]bool, len(rows))
	open := 0
	for y, row := range rows {
		if len(row) != width {
			return game.Map{}, fmt.Errorf("%w: row %d has width %d, want %d", ErrInvalidMap, y, len(row), width)
		}
		blocked[y] = make([]bool, width)
		for x := 0; x < width; x++ {
			blocked[y][x] = row[x] == '#'
			if !blocked[y][x] {
				open++
			}
		}
	}
	if open == 0 {
		return game.Map{}, fmt.Errorf("%w: no open tiles", ErrInvalidMap)
	}
	return game.Map{Width: width, Height: len(rows), Blocked: blocked}, nil
}

func secureJoin(root, rel string) (string, error) {
	rel = strings.TrimSpace(rel)
	if rel == "" {
		return "", ErrInvalidAssetsPath
	}
	if filepath.IsAbs(rel) {
		return "", ErrInvalidAssetsPath
	}
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	target := filepath.Clean(filepath.Join(rootAbs, rel))
	prefix := rootAbs + string(filepath.Separator)
	if target != rootAbs && !strings.HasPrefix(target, prefix) {
		return "", ErrInvalidAssetsPath
	}
	return target, nil
}
