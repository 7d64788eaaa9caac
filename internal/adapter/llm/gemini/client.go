// Package gemini implements text generation and embeddings on the Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"aitown/internal/app/ports"
)

const (
	DefaultModel      = "gemini-2.0-flash"
	DefaultEmbedModel = "text-embedding-004"
)

var ErrEmptyResponse = errors.New("gemini: empty response")

type Config struct {
	APIKey     string
	Model      string
	EmbedModel string
}

type Client struct {
	client     *genai.Client
	model      string
	embedModel string
}

func New(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("gemini: api key is required")
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: new client: %w", err)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.EmbedModel == "" {
		cfg.EmbedModel = DefaultEmbedModel
	}
	return &Client{client: c, model: cfg.Model, embedModel: cfg.EmbedModel}, nil
}

func (c *Client) Generate(ctx context.Context, req ports.GenerateRequest) (string, error) {
	system, contents := toContents(req.Messages)
	if len(contents) == 0 {
		return "", errors.New("gemini: no user content")
	}
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: system,
		StopSequences:     req.StopSequences,
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("gemini: generate: %w", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	resp, err := c.client.Models.EmbedContent(ctx, c.embedModel, []*genai.Content{textContent("user", text)}, nil)
	if err != nil {
		return nil, fmt.Errorf("gemini: embed: %w", err)
	}
	if len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil {
		return nil, ErrEmptyResponse
	}
	values := resp.Embeddings[0].Values
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = float64(v)
	}
	return out, nil
}

// toContents lifts system messages into the system instruction and maps the
// chat roles onto Gemini's user/model pair.
func toContents(msgs []ports.ChatMessage) (*genai.Content, []*genai.Content) {
	var system []string
	contents := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case "system":
			system = append(system, m.Content)
		case "assistant", "model":
			contents = append(contents, textContent("model", m.Content))
		default:
			contents = append(contents, textContent("user", m.Content))
		}
	}
	if len(system) == 0 {
		return nil, contents
	}
	return textContent("", strings.Join(system, "\n")), contents
}

func textContent(role, text string) *genai.Content {
	return &genai.Content{Role: role, Parts: []*genai.Part{{Text: text}}}
}

var (
	_ ports.TextGenerator = (*Client)(nil)
	_ ports.Embedder      = (*Client)(nil)
)
