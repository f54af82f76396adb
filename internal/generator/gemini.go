package generator

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// geminiModels is the slice of genai.Models the adapter calls.
type geminiModels interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Gemini generates text with the Gemini API.
type Gemini struct {
	models geminiModels
	model  string
	config *genai.GenerateContentConfig
}

// NewGemini creates a Gemini generator authenticated with cfg.APIKey.
func NewGemini(ctx context.Context, cfg Config) (*Gemini, error) {
	cfg = cfg.withDefaults()
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: API key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}
	return newGemini(client.Models, cfg), nil
}

func newGemini(models geminiModels, cfg Config) *Gemini {
	gc := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(cfg.MaxTokens),
	}
	if cfg.Temperature > 0 {
		gc.Temperature = genai.Ptr(float32(cfg.Temperature))
	}
	return &Gemini{models: models, model: cfg.Model, config: gc}
}

// Generate sends prompt as a single user turn.
func (g *Gemini) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.models.GenerateContent(ctx, g.model, genai.Text(prompt), g.config)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	if resp == nil {
		return "", ErrEmptyResponse
	}
	return checkText(resp.Text())
}
