// Package generator adapts hosted and local text-generation services to a
// single prompt-in, text-out interface.
package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyResponse is returned when the service answered with no text.
var ErrEmptyResponse = errors.New("generator returned an empty response")

// ErrUnknownProvider is returned by New for an unsupported provider name.
var ErrUnknownProvider = errors.New("unknown generator provider")

// Generator turns a prompt into generated text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

const (
	ProviderGemini     = "gemini"
	ProviderOpenRouter = "openrouter"
	ProviderOllama     = "ollama"
)

// Providers lists the provider names New accepts.
var Providers = []string{ProviderGemini, ProviderOpenRouter, ProviderOllama}

const (
	DefaultGeminiModel     = "gemini-2.5-flash"
	DefaultOpenRouterModel = "google/gemini-2.5-flash"
	DefaultOllamaModel     = "llama3.2"

	DefaultOpenRouterURL = "https://openrouter.ai/api/v1"
	DefaultOllamaURL     = "http://localhost:11434/v1"

	DefaultMaxTokens = 2000
)

// Config selects and configures a Generator.
type Config struct {
	Provider    string
	Model       string
	BaseURL     string
	APIKey      string
	MaxTokens   int
	Temperature float64

	// SiteURL and SiteName are sent to OpenRouter for attribution.
	SiteURL  string
	SiteName string
}

// withDefaults fills the provider-specific zero values.
func (c Config) withDefaults() Config {
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	switch c.Provider {
	case ProviderGemini:
		if c.Model == "" {
			c.Model = DefaultGeminiModel
		}
	case ProviderOpenRouter:
		if c.Model == "" {
			c.Model = DefaultOpenRouterModel
		}
		if c.BaseURL == "" {
			c.BaseURL = DefaultOpenRouterURL
		}
	case ProviderOllama:
		if c.Model == "" {
			c.Model = DefaultOllamaModel
		}
		if c.BaseURL == "" {
			c.BaseURL = DefaultOllamaURL
		}
		if c.APIKey == "" {
			// Ollama ignores the key, the client library insists on one.
			c.APIKey = "ollama"
		}
	}
	return c
}

// New builds the Generator for cfg.Provider.
func New(ctx context.Context, cfg Config) (Generator, error) {
	cfg = cfg.withDefaults()
	switch cfg.Provider {
	case ProviderGemini:
		g, err := NewGemini(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return g, nil
	case ProviderOpenRouter, ProviderOllama:
		o, err := NewOpenAI(cfg)
		if err != nil {
			return nil, err
		}
		return o, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
}

// checkText trims generated text and rejects an empty answer.
func checkText(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
