// Package generate turns prompts into text with a large language model.
package generate

import (
	"context"
	"fmt"
	"strings"

	"github.com/hyperjump/mensetsu/internal/config"
	"github.com/hyperjump/mensetsu/internal/models"
)

// Generator produces a completion for a single prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Close() error
}

const (
	// ProviderGemini generates with Google Gemini.
	ProviderGemini = "gemini"
	// ProviderStatic returns a canned reply; used offline and in tests.
	ProviderStatic = "static"
)

// NewGenerator creates the configured generator.
func NewGenerator(ctx context.Context, cfg config.GenerationConfig) (Generator, error) {
	switch strings.ToLower(cfg.Provider) {
	case ProviderGemini, "":
		return NewGeminiGenerator(ctx, cfg.APIKey, cfg.Model, cfg.Temperature)
	case ProviderStatic:
		return &StaticGenerator{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown generation provider %q (supported: gemini, static)", models.ErrConfig, cfg.Provider)
	}
}

// StaticGenerator returns Reply, or a short echo of the prompt when Reply is empty.
// Err, when set, is returned instead.
type StaticGenerator struct {
	Reply string
	Err   error

	// Prompts records every prompt received.
	Prompts []string
}

// Generate implements Generator.
func (g *StaticGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.Prompts = append(g.Prompts, prompt)
	if g.Err != nil {
		return "", fmt.Errorf("%w: %w", models.ErrGeneration, g.Err)
	}
	if g.Reply != "" {
		return g.Reply, nil
	}
	return "Generation is disabled; " + models.Preview(strings.TrimSpace(prompt), 80), nil
}

// Close is a no-op.
func (g *StaticGenerator) Close() error { return nil }
