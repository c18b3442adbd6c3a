package embedding

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/mensetsu/internal/config"
	"github.com/hyperjump/mensetsu/internal/models"
)

// Embedder providers.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderONNX   = "onnx"
	ProviderMock   = "mock"
)

// NewEmbedder builds the configured embedder. Remote providers are wrapped with retries and
// rate limiting; every provider is wrapped with an LRU cache.
func NewEmbedder(ctx context.Context, cfg config.EmbeddingConfig, logger *zap.Logger) (Embedder, error) {
	var (
		base   Embedder
		remote bool
		err    error
	)
	switch cfg.Provider {
	case ProviderGemini:
		base, err = NewGeminiEmbedder(ctx, cfg.APIKey, cfg.Model, cfg.Dimensions)
		remote = true
	case ProviderOpenAI:
		base, err = NewOpenAIEmbedder(OpenAIConfig{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
		})
		remote = true
	case ProviderONNX:
		base, err = NewONNXEmbedder(cfg.ModelPath, cfg.Dimensions, cfg.MaxTokens)
	case ProviderMock:
		base = NewMockEmbedder(cfg.Dimensions)
	default:
		return nil, fmt.Errorf("%w: unknown embedding provider %q", models.ErrConfig, cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	if remote {
		base = NewRetryEmbedder(base, RetryConfig{
			MaxAttempts:       cfg.Retry.MaxAttempts,
			InitialDelay:      cfg.Retry.InitialDelay,
			MaxDelay:          cfg.Retry.MaxDelay,
			RequestsPerSecond: cfg.Retry.RequestsPerSecond,
			Burst:             cfg.Retry.Burst,
		}, WithRetryLogger(logger))
	}
	if cfg.CacheSize > 0 {
		base = NewCachedEmbedder(base, cfg.CacheSize)
	}
	if logger != nil {
		logger.Debug("embedder ready",
			zap.String("provider", cfg.Provider),
			zap.Int("dimensions", base.Dimensions()))
	}
	return base, nil
}
