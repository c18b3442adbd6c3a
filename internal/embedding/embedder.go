// Package embedding turns text into fixed-dimension vectors. Adapters wrap every failure in
// models.ErrEmbedding.
package embedding

import (
	"context"
	"fmt"

	"github.com/hyperjump/mensetsu/internal/models"
)

// Embedder produces vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

// CheckDimensions returns an ErrEmbedding when vec does not have exactly want entries.
func CheckDimensions(vec []float32, want int) error {
	if len(vec) == 0 {
		return fmt.Errorf("%w: empty embedding", models.ErrEmbedding)
	}
	if want > 0 && len(vec) != want {
		return fmt.Errorf("%w: embedding has %d dimensions, want %d", models.ErrEmbedding, len(vec), want)
	}
	return nil
}

// embedEach calls embed for each text in order.
func embedEach(ctx context.Context, texts []string, embed func(context.Context, string) ([]float32, error)) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := embed(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}
