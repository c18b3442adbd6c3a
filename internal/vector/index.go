// Package vector stores chunk embeddings with their metadata and answers top-K similarity
// queries. Every adapter failure wraps models.ErrIndex.
package vector

import (
	"context"

	"github.com/hyperjump/mensetsu/internal/models"
)

// VectorIndex defines vector storage and similarity search.
type VectorIndex interface {
	// Upsert inserts or replaces the vector stored under id.
	Upsert(ctx context.Context, id string, vec []float32, meta models.ChunkMetadata) error
	// Query returns at most k matches in non-increasing score order. A nil filter matches all.
	Query(ctx context.Context, vec []float32, k int, filter *models.Filter) ([]*models.Match, error)
	// Delete removes vectors by id. Unknown ids are ignored.
	Delete(ctx context.Context, ids ...string) error
	// DeleteByPrefix removes every chunk vector of parentKey.
	DeleteByPrefix(ctx context.Context, parentKey string) error
	// Count returns the number of stored vectors.
	Count(ctx context.Context) (int, error)
	Type() string
	Close() error
}

// Persistent is implemented by indexes that keep their contents in a local file.
type Persistent interface {
	Save(path string) error
	Load(path string) error
}
