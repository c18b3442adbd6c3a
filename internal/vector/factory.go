package vector

import (
	"context"
	"fmt"

	"github.com/hyperjump/mensetsu/internal/config"
	"github.com/hyperjump/mensetsu/internal/models"
)

// IndexType represents the type of vector index to use.
type IndexType string

const (
	// IndexTypeMemory uses in-memory brute-force search persisted to a local file.
	IndexTypeMemory IndexType = "memory"
	// IndexTypeQdrant stores vectors in a Qdrant collection over gRPC.
	IndexTypeQdrant IndexType = "qdrant"
)

// NewVectorIndex creates a vector index of the configured type.
// Supported types: "memory" (default), "qdrant".
func NewVectorIndex(ctx context.Context, cfg config.VectorConfig, dimensions int) (VectorIndex, error) {
	switch IndexType(cfg.Type) {
	case IndexTypeMemory, "":
		return NewMemoryIndex(dimensions)
	case IndexTypeQdrant:
		return NewQdrantIndex(ctx, cfg.Qdrant, dimensions)
	default:
		return nil, fmt.Errorf("%w: unknown index type: %s (supported: memory, qdrant)", models.ErrConfig, cfg.Type)
	}
}
