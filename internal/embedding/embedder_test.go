package embedding

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/hyperjump/mensetsu/internal/config"
	"github.com/hyperjump/mensetsu/internal/models"
)

func TestMockEmbedder(t *testing.T) {
	e := NewMockEmbedder(16)
	ctx := context.Background()
	a, _ := e.Embed(ctx, "senior backend engineer")
	b, _ := e.Embed(ctx, "senior backend engineer")
	c, _ := e.Embed(ctx, "pastry chef")
	if len(a) != 16 {
		t.Fatalf("len = %d", len(a))
	}
	var norm float64
	for i := range a {
		if a[i] != b[i] {
			t.Fatal("same text should give same vector")
		}
		norm += float64(a[i] * a[i])
	}
	if math.Abs(norm-1) > 1e-4 {
		t.Errorf("vector should be unit length, norm^2 = %f", norm)
	}
	same := true
	for i := range a {
		if a[i] != c[i] {
			same = false
		}
	}
	if same {
		t.Error("different texts should give different vectors")
	}
	if NewMockEmbedder(0).Dimensions() != 384 {
		t.Error("default dimensions should be 384")
	}
}

func TestCheckDimensions(t *testing.T) {
	if err := CheckDimensions([]float32{1, 2, 3}, 3); err != nil {
		t.Errorf("matching dims: %v", err)
	}
	if err := CheckDimensions([]float32{1, 2}, 3); !errors.Is(err, models.ErrEmbedding) {
		t.Errorf("wrong dims: %v", err)
	}
	if err := CheckDimensions(nil, 0); !errors.Is(err, models.ErrEmbedding) {
		t.Errorf("empty vector: %v", err)
	}
}

func TestNewEmbedder(t *testing.T) {
	ctx := context.Background()
	e, err := NewEmbedder(ctx, config.EmbeddingConfig{Provider: ProviderMock, Dimensions: 12, CacheSize: 4}, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()
	if _, ok := e.(*CachedEmbedder); !ok {
		t.Errorf("expected cached embedder, got %T", e)
	}
	if e.Dimensions() != 12 {
		t.Errorf("Dimensions() = %d", e.Dimensions())
	}

	if _, err := NewEmbedder(ctx, config.EmbeddingConfig{Provider: "word2vec"}, nil); !errors.Is(err, models.ErrConfig) {
		t.Errorf("unknown provider: %v", err)
	}
	if _, err := NewEmbedder(ctx, config.EmbeddingConfig{Provider: ProviderGemini}, nil); !errors.Is(err, models.ErrConfig) {
		t.Errorf("gemini without key: %v", err)
	}
}
