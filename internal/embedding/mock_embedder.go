package embedding

import (
	"context"
	"strings"
	"unicode"

	"github.com/hyperjump/mensetsu/pkg/utils"
)

const defaultMockDimensions = 384

// MockEmbedder hashes lowercase words into a fixed number of signed buckets. Equal texts
// get equal unit vectors and texts sharing words score closer, which is enough for tests
// and offline development without a model.
type MockEmbedder struct {
	dimensions int
}

// NewMockEmbedder returns a hashing embedder; non-positive dimensions fall back to 384.
func NewMockEmbedder(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = defaultMockDimensions
	}
	return &MockEmbedder{dimensions: dimensions}
}

func (e *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dimensions)
	for i := range vec {
		vec[i] = 0.01
	}
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := HashString(w)
		if (h/e.dimensions)%2 == 0 {
			vec[h%e.dimensions]++
		} else {
			vec[h%e.dimensions]--
		}
	}
	utils.NormalizeL2(vec)
	return vec, nil
}

func (e *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedEach(ctx, texts, e.Embed)
}

func (e *MockEmbedder) Dimensions() int { return e.dimensions }

func (e *MockEmbedder) Close() error { return nil }
