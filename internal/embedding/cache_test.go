package embedding

import (
	"context"
	"testing"
)

func TestEmbeddingCache_GetSet(t *testing.T) {
	c := NewEmbeddingCache(2)
	if v, ok := c.Get("a"); ok || v != nil {
		t.Fatal("expected miss")
	}
	c.Set("a", []float32{1, 2, 3})
	v, ok := c.Get("a")
	if !ok || len(v) != 3 || v[0] != 1 {
		t.Errorf("Get: got %v, %v", v, ok)
	}
	c.Set("b", []float32{4, 5})
	c.Get("a")               // a is now most recent
	c.Set("c", []float32{6}) // evicts b
	if _, ok := c.Get("b"); ok {
		t.Error("expected b to be evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Error("expected a to remain")
	}
	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2", c.Len())
	}
}

type countingEmbedder struct {
	*MockEmbedder
	single, batch, batchTexts int
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.single++
	return c.MockEmbedder.Embed(ctx, text)
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.batch++
	c.batchTexts += len(texts)
	return c.MockEmbedder.EmbedBatch(ctx, texts)
}

func TestCachedEmbedder(t *testing.T) {
	inner := &countingEmbedder{MockEmbedder: NewMockEmbedder(8)}
	e := NewCachedEmbedder(inner, 10)
	ctx := context.Background()

	v1, err := e.Embed(ctx, "python developer")
	if err != nil {
		t.Fatal(err)
	}
	v2, _ := e.Embed(ctx, "python developer")
	if inner.single != 1 {
		t.Errorf("inner Embed called %d times, want 1", inner.single)
	}
	if v1[0] != v2[0] {
		t.Error("cached vector differs")
	}

	vecs, err := e.EmbedBatch(ctx, []string{"python developer", "go developer", "rust developer"})
	if err != nil {
		t.Fatal(err)
	}
	if len(vecs) != 3 || vecs[0][0] != v1[0] {
		t.Errorf("batch result mismatch: %d", len(vecs))
	}
	if inner.batchTexts != 2 {
		t.Errorf("inner batch embedded %d texts, want 2", inner.batchTexts)
	}
	if _, err := e.EmbedBatch(ctx, []string{"go developer"}); err != nil {
		t.Fatal(err)
	}
	if inner.batch != 1 {
		t.Errorf("fully cached batch should not call inner, got %d calls", inner.batch)
	}
	if e.Dimensions() != 8 {
		t.Errorf("Dimensions() = %d", e.Dimensions())
	}
}
