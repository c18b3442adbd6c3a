package vector

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/hyperjump/mensetsu/internal/models"
)

func chunkMeta(source, owner string, i int) models.ChunkMetadata {
	return models.ChunkMetadata{SourceKey: source, OwnerID: owner, ChunkIndex: i, Text: "chunk"}
}

func TestMemoryIndex_UpsertQuery(t *testing.T) {
	idx, err := NewMemoryIndex(3)
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()
	ctx := context.Background()

	vecs := map[string][]float32{
		"a": {1, 0, 0},
		"b": {0.9, 0.1, 0},
		"c": {0, 1, 0},
	}
	for id, v := range vecs {
		if err := idx.Upsert(ctx, id, v, chunkMeta("k", "u", 0)); err != nil {
			t.Fatal(err)
		}
	}
	if idx.Size() != 3 {
		t.Errorf("Size=%d", idx.Size())
	}

	results, err := idx.Query(ctx, []float32{1, 0, 0}, 2, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ID != "a" || results[1].ID != "b" {
		t.Errorf("order = %s, %s", results[0].ID, results[1].ID)
	}
	if results[0].Score < results[1].Score {
		t.Errorf("scores not descending: %v", results)
	}
}

func TestMemoryIndex_UpsertReplaces(t *testing.T) {
	idx, _ := NewMemoryIndex(2)
	ctx := context.Background()
	_ = idx.Upsert(ctx, "x", []float32{1, 0}, chunkMeta("k", "u", 0))
	_ = idx.Upsert(ctx, "x", []float32{0, 1}, chunkMeta("k2", "u", 0))
	if idx.Size() != 1 {
		t.Fatalf("Size=%d, want 1", idx.Size())
	}
	res, _ := idx.Query(ctx, []float32{0, 1}, 1, nil)
	if res[0].Metadata.SourceKey != "k2" || res[0].Score < 0.99 {
		t.Errorf("got %+v", res[0])
	}
}

func TestMemoryIndex_TieBreakByID(t *testing.T) {
	idx, _ := NewMemoryIndex(2)
	ctx := context.Background()
	for _, id := range []string{"c", "a", "b"} {
		_ = idx.Upsert(ctx, id, []float32{1, 1}, chunkMeta("k", "u", 0))
	}
	res, _ := idx.Query(ctx, []float32{1, 1}, 3, nil)
	for i, want := range []string{"a", "b", "c"} {
		if res[i].ID != want {
			t.Errorf("res[%d]=%s, want %s", i, res[i].ID, want)
		}
	}
}

func TestMemoryIndex_Filter(t *testing.T) {
	idx, _ := NewMemoryIndex(2)
	ctx := context.Background()
	_ = idx.Upsert(ctx, "r1-chunk-0", []float32{1, 0}, chunkMeta("r1", "alice", 0))
	_ = idx.Upsert(ctx, "r2-chunk-0", []float32{1, 0}, chunkMeta("r2", "bob", 0))
	_ = idx.Upsert(ctx, "r3-chunk-0", []float32{0.5, 0.5}, chunkMeta("r3", "alice", 0))

	tests := []struct {
		name   string
		filter *models.Filter
		want   int
	}{
		{"nil", nil, 3},
		{"owner", &models.Filter{OwnerID: "alice"}, 2},
		{"owner and source", &models.Filter{OwnerID: "alice", SourceKey: "r3"}, 1},
		{"no match", &models.Filter{OwnerID: "carol"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := idx.Query(ctx, []float32{1, 0}, 10, tt.filter)
			if err != nil {
				t.Fatal(err)
			}
			if len(res) != tt.want {
				t.Errorf("got %d results, want %d", len(res), tt.want)
			}
			for _, m := range res {
				if !tt.filter.Matches(m.Metadata) {
					t.Errorf("result %s violates filter", m.ID)
				}
			}
		})
	}
}

func TestMemoryIndex_FilterAppliedBeforeTopK(t *testing.T) {
	idx, _ := NewMemoryIndex(2)
	ctx := context.Background()
	_ = idx.Upsert(ctx, "best", []float32{1, 0}, chunkMeta("other", "bob", 0))
	_ = idx.Upsert(ctx, "mine", []float32{0, 1}, chunkMeta("mine", "alice", 0))
	res, _ := idx.Query(ctx, []float32{1, 0}, 1, &models.Filter{OwnerID: "alice"})
	if len(res) != 1 || res[0].ID != "mine" {
		t.Errorf("got %v", res)
	}
}

func TestMemoryIndex_DeleteAndPrefix(t *testing.T) {
	idx, _ := NewMemoryIndex(2)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_ = idx.Upsert(ctx, models.ChunkID("resumes/u/1_a.pdf", i), []float32{1, 0}, chunkMeta("resumes/u/1_a.pdf", "u", i))
	}
	_ = idx.Upsert(ctx, models.ChunkID("resumes/u/1_a.pdf.bak", 0), []float32{1, 0}, chunkMeta("resumes/u/1_a.pdf.bak", "u", 0))
	_ = idx.Upsert(ctx, "other", []float32{0, 1}, chunkMeta("x", "u", 0))

	if err := idx.Delete(ctx, "other", "missing"); err != nil {
		t.Fatal(err)
	}
	if n, _ := idx.Count(ctx); n != 4 {
		t.Fatalf("Count=%d, want 4", n)
	}
	if err := idx.DeleteByPrefix(ctx, "resumes/u/1_a.pdf"); err != nil {
		t.Fatal(err)
	}
	if n, _ := idx.Count(ctx); n != 1 {
		t.Errorf("Count=%d, want 1 (sibling key must survive)", n)
	}
	if err := idx.DeleteByPrefix(ctx, ""); !errors.Is(err, models.ErrIndex) {
		t.Errorf("empty prefix err = %v", err)
	}
}

func TestMemoryIndex_DimensionMismatch(t *testing.T) {
	idx, _ := NewMemoryIndex(3)
	ctx := context.Background()
	if err := idx.Upsert(ctx, "a", []float32{1, 0}, chunkMeta("k", "u", 0)); !errors.Is(err, models.ErrIndex) {
		t.Errorf("Upsert err = %v", err)
	}
	if _, err := idx.Query(ctx, []float32{1}, 1, nil); !errors.Is(err, models.ErrIndex) {
		t.Errorf("Query err = %v", err)
	}
	if _, err := NewMemoryIndex(0); !errors.Is(err, models.ErrConfig) {
		t.Errorf("NewMemoryIndex(0) err = %v", err)
	}
}

func TestMemoryIndex_ZeroK(t *testing.T) {
	idx, _ := NewMemoryIndex(2)
	ctx := context.Background()
	_ = idx.Upsert(ctx, "a", []float32{1, 0}, chunkMeta("k", "u", 0))
	res, err := idx.Query(ctx, []float32{1, 0}, 0, nil)
	if err != nil || len(res) != 0 {
		t.Errorf("got %v, %v", res, err)
	}
}

func TestMemoryIndex_SaveLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "index.bin")
	ctx := context.Background()

	idx, _ := NewMemoryIndex(3)
	m := models.ChunkMetadata{SourceKey: "resumes/u/1_cv.pdf", OriginalName: "cv.pdf", OwnerID: "u", ChunkIndex: 2, TextPreview: "Go dev", Text: "Go developer"}
	_ = idx.Upsert(ctx, "id-1", []float32{1, 2, 3}, m)
	_ = idx.Upsert(ctx, "id-2", []float32{0, 0, 1}, chunkMeta("k", "u", 0))
	if err := idx.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, _ := NewMemoryIndex(3)
	if err := loaded.Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Size() != 2 {
		t.Fatalf("Size=%d, want 2", loaded.Size())
	}
	res, _ := loaded.Query(ctx, []float32{1, 2, 3}, 1, nil)
	if res[0].ID != "id-1" || res[0].Metadata != m {
		t.Errorf("got %+v", res[0])
	}

	wrong, _ := NewMemoryIndex(4)
	if err := wrong.Load(path); !errors.Is(err, models.ErrIndex) {
		t.Errorf("dimension mismatch err = %v", err)
	}
}

func TestMemoryIndex_LoadMissingAndCorrupt(t *testing.T) {
	dir := t.TempDir()
	idx, _ := NewMemoryIndex(2)
	if err := idx.Load(filepath.Join(dir, "missing.bin")); err != nil {
		t.Errorf("missing file should not error: %v", err)
	}
	bad := filepath.Join(dir, "bad.bin")
	if err := os.WriteFile(bad, []byte("garbage"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := idx.Load(bad); !errors.Is(err, models.ErrIndex) {
		t.Errorf("corrupt file err = %v", err)
	}
}

func TestCosine(t *testing.T) {
	a := []float32{3, 4}
	if got := Cosine(a, a, L2Norm(a), L2Norm(a)); got < 0.9999 || got > 1.0001 {
		t.Errorf("Cosine(a,a)=%v", got)
	}
	if got := Cosine(a, []float32{0, 0}, L2Norm(a), 0); got != 0 {
		t.Errorf("Cosine with zero vector = %v", got)
	}
	if got := L2Norm(a); got != 5 {
		t.Errorf("L2Norm=%v", got)
	}
}
