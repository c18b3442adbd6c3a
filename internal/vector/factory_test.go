package vector

import (
	"context"
	"errors"
	"testing"

	"github.com/hyperjump/mensetsu/internal/config"
	"github.com/hyperjump/mensetsu/internal/models"
)

func TestNewVectorIndex_Memory(t *testing.T) {
	for _, typ := range []string{"memory", ""} {
		idx, err := NewVectorIndex(context.Background(), config.VectorConfig{Type: typ}, 3)
		if err != nil {
			t.Fatalf("NewVectorIndex(%q): %v", typ, err)
		}
		if idx.Type() != "memory" {
			t.Errorf("Type=%s", idx.Type())
		}
		if _, ok := idx.(Persistent); !ok {
			t.Error("memory index should be persistent")
		}
		_ = idx.Close()
	}
}

func TestNewVectorIndex_Unknown(t *testing.T) {
	_, err := NewVectorIndex(context.Background(), config.VectorConfig{Type: "faiss"}, 3)
	if !errors.Is(err, models.ErrConfig) {
		t.Errorf("err = %v, want ErrConfig", err)
	}
}

func TestNewVectorIndex_InvalidDimension(t *testing.T) {
	_, err := NewVectorIndex(context.Background(), config.VectorConfig{Type: "memory"}, 0)
	if err == nil {
		t.Error("expected error for zero dimension")
	}
}

func TestPointIDDeterministic(t *testing.T) {
	a := PointID("resumes/u/1_cv.pdf-chunk-0")
	if a != PointID("resumes/u/1_cv.pdf-chunk-0") {
		t.Error("PointID not deterministic")
	}
	if a == PointID("resumes/u/1_cv.pdf-chunk-1") {
		t.Error("PointID collision")
	}
}

func TestQdrantPayloadRoundTrip(t *testing.T) {
	m := models.ChunkMetadata{SourceKey: "k", OriginalName: "cv.pdf", OwnerID: "u", ChunkIndex: 4, TextPreview: "p", Text: "full", Title: "Go tour", URL: "https://go.dev/tour"}
	id, got := metadataFrom(payloadFor("k-chunk-4", m))
	if id != "k-chunk-4" || got != m {
		t.Errorf("got %s %+v", id, got)
	}
}

func TestQdrantFilter(t *testing.T) {
	if qdrantFilter(nil) != nil || qdrantFilter(&models.Filter{}) != nil {
		t.Error("empty filter should be nil")
	}
	f := qdrantFilter(&models.Filter{OwnerID: "u", SourceKey: "k"})
	if len(f.GetMust()) != 2 {
		t.Errorf("must conditions = %d", len(f.GetMust()))
	}
}
