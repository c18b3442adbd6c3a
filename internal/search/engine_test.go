package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/hyperjump/mensetsu/internal/embedding"
	"github.com/hyperjump/mensetsu/internal/generate"
	"github.com/hyperjump/mensetsu/internal/models"
	"github.com/hyperjump/mensetsu/internal/vector"
)

const dims = 16

type failingEmbedder struct{ *embedding.MockEmbedder }

func (failingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, fmt.Errorf("%w: service unavailable", models.ErrEmbedding)
}

type failingIndex struct{ *vector.MemoryIndex }

func (failingIndex) Query(ctx context.Context, vec []float32, k int, f *models.Filter) ([]*models.Match, error) {
	return nil, fmt.Errorf("%w: connection refused", models.ErrIndex)
}

func seededIndex(t *testing.T, emb embedding.Embedder) *vector.MemoryIndex {
	t.Helper()
	idx, err := vector.NewMemoryIndex(dims)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	docs := []struct {
		owner, key, text string
	}{
		{"alice", "resumes/alice/1_cv.pdf", "Senior Go engineer with Kubernetes experience"},
		{"alice", "resumes/alice/2_cv.pdf", "Led a data platform team using Kafka"},
		{"bob", "resumes/bob/1_cv.pdf", "Frontend developer, React and TypeScript"},
		{"bob", "resumes/bob/2_cv.pdf", ""},
	}
	for i, d := range docs {
		for c := 0; c < 5; c++ {
			text := d.text
			if text != "" {
				text = fmt.Sprintf("%s (part %d)", d.text, c)
			}
			vec, _ := emb.Embed(ctx, text+fmt.Sprint(i))
			meta := models.ChunkMetadata{SourceKey: d.key, OwnerID: d.owner, ChunkIndex: c, Text: text, TextPreview: text}
			if err := idx.Upsert(ctx, models.ChunkID(d.key, c), vec, meta); err != nil {
				t.Fatal(err)
			}
		}
	}
	return idx
}

func TestRetrieve_TopKBoundAndOrder(t *testing.T) {
	emb := embedding.NewMockEmbedder(dims)
	e := NewEngine(emb, seededIndex(t, emb), &generate.StaticGenerator{})
	for _, k := range []int{1, 3, 7, 50} {
		res, err := e.retrieve(context.Background(), "Go engineer", k, nil)
		if err != nil {
			t.Fatal(err)
		}
		if len(res.Matches) > k {
			t.Errorf("k=%d: got %d matches", k, len(res.Matches))
		}
		for i := 1; i < len(res.Matches); i++ {
			if res.Matches[i].Score > res.Matches[i-1].Score {
				t.Errorf("k=%d: scores increase at %d", k, i)
			}
		}
	}
}

func TestSearch_ScopedAndBounded(t *testing.T) {
	emb := embedding.NewMockEmbedder(dims)
	gen := &generate.StaticGenerator{}
	e := NewEngine(emb, seededIndex(t, emb), gen)
	ctx := context.Background()

	res, err := e.Search(ctx, &models.AskRequest{Question: "anything", OwnerID: "alice"})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Matches) != models.DefaultTopK {
		t.Errorf("default search returned %d, want %d", len(res.Matches), models.DefaultTopK)
	}
	for _, m := range res.Matches {
		if m.Metadata.OwnerID != "alice" {
			t.Errorf("match %s belongs to %s", m.ID, m.Metadata.OwnerID)
		}
	}
	res, err = e.Search(ctx, &models.AskRequest{Question: "Kafka", OwnerID: "alice", SourceKey: "resumes/alice/2_cv.pdf", TopK: 50})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Matches) != 5 {
		t.Errorf("resume search returned %d, want 5", len(res.Matches))
	}
	if len(gen.Prompts) != 0 {
		t.Error("search should not call the generator")
	}

	if _, err := e.Search(ctx, &models.AskRequest{Question: " "}); !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("empty query err = %v, want ErrInvalidInput", err)
	}
	failing := NewEngine(failingEmbedder{emb}, seededIndex(t, emb), gen)
	if _, err := failing.Search(ctx, &models.AskRequest{Question: "Go", OwnerID: "alice"}); err == nil {
		t.Error("search should surface embedder failures")
	}
}

func TestAnswer_BuildsGroundedPrompt(t *testing.T) {
	emb := embedding.NewMockEmbedder(dims)
	gen := &generate.StaticGenerator{Reply: "They know Go."}
	e := NewEngine(emb, seededIndex(t, emb), gen)

	got := e.Answer(context.Background(), "Does the candidate know Go?")
	if got != "They know Go." {
		t.Fatalf("Answer = %q", got)
	}
	if len(gen.Prompts) != 1 {
		t.Fatalf("generator called %d times", len(gen.Prompts))
	}
	p := gen.Prompts[0]
	for _, want := range []string{
		"Use only the context provided",
		"say so clearly",
		"Context from resume:",
		"Question: Does the candidate know Go?",
	} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestAnswer_DegradesGracefully(t *testing.T) {
	emb := embedding.NewMockEmbedder(dims)
	idx := seededIndex(t, emb)
	tests := []struct {
		name string
		e    *Engine
	}{
		{"embedder fails", NewEngine(failingEmbedder{emb}, idx, &generate.StaticGenerator{})},
		{"index fails", NewEngine(emb, failingIndex{idx}, &generate.StaticGenerator{})},
		{"generator fails", NewEngine(emb, idx, &generate.StaticGenerator{Err: errors.New("quota")})},
		{"empty question", NewEngine(emb, idx, &generate.StaticGenerator{})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := "What is their experience?"
			if tt.name == "empty question" {
				q = "   "
			}
			if got := tt.e.Answer(context.Background(), q); got != Apology {
				t.Errorf("Answer = %q, want apology", got)
			}
		})
	}
}

func TestAsk_ScopesToOwnerAndResume(t *testing.T) {
	emb := embedding.NewMockEmbedder(dims)
	gen := &generate.StaticGenerator{Reply: "ok"}
	e := NewEngine(emb, seededIndex(t, emb), gen)

	ans, err := e.Ask(context.Background(), &models.AskRequest{Question: "skills?", OwnerID: "alice", TopK: 50})
	if err != nil {
		t.Fatal(err)
	}
	if ans.Sources != 10 || ans.Degraded {
		t.Errorf("answer = %+v, want 10 alice sources", ans)
	}
	if strings.Contains(gen.Prompts[0], "React") {
		t.Error("prompt leaked another owner's resume")
	}

	ans, _ = e.Ask(context.Background(), &models.AskRequest{Question: "skills?", OwnerID: "alice", SourceKey: "resumes/alice/2_cv.pdf"})
	if ans.Sources != 5 {
		t.Errorf("Sources = %d, want 5", ans.Sources)
	}
	if p := gen.Prompts[1]; !strings.Contains(p, "Kafka") || strings.Contains(p, "Kubernetes") {
		t.Error("resume filter not applied to context")
	}
}

func TestAsk_ValidationAndDegraded(t *testing.T) {
	emb := embedding.NewMockEmbedder(dims)
	e := NewEngine(failingEmbedder{emb}, seededIndex(t, emb), &generate.StaticGenerator{})
	if _, err := e.Ask(context.Background(), &models.AskRequest{Question: ""}); !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
	ans, err := e.Ask(context.Background(), &models.AskRequest{Question: "hi", OwnerID: "alice"})
	if err != nil {
		t.Fatal(err)
	}
	if !ans.Degraded || ans.Answer != Apology {
		t.Errorf("answer = %+v", ans)
	}
}

func TestContextBlock(t *testing.T) {
	matches := []*models.Match{
		{ID: "a", Metadata: models.ChunkMetadata{Text: "first"}},
		{ID: "b", Metadata: models.ChunkMetadata{}},
		{ID: "c", Metadata: models.ChunkMetadata{TextPreview: "preview only"}},
		{ID: "d", Metadata: models.ChunkMetadata{Text: "  "}},
	}
	if got, want := ContextBlock(matches), "first\n\npreview only"; got != want {
		t.Errorf("ContextBlock = %q, want %q", got, want)
	}
	if ContextBlock(nil) != "" {
		t.Error("empty matches should give empty block")
	}
}

func TestBuildPrompt(t *testing.T) {
	p := BuildPrompt("ctx text", "why?")
	if !strings.HasSuffix(p, "Context from resume:\nctx text\n\nQuestion: why?") {
		t.Errorf("prompt tail = %q", p[len(p)-60:])
	}
	if !strings.HasPrefix(p, "You are acting as a helpful AI assistant") {
		t.Error("missing instructions")
	}
}
