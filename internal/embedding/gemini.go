package embedding

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/hyperjump/mensetsu/internal/models"
)

// DefaultGeminiModel is the Gemini embedding model used when none is configured.
const DefaultGeminiModel = "text-embedding-004"

// geminiModelDimensions lists the output size of known Gemini embedding models.
var geminiModelDimensions = map[string]int{
	"text-embedding-004": 768,
	"text-embedding-005": 768,
	"embedding-001":      768,
}

// GeminiEmbedder calls the Gemini embedding API.
type GeminiEmbedder struct {
	client     *genai.Client
	model      *genai.EmbeddingModel
	dimensions int
}

// NewGeminiEmbedder creates a client for the given model. dimensions 0 selects the model's
// known output size.
func NewGeminiEmbedder(ctx context.Context, apiKey, model string, dimensions int) (*GeminiEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: gemini API key is required", models.ErrConfig)
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	if dimensions <= 0 {
		d, ok := geminiModelDimensions[model]
		if !ok {
			return nil, fmt.Errorf("%w: unknown dimensions for gemini model %q", models.ErrConfig, model)
		}
		dimensions = d
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create gemini client: %w", models.ErrEmbedding, err)
	}
	return &GeminiEmbedder{
		client:     client,
		model:      client.EmbeddingModel(model),
		dimensions: dimensions,
	}, nil
}

// Embed returns the embedding for text.
func (e *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	res, err := e.model.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("%w: gemini embedding request failed: %w", models.ErrEmbedding, err)
	}
	if res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, fmt.Errorf("%w: no embedding data received from gemini", models.ErrEmbedding)
	}
	if err := CheckDimensions(res.Embedding.Values, e.dimensions); err != nil {
		return nil, err
	}
	return res.Embedding.Values, nil
}

// EmbedBatch embeds all texts in one batch request.
func (e *GeminiEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	batch := e.model.NewBatch()
	for _, t := range texts {
		batch = batch.AddContent(genai.Text(t))
	}
	res, err := e.model.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("%w: gemini batch embedding request failed: %w", models.ErrEmbedding, err)
	}
	if len(res.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: gemini returned %d embeddings for %d texts", models.ErrEmbedding, len(res.Embeddings), len(texts))
	}
	out := make([][]float32, len(texts))
	for i, emb := range res.Embeddings {
		if emb == nil {
			return nil, fmt.Errorf("%w: gemini returned no embedding for text %d", models.ErrEmbedding, i)
		}
		if err := CheckDimensions(emb.Values, e.dimensions); err != nil {
			return nil, err
		}
		out[i] = emb.Values
	}
	return out, nil
}

// Dimensions returns the embedding dimension.
func (e *GeminiEmbedder) Dimensions() int {
	return e.dimensions
}

// Close closes the underlying client.
func (e *GeminiEmbedder) Close() error {
	return e.client.Close()
}
