package generate

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/hyperjump/mensetsu/internal/models"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-1.5-flash"

// GeminiGenerator calls the Gemini generateContent API.
type GeminiGenerator struct {
	client      *genai.Client
	model       string
	temperature float32
}

// NewGeminiGenerator creates a Gemini client. An API key is required.
func NewGeminiGenerator(ctx context.Context, apiKey, model string, temperature float32) (*GeminiGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: gemini generation requires GEMINI_API_KEY", models.ErrConfig)
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("%w: create genai client: %w", models.ErrGeneration, err)
	}
	return &GeminiGenerator{client: client, model: model, temperature: temperature}, nil
}

// Generate sends prompt as a single user turn and returns the concatenated text parts.
func (g *GeminiGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	m := g.client.GenerativeModel(g.model)
	if g.temperature > 0 {
		temp := g.temperature
		m.GenerationConfig = genai.GenerationConfig{Temperature: &temp}
	}
	resp, err := m.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("%w: gemini generate: %w", models.ErrGeneration, err)
	}
	text := responseText(resp)
	if text == "" {
		return "", fmt.Errorf("%w: gemini returned an empty response", models.ErrGeneration)
	}
	return text, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	return sb.String()
}

// Close releases the underlying client.
func (g *GeminiGenerator) Close() error {
	return g.client.Close()
}
