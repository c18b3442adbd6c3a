// Package search answers questions about resumes from retrieved chunk context.
package search

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/hyperjump/mensetsu/internal/embedding"
	"github.com/hyperjump/mensetsu/internal/generate"
	"github.com/hyperjump/mensetsu/internal/models"
	"github.com/hyperjump/mensetsu/internal/observability"
	"github.com/hyperjump/mensetsu/internal/vector"
)

// Engine embeds a question, retrieves the top-K chunks and asks the generator for a
// grounded answer.
type Engine struct {
	embedder    embedding.Embedder
	vectorIndex vector.VectorIndex
	generator   generate.Generator
	topK        int
	tracer      trace.Tracer
	logger      *zap.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the logger for degraded answers.
func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// WithTopK sets the default number of chunks retrieved per question.
func WithTopK(k int) EngineOption {
	return func(e *Engine) {
		if k > 0 {
			e.topK = k
		}
	}
}

// WithTracer sets the tracer used for step spans.
func WithTracer(t trace.Tracer) EngineOption {
	return func(e *Engine) { e.tracer = t }
}

// NewEngine creates an answering engine with the given dependencies.
func NewEngine(embedder embedding.Embedder, vectorIndex vector.VectorIndex, generator generate.Generator, opts ...EngineOption) *Engine {
	e := &Engine{
		embedder:    embedder,
		vectorIndex: vectorIndex,
		generator:   generator,
		topK:        models.DefaultTopK,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.tracer == nil {
		e.tracer = observability.Tracer()
	}
	return e
}

// TopK returns the default retrieval depth.
func (e *Engine) TopK() int {
	return e.topK
}

// Search returns the chunks that would ground an answer to req, best first, without
// calling the generator. Unlike Ask, retrieval failures are returned.
func (e *Engine) Search(ctx context.Context, req *models.AskRequest) (*models.QueryResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return e.retrieve(ctx, req.Question, req.TopK, &models.Filter{OwnerID: req.OwnerID, SourceKey: req.SourceKey})
}

func (e *Engine) retrieve(ctx context.Context, query string, k int, filter *models.Filter) (*models.QueryResult, error) {
	stepCtx, span := observability.StartStep(ctx, e.tracer, observability.SpanEmbedQuery)
	vec, err := e.embedder.Embed(stepCtx, query)
	observability.RecordError(span, err)
	span.End()
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	stepCtx, span = observability.StartStep(ctx, e.tracer, observability.SpanSearchIndex, attribute.Int("search.top_k", k))
	matches, err := e.vectorIndex.Query(stepCtx, vec, k, filter)
	span.SetAttributes(attribute.Int("search.matches", len(matches)))
	observability.RecordError(span, err)
	span.End()
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}
	if len(matches) > k {
		matches = matches[:k]
	}
	return &models.QueryResult{Query: query, Matches: matches}, nil
}

// Answer answers query from every indexed resume. It never fails: any collaborator error
// yields Apology.
func (e *Engine) Answer(ctx context.Context, query string) string {
	text, err := e.answer(ctx, query, e.topK, nil)
	if err != nil {
		e.logger.Warn("answer degraded", zap.String("query", query), zap.Error(err))
		return Apology
	}
	return text
}

// Ask answers req scoped to req.OwnerID's resumes, narrowed to one resume when
// req.SourceKey is set. Validation errors are returned; collaborator failures produce a
// degraded Answer carrying Apology.
func (e *Engine) Ask(ctx context.Context, req *models.AskRequest) (*models.Answer, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	filter := &models.Filter{OwnerID: req.OwnerID, SourceKey: req.SourceKey}
	result, err := e.retrieve(ctx, req.Question, req.TopK, filter)
	if err != nil {
		e.logger.Warn("answer degraded", zap.String("owner_id", req.OwnerID), zap.Error(err))
		return &models.Answer{Question: req.Question, Answer: Apology, Degraded: true}, nil
	}
	text, err := e.generate(ctx, req.Question, result.Matches)
	if err != nil {
		e.logger.Warn("answer degraded", zap.String("owner_id", req.OwnerID), zap.Error(err))
		return &models.Answer{Question: req.Question, Answer: Apology, Sources: len(result.Matches), Degraded: true}, nil
	}
	return &models.Answer{Question: req.Question, Answer: text, Sources: len(result.Matches)}, nil
}

func (e *Engine) answer(ctx context.Context, query string, k int, filter *models.Filter) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", fmt.Errorf("%w: question cannot be empty", models.ErrInvalidInput)
	}
	result, err := e.retrieve(ctx, query, k, filter)
	if err != nil {
		return "", err
	}
	return e.generate(ctx, query, result.Matches)
}

func (e *Engine) generate(ctx context.Context, query string, matches []*models.Match) (string, error) {
	prompt := BuildPrompt(ContextBlock(matches), query)
	stepCtx, span := observability.StartStep(ctx, e.tracer, observability.SpanGenerate)
	defer span.End()
	text, err := e.generator.Generate(stepCtx, prompt)
	if err != nil {
		observability.RecordError(span, err)
		return "", fmt.Errorf("generate: %w", err)
	}
	return text, nil
}
