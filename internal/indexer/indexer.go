// Package indexer turns stored resumes into chunk vectors: download, extract, chunk,
// then embed and upsert each chunk in order.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/hyperjump/mensetsu/internal/embedding"
	"github.com/hyperjump/mensetsu/internal/extract"
	"github.com/hyperjump/mensetsu/internal/models"
	"github.com/hyperjump/mensetsu/internal/observability"
	"github.com/hyperjump/mensetsu/internal/storage"
	"github.com/hyperjump/mensetsu/internal/vector"
)

// TextExtractor converts document bytes to plain text. ext is the file extension with a
// leading dot, or empty to sniff the format.
type TextExtractor interface {
	ExtractBytes(content []byte, ext string) (string, error)
}

// StatusWriter records indexing progress for a resume.
type StatusWriter interface {
	UpdateStatus(ctx context.Context, id string, update models.StatusUpdate) error
}

// Indexer runs indexing attempts for single resumes.
type Indexer struct {
	blobs            storage.BlobStore
	records          StatusWriter
	extractor        TextExtractor
	embedder         embedding.Embedder
	vectorIndex      vector.VectorIndex
	chunker          *Chunker
	locks            *keyLock
	timeout          time.Duration
	cleanupOnFailure bool
	persistPath      string
	tracer           trace.Tracer
	logger           *zap.Logger
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger for step and failure events.
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) { idx.logger = l }
}

// WithTimeout bounds each indexing attempt. Zero disables the bound.
func WithTimeout(d time.Duration) IndexerOption {
	return func(idx *Indexer) { idx.timeout = d }
}

// WithCleanupOnFailure controls whether vectors upserted by a failed attempt are removed.
func WithCleanupOnFailure(enabled bool) IndexerOption {
	return func(idx *Indexer) { idx.cleanupOnFailure = enabled }
}

// WithPersistPath saves a file-backed vector index to path after every change.
func WithPersistPath(path string) IndexerOption {
	return func(idx *Indexer) { idx.persistPath = path }
}

// WithTracer sets the tracer used for step spans.
func WithTracer(t trace.Tracer) IndexerOption {
	return func(idx *Indexer) { idx.tracer = t }
}

// NewIndexer creates an indexer. The chunk window is validated here, so a bad profile
// is rejected before any embedding or upsert happens.
func NewIndexer(
	blobs storage.BlobStore,
	records StatusWriter,
	extractor TextExtractor,
	embedder embedding.Embedder,
	vectorIndex vector.VectorIndex,
	maxLength, overlap int,
	opts ...IndexerOption,
) (*Indexer, error) {
	chunker, err := NewChunker(maxLength, overlap)
	if err != nil {
		return nil, err
	}
	idx := &Indexer{
		blobs:            blobs,
		records:          records,
		extractor:        extractor,
		embedder:         embedder,
		vectorIndex:      vectorIndex,
		chunker:          chunker,
		locks:            newKeyLock(),
		cleanupOnFailure: true,
		logger:           zap.NewNop(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	if idx.tracer == nil {
		idx.tracer = observability.Tracer()
	}
	return idx, nil
}

// IndexResume runs one indexing attempt for r. The record moves to indexing, then to
// indexed with the chunk count, or to failed with the number of chunks completed before
// the first error. On failure the stored original is deleted, partial vectors are removed
// when cleanup is enabled, and the returned result describes the failed attempt alongside
// the error. A concurrent attempt for the same source key fails with
// models.ErrIndexingInProgress and touches nothing.
func (idx *Indexer) IndexResume(ctx context.Context, r *models.Resume) (*models.IndexResult, error) {
	if r == nil || r.SourceKey == "" || r.ID == "" {
		return nil, fmt.Errorf("%w: resume id and source key are required", models.ErrInvalidInput)
	}
	if !idx.locks.TryLock(r.SourceKey) {
		return nil, fmt.Errorf("%w: %s", models.ErrIndexingInProgress, r.SourceKey)
	}
	defer idx.locks.Unlock(r.SourceKey)

	// Status writes must land even when the attempt ran out of time.
	statusCtx := context.WithoutCancel(ctx)
	if idx.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, idx.timeout)
		defer cancel()
	}
	ctx, span := observability.StartStep(ctx, idx.tracer, "index-resume",
		attribute.String("resume.source_key", r.SourceKey),
		attribute.String("resume.id", r.ID),
	)
	defer span.End()

	log := idx.logger.With(zap.String("source_key", r.SourceKey), zap.String("resume_id", r.ID))
	log.Debug("indexing started")
	if err := idx.records.UpdateStatus(statusCtx, r.ID, models.StatusUpdate{Status: models.StatusIndexing}); err != nil {
		observability.RecordError(span, err)
		return nil, fmt.Errorf("mark %s indexing: %w", r.ID, err)
	}

	result := &models.IndexResult{SourceKey: r.SourceKey}
	count, err := idx.run(ctx, r)
	result.ChunksIndexed = count
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, models.ErrTimeout) {
			err = fmt.Errorf("%w: indexing exceeded %s: %w", models.ErrTimeout, idx.timeout, err)
		}
		observability.RecordError(span, err)
		result.Status = models.StatusFailed
		result.Error = err.Error()
		log.Error("indexing failed", zap.Int("chunks_indexed", count), zap.Error(err))
		idx.cleanup(statusCtx, r, log)
		if uerr := idx.records.UpdateStatus(statusCtx, r.ID, models.StatusUpdate{
			Status:        models.StatusFailed,
			ChunksIndexed: count,
			Error:         result.Error,
		}); uerr != nil {
			log.Warn("record failed status", zap.Error(uerr))
		}
		return result, err
	}

	result.Status = models.StatusIndexed
	span.SetAttributes(attribute.Int("resume.chunks_indexed", count))
	if err := idx.records.UpdateStatus(statusCtx, r.ID, models.StatusUpdate{
		Status:        models.StatusIndexed,
		ChunksIndexed: count,
	}); err != nil {
		observability.RecordError(span, err)
		return result, fmt.Errorf("mark %s indexed: %w", r.ID, err)
	}
	idx.persist(log)
	log.Debug("indexing completed", zap.Int("chunks_indexed", count))
	return result, nil
}

// run executes the pipeline and returns the number of chunks upserted.
func (idx *Indexer) run(ctx context.Context, r *models.Resume) (int, error) {
	stepCtx, span := observability.StartStep(ctx, idx.tracer, observability.SpanDownload)
	data, err := idx.blobs.Get(stepCtx, r.SourceKey)
	observability.RecordError(span, err)
	span.End()
	if err != nil {
		return 0, fmt.Errorf("download %s: %w", r.SourceKey, err)
	}

	_, span = observability.StartStep(ctx, idx.tracer, observability.SpanExtract, attribute.Int("resume.bytes", len(data)))
	text, err := idx.extractor.ExtractBytes(data, extract.DetectExt(data, r.OriginalName, r.SourceKey))
	observability.RecordError(span, err)
	span.End()
	if err != nil {
		return 0, err
	}

	_, span = observability.StartStep(ctx, idx.tracer, observability.SpanChunk)
	chunks, err := idx.chunker.Chunks(r.SourceKey, text)
	span.SetAttributes(attribute.Int("resume.chunks", len(chunks)))
	observability.RecordError(span, err)
	span.End()
	if err != nil {
		return 0, err
	}

	stepCtx, span = observability.StartStep(ctx, idx.tracer, observability.SpanEmbedUpsert, attribute.Int("resume.chunks", len(chunks)))
	defer span.End()
	count := 0
	for _, c := range chunks {
		if err := stepCtx.Err(); err != nil {
			observability.RecordError(span, err)
			return count, fmt.Errorf("chunk %d: %w", c.SequenceIndex, err)
		}
		vec, err := idx.embedder.Embed(stepCtx, c.Text)
		if err != nil {
			observability.RecordError(span, err)
			return count, fmt.Errorf("embed chunk %d: %w", c.SequenceIndex, err)
		}
		c.Embedding = vec
		if err := idx.vectorIndex.Upsert(stepCtx, c.ID(), vec, models.NewChunkMetadata(r, c)); err != nil {
			observability.RecordError(span, err)
			return count, fmt.Errorf("upsert chunk %d: %w", c.SequenceIndex, err)
		}
		count++
		idx.logger.Debug("chunk indexed", zap.String("chunk_id", c.ID()))
	}
	return count, nil
}

func (idx *Indexer) cleanup(ctx context.Context, r *models.Resume, log *zap.Logger) {
	if idx.cleanupOnFailure {
		if err := idx.vectorIndex.DeleteByPrefix(ctx, r.SourceKey); err != nil {
			log.Warn("remove partial vectors", zap.Error(err))
		} else {
			idx.persist(log)
		}
	}
	if err := idx.blobs.Delete(ctx, r.SourceKey); err != nil {
		log.Warn("delete stored original", zap.Error(err))
	}
}

// RemoveResume deletes every chunk vector of sourceKey.
func (idx *Indexer) RemoveResume(ctx context.Context, sourceKey string) error {
	if !idx.locks.TryLock(sourceKey) {
		return fmt.Errorf("%w: %s", models.ErrIndexingInProgress, sourceKey)
	}
	defer idx.locks.Unlock(sourceKey)
	if err := idx.vectorIndex.DeleteByPrefix(ctx, sourceKey); err != nil {
		return err
	}
	idx.persist(idx.logger.With(zap.String("source_key", sourceKey)))
	return nil
}

func (idx *Indexer) persist(log *zap.Logger) {
	if idx.persistPath == "" {
		return
	}
	p, ok := idx.vectorIndex.(vector.Persistent)
	if !ok {
		return
	}
	if err := p.Save(idx.persistPath); err != nil {
		log.Warn("save vector index", zap.String("path", idx.persistPath), zap.Error(err))
	}
}
