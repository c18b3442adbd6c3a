package main

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/hyperjump/mensetsu/internal/analysis"
	"github.com/hyperjump/mensetsu/internal/auth"
	"github.com/hyperjump/mensetsu/internal/config"
	"github.com/hyperjump/mensetsu/internal/embedding"
	"github.com/hyperjump/mensetsu/internal/extract"
	"github.com/hyperjump/mensetsu/internal/generate"
	"github.com/hyperjump/mensetsu/internal/indexer"
	"github.com/hyperjump/mensetsu/internal/observability"
	"github.com/hyperjump/mensetsu/internal/resume"
	"github.com/hyperjump/mensetsu/internal/search"
	"github.com/hyperjump/mensetsu/internal/server"
	"github.com/hyperjump/mensetsu/internal/storage"
	"github.com/hyperjump/mensetsu/internal/vector"
	"github.com/hyperjump/mensetsu/internal/watcher"
)

// Components holds initialized services.
type Components struct {
	Tracing     *observability.TracerProvider
	Records     *storage.SQLiteRecordStore
	Blobs       *storage.DiskBlobStore
	Embedder    embedding.Embedder
	VectorIndex vector.VectorIndex
	Resources   vector.VectorIndex
	Generator   generate.Generator
	Indexer     *indexer.Indexer
	Engine      *search.Engine
	Analyzer    *analysis.Analyzer
	Resumes     *resume.Service
	Verifier    *auth.JWTVerifier
	Inbox       *watcher.Inbox
	Server      *server.Server

	vectorPath string
	logger     *zap.Logger
}

// Close flushes the local vector index and releases every component.
func (c *Components) Close() {
	if p, ok := c.VectorIndex.(vector.Persistent); ok && c.vectorPath != "" {
		if err := p.Save(c.vectorPath); err != nil {
			c.logger.Warn("vector index save failed", zap.String("path", c.vectorPath), zap.Error(err))
		}
	}
	if c.Inbox != nil {
		c.Inbox.Stop()
	}
	if c.VectorIndex != nil {
		_ = c.VectorIndex.Close()
	}
	if c.Resources != nil {
		_ = c.Resources.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Generator != nil {
		_ = c.Generator.Close()
	}
	if c.Records != nil {
		_ = c.Records.Close()
	}
	if c.Tracing != nil {
		_ = c.Tracing.Shutdown(context.Background())
	}
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (c *Components, err error) {
	c = &Components{logger: logger, vectorPath: cfg.Storage.VectorIndexPath}
	defer func() {
		if err != nil {
			c.Close()
			c = nil
		}
	}()

	if c.Tracing, err = observability.InitTracing(ctx, cfg.Tracing, version); err != nil {
		return c, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	tracer := c.Tracing.Tracer()

	if c.Records, err = storage.NewSQLiteRecordStore(cfg.Storage.DatabasePath); err != nil {
		return c, fmt.Errorf("failed to initialize record store: %w", err)
	}
	if c.Blobs, err = storage.NewDiskBlobStore(cfg.Storage.BlobDir); err != nil {
		return c, fmt.Errorf("failed to initialize blob store: %w", err)
	}
	if c.Embedder, err = embedding.NewEmbedder(ctx, cfg.Embedding, logger); err != nil {
		return c, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	if c.VectorIndex, err = vector.NewVectorIndex(ctx, cfg.Vector, c.Embedder.Dimensions()); err != nil {
		return c, fmt.Errorf("failed to initialize vector index: %w", err)
	}
	persistPath := ""
	if p, ok := c.VectorIndex.(vector.Persistent); ok {
		persistPath = cfg.Storage.VectorIndexPath
		if loadErr := p.Load(persistPath); loadErr != nil {
			logger.Warn("vector index load skipped; reindex resumes to rebuild", zap.String("path", persistPath), zap.Error(loadErr))
		}
	} else {
		c.vectorPath = ""
	}
	logger.Info("vector index initialized", zap.String("type", c.VectorIndex.Type()), zap.Int("dimensions", c.Embedder.Dimensions()))

	if c.Generator, err = generate.NewGenerator(ctx, cfg.Generation); err != nil {
		return c, fmt.Errorf("failed to initialize generator: %w", err)
	}

	profile, err := cfg.Chunking.Active()
	if err != nil {
		return c, err
	}
	extractor := extract.NewExtractor()
	c.Indexer, err = indexer.NewIndexer(c.Blobs, c.Records, extractor, c.Embedder, c.VectorIndex,
		profile.MaxLength, profile.Overlap,
		indexer.WithLogger(logger),
		indexer.WithTimeout(cfg.Indexing.Timeout),
		indexer.WithCleanupOnFailure(cfg.Indexing.CleanupOnFailureOrDefault()),
		indexer.WithPersistPath(persistPath),
		indexer.WithTracer(tracer),
	)
	if err != nil {
		return c, fmt.Errorf("failed to initialize indexer: %w", err)
	}

	c.Engine = search.NewEngine(c.Embedder, c.VectorIndex, c.Generator,
		search.WithLogger(logger), search.WithTopK(cfg.Retrieval.TopK), search.WithTracer(tracer))
	analyzerOpts := []analysis.Option{analysis.WithLogger(logger)}
	if cfg.Resources.Enabled() {
		if c.Resources, err = openResourceIndex(ctx, cfg.Resources, c.Embedder.Dimensions(), logger); err != nil {
			return c, err
		}
		analyzerOpts = append(analyzerOpts, analysis.WithResources(c.Embedder, c.Resources, cfg.Resources.TopK))
	}
	c.Analyzer = analysis.NewAnalyzer(c.Records, c.Blobs, extractor, c.Generator, analyzerOpts...)
	c.Resumes = resume.NewService(c.Blobs, c.Records, c.Indexer,
		resume.WithLogger(logger), resume.WithMaxFileSize(cfg.Indexing.MaxFileSize))

	if c.Verifier, err = auth.NewJWTVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer); err != nil {
		return c, fmt.Errorf("failed to initialize token verifier: %w", err)
	}

	deps := server.Deps{
		Resumes:     c.Resumes,
		Engine:      c.Engine,
		Analyzer:    c.Analyzer,
		Records:     c.Records,
		VectorIndex: c.VectorIndex,
		Verifier:    c.Verifier,
	}
	if len(cfg.Watch.Directories) > 0 {
		ledger := filepath.Join(filepath.Dir(cfg.Storage.DatabasePath), "inbox.seen")
		if c.Inbox, err = watcher.NewInbox(c.Resumes, cfg.Watch, watcher.WithInboxLogger(logger), watcher.WithLedger(ledger)); err != nil {
			return c, fmt.Errorf("failed to initialize inbox watcher: %w", err)
		}
		deps.Watch = c.Inbox
	}
	c.Server = server.NewServer(deps, cfg, logger)
	return c, nil
}

// openResourceIndex opens the learning resource index. A memory index is read from its
// file; a missing file leaves it empty.
func openResourceIndex(ctx context.Context, cfg config.ResourcesConfig, dimensions int, logger *zap.Logger) (vector.VectorIndex, error) {
	idx, err := vector.NewVectorIndex(ctx, config.VectorConfig{Type: cfg.Type, Qdrant: cfg.Qdrant}, dimensions)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize resource index: %w", err)
	}
	if p, ok := idx.(vector.Persistent); ok {
		if err := p.Load(cfg.IndexPath); err != nil {
			logger.Warn("resource index load skipped", zap.String("path", cfg.IndexPath), zap.Error(err))
		}
	}
	logger.Info("resource index initialized", zap.String("type", idx.Type()), zap.Int("top_k", cfg.TopK))
	return idx, nil
}
