// Package resume implements the resume upload flow and per-owner record access.
package resume

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/mensetsu/internal/blobkey"
	"github.com/hyperjump/mensetsu/internal/extract"
	"github.com/hyperjump/mensetsu/internal/models"
	"github.com/hyperjump/mensetsu/internal/storage"
)

// DefaultMaxFileSize is the upload limit when none is configured.
const DefaultMaxFileSize = 10 << 20

// Indexer runs and undoes indexing attempts.
type Indexer interface {
	IndexResume(ctx context.Context, r *models.Resume) (*models.IndexResult, error)
	RemoveResume(ctx context.Context, sourceKey string) error
}

// Service stores uploaded resumes, indexes them and serves their records.
type Service struct {
	blobs       storage.BlobStore
	records     storage.RecordStore
	indexer     Indexer
	maxFileSize int64
	now         func() time.Time
	logger      *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithMaxFileSize sets the upload size limit in bytes.
func WithMaxFileSize(n int64) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxFileSize = n
		}
	}
}

// NewService creates a resume service.
func NewService(blobs storage.BlobStore, records storage.RecordStore, indexer Indexer, opts ...Option) *Service {
	s := &Service{
		blobs:       blobs,
		records:     records,
		indexer:     indexer,
		maxFileSize: DefaultMaxFileSize,
		now:         time.Now,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Validate checks that data is an acceptable resume upload.
func (s *Service) Validate(originalName string, data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: no file provided", models.ErrInvalidInput)
	}
	if int64(len(data)) > s.maxFileSize {
		return fmt.Errorf("%w: file size %d exceeds limit of %d bytes", models.ErrInvalidInput, len(data), s.maxFileSize)
	}
	if !strings.EqualFold(filepath.Ext(originalName), ".pdf") && !extract.IsPDF(data) {
		return fmt.Errorf("%w: only PDF files are allowed", models.ErrInvalidInput)
	}
	return nil
}

// Upload stores data for ownerID, creates its record and indexes it. The refreshed record
// is returned; a failed indexing attempt is reported through its status and error rather
// than as an error.
func (s *Service) Upload(ctx context.Context, ownerID, originalName string, data []byte) (*models.Resume, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner is required", models.ErrUnauthorized)
	}
	originalName = filepath.Base(strings.TrimSpace(originalName))
	if originalName == "." || originalName == "/" {
		originalName = "resume.pdf"
	}
	if err := s.Validate(originalName, data); err != nil {
		return nil, err
	}

	key, err := s.freeKey(ctx, ownerID, originalName)
	if err != nil {
		return nil, err
	}
	if err := s.blobs.Put(ctx, key, data); err != nil {
		return nil, err
	}
	r := &models.Resume{
		OwnerID:      ownerID,
		SourceKey:    key,
		OriginalName: originalName,
		FileSize:     int64(len(data)),
		Status:       models.StatusUploaded,
		UploadedAt:   s.now().UTC(),
	}
	if err := s.records.CreateRecord(ctx, r); err != nil {
		if derr := s.blobs.Delete(ctx, key); derr != nil {
			s.logger.Warn("remove orphaned upload", zap.String("source_key", key), zap.Error(derr))
		}
		return nil, err
	}
	s.logger.Info("resume uploaded", zap.String("resume_id", r.ID), zap.String("source_key", key), zap.Int("bytes", len(data)))

	result, err := s.indexer.IndexResume(ctx, r)
	if err != nil && result == nil {
		return r, err
	}
	if err != nil {
		s.logger.Warn("resume indexing failed", zap.String("resume_id", r.ID), zap.Error(err))
	}
	return s.records.GetRecord(context.WithoutCancel(ctx), r.ID)
}

// freeKey returns an unused source key, moving forward a millisecond on collision.
func (s *Service) freeKey(ctx context.Context, ownerID, name string) (string, error) {
	at := s.now()
	for i := 0; i < 100; i++ {
		key := blobkey.SourceKey(ownerID, name, at)
		_, err := s.records.GetRecordBySourceKey(ctx, key)
		if errors.Is(err, models.ErrNotFound) {
			return key, nil
		}
		if err != nil {
			return "", err
		}
		at = at.Add(time.Millisecond)
	}
	return "", fmt.Errorf("%w: no free key for %s", models.ErrStorage, name)
}

// List returns ownerID's resumes, newest first.
func (s *Service) List(ctx context.Context, ownerID string) ([]*models.Resume, error) {
	out, err := s.records.ListRecords(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []*models.Resume{}
	}
	return out, nil
}

// Get returns resume id when ownerID owns it.
func (s *Service) Get(ctx context.Context, ownerID, id string) (*models.Resume, error) {
	r, err := s.records.GetRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := r.Authorize(ownerID); err != nil {
		return nil, err
	}
	return r, nil
}

// Delete removes resume id's vectors, stored original and record.
func (s *Service) Delete(ctx context.Context, ownerID, id string) error {
	r, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return err
	}
	if err := s.indexer.RemoveResume(ctx, r.SourceKey); err != nil {
		return err
	}
	if err := s.blobs.Delete(ctx, r.SourceKey); err != nil {
		return err
	}
	if err := s.records.DeleteRecord(ctx, r.ID); err != nil {
		return err
	}
	s.logger.Info("resume deleted", zap.String("resume_id", r.ID), zap.String("source_key", r.SourceKey))
	return nil
}

// Reindex runs a new indexing attempt for a stored resume.
func (s *Service) Reindex(ctx context.Context, ownerID, id string) (*models.Resume, error) {
	r, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	result, err := s.indexer.IndexResume(ctx, r)
	if err != nil && result == nil {
		return nil, err
	}
	if err != nil {
		s.logger.Warn("resume reindexing failed", zap.String("resume_id", r.ID), zap.Error(err))
	}
	return s.records.GetRecord(context.WithoutCancel(ctx), r.ID)
}
