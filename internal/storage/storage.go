// Package storage defines persistence for resume blobs and their index records.
package storage

import (
	"context"

	"github.com/hyperjump/mensetsu/internal/models"
)

// BlobStore holds uploaded resume bytes under opaque keys.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// RecordStore persists resume index records.
type RecordStore interface {
	CreateRecord(ctx context.Context, r *models.Resume) error
	GetRecord(ctx context.Context, id string) (*models.Resume, error)
	GetRecordBySourceKey(ctx context.Context, sourceKey string) (*models.Resume, error)
	ListRecords(ctx context.Context, ownerID string) ([]*models.Resume, error)
	UpdateStatus(ctx context.Context, id string, u models.StatusUpdate) error
	UpdateSummary(ctx context.Context, id, summary string) error
	UpdateAnalysis(ctx context.Context, id string, a *models.Analysis) error
	DeleteRecord(ctx context.Context, id string) error

	// Stats
	CountByStatus(ctx context.Context) (map[models.Status]int64, error)

	Close() error
}
