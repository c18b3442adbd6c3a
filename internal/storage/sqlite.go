package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/mensetsu/internal/models"
)

// SQLiteRecordStore implements RecordStore using SQLite.
type SQLiteRecordStore struct {
	db *sql.DB
}

// NewSQLiteRecordStore opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteRecordStore(dbPath string) (*SQLiteRecordStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteRecordStore{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS resumes (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		source_key TEXT NOT NULL UNIQUE,
		original_name TEXT NOT NULL,
		file_size INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		chunks_indexed INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT '',
		summary TEXT NOT NULL DEFAULT '',
		analysis TEXT NOT NULL DEFAULT '',
		uploaded_at TIMESTAMP NOT NULL,
		last_indexed_at TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_resumes_owner_uploaded ON resumes(owner_id, uploaded_at);
	`
	_, err := db.Exec(schema)
	return err
}

const resumeColumns = `id, owner_id, source_key, original_name, file_size, status, chunks_indexed,
	error, summary, analysis, uploaded_at, last_indexed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResume(row rowScanner) (*models.Resume, error) {
	var r models.Resume
	var status, analysisJSON string
	var lastIndexed sql.NullTime
	if err := row.Scan(&r.ID, &r.OwnerID, &r.SourceKey, &r.OriginalName, &r.FileSize, &status,
		&r.ChunksIndexed, &r.Error, &r.Summary, &analysisJSON, &r.UploadedAt, &lastIndexed); err != nil {
		return nil, err
	}
	r.Status = models.Status(status)
	if lastIndexed.Valid {
		t := lastIndexed.Time
		r.LastIndexedAt = &t
	}
	if analysisJSON != "" {
		var a models.Analysis
		if err := json.Unmarshal([]byte(analysisJSON), &a); err != nil {
			return nil, fmt.Errorf("failed to unmarshal analysis: %w", err)
		}
		r.Analysis = &a
	}
	return &r, nil
}

// CreateRecord inserts a resume record. ID, Status and UploadedAt are filled in when unset.
func (s *SQLiteRecordStore) CreateRecord(ctx context.Context, r *models.Resume) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.Status == "" {
		r.Status = models.StatusUploaded
	}
	if r.UploadedAt.IsZero() {
		r.UploadedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO resumes (id, owner_id, source_key, original_name, file_size, status, chunks_indexed, error, uploaded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.OwnerID, r.SourceKey, r.OriginalName, r.FileSize, string(r.Status), r.ChunksIndexed, r.Error, r.UploadedAt,
	)
	if err != nil {
		return fmt.Errorf("%w: failed to create record: %w", models.ErrStorage, err)
	}
	return nil
}

// GetRecord returns a resume record by ID.
func (s *SQLiteRecordStore) GetRecord(ctx context.Context, id string) (*models.Resume, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+resumeColumns+` FROM resumes WHERE id = ?`, id)
	r, err := scanResume(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: resume %s", models.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrStorage, err)
	}
	return r, nil
}

// GetRecordBySourceKey returns the resume record stored under sourceKey.
func (s *SQLiteRecordStore) GetRecordBySourceKey(ctx context.Context, sourceKey string) (*models.Resume, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+resumeColumns+` FROM resumes WHERE source_key = ?`, sourceKey)
	r, err := scanResume(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: resume with key %s", models.ErrNotFound, sourceKey)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrStorage, err)
	}
	return r, nil
}

// ListRecords returns ownerID's resumes, newest upload first.
func (s *SQLiteRecordStore) ListRecords(ctx context.Context, ownerID string) ([]*models.Resume, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+resumeColumns+` FROM resumes WHERE owner_id = ? ORDER BY uploaded_at DESC, id`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrStorage, err)
	}
	defer rows.Close()

	var out []*models.Resume
	for rows.Next() {
		r, err := scanResume(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", models.ErrStorage, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrStorage, err)
	}
	return out, nil
}

// UpdateStatus records an indexing transition. Reaching indexed stamps last_indexed_at.
func (s *SQLiteRecordStore) UpdateStatus(ctx context.Context, id string, u models.StatusUpdate) error {
	if !u.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", models.ErrInvalidInput, u.Status)
	}
	var lastIndexed any
	if u.Status == models.StatusIndexed {
		lastIndexed = time.Now().UTC()
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE resumes SET status = ?, chunks_indexed = ?, error = ?,
		 last_indexed_at = COALESCE(?, last_indexed_at)
		 WHERE id = ?`,
		string(u.Status), u.ChunksIndexed, u.Error, lastIndexed, id,
	)
	return affectedOne(result, err, id)
}

// UpdateSummary stores a generated recruiter summary.
func (s *SQLiteRecordStore) UpdateSummary(ctx context.Context, id, summary string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE resumes SET summary = ? WHERE id = ?`, summary, id)
	return affectedOne(result, err, id)
}

// UpdateAnalysis stores a job description analysis and marks the resume analyzed.
func (s *SQLiteRecordStore) UpdateAnalysis(ctx context.Context, id string, a *models.Analysis) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to marshal analysis: %w", err)
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE resumes SET analysis = ?, status = ? WHERE id = ?`,
		string(data), string(models.StatusAnalyzed), id,
	)
	return affectedOne(result, err, id)
}

// DeleteRecord removes a resume record by ID.
func (s *SQLiteRecordStore) DeleteRecord(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM resumes WHERE id = ?`, id)
	return affectedOne(result, err, id)
}

// CountByStatus returns the number of records in each status.
func (s *SQLiteRecordStore) CountByStatus(ctx context.Context) (map[models.Status]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM resumes GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrStorage, err)
	}
	defer rows.Close()
	counts := make(map[models.Status]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("%w: %w", models.ErrStorage, err)
		}
		counts[models.Status(status)] = n
	}
	return counts, rows.Err()
}

// Close closes the database connection.
func (s *SQLiteRecordStore) Close() error {
	return s.db.Close()
}

func affectedOne(result sql.Result, err error, id string) error {
	if err != nil {
		return fmt.Errorf("%w: %w", models.ErrStorage, err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: resume %s", models.ErrNotFound, id)
	}
	return nil
}
