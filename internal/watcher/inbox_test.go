package watcher

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hyperjump/mensetsu/internal/config"
	"github.com/hyperjump/mensetsu/internal/models"
)

type fakeUploader struct {
	mu    sync.Mutex
	names []string
	owner string
	err   error

	// stored makes Upload return the record alongside err.
	stored bool
}

func (f *fakeUploader) Upload(ctx context.Context, ownerID, name string, data []byte) (*models.Resume, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil && !f.stored {
		return nil, f.err
	}
	f.owner = ownerID
	f.names = append(f.names, name)
	return &models.Resume{ID: fmt.Sprintf("r%d", len(f.names)), OwnerID: ownerID, Status: models.StatusIndexed}, f.err
}

func (f *fakeUploader) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.names)
}

func TestNewInbox_RequiresOwnerAndDirectories(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.WatchConfig
	}{
		{"no owner", config.WatchConfig{Directories: []string{t.TempDir()}}},
		{"no directories", config.WatchConfig{OwnerID: "alice"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewInbox(&fakeUploader{}, tt.cfg); !errors.Is(err, models.ErrConfig) {
				t.Errorf("err = %v, want ErrConfig", err)
			}
		})
	}
}

func TestInbox_ProcessUploadsOnce(t *testing.T) {
	dir := t.TempDir()
	up := &fakeUploader{}
	in, err := NewInbox(up, config.WatchConfig{Directories: []string{dir}, OwnerID: "recruiter"})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	path := filepath.Join(dir, "cv.pdf")
	if err := writeFile(path, "%PDF-1.4"); err != nil {
		t.Fatal(err)
	}
	uploaded, err := in.Process(ctx, path)
	if err != nil || !uploaded {
		t.Fatalf("first Process = %v, %v", uploaded, err)
	}
	uploaded, err = in.Process(ctx, path)
	if err != nil || uploaded {
		t.Errorf("second Process = %v, %v; want skip", uploaded, err)
	}
	if up.count() != 1 || up.owner != "recruiter" || up.names[0] != "cv.pdf" {
		t.Errorf("uploads = %+v", up.names)
	}
}

func TestInbox_FailedUploadIsRetried(t *testing.T) {
	dir := t.TempDir()
	up := &fakeUploader{err: fmt.Errorf("%w: disk full", models.ErrStorage)}
	in, err := NewInbox(up, config.WatchConfig{Directories: []string{dir}, OwnerID: "recruiter"})
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "cv.pdf")
	if err := writeFile(path, "%PDF-1.4"); err != nil {
		t.Fatal(err)
	}
	if _, err := in.Process(context.Background(), path); !errors.Is(err, models.ErrStorage) {
		t.Fatalf("err = %v", err)
	}
	up.err = nil
	if uploaded, err := in.Process(context.Background(), path); err != nil || !uploaded {
		t.Errorf("retry = %v, %v", uploaded, err)
	}
}

func TestInbox_StoredRecordWithErrorIsNotReuploaded(t *testing.T) {
	dir := t.TempDir()
	up := &fakeUploader{err: models.ErrIndexingInProgress, stored: true}
	in, err := NewInbox(up, config.WatchConfig{Directories: []string{dir}, OwnerID: "recruiter"})
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "cv.pdf")
	if err := writeFile(path, "%PDF-1.4"); err != nil {
		t.Fatal(err)
	}
	uploaded, err := in.Process(context.Background(), path)
	if !errors.Is(err, models.ErrIndexingInProgress) || !uploaded {
		t.Fatalf("Process = %v, %v", uploaded, err)
	}
	up.err = nil
	if uploaded, err := in.Process(context.Background(), path); err != nil || uploaded {
		t.Errorf("second Process = %v, %v, want no upload", uploaded, err)
	}
	if up.count() != 1 {
		t.Errorf("uploads = %d, want 1", up.count())
	}
}

func TestInbox_LedgerSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	ledger := filepath.Join(t.TempDir(), "inbox.seen")
	path := filepath.Join(dir, "cv.pdf")
	if err := writeFile(path, "%PDF-1.4"); err != nil {
		t.Fatal(err)
	}
	cfg := config.WatchConfig{Directories: []string{dir}, OwnerID: "recruiter"}

	first := &fakeUploader{}
	in, err := NewInbox(first, cfg, WithLedger(ledger))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := in.Process(context.Background(), path); err != nil {
		t.Fatal(err)
	}

	second := &fakeUploader{}
	in, err = NewInbox(second, cfg, WithLedger(ledger))
	if err != nil {
		t.Fatal(err)
	}
	if uploaded, _ := in.Process(context.Background(), path); uploaded || second.count() != 0 {
		t.Errorf("file uploaded again after restart")
	}
}

func TestInbox_StartUploadsWaitingAndNewFiles(t *testing.T) {
	dir := t.TempDir()
	if err := writeFile(filepath.Join(dir, "waiting.pdf"), "%PDF-1.4"); err != nil {
		t.Fatal(err)
	}
	up := &fakeUploader{}
	in, err := NewInbox(up, config.WatchConfig{Directories: []string{dir}, OwnerID: "recruiter", Debounce: 50 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := in.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer in.Stop()

	if err := writeFile(filepath.Join(dir, "new.pdf"), "%PDF-1.4"); err != nil {
		t.Fatal(err)
	}
	if !waitFor(t, func() bool { return up.count() == 2 }) {
		t.Errorf("uploads = %d, want 2", up.count())
	}
	if dirs := in.Directories(); len(dirs) != 1 {
		t.Errorf("Directories() = %v", dirs)
	}
}
