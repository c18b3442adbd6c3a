package watcher

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/hyperjump/mensetsu/internal/blobkey"
	"github.com/hyperjump/mensetsu/internal/config"
	"github.com/hyperjump/mensetsu/internal/models"
)

// Uploader stores and indexes a resume for an owner.
type Uploader interface {
	Upload(ctx context.Context, ownerID, originalName string, data []byte) (*models.Resume, error)
}

// Inbox uploads PDF files that appear in the watched directories on behalf of one owner.
// Each file path is uploaded at most once; the set of handled paths is kept in an
// optional ledger file so restarts do not upload the same files again.
type Inbox struct {
	uploader Uploader
	ownerID  string
	ledger   string
	watcher  *Watcher
	logger   *zap.Logger

	mu   sync.Mutex
	seen map[string]struct{}
	ctx  context.Context
}

// InboxOption configures an Inbox.
type InboxOption func(*Inbox)

// WithInboxLogger sets the logger.
func WithInboxLogger(l *zap.Logger) InboxOption {
	return func(in *Inbox) { in.logger = l }
}

// WithLedger persists handled file fingerprints at path.
func WithLedger(path string) InboxOption {
	return func(in *Inbox) { in.ledger = path }
}

// NewInbox builds an inbox over cfg.Directories. The owner is required.
func NewInbox(uploader Uploader, cfg config.WatchConfig, opts ...InboxOption) (*Inbox, error) {
	if strings.TrimSpace(cfg.OwnerID) == "" {
		return nil, fmt.Errorf("%w: watch.owner_id is required", models.ErrConfig)
	}
	if len(cfg.Directories) == 0 {
		return nil, fmt.Errorf("%w: watch.directories is empty", models.ErrConfig)
	}
	in := &Inbox{
		uploader: uploader,
		ownerID:  cfg.OwnerID,
		logger:   zap.NewNop(),
		seen:     make(map[string]struct{}),
		ctx:      context.Background(),
	}
	for _, opt := range opts {
		opt(in)
	}
	if err := in.loadLedger(); err != nil {
		return nil, err
	}
	in.watcher = NewWatcher(cfg.Directories, []string{".pdf"}, cfg.RecursiveOrDefault(), in.handleFile,
		WithLogger(in.logger), WithDebounce(cfg.Debounce))
	return in, nil
}

// Start begins watching and uploads files already waiting in the directories.
func (in *Inbox) Start(ctx context.Context) error {
	in.mu.Lock()
	in.ctx = ctx
	in.mu.Unlock()
	if err := in.watcher.Start(ctx); err != nil {
		return err
	}
	in.logger.Info("Watching inbox", zap.Strings("directories", in.watcher.Directories()), zap.String("owner_id", in.ownerID))
	go in.watcher.SyncExistingFiles()
	return nil
}

// Stop stops watching.
func (in *Inbox) Stop() {
	in.watcher.Stop()
}

// Directories returns the watched directories.
func (in *Inbox) Directories() []string {
	return in.watcher.Directories()
}

func (in *Inbox) handleFile(path string) {
	in.mu.Lock()
	ctx := in.ctx
	in.mu.Unlock()
	if _, err := in.Process(ctx, path); err != nil {
		in.logger.Warn("inbox upload failed", zap.String("path", path), zap.Error(err))
	}
}

// Process uploads the file at path unless it was handled before. It reports whether an
// upload happened. A file whose indexing failed, or whose upload returned a record
// together with an error, is still marked handled; its state is visible on the record.
func (in *Inbox) Process(ctx context.Context, path string) (bool, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false, err
	}
	fp := blobkey.FileFingerprint(abs)
	in.mu.Lock()
	if _, ok := in.seen[fp]; ok {
		in.mu.Unlock()
		return false, nil
	}
	// Reserved before the upload so a second event for the same file is ignored.
	in.seen[fp] = struct{}{}
	in.mu.Unlock()

	data, err := os.ReadFile(abs)
	if err != nil {
		in.forget(fp)
		return false, fmt.Errorf("%w: read %s: %w", models.ErrStorage, abs, err)
	}
	r, err := in.uploader.Upload(ctx, in.ownerID, filepath.Base(abs), data)
	// A returned record means the upload was stored even if a later step failed.
	if r == nil && err != nil && !errors.Is(err, models.ErrInvalidInput) {
		in.forget(fp)
		return false, err
	}
	if err := in.appendLedger(fp); err != nil {
		in.logger.Warn("inbox ledger write failed", zap.Error(err))
	}
	if err != nil {
		return r != nil, err
	}
	in.logger.Info("inbox file uploaded", zap.String("path", abs), zap.String("resume_id", r.ID), zap.String("status", string(r.Status)))
	return true, nil
}

func (in *Inbox) forget(fp string) {
	in.mu.Lock()
	delete(in.seen, fp)
	in.mu.Unlock()
}

func (in *Inbox) loadLedger() error {
	if in.ledger == "" {
		return nil
	}
	f, err := os.Open(in.ledger)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: open inbox ledger: %w", models.ErrStorage, err)
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			in.seen[line] = struct{}{}
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("%w: read inbox ledger: %w", models.ErrStorage, err)
	}
	return nil
}

func (in *Inbox) appendLedger(fp string) error {
	if in.ledger == "" {
		return nil
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(in.ledger), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(in.ledger, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(fp + "\n"); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
