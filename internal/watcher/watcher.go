// Package watcher uploads resumes dropped into inbox directories.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 400 * time.Millisecond

// Watcher reports files under a set of root directories once they have stopped
// changing for the debounce interval.
type Watcher struct {
	roots      []string
	extensions []string
	recursive  bool
	onFile     func(path string)
	quiet      time.Duration
	logger     *zap.Logger

	mu      sync.Mutex
	fsw     *fsnotify.Watcher
	pending map[string]*time.Timer
	done    chan struct{}
	closed  sync.Once
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = l }
}

// WithDebounce sets how long a file must be quiet before onFile fires. Non-positive keeps the default.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.quiet = d
		}
	}
}

// NewWatcher creates a watcher over roots. Only files whose extension is listed are
// reported; an empty list reports everything.
func NewWatcher(roots []string, extensions []string, recursive bool, onFile func(path string), opts ...WatcherOption) *Watcher {
	w := &Watcher{
		extensions: extensions,
		recursive:  recursive,
		onFile:     onFile,
		quiet:      defaultDebounce,
		logger:     zap.NewNop(),
		pending:    map[string]*time.Timer{},
		done:       make(chan struct{}),
	}
	for _, r := range roots {
		abs, err := filepath.Abs(r)
		if err != nil {
			continue
		}
		w.roots = append(w.roots, filepath.Clean(abs))
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start creates missing roots, subscribes to them and returns. Events are handled in
// the background until ctx is cancelled or Stop is called. Calling Start on a running
// watcher is a no-op.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fsw != nil {
		return nil
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	for _, root := range w.roots {
		if err := os.MkdirAll(root, 0755); err != nil {
			_ = fsw.Close()
			return err
		}
		if err := w.subscribe(fsw, root); err != nil {
			_ = fsw.Close()
			return err
		}
	}
	w.fsw = fsw
	w.logger.Debug("watcher starting",
		zap.Strings("roots", w.roots),
		zap.Strings("extensions", w.extensions),
		zap.Bool("recursive", w.recursive))
	go w.loop(ctx, fsw)
	return nil
}

// subscribe adds dir, and every directory below it when recursive, to fsw.
func (w *Watcher) subscribe(fsw *fsnotify.Watcher, dir string) error {
	if !w.recursive {
		return fsw.Add(dir)
	}
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return err
		}
		return fsw.Add(path)
	})
}

func (w *Watcher) loop(ctx context.Context, fsw *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Debug("watcher error", zap.Error(err))
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.dispatch(fsw, ev)
		}
	}
}

func (w *Watcher) dispatch(fsw *fsnotify.Watcher, ev fsnotify.Event) {
	if !w.covers(ev.Name) {
		return
	}
	w.logger.Debug("watcher event", zap.String("op", ev.Op.String()), zap.String("path", ev.Name))

	if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
		w.forget(ev.Name)
		return
	}
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return
	}
	if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
		// A directory moved or created under a recursive root may already hold files.
		if w.recursive {
			if err := w.subscribe(fsw, ev.Name); err != nil {
				w.logger.Debug("watcher failed to add directory", zap.String("path", ev.Name), zap.Error(err))
			}
			w.walkFiles(ev.Name, w.onFile)
		}
		return
	}
	if matchExtension(ev.Name, w.extensions) {
		w.touch(ev.Name)
	}
}

// covers reports whether path belongs to a root: anywhere below it when recursive,
// directly inside it otherwise.
func (w *Watcher) covers(path string) bool {
	path = filepath.Clean(path)
	for _, root := range w.roots {
		if w.recursive && inDir(root, path) {
			return true
		}
		if filepath.Dir(path) == root {
			return true
		}
	}
	return false
}

func inDir(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func matchExtension(path string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	for _, e := range extensions {
		if ext == strings.ToLower(strings.TrimPrefix(e, ".")) {
			return true
		}
	}
	return false
}

// touch (re)arms the quiet timer for path.
func (w *Watcher) touch(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t := w.pending[path]; t != nil {
		t.Reset(w.quiet)
		return
	}
	w.pending[path] = time.AfterFunc(w.quiet, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		w.logger.Debug("watcher file settled", zap.String("path", path))
		if w.onFile != nil {
			w.onFile(path)
		}
	})
}

func (w *Watcher) forget(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t := w.pending[path]; t != nil {
		t.Stop()
		delete(w.pending, path)
	}
}

// walkFiles calls fn for each matching file in dir, descending only when recursive.
func (w *Watcher) walkFiles(dir string, fn func(string)) {
	if fn == nil {
		return
	}
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		switch {
		case err != nil:
			return err
		case d.IsDir() && path != dir && !w.recursive:
			return filepath.SkipDir
		case d.IsDir():
			return nil
		case matchExtension(path, w.extensions):
			fn(path)
		}
		return nil
	})
}

// Directories returns a copy of the watched root directories.
func (w *Watcher) Directories() []string {
	return append([]string(nil), w.roots...)
}

// SyncExistingFiles reports every matching file already present in the roots, which
// picks up files dropped while the process was down.
func (w *Watcher) SyncExistingFiles() {
	for _, root := range w.roots {
		w.walkFiles(root, w.onFile)
	}
}

// Stop cancels pending reports and releases the underlying watcher. It is safe to call
// more than once.
func (w *Watcher) Stop() {
	w.mu.Lock()
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
	fsw := w.fsw
	w.fsw = nil
	w.mu.Unlock()
	if fsw != nil {
		_ = fsw.Close()
	}
	w.closed.Do(func() { close(w.done) })
}
