package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu    sync.Mutex
	paths []string
}

func (r *recorder) add(path string) {
	r.mu.Lock()
	r.paths = append(r.paths, path)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths...)
}

func (r *recorder) has(suffix string) bool {
	for _, p := range r.snapshot() {
		if strings.HasSuffix(p, suffix) {
			return true
		}
	}
	return false
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return cond()
}

func TestWatcher_DebounceAndExtensionFilter(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	w := NewWatcher([]string{dir}, []string{".pdf"}, true, rec.add, WithDebounce(50*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	pdf := filepath.Join(dir, "cv.pdf")
	for i := 0; i < 3; i++ {
		if err := writeFile(pdf, strings.Repeat("x", i+1)); err != nil {
			t.Fatal(err)
		}
	}
	if err := writeFile(filepath.Join(dir, "notes.txt"), "skip"); err != nil {
		t.Fatal(err)
	}

	if !waitFor(t, func() bool { return rec.has("cv.pdf") }) {
		t.Fatalf("cv.pdf not reported, got %v", rec.snapshot())
	}
	time.Sleep(150 * time.Millisecond)
	got := rec.snapshot()
	if len(got) != 1 {
		t.Errorf("expected one debounced callback, got %v", got)
	}
	if rec.has("notes.txt") {
		t.Error("notes.txt should be filtered out")
	}
}

func TestMatchExtension(t *testing.T) {
	tests := []struct {
		path       string
		extensions []string
		want       bool
	}{
		{"/a/b.pdf", []string{".pdf"}, true},
		{"/a/b.PDF", []string{"pdf"}, true},
		{"/a/b.docx", []string{".pdf"}, false},
		{"/a/b", nil, true},
		{"/a/b", []string{}, true},
	}
	for _, tt := range tests {
		if got := matchExtension(tt.path, tt.extensions); got != tt.want {
			t.Errorf("matchExtension(%q, %v) = %v, want %v", tt.path, tt.extensions, got, tt.want)
		}
	}
}

func TestInDir(t *testing.T) {
	tests := []struct {
		dir  string
		path string
		want bool
	}{
		{"/tmp/a", "/tmp/a", true},
		{"/tmp/a", "/tmp/a/b.pdf", true},
		{"/tmp/a", "/tmp/b", false},
		{"/tmp/a", "/tmp/a/../b", false},
	}
	for _, tt := range tests {
		if got := inDir(tt.dir, tt.path); got != tt.want {
			t.Errorf("inDir(%q, %q) = %v, want %v", tt.dir, tt.path, got, tt.want)
		}
	}
}

func TestWatcher_SyncExistingFiles(t *testing.T) {
	tests := []struct {
		name      string
		recursive bool
		want      []string
	}{
		{"recursive", true, []string{"a.pdf", "b.pdf"}},
		{"top level only", false, []string{"a.pdf"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			if err := writeFile(filepath.Join(dir, "a.pdf"), "x"); err != nil {
				t.Fatal(err)
			}
			if err := writeFile(filepath.Join(dir, "ignore.txt"), "x"); err != nil {
				t.Fatal(err)
			}
			if err := mkdirAll(filepath.Join(dir, "sub")); err != nil {
				t.Fatal(err)
			}
			if err := writeFile(filepath.Join(dir, "sub", "b.pdf"), "x"); err != nil {
				t.Fatal(err)
			}
			rec := &recorder{}
			w := NewWatcher([]string{dir}, []string{".pdf"}, tt.recursive, rec.add)
			w.SyncExistingFiles()
			got := rec.snapshot()
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for _, name := range tt.want {
				if !rec.has(name) {
					t.Errorf("%s not reported in %v", name, got)
				}
			}
		})
	}
}

func TestWatcher_Start_createsMissingRootDirectory(t *testing.T) {
	root := filepath.Join(t.TempDir(), "watch", "me")
	w := NewWatcher([]string{root}, []string{".pdf"}, true, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()
	if _, err := os.Stat(root); err != nil {
		t.Errorf("root directory should exist after Start: %v", err)
	}
	dirs := w.Directories()
	if len(dirs) != 1 || dirs[0] != root {
		t.Errorf("Directories() = %v", dirs)
	}
}

func TestWatcher_NewDirectoryFilesReported(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	w := NewWatcher([]string{dir}, []string{".pdf"}, true, rec.add, WithDebounce(50*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	nested := filepath.Join(dir, "batch", "march")
	if err := mkdirAll(nested); err != nil {
		t.Fatal(err)
	}
	if err := writeFile(filepath.Join(nested, "deep.pdf"), "x"); err != nil {
		t.Fatal(err)
	}
	if !waitFor(t, func() bool { return rec.has("deep.pdf") }) {
		t.Errorf("expected deep.pdf to be reported, got %v", rec.snapshot())
	}
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	w := NewWatcher([]string{t.TempDir()}, nil, false, nil)
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	w.Stop()
	w.Stop()
}

func mkdirAll(path string) error {
	return os.MkdirAll(path, 0755)
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0600)
}
