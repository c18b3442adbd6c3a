package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/hyperjump/mensetsu/internal/models"
)

func TestReorderArgs(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected []string
	}{
		{
			name:     "flags after question are moved first",
			args:     []string{"who knows Go?", "-resume", "r1"},
			expected: []string{"-resume", "r1", "who knows Go?"},
		},
		{
			name:     "flags first returns unchanged",
			args:     []string{"-resume", "r1", "who knows Go?"},
			expected: []string{"-resume", "r1", "who knows Go?"},
		},
		{
			name:     "positional only returns unchanged",
			args:     []string{"cv.pdf"},
			expected: []string{"cv.pdf"},
		},
		{
			name:     "empty args returns unchanged",
			args:     []string{},
			expected: []string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := reorderArgs(tt.args); !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("reorderArgs() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	origWd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(origWd) })
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
}

func TestLoadConfig_prefersCwdConfigWhenDefaultPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
debug: true
server:
  host: "localhost"
  port: 8080
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	chdir(t, dir)

	cfg, resolved, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	// On macOS, cwd can be /private/var/... while t.TempDir() is /var/...; compare canonical paths.
	resolvedCanon, _ := filepath.EvalSymlinks(resolved)
	configPathCanon, _ := filepath.EvalSymlinks(configPath)
	if resolvedCanon != configPathCanon {
		t.Errorf("resolved path = %s, want %s", resolved, configPath)
	}
	if !cfg.Debug {
		t.Error("debug should be true from cwd config.yaml")
	}
}

func TestLoadConfig_defaultsWhenNoFile(t *testing.T) {
	if _, err := os.Stat(defaultConfigPath); err == nil {
		t.Skip("system config present")
	}
	chdir(t, t.TempDir())
	cfg, resolved, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != "" || cfg.Server.Port != 8080 || cfg.Retrieval.TopK != 7 {
		t.Errorf("resolved=%q cfg=%+v", resolved, cfg.Server)
	}
}

func TestLoadConfig_usesExplicitPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9000
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != configPath {
		t.Errorf("resolved path = %s, want %s", resolved, configPath)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if !filepath.IsAbs(cfg.Storage.DatabasePath) {
		t.Errorf("database path not expanded: %s", cfg.Storage.DatabasePath)
	}
}

func TestClient_UploadFailedRecordIsReturned(t *testing.T) {
	var gotAuth, gotName string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, header, err := r.FormFile("resume")
		if err == nil {
			gotName = header.Filename
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(models.Resume{ID: "r1", Status: models.StatusFailed, Error: "no text"})
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "scan.pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.4"), 0600); err != nil {
		t.Fatal(err)
	}
	rec, err := newClient(srv.URL+"/", "tok").Upload(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Status != models.StatusFailed || rec.Error != "no text" {
		t.Errorf("record = %+v", rec)
	}
	if gotAuth != "Bearer tok" || gotName != "scan.pdf" {
		t.Errorf("auth=%q name=%q", gotAuth, gotName)
	}
}

func TestClient_ErrorCarriesServerMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid token"}`))
	}))
	defer srv.Close()

	_, err := newClient(srv.URL, "bad").Ask(context.Background(), "q", "", 0)
	if err == nil || !strings.Contains(err.Error(), "401") || !strings.Contains(err.Error(), "invalid token") {
		t.Errorf("err = %v", err)
	}
}

func TestClient_AskAndResumes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/v1/ask":
			var req models.AskRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			_ = json.NewEncoder(w).Encode(models.Answer{Question: req.Question, Answer: "yes:" + req.ResumeID, Sources: req.TopK})
		case "/api/v1/resumes":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"resumes": []models.Resume{{ID: "r1"}, {ID: "r2"}}})
		case "/api/v1/search":
			var req models.AskRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			_ = json.NewEncoder(w).Encode(models.QueryResult{Query: req.Question, Matches: []*models.Match{{ID: req.ResumeID + "-chunk-0", Score: 0.5}}})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()
	c := newClient(srv.URL, "")

	answer, err := c.Ask(context.Background(), "Go?", "r1", 3)
	if err != nil {
		t.Fatal(err)
	}
	if answer.Answer != "yes:r1" || answer.Sources != 3 {
		t.Errorf("answer = %+v", answer)
	}
	list, err := c.Resumes(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[1].ID != "r2" {
		t.Errorf("list = %+v", list)
	}
	result, err := c.Search(context.Background(), "Go?", "r1", 3)
	if err != nil {
		t.Fatal(err)
	}
	if result.Query != "Go?" || len(result.Matches) != 1 || result.Matches[0].ID != "r1-chunk-0" {
		t.Errorf("search = %+v", result)
	}
}
