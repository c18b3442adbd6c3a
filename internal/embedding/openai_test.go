package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hyperjump/mensetsu/internal/models"
)

func TestOpenAIEmbedder_EmbedBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer k" {
			t.Errorf("Authorization = %q", got)
		}
		var req openAIRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if req.Model != "local-model" || len(req.Input) != 2 {
			t.Errorf("request = %+v", req)
		}
		// Reply out of order to check index handling.
		_, _ = w.Write([]byte(`{"data":[{"index":1,"embedding":[0,1,0]},{"index":0,"embedding":[1,0,0]}]}`))
	}))
	defer srv.Close()

	e, err := NewOpenAIEmbedder(OpenAIConfig{APIKey: "k", BaseURL: srv.URL + "/v1/", Model: "local-model", Dimensions: 3})
	if err != nil {
		t.Fatal(err)
	}
	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatal(err)
	}
	if vecs[0][0] != 1 || vecs[1][1] != 1 {
		t.Errorf("vectors out of order: %v", vecs)
	}
}

func TestOpenAIEmbedder_errors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		retryable bool
	}{
		{"rate limited", http.StatusTooManyRequests, `{"error":{"message":"slow"}}`, true},
		{"bad request", http.StatusBadRequest, `{"error":{"message":"bad"}}`, false},
		{"wrong dimensions", http.StatusOK, `{"data":[{"index":0,"embedding":[1,2]}]}`, false},
		{"missing data", http.StatusOK, `{"data":[]}`, false},
		{"api error", http.StatusOK, `{"data":[],"error":{"type":"invalid","message":"nope"}}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()
			e, err := NewOpenAIEmbedder(OpenAIConfig{BaseURL: srv.URL, Model: "m", Dimensions: 3})
			if err != nil {
				t.Fatal(err)
			}
			_, err = e.Embed(context.Background(), "x")
			if !errors.Is(err, models.ErrEmbedding) {
				t.Fatalf("expected ErrEmbedding, got %v", err)
			}
			if IsRetryable(err) != tt.retryable {
				t.Errorf("IsRetryable(%v) = %v, want %v", err, !tt.retryable, tt.retryable)
			}
		})
	}
}

func TestNewOpenAIEmbedder_config(t *testing.T) {
	if _, err := NewOpenAIEmbedder(OpenAIConfig{}); !errors.Is(err, models.ErrConfig) {
		t.Errorf("missing key for hosted API: %v", err)
	}
	if _, err := NewOpenAIEmbedder(OpenAIConfig{BaseURL: "http://localhost:1", Model: "custom"}); !errors.Is(err, models.ErrConfig) {
		t.Errorf("unknown model without dimensions: %v", err)
	}
	e, err := NewOpenAIEmbedder(OpenAIConfig{APIKey: "k"})
	if err != nil {
		t.Fatal(err)
	}
	if e.Dimensions() != 1536 {
		t.Errorf("default dimensions = %d", e.Dimensions())
	}
}
