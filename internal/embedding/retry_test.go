package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/hyperjump/mensetsu/internal/models"
)

type flakyEmbedder struct {
	*MockEmbedder
	failures int
	err      error
	calls    int
}

func (f *flakyEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, f.err
	}
	return f.MockEmbedder.Embed(ctx, text)
}

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{MaxAttempts: attempts, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func TestRetryEmbedder_recoversFromTransientErrors(t *testing.T) {
	inner := &flakyEmbedder{
		MockEmbedder: NewMockEmbedder(4),
		failures:     2,
		err:          &StatusError{Code: http.StatusTooManyRequests, Body: "slow down"},
	}
	r := NewRetryEmbedder(inner, fastRetry(3))
	v, err := r.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(v) != 4 {
		t.Errorf("len = %d", len(v))
	}
	if inner.calls != 3 {
		t.Errorf("calls = %d, want 3", inner.calls)
	}
}

func TestRetryEmbedder_givesUpAfterMaxAttempts(t *testing.T) {
	inner := &flakyEmbedder{
		MockEmbedder: NewMockEmbedder(4),
		failures:     10,
		err:          &StatusError{Code: http.StatusBadGateway},
	}
	r := NewRetryEmbedder(inner, fastRetry(3))
	_, err := r.Embed(context.Background(), "hello")
	if !errors.Is(err, models.ErrEmbedding) {
		t.Fatalf("expected ErrEmbedding, got %v", err)
	}
	if inner.calls != 3 {
		t.Errorf("calls = %d, want 3", inner.calls)
	}
}

func TestRetryEmbedder_permanentErrorNotRetried(t *testing.T) {
	inner := &flakyEmbedder{
		MockEmbedder: NewMockEmbedder(4),
		failures:     10,
		err:          &StatusError{Code: http.StatusBadRequest, Body: "bad input"},
	}
	r := NewRetryEmbedder(inner, fastRetry(5))
	_, err := r.Embed(context.Background(), "hello")
	if !errors.Is(err, models.ErrEmbedding) {
		t.Fatalf("expected ErrEmbedding, got %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("calls = %d, want 1", inner.calls)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limited", &StatusError{Code: 429}, true},
		{"server error", &StatusError{Code: 503}, true},
		{"client error", &StatusError{Code: 401}, false},
		{"canceled", context.Canceled, false},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), true},
		{"transient", fmt.Errorf("%w: %w", models.ErrEmbedding, ErrTransient), true},
		{"config", models.ErrConfig, false},
		{"malformed", fmt.Errorf("%w: decode response", models.ErrEmbedding), false},
	}
	for _, tt := range tests {
		if got := IsRetryable(tt.err); got != tt.want {
			t.Errorf("%s: IsRetryable() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestRetryEmbedder_rateLimited(t *testing.T) {
	inner := NewMockEmbedder(4)
	r := NewRetryEmbedder(inner, RetryConfig{MaxAttempts: 1, RequestsPerSecond: 1000, Burst: 1})
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := r.Embed(ctx, "x"); err != nil {
			t.Fatal(err)
		}
	}
	ctx, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := r.Embed(ctx, "x"); !errors.Is(err, models.ErrEmbedding) {
		t.Errorf("cancelled context should fail with ErrEmbedding, got %v", err)
	}
}
