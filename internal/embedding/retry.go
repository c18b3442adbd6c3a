package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/hyperjump/mensetsu/internal/models"
)

// RetryConfig configures retries and client-side rate limiting for embedding calls.
type RetryConfig struct {
	MaxAttempts       int           // total attempts per call, including the first
	InitialDelay      time.Duration // delay before the second attempt
	MaxDelay          time.Duration // cap for exponential growth
	RequestsPerSecond float64       // 0 disables rate limiting
	Burst             int
}

// DefaultRetryConfig returns the retry settings used when none are configured.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialDelay:      500 * time.Millisecond,
		MaxDelay:          10 * time.Second,
		RequestsPerSecond: 0,
		Burst:             1,
	}
}

// RetryEmbedder retries transient embedding failures with exponential backoff and paces
// requests with a token bucket. Embedding is idempotent, so repeating a call is safe.
type RetryEmbedder struct {
	inner   Embedder
	config  RetryConfig
	limiter *rate.Limiter
	logger  *zap.Logger
}

// RetryOption configures a RetryEmbedder.
type RetryOption func(*RetryEmbedder)

// WithRetryLogger logs each retried attempt.
func WithRetryLogger(l *zap.Logger) RetryOption {
	return func(r *RetryEmbedder) { r.logger = l }
}

// NewRetryEmbedder wraps inner.
func NewRetryEmbedder(inner Embedder, cfg RetryConfig, opts ...RetryOption) *RetryEmbedder {
	def := DefaultRetryConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = def.InitialDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = def.MaxDelay
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	r := &RetryEmbedder{
		inner:   inner,
		config:  cfg,
		limiter: rate.NewLimiter(limit, cfg.Burst),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Embed embeds text, retrying transient failures.
func (r *RetryEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return retry(ctx, r, func() ([]float32, error) { return r.inner.Embed(ctx, text) })
}

// EmbedBatch embeds texts, retrying the whole batch on transient failures.
func (r *RetryEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return retry(ctx, r, func() ([][]float32, error) { return r.inner.EmbedBatch(ctx, texts) })
}

func retry[T any](ctx context.Context, r *RetryEmbedder, call func() (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.config.InitialDelay
	b.MaxInterval = r.config.MaxDelay

	attempt := 0
	op := func() (T, error) {
		attempt++
		var zero T
		if err := r.limiter.Wait(ctx); err != nil {
			return zero, backoff.Permanent(fmt.Errorf("%w: rate limiter: %w", models.ErrEmbedding, err))
		}
		v, err := call()
		if err == nil {
			return v, nil
		}
		if !IsRetryable(err) {
			return zero, backoff.Permanent(err)
		}
		return zero, err
	}
	notify := func(err error, next time.Duration) {
		if r.logger != nil {
			r.logger.Debug("embedding retry",
				zap.Int("attempt", attempt),
				zap.Duration("next", next),
				zap.Error(err))
		}
	}
	v, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(r.config.MaxAttempts)),
		backoff.WithNotify(notify),
	)
	if err != nil && !errors.Is(err, models.ErrEmbedding) {
		err = fmt.Errorf("%w: %w", models.ErrEmbedding, err)
	}
	return v, err
}

// IsRetryable reports whether err is worth another attempt: rate limiting, server errors,
// and per-attempt timeouts are; cancellations, configuration errors and malformed
// responses are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, models.ErrConfig) {
		return false
	}
	var temp interface{ Temporary() bool }
	if errors.As(err, &temp) {
		return temp.Temporary()
	}
	if st, ok := status.FromError(err); ok && st.Code() != codes.OK && st.Code() != codes.Unknown {
		switch st.Code() {
		case codes.Unavailable, codes.ResourceExhausted, codes.DeadlineExceeded, codes.Aborted, codes.Internal:
			return true
		default:
			return false
		}
	}
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrTransient)
}

// ErrTransient marks an adapter failure as retryable.
var ErrTransient = errors.New("transient embedding failure")

// Dimensions returns the inner embedder's dimension.
func (r *RetryEmbedder) Dimensions() int { return r.inner.Dimensions() }

// Close closes the inner embedder.
func (r *RetryEmbedder) Close() error { return r.inner.Close() }
