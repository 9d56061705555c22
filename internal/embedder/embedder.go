// Package embedder turns text into dense vectors. Providers implement
// Embedder; Adapter wraps any provider with a per-call deadline, bounded
// retry and output-length validation so callers see one error vocabulary.
package embedder

import (
	"context"
	"errors"
	"log/slog"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/Hybrid-Search-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Hybrid-Search-Platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Hybrid-Search-Platform/pkg/resilience"
)

// Embedder maps text to a dense vector of length Dimension().
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// permanentError marks a provider failure that a retry cannot fix.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so Adapter does not retry it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

type Options struct {
	Timeout    time.Duration
	Retries    int
	RetryDelay time.Duration
	Metrics    *metrics.Metrics
}

// Adapter enforces the embedding contract on top of a provider.
type Adapter struct {
	inner   Embedder
	opts    Options
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewAdapter(inner Embedder, opts Options) *Adapter {
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	return &Adapter{
		inner:   inner,
		opts:    opts,
		logger:  slog.Default().With("component", "embedder"),
		metrics: opts.Metrics,
	}
}

func (a *Adapter) Dimension() int {
	return a.inner.Dimension()
}

// Invalidator is implemented by providers that keep vectors around.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// Invalidate drops any vectors the provider has cached for the configured
// model, so the next ingest re-embeds every document. Providers without a
// cache report false.
func (a *Adapter) Invalidate(ctx context.Context) (bool, error) {
	inv, ok := a.inner.(Invalidator)
	if !ok {
		return false, nil
	}
	return true, inv.Invalidate(ctx)
}

// Embed calls the provider with up to 1+Retries attempts, each bounded by
// Timeout. Failures surface as ErrTimeout, ErrDimensionMismatch,
// ErrEmbeddingUnavailable or the caller's context error.
func (a *Adapter) Embed(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	var vec []float32
	err := resilience.Retry(ctx, "embed", resilience.RetryConfig{
		MaxAttempts:  1 + a.opts.Retries,
		InitialDelay: a.opts.RetryDelay,
		Retryable:    retryable,
	}, func(ctx context.Context) error {
		out, err := resilience.Call(ctx, a.opts.Timeout, "embed", func(ctx context.Context) ([]float32, error) {
			return a.inner.Embed(ctx, text)
		})
		if err != nil {
			return err
		}
		if want := a.inner.Dimension(); len(out) != want {
			return apperrors.Newf("embed", apperrors.ErrDimensionMismatch, "provider returned %d values, want %d", len(out), want)
		}
		vec = out
		return nil
	})
	if err != nil {
		err = a.classify(ctx, err)
		a.metrics.ObserveEmbed(outcome(err), time.Since(start))
		return nil, err
	}
	a.metrics.ObserveEmbed("ok", time.Since(start))
	return vec, nil
}

func (a *Adapter) classify(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, apperrors.ErrDimensionMismatch):
		return err
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return apperrors.Newf("embed", apperrors.ErrTimeout, "caller deadline: %v", err)
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, apperrors.ErrTimeout):
		return err
	default:
		a.logger.Warn("embedding provider unavailable", "error", err)
		return apperrors.Newf("embed", apperrors.ErrEmbeddingUnavailable, "%v", err)
	}
}

func retryable(err error) bool {
	var perm *permanentError
	switch {
	case errors.As(err, &perm):
		return false
	case errors.Is(err, apperrors.ErrDimensionMismatch):
		return false
	case errors.Is(err, context.Canceled):
		return false
	}
	return true
}

func outcome(err error) string {
	switch {
	case errors.Is(err, apperrors.ErrTimeout):
		return "timeout"
	case errors.Is(err, apperrors.ErrDimensionMismatch):
		return "invalid"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "retry_exhausted"
	}
}
