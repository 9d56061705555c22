package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/Adithya-Monish-Kumar-K/Hybrid-Search-Platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Hybrid-Search-Platform/pkg/resilience"
)

const maxResponseBytes = 16 << 20

// HTTPEmbedder calls a hosted feature-extraction endpoint. Outbound calls
// are paced by a token bucket and guarded by a circuit breaker.
type HTTPEmbedder struct {
	url     string
	apiKey  string
	model   string
	dim     int
	client  *http.Client
	limiter *rate.Limiter
	breaker *resilience.CircuitBreaker
	logger  *slog.Logger
}

// NewHTTPEmbedder builds a provider from cfg. A nil breaker disables
// circuit breaking; a zero RatePerSecond disables pacing.
func NewHTTPEmbedder(cfg config.EmbedderConfig, breaker *resilience.CircuitBreaker) *HTTPEmbedder {
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &HTTPEmbedder{
		url:     cfg.URL,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		dim:     cfg.Dimension,
		client:  &http.Client{Transport: http.DefaultTransport},
		limiter: rate.NewLimiter(limit, burst),
		breaker: breaker,
		logger:  slog.Default().With("component", "http-embedder", "model", cfg.Model),
	}
}

func (e *HTTPEmbedder) Dimension() int {
	return e.dim
}

func (e *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	var vec []float32
	call := func(ctx context.Context) error {
		v, err := e.post(ctx, text)
		vec = v
		return err
	}
	var err error
	if e.breaker != nil {
		err = e.breaker.Execute(ctx, call)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return nil, err
	}
	return vec, nil
}

func (e *HTTPEmbedder) post(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(map[string]any{
		"inputs":  text,
		"options": map[string]bool{"wait_for_model": true},
	})
	if err != nil {
		return nil, Permanent(fmt.Errorf("encoding request: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return nil, Permanent(fmt.Errorf("building request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	start := time.Now()
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading embedding response: %w", err)
	}
	e.logger.Debug("embedding response", "status", resp.StatusCode, "bytes", len(data), "latency", time.Since(start))

	if resp.StatusCode/100 != 2 {
		err := fmt.Errorf("embedding http %d: %s", resp.StatusCode, truncate(data, 256))
		if resp.StatusCode/100 == 4 && resp.StatusCode != http.StatusTooManyRequests && resp.StatusCode != http.StatusRequestTimeout {
			return nil, Permanent(err)
		}
		return nil, err
	}
	return decodeVector(data)
}

// decodeVector accepts a flat vector, a single-row batch, or an
// OpenAI-style {"data":[{"embedding":[...]}]} envelope.
func decodeVector(data []byte) ([]float32, error) {
	var flat []float32
	if err := json.Unmarshal(data, &flat); err == nil {
		return flat, nil
	}
	var batch [][]float32
	if err := json.Unmarshal(data, &batch); err == nil {
		if len(batch) != 1 {
			return nil, Permanent(fmt.Errorf("embedding response holds %d rows, want 1", len(batch)))
		}
		return batch[0], nil
	}
	var envelope struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &envelope); err == nil && len(envelope.Data) == 1 {
		return envelope.Data[0].Embedding, nil
	}
	return nil, Permanent(fmt.Errorf("unrecognised embedding response: %s", truncate(data, 128)))
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
