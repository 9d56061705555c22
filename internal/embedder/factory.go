package embedder

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/Hybrid-Search-Platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Hybrid-Search-Platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Hybrid-Search-Platform/pkg/resilience"
)

// FromConfig assembles provider, optional redis cache and Adapter. kv may
// be nil, in which case caching is skipped even when enabled.
func FromConfig(cfg *config.Config, kv KV, m *metrics.Metrics) (*Adapter, error) {
	var provider Embedder
	switch cfg.Embedder.Provider {
	case "", "hash":
		provider = NewHashEmbedder(cfg.Embedder.Dimension)
	case "http":
		breaker := resilience.NewCircuitBreaker("embedder", resilience.CircuitBreakerConfig{
			OnStateChange: func(name string, _, to resilience.State) {
				m.SetBreakerState(name, int(to))
			},
		})
		provider = NewHTTPEmbedder(cfg.Embedder, breaker)
	default:
		return nil, fmt.Errorf("unknown embedder provider %q", cfg.Embedder.Provider)
	}

	if cfg.Embedder.CacheEnabled && kv != nil {
		provider = NewCachedEmbedder(provider, kv, CacheOptions{
			Model:       cfg.Embedder.Model,
			TTL:         cfg.Redis.CacheTTL,
			CallTimeout: cfg.Embedder.Timeout,
			Metrics:     m,
		})
	}

	return NewAdapter(provider, Options{
		Timeout:    cfg.Embedder.Timeout,
		Retries:    cfg.Embedder.Retries,
		RetryDelay: cfg.Embedder.RetryDelay,
		Metrics:    m,
	}), nil
}
