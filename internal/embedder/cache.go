package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	apperrors "github.com/Adithya-Monish-Kumar-K/Hybrid-Search-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Hybrid-Search-Platform/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Hybrid-Search-Platform/pkg/redis"
)

const cacheKeyPrefix = "embed:"

// KV is the slice of the redis client the cache needs.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) (int64, error)
}

// CacheOptions configures a CachedEmbedder. CallTimeout bounds a shared
// provider call; zero leaves it to the provider's own limits.
type CacheOptions struct {
	Model       string
	TTL         time.Duration
	CallTimeout time.Duration
	Metrics     *metrics.Metrics
}

// CachedEmbedder memoises vectors in redis, keyed by model and text hash.
// Concurrent misses for the same text share one provider call, which runs
// detached from any single caller's cancellation. Cache failures degrade to
// a direct call.
type CachedEmbedder struct {
	inner   Embedder
	kv      KV
	opts    CacheOptions
	group   singleflight.Group
	logger  *slog.Logger
	metrics *metrics.Metrics
	hits    atomic.Int64
	misses  atomic.Int64
}

func NewCachedEmbedder(inner Embedder, kv KV, opts CacheOptions) *CachedEmbedder {
	return &CachedEmbedder{
		inner:   inner,
		kv:      kv,
		opts:    opts,
		logger:  slog.Default().With("component", "embed-cache"),
		metrics: opts.Metrics,
	}
}

func (c *CachedEmbedder) Dimension() int {
	return c.inner.Dimension()
}

func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.buildKey(text)
	if vec, ok := c.get(ctx, key); ok {
		return vec, nil
	}
	ch := c.group.DoChan(key, func() (interface{}, error) {
		shared, cancel := c.sharedContext(ctx)
		defer cancel()
		if vec, ok := c.get(shared, key); ok {
			return vec, nil
		}
		vec, err := c.inner.Embed(shared, text)
		if err != nil {
			if errors.Is(shared.Err(), context.DeadlineExceeded) {
				return nil, apperrors.Newf("embed", apperrors.ErrTimeout, "shared call limit %v: %v", c.opts.CallTimeout, err)
			}
			return nil, err
		}
		c.set(shared, key, vec)
		return vec, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if res.Err != nil {
		return nil, res.Err
	}
	vec := res.Val.([]float32)
	out := make([]float32, len(vec))
	copy(out, vec)
	return out, nil
}

// sharedContext keeps the values of the caller that started the call but
// not its cancellation, since other callers may be waiting on the result.
func (c *CachedEmbedder) sharedContext(ctx context.Context) (context.Context, context.CancelFunc) {
	base := context.WithoutCancel(ctx)
	if c.opts.CallTimeout > 0 {
		return context.WithTimeout(base, c.opts.CallTimeout)
	}
	return context.WithCancel(base)
}

// Invalidate drops every cached vector for this model.
func (c *CachedEmbedder) Invalidate(ctx context.Context) error {
	deleted, err := c.kv.DeleteByPattern(ctx, cacheKeyPrefix+c.opts.Model+":*")
	if err != nil {
		return fmt.Errorf("invalidating embedding cache: %w", err)
	}
	c.logger.Info("cache invalidated", "model", c.opts.Model, "keys_deleted", deleted)
	return nil
}

func (c *CachedEmbedder) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *CachedEmbedder) get(ctx context.Context, key string) ([]float32, bool) {
	data, err := c.kv.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsMiss(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.miss()
		return nil, false
	}
	vec, ok := decodeFloats([]byte(data))
	if !ok || len(vec) != c.inner.Dimension() {
		c.logger.Warn("discarding malformed cache entry", "key", key, "bytes", len(data))
		c.miss()
		return nil, false
	}
	c.hits.Add(1)
	c.metrics.ObserveCache(true)
	return vec, true
}

func (c *CachedEmbedder) set(ctx context.Context, key string, vec []float32) {
	if err := c.kv.Set(ctx, key, encodeFloats(vec), c.opts.TTL); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

func (c *CachedEmbedder) miss() {
	c.misses.Add(1)
	c.metrics.ObserveCache(false)
}

func (c *CachedEmbedder) buildKey(text string) string {
	hash := sha256.Sum256([]byte(text))
	return fmt.Sprintf("%s%s:%x", cacheKeyPrefix, c.opts.Model, hash[:16])
}

func encodeFloats(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

func decodeFloats(buf []byte) ([]float32, bool) {
	if len(buf)%4 != 0 {
		return nil, false
	}
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return vec, true
}
