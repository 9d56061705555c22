package embedder

import (
	"context"
	"errors"
	"path"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/Hybrid-Search-Platform/pkg/errors"
)

type memoryKV struct {
	mu      sync.Mutex
	data    map[string]string
	failGet bool
}

func newMemoryKV() *memoryKV {
	return &memoryKV{data: make(map[string]string)}
}

func (m *memoryKV) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet {
		return "", errors.New("connection refused")
	}
	v, ok := m.data[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (m *memoryKV) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch v := value.(type) {
	case []byte:
		m.data[key] = string(v)
	case string:
		m.data[key] = v
	}
	return nil
}

func (m *memoryKV) DeleteByPattern(_ context.Context, pattern string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k := range m.data {
		if ok, _ := path.Match(pattern, k); ok {
			delete(m.data, k)
			n++
		}
	}
	return n, nil
}

func TestCachedEmbedderHitsAfterFirstCall(t *testing.T) {
	kv := newMemoryKV()
	p := &scripted{dim: 3, fn: func(context.Context, int) ([]float32, error) {
		return []float32{0.5, -1, 2}, nil
	}}
	c := NewCachedEmbedder(p, kv, CacheOptions{Model: "m1", TTL: time.Minute})

	first, err := c.Embed(context.Background(), "query")
	require.NoError(t, err)
	second, err := c.Embed(context.Background(), "query")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, p.calls.Load())
	hits, misses := c.Stats()
	assert.EqualValues(t, 1, hits)
	assert.GreaterOrEqual(t, misses, int64(1))
}

func TestCachedEmbedderSharesConcurrentMisses(t *testing.T) {
	release := make(chan struct{})
	p := &scripted{dim: 2, fn: func(context.Context, int) ([]float32, error) {
		<-release
		return []float32{1, 2}, nil
	}}
	c := NewCachedEmbedder(p, newMemoryKV(), CacheOptions{Model: "m1", TTL: time.Minute})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			vec, err := c.Embed(context.Background(), "same text")
			assert.NoError(t, err)
			assert.Equal(t, []float32{1, 2}, vec)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	assert.EqualValues(t, 1, p.calls.Load())
}

func TestCachedEmbedderDegradesOnCacheFailure(t *testing.T) {
	kv := newMemoryKV()
	kv.failGet = true
	p := &scripted{dim: 2, fn: func(context.Context, int) ([]float32, error) { return []float32{1, 2}, nil }}
	c := NewCachedEmbedder(p, kv, CacheOptions{Model: "m1", TTL: time.Minute})

	for i := 0; i < 2; i++ {
		vec, err := c.Embed(context.Background(), "q")
		require.NoError(t, err)
		assert.Equal(t, []float32{1, 2}, vec)
	}
	assert.EqualValues(t, 2, p.calls.Load())
}

func TestCachedEmbedderDiscardsMalformedEntry(t *testing.T) {
	kv := newMemoryKV()
	p := &scripted{dim: 2, fn: func(context.Context, int) ([]float32, error) { return []float32{1, 2}, nil }}
	c := NewCachedEmbedder(p, kv, CacheOptions{Model: "m1", TTL: time.Minute})
	kv.data[c.buildKey("q")] = "abc"

	vec, err := c.Embed(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2}, vec)
	assert.EqualValues(t, 1, p.calls.Load())
}

func TestCachedEmbedderInvalidate(t *testing.T) {
	kv := newMemoryKV()
	p := &scripted{dim: 2, fn: func(context.Context, int) ([]float32, error) { return []float32{1, 2}, nil }}
	c := NewCachedEmbedder(p, kv, CacheOptions{Model: "m1", TTL: time.Minute})
	kv.data["embed:other:abc"] = "keep"

	_, err := c.Embed(context.Background(), "q")
	require.NoError(t, err)
	require.NoError(t, c.Invalidate(context.Background()))

	assert.Len(t, kv.data, 1)
	_, err = c.Embed(context.Background(), "q")
	require.NoError(t, err)
	assert.EqualValues(t, 2, p.calls.Load())
}

func TestFloatCodec(t *testing.T) {
	in := []float32{0, -1.5, 3.25, 1e-7}
	out, ok := decodeFloats(encodeFloats(in))
	require.True(t, ok)
	assert.Equal(t, in, out)
	_, ok = decodeFloats([]byte{1, 2, 3})
	assert.False(t, ok)
}

func TestCachedEmbedderCallerCancelLeavesSharedCallRunning(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once
	p := &scripted{dim: 2, fn: func(ctx context.Context, _ int) ([]float32, error) {
		once.Do(func() { close(started) })
		select {
		case <-release:
			return []float32{1, 0}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}}
	c := NewCachedEmbedder(p, newMemoryKV(), CacheOptions{Model: "m1", TTL: time.Minute, CallTimeout: 5 * time.Second})

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.Embed(firstCtx, "shared")
		firstErr <- err
	}()
	<-started

	type result struct {
		vec []float32
		err error
	}
	second := make(chan result, 1)
	go func() {
		vec, err := c.Embed(context.Background(), "shared")
		second <- result{vec, err}
	}()

	cancelFirst()
	assert.ErrorIs(t, <-firstErr, context.Canceled)
	close(release)

	got := <-second
	require.NoError(t, got.err)
	assert.Equal(t, []float32{1, 0}, got.vec)
	assert.EqualValues(t, 1, p.calls.Load())
}

func TestCachedEmbedderSharedCallTimeout(t *testing.T) {
	p := &scripted{dim: 2, fn: func(ctx context.Context, _ int) ([]float32, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	c := NewCachedEmbedder(p, newMemoryKV(), CacheOptions{Model: "m1", CallTimeout: 10 * time.Millisecond})

	_, err := c.Embed(context.Background(), "q")
	assert.ErrorIs(t, err, apperrors.ErrTimeout)
}

func TestAdapterInvalidate(t *testing.T) {
	kv := newMemoryKV()
	p := &scripted{dim: 2, fn: func(context.Context, int) ([]float32, error) { return []float32{1, 2}, nil }}
	a := NewAdapter(NewCachedEmbedder(p, kv, CacheOptions{Model: "m1", TTL: time.Minute}), Options{})

	_, err := a.Embed(context.Background(), "q")
	require.NoError(t, err)
	require.Len(t, kv.data, 1)

	cached, err := a.Invalidate(context.Background())
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Empty(t, kv.data)

	cached, err = NewAdapter(NewHashEmbedder(8), Options{}).Invalidate(context.Background())
	require.NoError(t, err)
	assert.False(t, cached)
}
