package vectorindex

import (
	"context"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/Hybrid-Search-Platform/internal/lexical"
	apperrors "github.com/Adithya-Monish-Kumar-K/Hybrid-Search-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Hybrid-Search-Platform/pkg/metrics"
)

// MemoryIndex is a brute-force in-process backend.
type MemoryIndex struct {
	mu      sync.RWMutex
	indexes map[string]*memoryNamespace
	metrics *metrics.Metrics
}

type memoryNamespace struct {
	handle  Handle
	records map[string]Record
}

func NewMemoryIndex(m *metrics.Metrics) *MemoryIndex {
	return &MemoryIndex{
		indexes: make(map[string]*memoryNamespace),
		metrics: m,
	}
}

func (m *MemoryIndex) EnsureIndex(ctx context.Context, name string, dim int, metric Metric) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return Handle{}, err
	}
	if name == "" || dim <= 0 {
		return Handle{}, apperrors.Newf("ensure index", apperrors.ErrInvalidInput, "name %q dimension %d", name, dim)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if ns, ok := m.indexes[name]; ok {
		if ns.handle.Dimension != dim {
			return Handle{}, apperrors.Newf("ensure index", apperrors.ErrDimensionMismatch,
				"index %q has dimension %d, requested %d", name, ns.handle.Dimension, dim)
		}
		return ns.handle, nil
	}
	h := Handle{Name: name, Dimension: dim, Metric: metric}
	m.indexes[name] = &memoryNamespace{handle: h, records: make(map[string]Record)}
	return h, nil
}

func (m *MemoryIndex) Upsert(ctx context.Context, h Handle, records []Record) error {
	err := m.upsert(ctx, h, records)
	m.metrics.ObserveUpsert(len(records), err)
	return err
}

func (m *MemoryIndex) upsert(ctx context.Context, h Handle, records []Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ns, err := m.namespace(h)
	if err != nil {
		return err
	}
	if err := ValidateBatch(ns.handle, records); err != nil {
		return err
	}
	for _, r := range records {
		ns.records[r.ID] = cloneRecord(r)
	}
	return nil
}

func (m *MemoryIndex) Query(ctx context.Context, h Handle, sparse lexical.SparseVector, dense []float32, alpha float64, topK int) ([]Hit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ns, err := m.namespace(h)
	if err != nil {
		return nil, err
	}
	fusion, err := Fuse(ns.handle, sparse, dense, alpha)
	if err != nil {
		return nil, err
	}
	top, err := newCollector(topK)
	if err != nil {
		return nil, err
	}
	for _, r := range ns.records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		top.push(Hit{ID: r.ID, Score: fusion.Score(r), Payload: r.Payload})
	}
	return top.results(), nil
}

func (m *MemoryIndex) Count(ctx context.Context, h Handle) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ns, err := m.namespace(h)
	if err != nil {
		return 0, err
	}
	return len(ns.records), nil
}

// namespace resolves h; callers hold m.mu.
func (m *MemoryIndex) namespace(h Handle) (*memoryNamespace, error) {
	ns, ok := m.indexes[h.Name]
	if !ok {
		return nil, apperrors.Newf("index", apperrors.ErrNotFound, "index %q", h.Name)
	}
	if ns.handle.Dimension != h.Dimension {
		return nil, apperrors.Newf("index", apperrors.ErrDimensionMismatch,
			"handle dimension %d, index %q has %d", h.Dimension, h.Name, ns.handle.Dimension)
	}
	return ns, nil
}
