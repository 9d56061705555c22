// Package vectorindex stores documents as paired sparse and dense vectors
// and answers hybrid queries. Every backend scores with the same Fusion
// arithmetic, so rankings do not depend on where the records live.
package vectorindex

import (
	"context"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/Hybrid-Search-Platform/internal/lexical"
	apperrors "github.com/Adithya-Monish-Kumar-K/Hybrid-Search-Platform/pkg/errors"
)

type Metric string

const (
	MetricDotProduct Metric = "dotproduct"
	MetricCosine     Metric = "cosine"
)

func ParseMetric(s string) (Metric, error) {
	switch Metric(s) {
	case "", MetricDotProduct:
		return MetricDotProduct, nil
	case MetricCosine:
		return MetricCosine, nil
	}
	return "", apperrors.Newf("parse metric", apperrors.ErrInvalidInput, "unknown metric %q", s)
}

// Handle identifies an index created by EnsureIndex.
type Handle struct {
	Name      string
	Dimension int
	Metric    Metric
}

type Record struct {
	ID      string
	Sparse  lexical.SparseVector
	Dense   []float32
	Payload string
}

type Hit struct {
	ID      string  `json:"id"`
	Score   float64 `json:"score"`
	Payload string  `json:"payload,omitempty"`
}

// Index is the contract every backend satisfies.
type Index interface {
	// EnsureIndex creates the named index or returns the existing one. An
	// existing index with another dimension yields ErrDimensionMismatch.
	EnsureIndex(ctx context.Context, name string, dim int, metric Metric) (Handle, error)
	// Upsert inserts or replaces records by ID. The batch is validated as a
	// whole before anything is written.
	Upsert(ctx context.Context, h Handle, records []Record) error
	Query(ctx context.Context, h Handle, sparse lexical.SparseVector, dense []float32, alpha float64, topK int) ([]Hit, error)
	Count(ctx context.Context, h Handle) (int, error)
}

// ValidateBatch checks every record against the handle and reports the
// first offender as ErrInvalidRecord.
func ValidateBatch(h Handle, records []Record) error {
	for i, r := range records {
		if err := validateRecord(h, r); err != nil {
			id := r.ID
			if id == "" {
				id = fmt.Sprintf("#%d", i)
			}
			return apperrors.ForID("upsert", id, apperrors.ErrInvalidRecord, "%v", err)
		}
	}
	return nil
}

func validateRecord(h Handle, r Record) error {
	if r.ID == "" {
		return fmt.Errorf("empty id")
	}
	if len(r.Dense) != h.Dimension {
		return fmt.Errorf("dense length %d, index dimension %d", len(r.Dense), h.Dimension)
	}
	for i, v := range r.Dense {
		if !finite(float64(v)) {
			return fmt.Errorf("dense value %d is not finite", i)
		}
	}
	return r.Sparse.Validate()
}

func cloneRecord(r Record) Record {
	out := r
	out.Dense = append([]float32(nil), r.Dense...)
	out.Sparse = lexical.SparseVector{
		Indices: append([]uint32(nil), r.Sparse.Indices...),
		Values:  append([]float32(nil), r.Sparse.Values...),
	}
	return out
}
