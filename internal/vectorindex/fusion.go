package vectorindex

import (
	"math"

	"github.com/Adithya-Monish-Kumar-K/Hybrid-Search-Platform/internal/lexical"
	apperrors "github.com/Adithya-Monish-Kumar-K/Hybrid-Search-Platform/pkg/errors"
)

// Fusion is a query prepared for convex hybrid scoring. The dense query is
// scaled by alpha and the sparse query by 1-alpha, so a record scores
//
//	sim(alpha*q_dense, d) + dot((1-alpha)*q_sparse, s)
//
// Stored records are only read. Under the cosine metric the dense term is
// alpha*cos(q_dense, d), since cosine alone would cancel the scaling.
type Fusion struct {
	alpha     float64
	metric    Metric
	sparse    lexical.SparseVector
	dense     []float32
	denseNorm float64
}

// Fuse validates a query against h and prepares its scaled form.
func Fuse(h Handle, sparse lexical.SparseVector, dense []float32, alpha float64) (*Fusion, error) {
	if math.IsNaN(alpha) || alpha < 0 || alpha > 1 {
		return nil, apperrors.Newf("query", apperrors.ErrInvalidInput, "alpha %v outside [0, 1]", alpha)
	}
	if len(dense) != h.Dimension {
		return nil, apperrors.Newf("query", apperrors.ErrDimensionMismatch, "query dense length %d, index dimension %d", len(dense), h.Dimension)
	}
	if err := sparse.Validate(); err != nil {
		return nil, apperrors.Newf("query", apperrors.ErrInvalidInput, "%v", err)
	}

	f := &Fusion{
		alpha:  alpha,
		metric: h.Metric,
		sparse: sparse.Scale(float32(1 - alpha)),
		dense:  make([]float32, len(dense)),
	}
	for i, v := range dense {
		if !finite(float64(v)) {
			return nil, apperrors.Newf("query", apperrors.ErrInvalidInput, "query dense value %d is not finite", i)
		}
		if f.metric == MetricCosine {
			f.dense[i] = v
		} else {
			f.dense[i] = float32(alpha) * v
		}
		f.denseNorm += float64(v) * float64(v)
	}
	f.denseNorm = math.Sqrt(f.denseNorm)
	return f, nil
}

// Score returns the fused similarity of r to the query.
func (f *Fusion) Score(r Record) float64 {
	return f.denseScore(r.Dense) + f.sparse.Dot(r.Sparse)
}

func (f *Fusion) denseScore(d []float32) float64 {
	var dot, norm float64
	for i, v := range d {
		dot += float64(f.dense[i]) * float64(v)
		norm += float64(v) * float64(v)
	}
	if f.metric != MetricCosine {
		return dot
	}
	if f.denseNorm == 0 || norm == 0 {
		return 0
	}
	return f.alpha * dot / (f.denseNorm * math.Sqrt(norm))
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
