package lexical

import (
	"fmt"
	"math"

	"github.com/cespare/xxhash/v2"
)

// SparseVector holds term weights as parallel slices. Indices are strictly
// increasing and every value is finite and non-negative.
type SparseVector struct {
	Indices []uint32  `json:"indices"`
	Values  []float32 `json:"values"`
}

// TermIndex maps a term to its sparse dimension. The mapping depends only on
// the term, so it is stable across fits and processes.
func TermIndex(term string) uint32 {
	return uint32(xxhash.Sum64String(term))
}

func (v SparseVector) Len() int { return len(v.Indices) }

func (v SparseVector) IsEmpty() bool { return len(v.Indices) == 0 }

// Scale returns a copy with every weight multiplied by f.
func (v SparseVector) Scale(f float32) SparseVector {
	out := SparseVector{
		Indices: append([]uint32(nil), v.Indices...),
		Values:  make([]float32, len(v.Values)),
	}
	for i, val := range v.Values {
		out.Values[i] = val * f
	}
	return out
}

// Dot is a merge join over the two sorted index lists.
func (v SparseVector) Dot(other SparseVector) float64 {
	var sum float64
	i, j := 0, 0
	for i < len(v.Indices) && j < len(other.Indices) {
		switch {
		case v.Indices[i] == other.Indices[j]:
			sum += float64(v.Values[i]) * float64(other.Values[j])
			i++
			j++
		case v.Indices[i] < other.Indices[j]:
			i++
		default:
			j++
		}
	}
	return sum
}

// Validate checks the structural invariants.
func (v SparseVector) Validate() error {
	if len(v.Indices) != len(v.Values) {
		return fmt.Errorf("sparse vector has %d indices but %d values", len(v.Indices), len(v.Values))
	}
	for i, val := range v.Values {
		if i > 0 && v.Indices[i] <= v.Indices[i-1] {
			return fmt.Errorf("sparse indices not strictly increasing at position %d", i)
		}
		if val < 0 || math.IsNaN(float64(val)) || math.IsInf(float64(val), 0) {
			return fmt.Errorf("sparse value %v at index %d is not a finite non-negative weight", val, v.Indices[i])
		}
	}
	return nil
}
