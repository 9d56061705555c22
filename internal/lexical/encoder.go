package lexical

import (
	"slices"
)

// Encoder turns text into BM25-weighted sparse vectors against fitted
// statistics. It holds no mutable state. A nil Analyzer means the default
// one; statistics must be fitted with the same analyzer the encoder uses.
type Encoder struct {
	K1       float64
	B        float64
	Analyzer *Analyzer
}

// NewEncoder returns an Encoder, falling back to the default parameters for
// out-of-range values.
func NewEncoder(k1, b float64) Encoder {
	if k1 <= 0 {
		k1 = DefaultK1
	}
	if b < 0 || b > 1 {
		b = DefaultB
	}
	return Encoder{K1: k1, B: b}
}

// WithAnalyzer returns a copy of e that tokenizes with a.
func (e Encoder) WithAnalyzer(a *Analyzer) Encoder {
	e.Analyzer = a
	return e
}

func (e Encoder) analyzer() *Analyzer {
	if e.Analyzer == nil {
		return defaultAnalyzer
	}
	return e.Analyzer
}

// Fit computes statistics over corpus with the encoder's analyzer.
func (e Encoder) Fit(corpus []string) (*TermStatistics, error) {
	return FitWith(e.analyzer(), corpus)
}

// Encode weights every known term of text by idf times the saturated,
// length-normalised term frequency. Unknown terms and terms present in every
// fitted document carry no weight and are left out.
func (e Encoder) Encode(text string, stats *TermStatistics) SparseVector {
	if stats == nil {
		return SparseVector{}
	}
	tokens := e.analyzer().Tokenize(text)
	if len(tokens) == 0 {
		return SparseVector{}
	}
	termFreq := make(map[string]int, len(tokens))
	for _, token := range tokens {
		termFreq[token.Term]++
	}
	docLength := float64(len(tokens))
	avgDocLength := stats.AvgDocLength()

	weights := make(map[uint32]float64, len(termFreq))
	for term, tf := range termFreq {
		df, ok := stats.docFreq[term]
		if !ok {
			continue
		}
		w := idf(stats.docCount, df) * tfNorm(float64(tf), docLength, avgDocLength, e.K1, e.B)
		if w <= 0 {
			continue
		}
		weights[TermIndex(term)] += w
	}

	vec := SparseVector{
		Indices: make([]uint32, 0, len(weights)),
		Values:  make([]float32, 0, len(weights)),
	}
	for idx := range weights {
		vec.Indices = append(vec.Indices, idx)
	}
	slices.Sort(vec.Indices)
	for _, idx := range vec.Indices {
		vec.Values = append(vec.Values, float32(weights[idx]))
	}
	return vec
}
