package lexical

import "math"

// Default BM25 saturation parameters.
const (
	DefaultK1 = 1.2
	DefaultB  = 0.75
)

// idf is never negative: the +1 inside the log keeps terms that occur in
// every document at exactly zero.
func idf(totalDocs int64, docFreq int64) float64 {
	numerator := float64(totalDocs) - float64(docFreq)
	denominator := float64(docFreq) + 0.5
	return math.Log(numerator/denominator + 1)
}

func tfNorm(termFreq, docLength, avgDocLength, k1, b float64) float64 {
	if avgDocLength == 0 {
		return 0
	}
	lengthRatio := docLength / avgDocLength
	denominator := termFreq + k1*(1-b+b*lengthRatio)
	return (termFreq * (k1 + 1)) / denominator
}
