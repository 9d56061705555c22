package lexical

import (
	"fmt"
	"maps"
	"slices"

	apperrors "github.com/Adithya-Monish-Kumar-K/Hybrid-Search-Platform/pkg/errors"
)

// TermStatistics is the fitted state of the lexical encoder: document
// frequency per term plus corpus aggregates. It is immutable once built, so
// any number of goroutines may encode against it without locking.
type TermStatistics struct {
	docCount    int64
	totalLength int64
	docFreq     map[string]int64
}

// Snapshot is the exported, serialisable form of TermStatistics. Only integer
// counters are kept; the average document length is always recomputed.
type Snapshot struct {
	DocCount    int64            `json:"doc_count"`
	TotalLength int64            `json:"total_length"`
	DocFreq     map[string]int64 `json:"doc_freq"`
}

// Fit computes term statistics over corpus with the default analyzer. A
// term counts once per document no matter how often it repeats there.
func Fit(corpus []string) (*TermStatistics, error) {
	return FitWith(defaultAnalyzer, corpus)
}

// FitWith is Fit with an explicit analyzer.
func FitWith(a *Analyzer, corpus []string) (*TermStatistics, error) {
	if len(corpus) == 0 {
		return nil, apperrors.New("fit", apperrors.ErrEmptyCorpus, "no documents to compute statistics from")
	}
	stats := &TermStatistics{
		docFreq: make(map[string]int64),
	}
	for _, text := range corpus {
		tokens := a.Tokenize(text)
		seen := make(map[string]struct{}, len(tokens))
		for _, token := range tokens {
			if _, ok := seen[token.Term]; ok {
				continue
			}
			seen[token.Term] = struct{}{}
			stats.docFreq[token.Term]++
		}
		stats.docCount++
		stats.totalLength += int64(len(tokens))
	}
	return stats, nil
}

// FromSnapshot rebuilds statistics from persisted counters, rejecting
// combinations no Fit call could have produced.
func FromSnapshot(s Snapshot) (*TermStatistics, error) {
	if s.DocCount <= 0 {
		return nil, fmt.Errorf("doc count %d must be positive", s.DocCount)
	}
	if s.TotalLength < 0 {
		return nil, fmt.Errorf("total length %d is negative", s.TotalLength)
	}
	docFreq := make(map[string]int64, len(s.DocFreq))
	for term, df := range s.DocFreq {
		if term == "" {
			return nil, fmt.Errorf("empty term in frequency table")
		}
		if df <= 0 || df > s.DocCount {
			return nil, fmt.Errorf("term %q has document frequency %d outside [1,%d]", term, df, s.DocCount)
		}
		docFreq[term] = df
	}
	return &TermStatistics{
		docCount:    s.DocCount,
		totalLength: s.TotalLength,
		docFreq:     docFreq,
	}, nil
}

// Snapshot returns a deep copy of the counters.
func (s *TermStatistics) Snapshot() Snapshot {
	return Snapshot{
		DocCount:    s.docCount,
		TotalLength: s.totalLength,
		DocFreq:     maps.Clone(s.docFreq),
	}
}

func (s *TermStatistics) DocCount() int64 { return s.docCount }

func (s *TermStatistics) TotalLength() int64 { return s.totalLength }

func (s *TermStatistics) VocabularySize() int { return len(s.docFreq) }

// AvgDocLength is derived from the integer counters on every call.
func (s *TermStatistics) AvgDocLength() float64 {
	if s.docCount == 0 {
		return 0
	}
	return float64(s.totalLength) / float64(s.docCount)
}

// DocFreq reports how many fitted documents contain term.
func (s *TermStatistics) DocFreq(term string) (int64, bool) {
	df, ok := s.docFreq[term]
	return df, ok
}

// Terms returns the vocabulary in lexical order.
func (s *TermStatistics) Terms() []string {
	return slices.Sorted(maps.Keys(s.docFreq))
}

// Equal reports whether both statistics hold identical counters.
func (s *TermStatistics) Equal(other *TermStatistics) bool {
	if s == nil || other == nil {
		return s == other
	}
	return s.docCount == other.docCount &&
		s.totalLength == other.totalLength &&
		maps.Equal(s.docFreq, other.docFreq)
}
