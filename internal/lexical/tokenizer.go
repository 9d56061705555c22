// Package lexical implements the sparse half of hybrid retrieval: a
// tokenizer, corpus-level term statistics, and a BM25 encoder that turns text
// into sparse weighted-term vectors. Everything here is pure computation.
package lexical

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultStopWords are the English function words the default analyzer
// drops.
var DefaultStopWords = []string{
	"a", "an", "and", "are", "as", "at", "be", "but", "by", "can",
	"do", "each", "for", "from", "had", "has", "have", "he", "if", "in",
	"is", "it", "its", "no", "not", "of", "on", "or", "so", "that",
	"the", "their", "they", "this", "to", "was", "were", "what", "when", "where",
	"which", "who", "will", "with",
}

// Token is a single normalised term and its position among the kept tokens.
type Token struct {
	Term     string
	Position int
}

// AnalyzerOptions configures an Analyzer. The zero value gives the default
// pipeline.
type AnalyzerOptions struct {
	// StopWords replaces DefaultStopWords when non-empty.
	StopWords []string
	// KeepStopWords disables stop-word removal entirely.
	KeepStopWords bool
	// MinRunes drops shorter words; zero means 2.
	MinRunes        int
	DisableStemming bool
}

// Analyzer lower-cases text, splits it on anything that is not a letter or
// digit, drops short words and stop words, and stems what is left. It is
// immutable and safe for concurrent use.
type Analyzer struct {
	stop     map[string]struct{}
	minRunes int
	stem     bool
}

func NewAnalyzer(opts AnalyzerOptions) *Analyzer {
	a := &Analyzer{
		stop:     make(map[string]struct{}),
		minRunes: opts.MinRunes,
		stem:     !opts.DisableStemming,
	}
	if a.minRunes <= 0 {
		a.minRunes = 2
	}
	if !opts.KeepStopWords {
		words := opts.StopWords
		if len(words) == 0 {
			words = DefaultStopWords
		}
		for _, w := range words {
			a.stop[strings.ToLower(w)] = struct{}{}
		}
	}
	return a
}

var defaultAnalyzer = NewAnalyzer(AnalyzerOptions{})

// DefaultAnalyzer returns the shared analyzer used when none is configured.
func DefaultAnalyzer() *Analyzer {
	return defaultAnalyzer
}

func (a *Analyzer) Tokenize(text string) []Token {
	lower := strings.ToLower(text)
	var tokens []Token
	start := -1
	for i, r := range lower {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			tokens = a.appendWord(tokens, lower[start:i])
			start = -1
		}
	}
	if start >= 0 {
		tokens = a.appendWord(tokens, lower[start:])
	}
	return tokens
}

func (a *Analyzer) appendWord(tokens []Token, word string) []Token {
	if utf8.RuneCountInString(word) < a.minRunes {
		return tokens
	}
	if _, isStop := a.stop[word]; isStop {
		return tokens
	}
	if a.stem {
		word = stem(word)
	}
	if word == "" {
		return tokens
	}
	return append(tokens, Token{Term: word, Position: len(tokens)})
}

// Terms is Tokenize without positions.
func (a *Analyzer) Terms(text string) []string {
	tokens := a.Tokenize(text)
	terms := make([]string, len(tokens))
	for i, t := range tokens {
		terms[i] = t.Term
	}
	return terms
}

// Tokenize runs the default analyzer.
func Tokenize(text string) []Token {
	return defaultAnalyzer.Tokenize(text)
}

// Terms runs the default analyzer without positions.
func Terms(text string) []string {
	return defaultAnalyzer.Terms(text)
}

// suffixRules are tried in order; the first suffix that leaves at least
// minLen bytes wins.
var suffixRules = []struct {
	suffix      string
	replacement string
	minLen      int
}{
	{"ational", "ate", 2},
	{"tional", "tion", 2},
	{"encies", "ence", 2},
	{"ances", "ance", 2},
	{"ments", "ment", 2},
	{"izing", "ize", 2},
	{"ating", "ate", 2},
	{"iness", "y", 2},
	{"ously", "ous", 2},
	{"ively", "ive", 2},
	{"eness", "ene", 2},
	{"tion", "t", 3},
	{"sion", "s", 3},
	{"ying", "y", 2},
	{"ling", "l", 3},
	{"ies", "y", 2},
	{"ing", "", 3},
	{"ers", "er", 2},
	{"est", "", 3},
	{"ful", "", 3},
	{"ous", "", 3},
	{"ess", "", 3},
	{"ble", "", 3},
	{"ed", "", 3},
	{"er", "", 3},
	{"ly", "", 3},
	{"es", "", 3},
	{"ss", "ss", 2},
	{"s", "", 3},
}

func stem(word string) string {
	for _, rule := range suffixRules {
		base, ok := strings.CutSuffix(word, rule.suffix)
		if !ok {
			continue
		}
		if stemmed := base + rule.replacement; len(stemmed) >= rule.minLen {
			return stemmed
		}
	}
	return word
}
