package corpus

import (
	"fmt"
	"sort"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/Hybrid-Search-Platform/pkg/errors"
)

const (
	maxTextLength = 1048576
	maxIDLength   = 255
)

// ValidationError holds per-field failure messages, keyed like "docs[3].text".
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for field := range e.Fields {
		keys = append(keys, field)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s:%s", k, e.Fields[k]))
	}
	return strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return apperrors.ErrInvalidInput
}

// Validate checks text and ID constraints and rejects duplicate IDs. It
// does not reject an empty slice; the retriever reports that as an empty
// corpus.
func Validate(docs []Document) error {
	errs := make(map[string]string)
	seen := make(map[string]int, len(docs))
	for i, d := range docs {
		text := strings.TrimSpace(d.Text)
		if text == "" {
			errs[fmt.Sprintf("docs[%d].text", i)] = "text is required"
		} else if len(d.Text) > maxTextLength {
			errs[fmt.Sprintf("docs[%d].text", i)] = fmt.Sprintf("text must be at most %d bytes", maxTextLength)
		}
		if d.ID == "" {
			continue
		}
		if len(d.ID) > maxIDLength {
			errs[fmt.Sprintf("docs[%d].id", i)] = fmt.Sprintf("id must be at most %d characters", maxIDLength)
		}
		if first, ok := seen[d.ID]; ok {
			errs[fmt.Sprintf("docs[%d].id", i)] = fmt.Sprintf("duplicate of docs[%d]", first)
			continue
		}
		seen[d.ID] = i
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}
