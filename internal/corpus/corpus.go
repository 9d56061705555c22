// Package corpus reads documents for ingestion from plain-text or JSON-lines
// sources and validates them before they reach the retriever.
package corpus

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/Hybrid-Search-Platform/pkg/errors"
)

type Format string

const (
	FormatLines Format = "lines"
	FormatJSONL Format = "jsonl"
)

const maxLineBytes = 2 << 20

// Document is one unit of retrieval. An empty ID is assigned later by
// insertion order.
type Document struct {
	ID   string `json:"id,omitempty"`
	Text string `json:"text"`
}

// FormatFor picks the format from a file extension.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonl", ".ndjson":
		return FormatJSONL
	}
	return FormatLines
}

func ReadFile(path string) ([]Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.Newf("read corpus", apperrors.ErrInvalidInput, "%v", err)
	}
	defer f.Close()
	return Read(f, FormatFor(path))
}

// Read parses r. In the lines format every non-blank line is a document; in
// jsonl every non-blank line is a {"id", "text"} object.
func Read(r io.Reader, format Format) ([]Document, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	var docs []Document
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		switch format {
		case FormatJSONL:
			var doc Document
			dec := json.NewDecoder(strings.NewReader(raw))
			dec.DisallowUnknownFields()
			if err := dec.Decode(&doc); err != nil {
				return nil, apperrors.Newf("read corpus", apperrors.ErrInvalidInput, "line %d: %v", line, err)
			}
			docs = append(docs, doc)
		case FormatLines:
			docs = append(docs, Document{Text: raw})
		default:
			return nil, apperrors.Newf("read corpus", apperrors.ErrInvalidInput, "unknown format %q", format)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, apperrors.Newf("read corpus", apperrors.ErrInvalidInput, "line %d: %v", line+1, err)
	}
	return docs, nil
}

// AssignIDs fills empty IDs with doc-<position>. Supplied IDs are kept.
func AssignIDs(docs []Document) []Document {
	out := make([]Document, len(docs))
	for i, d := range docs {
		if d.ID == "" {
			d.ID = fmt.Sprintf("doc-%d", i)
		}
		out[i] = d
	}
	return out
}

func Texts(docs []Document) []string {
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Text
	}
	return texts
}
