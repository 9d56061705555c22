package analytics

import "time"

type EventType string

const (
	EventQuery      EventType = "query"
	EventZeroResult EventType = "zero_result"
	EventIngest     EventType = "ingest"
)

type QueryEvent struct {
	Type      EventType `json:"type"`
	Query     string    `json:"query"`
	Alpha     float64   `json:"alpha"`
	TopK      int       `json:"top_k"`
	Returned  int       `json:"returned"`
	TopID     string    `json:"top_id,omitempty"`
	TopScore  float64   `json:"top_score,omitempty"`
	SparseNNZ int       `json:"sparse_nnz"`
	LatencyMs int64     `json:"latency_ms"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

type IngestEvent struct {
	Type           EventType `json:"type"`
	Index          string    `json:"index"`
	Documents      int       `json:"documents"`
	VocabularySize int       `json:"vocabulary_size"`
	AvgDocLength   float64   `json:"avg_doc_length"`
	LatencyMs      int64     `json:"latency_ms"`
	Error          string    `json:"error,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}
