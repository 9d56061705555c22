// Package metrics defines the Prometheus collectors for the retrieval
// pipeline and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the pipeline. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	DocsIngestedTotal     prometheus.Counter
	IngestDuration        prometheus.Histogram
	QueriesTotal          *prometheus.CounterVec
	QueryLatency          prometheus.Histogram
	QueryResultsCount     prometheus.Histogram
	EmbedCallsTotal       *prometheus.CounterVec
	EmbedLatency          prometheus.Histogram
	EmbedCacheHitsTotal   prometheus.Counter
	EmbedCacheMissesTotal prometheus.Counter
	UpsertBatchesTotal    *prometheus.CounterVec
	UpsertRecordsTotal    prometheus.Counter
	CircuitBreakerState   *prometheus.GaugeVec
	RetrieverState        prometheus.Gauge
}

// New creates the collectors and registers them on reg. A nil reg leaves
// them unregistered, which keeps tests free of global registry collisions.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		DocsIngestedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "hybrid_docs_ingested_total",
				Help: "Total documents encoded and upserted.",
			},
		),
		IngestDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "hybrid_ingest_duration_seconds",
				Help:    "Wall time of a full ingest (fit, encode, embed, upsert).",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
			},
		),
		QueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hybrid_queries_total",
				Help: "Total queries by outcome (hit, zero_result, error).",
			},
			[]string{"outcome"},
		),
		QueryLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "hybrid_query_latency_seconds",
				Help:    "Query latency in seconds, embedding included.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
		),
		QueryResultsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "hybrid_query_results_count",
				Help:    "Number of hits returned per query.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
			},
		),
		EmbedCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hybrid_embed_calls_total",
				Help: "Embedding calls by outcome (ok, retry_exhausted, timeout, invalid, cancelled).",
			},
			[]string{"outcome"},
		),
		EmbedLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "hybrid_embed_latency_seconds",
				Help:    "Embedding latency in seconds, retries included.",
				Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
		),
		EmbedCacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "hybrid_embed_cache_hits_total",
				Help: "Embedding cache hits.",
			},
		),
		EmbedCacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "hybrid_embed_cache_misses_total",
				Help: "Embedding cache misses.",
			},
		),
		UpsertBatchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hybrid_upsert_batches_total",
				Help: "Index upsert batches by status.",
			},
			[]string{"status"},
		),
		UpsertRecordsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "hybrid_upsert_records_total",
				Help: "Records written by successful upsert batches.",
			},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "hybrid_circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
		RetrieverState: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "hybrid_retriever_state",
				Help: "Retriever lifecycle state (0=uninitialized, 1=statistics_fitted, 2=index_ready, 3=serving).",
			},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.DocsIngestedTotal,
			m.IngestDuration,
			m.QueriesTotal,
			m.QueryLatency,
			m.QueryResultsCount,
			m.EmbedCallsTotal,
			m.EmbedLatency,
			m.EmbedCacheHitsTotal,
			m.EmbedCacheMissesTotal,
			m.UpsertBatchesTotal,
			m.UpsertRecordsTotal,
			m.CircuitBreakerState,
			m.RetrieverState,
		)
	}
	return m
}

func (m *Metrics) ObserveEmbed(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.EmbedCallsTotal.WithLabelValues(outcome).Inc()
	m.EmbedLatency.Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.EmbedCacheHitsTotal.Inc()
		return
	}
	m.EmbedCacheMissesTotal.Inc()
}

func (m *Metrics) ObserveUpsert(records int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.UpsertBatchesTotal.WithLabelValues("error").Inc()
		return
	}
	m.UpsertBatchesTotal.WithLabelValues("ok").Inc()
	m.UpsertRecordsTotal.Add(float64(records))
}

func (m *Metrics) ObserveIngest(docs int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.DocsIngestedTotal.Add(float64(docs))
	m.IngestDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveQuery(outcome string, results int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.QueriesTotal.WithLabelValues(outcome).Inc()
	m.QueryLatency.Observe(elapsed.Seconds())
	if outcome != "error" {
		m.QueryResultsCount.Observe(float64(results))
	}
}

func (m *Metrics) SetBreakerState(name string, state int) {
	if m == nil {
		return
	}
	m.CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}

func (m *Metrics) SetRetrieverState(state int) {
	if m == nil {
		return
	}
	m.RetrieverState.Set(float64(state))
}

// Handler returns the Prometheus scrape handler for gatherer, or the default
// registry's handler when gatherer is nil.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	if gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
