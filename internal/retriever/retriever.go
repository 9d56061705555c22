// Package retriever orchestrates hybrid retrieval: it fits term statistics
// over a corpus, encodes and embeds every document into the index, and
// answers queries by fusing lexical and semantic similarity.
package retriever

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/Hybrid-Search-Platform/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Hybrid-Search-Platform/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/Hybrid-Search-Platform/internal/embedder"
	"github.com/Adithya-Monish-Kumar-K/Hybrid-Search-Platform/internal/encoderstate"
	"github.com/Adithya-Monish-Kumar-K/Hybrid-Search-Platform/internal/lexical"
	"github.com/Adithya-Monish-Kumar-K/Hybrid-Search-Platform/internal/vectorindex"
	apperrors "github.com/Adithya-Monish-Kumar-K/Hybrid-Search-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Hybrid-Search-Platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Hybrid-Search-Platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Hybrid-Search-Platform/pkg/resilience"
)

// Deps are the collaborators a Retriever drives. Store, Analytics and
// Metrics are optional.
type Deps struct {
	Embedder  embedder.Embedder
	Index     vectorindex.Index
	Store     encoderstate.Store
	Analytics *analytics.Collector
	Metrics   *metrics.Metrics
}

type Retriever struct {
	// mu guards state and handle. Queries hold it shared for their whole
	// run so a new ingest cannot swap statistics under them.
	mu     sync.RWMutex
	state  State
	handle vectorindex.Handle
	stats  atomic.Pointer[lexical.TermStatistics]

	// ingestMu serialises Fit, Ingest, LoadState and IndexExisting.
	ingestMu sync.Mutex

	deps   Deps
	opts   Options
	logger *slog.Logger
}

func New(deps Deps, opts Options) (*Retriever, error) {
	if deps.Embedder == nil || deps.Index == nil {
		return nil, errors.New("retriever requires an embedder and an index")
	}
	opts.applyDefaults()
	r := &Retriever{
		deps:   deps,
		opts:   opts,
		logger: logger.WithComponent("retriever"),
	}
	deps.Metrics.SetRetrieverState(int(StateUninitialized))
	return r, nil
}

func (r *Retriever) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Stats returns the current term statistics, or nil before a fit or load.
func (r *Retriever) Stats() *lexical.TermStatistics {
	return r.stats.Load()
}

// Fit computes term statistics over docs and persists them when a store is
// configured. Any index previously served is no longer considered current.
func (r *Retriever) Fit(ctx context.Context, docs []corpus.Document) error {
	r.ingestMu.Lock()
	defer r.ingestMu.Unlock()

	stats, err := r.fit(docs)
	if err != nil {
		return err
	}
	if err := r.save(ctx, stats); err != nil {
		return err
	}
	r.transition(StateStatisticsFitted, stats)
	return nil
}

// LoadState restores persisted statistics. On a missing or corrupt blob the
// retriever drops to StateUninitialized and the error is returned so the
// caller can re-fit.
func (r *Retriever) LoadState(ctx context.Context) error {
	r.ingestMu.Lock()
	defer r.ingestMu.Unlock()

	if r.deps.Store == nil {
		return apperrors.New("load state", apperrors.ErrInvalidInput, "no state store configured")
	}
	stats, err := encoderstate.Load(ctx, r.deps.Store, r.opts.StateName)
	if err != nil {
		r.transition(StateUninitialized, nil)
		r.logger.Warn("persisted statistics unusable, re-fit required", "name", r.opts.StateName, "error", err)
		return err
	}
	r.transition(StateStatisticsFitted, stats)
	r.logger.Info("term statistics loaded", "docs", stats.DocCount(), "terms", stats.VocabularySize())
	return nil
}

// IndexExisting serves an index populated by an earlier ingest, using the
// statistics from LoadState or Fit.
func (r *Retriever) IndexExisting(ctx context.Context) error {
	r.ingestMu.Lock()
	defer r.ingestMu.Unlock()

	stats := r.stats.Load()
	if stats == nil || r.State() == StateUninitialized {
		return apperrors.New("index existing", apperrors.ErrNotServing, "term statistics not loaded")
	}
	h, err := r.ensureIndex(ctx)
	if err != nil {
		return err
	}
	count, err := resilience.Call(ctx, r.opts.IndexTimeout, "index count", func(ctx context.Context) (int, error) {
		return r.deps.Index.Count(ctx, h)
	})
	if err != nil {
		return err
	}
	if count == 0 {
		return apperrors.Newf("index existing", apperrors.ErrNotFound, "index %q holds no records", h.Name)
	}

	r.mu.Lock()
	r.handle = h
	r.mu.Unlock()
	r.transition(StateServing, stats)
	r.logger.Info("serving existing index", "index", h.Name, "records", count)
	return nil
}

// Ingest fits statistics over docs, writes one record per document to the
// index and starts serving. On any failure nothing is reported as ingested
// and the retriever returns to StateUninitialized.
func (r *Retriever) Ingest(ctx context.Context, docs []corpus.Document) (err error) {
	r.ingestMu.Lock()
	defer r.ingestMu.Unlock()

	start := time.Now()
	docs = corpus.AssignIDs(docs)
	var stats *lexical.TermStatistics
	defer func() {
		event := analytics.IngestEvent{
			Index:     r.opts.IndexName,
			Documents: len(docs),
			LatencyMs: time.Since(start).Milliseconds(),
			Timestamp: time.Now().UTC(),
		}
		if err != nil {
			r.transition(StateUninitialized, nil)
			r.logger.Error("ingest failed, state rolled back", "docs", len(docs), "error", err)
			event.Error = err.Error()
		} else {
			r.deps.Metrics.ObserveIngest(len(docs), time.Since(start))
			event.VocabularySize = stats.VocabularySize()
			event.AvgDocLength = stats.AvgDocLength()
		}
		r.deps.Analytics.TrackIngest(event)
	}()

	stats, err = r.fit(docs)
	if err != nil {
		return err
	}
	r.transition(StateStatisticsFitted, stats)

	h, err := r.ensureIndex(ctx)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.handle = h
	r.mu.Unlock()
	r.transition(StateIndexReady, stats)

	records, err := r.buildRecords(ctx, docs, stats)
	if err != nil {
		return err
	}
	err = resilience.WithTimeout(ctx, r.opts.IndexTimeout, "index upsert", func(ctx context.Context) error {
		return r.deps.Index.Upsert(ctx, h, records)
	})
	if err != nil {
		return err
	}
	if err = r.save(ctx, stats); err != nil {
		return err
	}

	r.transition(StateServing, stats)
	r.logger.Info("ingest complete",
		"index", h.Name,
		"docs", len(docs),
		"terms", stats.VocabularySize(),
		"avg_doc_length", stats.AvgDocLength(),
		"duration", time.Since(start),
	)
	return nil
}

// Query returns up to topK hits for text. alpha weights the dense signal
// and 1-alpha the lexical one.
func (r *Retriever) Query(ctx context.Context, text string, alpha float64, topK int) (hits []vectorindex.Hit, err error) {
	start := time.Now()
	log := logger.FromContext(ctx).With("component", "retriever")
	var sparse lexical.SparseVector
	defer func() {
		r.observeQuery(ctx, text, alpha, topK, sparse, hits, err, time.Since(start))
	}()

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.state != StateServing {
		return nil, apperrors.Newf("query", apperrors.ErrNotServing, "state is %s", r.state)
	}
	if math.IsNaN(alpha) || alpha < 0 || alpha > 1 {
		return nil, apperrors.Newf("query", apperrors.ErrInvalidInput, "alpha %v outside [0, 1]", alpha)
	}
	if topK <= 0 {
		return nil, apperrors.Newf("query", apperrors.ErrInvalidInput, "top_k must be positive, got %d", topK)
	}
	if topK > r.opts.MaxTopK {
		log.Debug("top_k clamped", "requested", topK, "max", r.opts.MaxTopK)
		topK = r.opts.MaxTopK
	}

	sparse = r.opts.Encoder.Encode(text, r.stats.Load())
	dense, err := r.deps.Embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	handle := r.handle
	found, err := resilience.Call(ctx, r.opts.IndexTimeout, "index query", func(ctx context.Context) ([]vectorindex.Hit, error) {
		return r.deps.Index.Query(ctx, handle, sparse, dense, alpha, topK)
	})
	if err != nil {
		return nil, err
	}
	hits = found
	vectorindex.SortHits(hits)
	log.Debug("query served", "alpha", alpha, "top_k", topK, "hits", len(hits), "sparse_terms", sparse.Len())
	return hits, nil
}

func (r *Retriever) fit(docs []corpus.Document) (*lexical.TermStatistics, error) {
	if len(docs) == 0 {
		return nil, apperrors.New("fit", apperrors.ErrEmptyCorpus, "no documents")
	}
	if err := corpus.Validate(docs); err != nil {
		return nil, fmt.Errorf("validating corpus: %w", err)
	}
	return r.opts.Encoder.Fit(corpus.Texts(docs))
}

func (r *Retriever) save(ctx context.Context, stats *lexical.TermStatistics) error {
	if r.deps.Store == nil {
		return nil
	}
	return encoderstate.Save(ctx, r.deps.Store, r.opts.StateName, stats, r.opts.Codec)
}

func (r *Retriever) ensureIndex(ctx context.Context) (vectorindex.Handle, error) {
	return resilience.Call(ctx, r.opts.IndexTimeout, "ensure index", func(ctx context.Context) (vectorindex.Handle, error) {
		return r.deps.Index.EnsureIndex(ctx, r.opts.IndexName, r.deps.Embedder.Dimension(), r.opts.Metric)
	})
}

// buildRecords encodes and embeds every document with bounded parallelism.
// Records keep the input order.
func (r *Retriever) buildRecords(ctx context.Context, docs []corpus.Document, stats *lexical.TermStatistics) ([]vectorindex.Record, error) {
	records := make([]vectorindex.Record, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.EmbedConcurrency)
	for i, doc := range docs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			dense, err := r.deps.Embedder.Embed(gctx, doc.Text)
			if err != nil {
				return fmt.Errorf("embedding document %q: %w", doc.ID, err)
			}
			records[i] = vectorindex.Record{
				ID:      doc.ID,
				Sparse:  r.opts.Encoder.Encode(doc.Text, stats),
				Dense:   dense,
				Payload: doc.Text,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func (r *Retriever) transition(to State, stats *lexical.TermStatistics) {
	r.mu.Lock()
	from := r.state
	r.state = to
	r.stats.Store(stats)
	if to == StateUninitialized {
		r.handle = vectorindex.Handle{}
	}
	r.mu.Unlock()
	r.deps.Metrics.SetRetrieverState(int(to))
	if from != to {
		r.logger.Debug("state transition", "from", from.String(), "to", to.String())
	}
}

func (r *Retriever) observeQuery(ctx context.Context, text string, alpha float64, topK int, sparse lexical.SparseVector, hits []vectorindex.Hit, err error, elapsed time.Duration) {
	outcome := "hit"
	event := analytics.QueryEvent{
		Query:     text,
		Alpha:     alpha,
		TopK:      topK,
		Returned:  len(hits),
		SparseNNZ: sparse.Len(),
		LatencyMs: elapsed.Milliseconds(),
		Timestamp: time.Now().UTC(),
		RequestID: logger.RequestID(ctx),
	}
	switch {
	case err != nil:
		outcome = "error"
		event.Error = err.Error()
	case len(hits) == 0:
		outcome = "zero_result"
		event.Type = analytics.EventZeroResult
	default:
		event.TopID = hits[0].ID
		event.TopScore = hits[0].Score
	}
	r.deps.Metrics.ObserveQuery(outcome, len(hits), elapsed)
	r.deps.Analytics.TrackQuery(event)
}
