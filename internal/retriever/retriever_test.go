package retriever

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Hybrid-Search-Platform/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Hybrid-Search-Platform/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/Hybrid-Search-Platform/internal/embedder"
	"github.com/Adithya-Monish-Kumar-K/Hybrid-Search-Platform/internal/encoderstate"
	"github.com/Adithya-Monish-Kumar-K/Hybrid-Search-Platform/internal/lexical"
	"github.com/Adithya-Monish-Kumar-K/Hybrid-Search-Platform/internal/vectorindex"
	"github.com/Adithya-Monish-Kumar-K/Hybrid-Search-Platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Hybrid-Search-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Hybrid-Search-Platform/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Hybrid-Search-Platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Hybrid-Search-Platform/pkg/metrics"
)

func init() {
	logger.Discard()
}

// tableEmbedder returns fixed vectors for known texts and a zero vector
// otherwise. Texts listed in fail return that error.
type tableEmbedder struct {
	dim   int
	table map[string][]float32
	fail  map[string]error
	block chan struct{}
}

func (e *tableEmbedder) Dimension() int { return e.dim }

func (e *tableEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.block != nil {
		select {
		case <-e.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err, ok := e.fail[text]; ok {
		return nil, err
	}
	if v, ok := e.table[text]; ok {
		return append([]float32(nil), v...), nil
	}
	return make([]float32, e.dim), nil
}

const scenarioQuery = "What country did I visit first?"

var scenarioDocs = []corpus.Document{
	{Text: "In 2019, I visited Hungary"},
	{Text: "In 2020, I visited Czech Republic"},
	{Text: "In 2021, I visited Georgia"},
}

func scenarioEmbedder() *tableEmbedder {
	return &tableEmbedder{
		dim: 3,
		table: map[string][]float32{
			"In 2019, I visited Hungary":        {0.9, 0.3, 0.1},
			"In 2020, I visited Czech Republic": {0.5, 0.8, 0.2},
			"In 2021, I visited Georgia":        {0.1, 0.4, 0.9},
			scenarioQuery:                       {0.8, 0.2, 0.1},
		},
	}
}

type fixture struct {
	r     *Retriever
	index *vectorindex.MemoryIndex
	store *encoderstate.MemoryStore
	emb   embedder.Embedder
}

func newFixture(t *testing.T, emb embedder.Embedder) fixture {
	t.Helper()
	f := fixture{
		index: vectorindex.NewMemoryIndex(nil),
		store: encoderstate.NewMemoryStore(),
		emb:   emb,
	}
	r, err := New(Deps{Embedder: emb, Index: f.index, Store: f.store}, Options{IndexName: "test"})
	require.NoError(t, err)
	f.r = r
	return f
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Deps{}, Options{})
	assert.Error(t, err)
}

func TestQueryBeforeIngest(t *testing.T) {
	f := newFixture(t, scenarioEmbedder())
	assert.Equal(t, StateUninitialized, f.r.State())
	assert.Nil(t, f.r.Stats())

	_, err := f.r.Query(context.Background(), scenarioQuery, 0.5, 1)
	require.ErrorIs(t, err, apperrors.ErrNotServing)
	assert.Equal(t, apperrors.ExitNotReady, apperrors.ExitCode(err))
}

func TestEndToEndScenario(t *testing.T) {
	f := newFixture(t, scenarioEmbedder())
	ctx := context.Background()
	require.NoError(t, f.r.Ingest(ctx, scenarioDocs))
	assert.Equal(t, StateServing, f.r.State())

	top, err := f.r.Query(ctx, scenarioQuery, 0.5, 1)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, "doc-0", top[0].ID)
	assert.Equal(t, "In 2019, I visited Hungary", top[0].Payload)

	all, err := f.r.Query(ctx, scenarioQuery, 0.5, 3)
	require.NoError(t, err)
	require.Len(t, all, 3)
	scores := map[string]float64{}
	for _, h := range all {
		scores[h.ID] = h.Score
	}
	assert.GreaterOrEqual(t, scores["doc-0"], scores["doc-2"])
	for i := 1; i < len(all); i++ {
		assert.GreaterOrEqual(t, all[i-1].Score, all[i].Score)
	}
}

func TestIngestPersistsStatistics(t *testing.T) {
	f := newFixture(t, scenarioEmbedder())
	ctx := context.Background()
	require.NoError(t, f.r.Ingest(ctx, scenarioDocs))

	stats, err := encoderstate.Load(ctx, f.store, "bm25_values.hsts")
	require.NoError(t, err)
	assert.True(t, stats.Equal(f.r.Stats()))
	assert.EqualValues(t, 3, stats.DocCount())

	n, err := f.index.Count(ctx, vectorindex.Handle{Name: "test", Dimension: 3})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestIngestKeepsSuppliedIDs(t *testing.T) {
	f := newFixture(t, scenarioEmbedder())
	docs := []corpus.Document{
		{ID: "hu", Text: scenarioDocs[0].Text},
		{Text: scenarioDocs[1].Text},
	}
	require.NoError(t, f.r.Ingest(context.Background(), docs))

	hits, err := f.r.Query(context.Background(), scenarioQuery, 1, 5)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"hu", "doc-1"}, []string{hits[0].ID, hits[1].ID})
}

func TestIngestRejectsBadCorpus(t *testing.T) {
	tests := []struct {
		name string
		docs []corpus.Document
		want error
	}{
		{"empty", nil, apperrors.ErrEmptyCorpus},
		{"duplicate ids", []corpus.Document{{ID: "x", Text: "a"}, {ID: "x", Text: "b"}}, apperrors.ErrInvalidInput},
		{"blank text", []corpus.Document{{Text: "  "}}, apperrors.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, scenarioEmbedder())
			err := f.r.Ingest(context.Background(), tt.docs)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, StateUninitialized, f.r.State())
			assert.Nil(t, f.r.Stats())
		})
	}
}

func TestIngestRollsBackOnEmbeddingFailure(t *testing.T) {
	emb := scenarioEmbedder()
	emb.fail = map[string]error{scenarioDocs[2].Text: errors.New("model overloaded")}
	adapter := embedder.NewAdapter(emb, embedder.Options{Retries: 1, RetryDelay: time.Millisecond})
	f := newFixture(t, adapter)
	ctx := context.Background()

	err := f.r.Ingest(ctx, scenarioDocs)
	require.ErrorIs(t, err, apperrors.ErrEmbeddingUnavailable)
	assert.Contains(t, err.Error(), "doc-2")
	assert.Equal(t, StateUninitialized, f.r.State())

	n, err := f.index.Count(ctx, vectorindex.Handle{Name: "test", Dimension: 3})
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = f.store.Get(ctx, "bm25_values.hsts")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = f.r.Query(ctx, scenarioQuery, 0.5, 1)
	assert.ErrorIs(t, err, apperrors.ErrNotServing)
}

func TestIngestRollsBackOnDimensionMismatch(t *testing.T) {
	f := newFixture(t, scenarioEmbedder())
	ctx := context.Background()
	_, err := f.index.EnsureIndex(ctx, "test", 4, vectorindex.MetricDotProduct)
	require.NoError(t, err)

	err = f.r.Ingest(ctx, scenarioDocs)
	assert.ErrorIs(t, err, apperrors.ErrDimensionMismatch)
	assert.Equal(t, StateUninitialized, f.r.State())
}

func TestIngestCancellation(t *testing.T) {
	emb := scenarioEmbedder()
	emb.block = make(chan struct{})
	f := newFixture(t, emb)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.r.Ingest(ctx, scenarioDocs) }()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("ingest did not observe cancellation")
	}
	assert.Equal(t, StateUninitialized, f.r.State())
}

func TestFitThenLoadAndServeExisting(t *testing.T) {
	ctx := context.Background()
	first := newFixture(t, scenarioEmbedder())
	require.NoError(t, first.r.Ingest(ctx, scenarioDocs))
	want, err := first.r.Query(ctx, scenarioQuery, 0.3, 3)
	require.NoError(t, err)

	second, err := New(Deps{Embedder: scenarioEmbedder(), Index: first.index, Store: first.store}, Options{IndexName: "test"})
	require.NoError(t, err)

	err = second.IndexExisting(ctx)
	assert.ErrorIs(t, err, apperrors.ErrNotServing)

	require.NoError(t, second.LoadState(ctx))
	assert.Equal(t, StateStatisticsFitted, second.State())
	assert.True(t, second.Stats().Equal(first.r.Stats()))

	require.NoError(t, second.IndexExisting(ctx))
	assert.Equal(t, StateServing, second.State())

	got, err := second.Query(ctx, scenarioQuery, 0.3, 3)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestIndexExistingEmptyIndex(t *testing.T) {
	f := newFixture(t, scenarioEmbedder())
	ctx := context.Background()
	require.NoError(t, f.r.Fit(ctx, scenarioDocs))
	assert.Equal(t, StateStatisticsFitted, f.r.State())

	err := f.r.IndexExisting(ctx)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.Equal(t, StateStatisticsFitted, f.r.State())
}

func TestLoadStateFailures(t *testing.T) {
	ctx := context.Background()

	f := newFixture(t, scenarioEmbedder())
	err := f.r.LoadState(ctx)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.Equal(t, StateUninitialized, f.r.State())

	require.NoError(t, f.r.Ingest(ctx, scenarioDocs))
	require.NoError(t, f.store.Put(ctx, "bm25_values.hsts", []byte("not a state file")))
	err = f.r.LoadState(ctx)
	assert.ErrorIs(t, err, apperrors.ErrCorruptState)
	assert.Equal(t, StateUninitialized, f.r.State())
	assert.Nil(t, f.r.Stats())

	_, err = f.r.Query(ctx, scenarioQuery, 0.5, 1)
	assert.ErrorIs(t, err, apperrors.ErrNotServing)

	noStore, err := New(Deps{Embedder: scenarioEmbedder(), Index: vectorindex.NewMemoryIndex(nil)}, Options{})
	require.NoError(t, err)
	assert.ErrorIs(t, noStore.LoadState(ctx), apperrors.ErrInvalidInput)
}

func TestQueryValidation(t *testing.T) {
	f := newFixture(t, scenarioEmbedder())
	ctx := context.Background()
	require.NoError(t, f.r.Ingest(ctx, scenarioDocs))

	for _, alpha := range []float64{-0.5, 1.5} {
		_, err := f.r.Query(ctx, scenarioQuery, alpha, 1)
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	}
	_, err := f.r.Query(ctx, scenarioQuery, 0.5, 0)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	hits, err := f.r.Query(ctx, scenarioQuery, 0.5, 10_000)
	require.NoError(t, err)
	assert.Len(t, hits, 3)

	hits, err = f.r.Query(ctx, "", 0.5, 2)
	require.NoError(t, err)
	assert.Len(t, hits, 2)
}

func TestFusionBoundariesMatchSingleSignal(t *testing.T) {
	docs := []corpus.Document{
		{ID: "a", Text: "danube river budapest bridges"},
		{ID: "b", Text: "prague castle vltava river"},
		{ID: "c", Text: "tbilisi old town sulfur baths"},
		{ID: "d", Text: "budapest thermal baths and danube views"},
	}
	emb := embedder.NewHashEmbedder(64)
	f := newFixture(t, emb)
	ctx := context.Background()
	require.NoError(t, f.r.Ingest(ctx, docs))

	query := "budapest danube baths"
	stats := f.r.Stats()
	qs := lexical.NewEncoder(lexical.DefaultK1, lexical.DefaultB).Encode(query, stats)
	qd, err := emb.Embed(ctx, query)
	require.NoError(t, err)

	var denseOnly, sparseOnly []vectorindex.Hit
	for _, d := range docs {
		dd, err := emb.Embed(ctx, d.Text)
		require.NoError(t, err)
		var dot float64
		for i := range dd {
			dot += float64(dd[i]) * float64(qd[i])
		}
		denseOnly = append(denseOnly, vectorindex.Hit{ID: d.ID, Score: dot})
		sparseOnly = append(sparseOnly, vectorindex.Hit{ID: d.ID, Score: qs.Dot(lexical.NewEncoder(lexical.DefaultK1, lexical.DefaultB).Encode(d.Text, stats))})
	}
	vectorindex.SortHits(denseOnly)
	vectorindex.SortHits(sparseOnly)

	got, err := f.r.Query(ctx, query, 1, len(docs))
	require.NoError(t, err)
	assert.Equal(t, hitIDs(denseOnly), hitIDs(got))

	got, err = f.r.Query(ctx, query, 0, len(docs))
	require.NoError(t, err)
	assert.Equal(t, hitIDs(sparseOnly), hitIDs(got))
}

func hitIDs(hits []vectorindex.Hit) []string {
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.ID
	}
	return out
}

func TestConcurrentQueries(t *testing.T) {
	f := newFixture(t, embedder.NewHashEmbedder(32))
	ctx := context.Background()
	require.NoError(t, f.r.Ingest(ctx, scenarioDocs))
	want, err := f.r.Query(ctx, scenarioQuery, 0.5, 3)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := f.r.Query(ctx, scenarioQuery, 0.5, 3)
			assert.NoError(t, err)
			assert.Equal(t, want, got)
		}()
	}
	wg.Wait()
}

type capturePublisher struct {
	mu     sync.Mutex
	events []kafka.Event
}

func (p *capturePublisher) PublishBatch(_ context.Context, events []kafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
	return nil
}

func TestAnalyticsAndMetrics(t *testing.T) {
	pub := &capturePublisher{}
	collector := analytics.NewCollector(pub, analytics.Options{FlushInterval: time.Hour})
	collector.Start(context.Background())
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	r, err := New(Deps{
		Embedder:  scenarioEmbedder(),
		Index:     vectorindex.NewMemoryIndex(m),
		Analytics: collector,
		Metrics:   m,
	}, Options{})
	require.NoError(t, err)

	ctx := logger.WithRequestID(context.Background(), "req-1")
	require.NoError(t, r.Ingest(ctx, scenarioDocs))
	_, err = r.Query(ctx, scenarioQuery, 0.5, 1)
	require.NoError(t, err)
	collector.Close()

	require.Len(t, pub.events, 2)
	ingest := pub.events[0].Value.(analytics.IngestEvent)
	assert.Equal(t, 3, ingest.Documents)
	query := pub.events[1].Value.(analytics.QueryEvent)
	assert.Equal(t, "doc-0", query.TopID)
	assert.Equal(t, "req-1", query.RequestID)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.DocsIngestedTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QueriesTotal.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UpsertBatchesTotal.WithLabelValues("ok")))
	assert.Equal(t, float64(StateServing), testutil.ToFloat64(m.RetrieverState))
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Index.Metric = "cosine"
	cfg.State.Compression = "zstd"
	opts, err := OptionsFromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, vectorindex.MetricCosine, opts.Metric)
	assert.Equal(t, encoderstate.CodecZSTD, opts.Codec)
	assert.Equal(t, cfg.Index.Name, opts.IndexName)
	assert.Equal(t, []string{"castl"}, opts.Encoder.Analyzer.Terms("the castles"))

	cfg.Encoder.KeepStopWords = true
	cfg.Encoder.DisableStemming = true
	opts, err = OptionsFromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"the", "castles"}, opts.Encoder.Analyzer.Terms("the castles"))

	cfg.Index.Metric = "hamming"
	_, err = OptionsFromConfig(cfg)
	assert.Error(t, err)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "serving", StateServing.String())
	assert.Equal(t, "unknown", State(42).String())
}

// slowIndex stalls the selected calls past the retriever's index timeout
// and ignores cancellation while it does.
type slowIndex struct {
	*vectorindex.MemoryIndex
	delay     time.Duration
	slowQuery atomic.Bool
	slowCount atomic.Bool
}

func (s *slowIndex) Query(_ context.Context, h vectorindex.Handle, sparse lexical.SparseVector, dense []float32, alpha float64, topK int) ([]vectorindex.Hit, error) {
	if s.slowQuery.Load() {
		time.Sleep(s.delay)
	}
	return s.MemoryIndex.Query(context.Background(), h, sparse, dense, alpha, topK)
}

func (s *slowIndex) Count(_ context.Context, h vectorindex.Handle) (int, error) {
	if s.slowCount.Load() {
		time.Sleep(s.delay)
	}
	return s.MemoryIndex.Count(context.Background(), h)
}

func TestQueryIndexTimeout(t *testing.T) {
	ctx := context.Background()
	idx := &slowIndex{MemoryIndex: vectorindex.NewMemoryIndex(nil), delay: 50 * time.Millisecond}
	r, err := New(Deps{Embedder: scenarioEmbedder(), Index: idx}, Options{
		IndexName:    "test",
		IndexTimeout: 10 * time.Millisecond,
	})
	require.NoError(t, err)
	require.NoError(t, r.Ingest(ctx, scenarioDocs))

	idx.slowQuery.Store(true)
	hits, err := r.Query(ctx, scenarioQuery, 0.5, 3)
	require.ErrorIs(t, err, apperrors.ErrTimeout)
	assert.Nil(t, hits)
	assert.Equal(t, apperrors.ExitExternal, apperrors.ExitCode(err))
	assert.Equal(t, StateServing, r.State())

	// The abandoned call completes in the background without touching the
	// caller's results.
	time.Sleep(2 * idx.delay)
	idx.slowQuery.Store(false)
	hits, err = r.Query(ctx, scenarioQuery, 0.5, 3)
	require.NoError(t, err)
	assert.Len(t, hits, 3)
}

func TestIndexExistingCountTimeout(t *testing.T) {
	ctx := context.Background()
	idx := &slowIndex{MemoryIndex: vectorindex.NewMemoryIndex(nil), delay: 50 * time.Millisecond}
	deps := Deps{Embedder: scenarioEmbedder(), Index: idx, Store: encoderstate.NewMemoryStore()}
	opts := Options{IndexName: "test", IndexTimeout: 10 * time.Millisecond}

	first, err := New(deps, opts)
	require.NoError(t, err)
	require.NoError(t, first.Ingest(ctx, scenarioDocs))

	idx.slowCount.Store(true)
	second, err := New(deps, opts)
	require.NoError(t, err)
	require.NoError(t, second.LoadState(ctx))
	err = second.IndexExisting(ctx)
	require.ErrorIs(t, err, apperrors.ErrTimeout)
	assert.Equal(t, StateStatisticsFitted, second.State())
	time.Sleep(2 * idx.delay)
}
