package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/Adithya-Monish-Kumar-K/Hybrid-Search-Platform/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Hybrid-Search-Platform/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/Hybrid-Search-Platform/internal/embedder"
	"github.com/Adithya-Monish-Kumar-K/Hybrid-Search-Platform/internal/encoderstate"
	"github.com/Adithya-Monish-Kumar-K/Hybrid-Search-Platform/internal/retriever"
	"github.com/Adithya-Monish-Kumar-K/Hybrid-Search-Platform/internal/vectorindex"
	"github.com/Adithya-Monish-Kumar-K/Hybrid-Search-Platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Hybrid-Search-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Hybrid-Search-Platform/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Hybrid-Search-Platform/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Hybrid-Search-Platform/pkg/metrics"
	pkgminio "github.com/Adithya-Monish-Kumar-K/Hybrid-Search-Platform/pkg/minio"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Hybrid-Search-Platform/pkg/redis"
)

const (
	modeFit  = "fit"
	modeLoad = "load"
)

// params are the per-invocation inputs from the command line. A nil Alpha
// or zero TopK means "use the configured default". RefreshCache drops cached
// embeddings for the configured model before a fit.
type params struct {
	Mode         string
	CorpusPath   string
	Query        string
	Alpha        *float64
	TopK         int
	RefreshCache bool
}

type output struct {
	Query string            `json:"query"`
	Alpha float64           `json:"alpha"`
	TopK  int               `json:"top_k"`
	Hits  []vectorindex.Hit `json:"hits"`
}

func (p *params) resolve(cfg *config.Config) error {
	if p.Mode == "" {
		p.Mode = modeFit
	}
	if p.Mode != modeFit && p.Mode != modeLoad {
		return apperrors.Newf("cli", apperrors.ErrInvalidInput, "unknown mode %q (want fit or load)", p.Mode)
	}
	if p.Mode == modeFit && p.CorpusPath == "" {
		return apperrors.New("cli", apperrors.ErrInvalidInput, "-corpus is required in fit mode")
	}
	if p.RefreshCache && p.Mode != modeFit {
		return apperrors.New("cli", apperrors.ErrInvalidInput, "-refresh-cache only applies to fit mode")
	}
	if p.Query == "" {
		return apperrors.New("cli", apperrors.ErrInvalidInput, "-query is required")
	}
	if p.Alpha == nil {
		alpha := cfg.Retrieval.DefaultAlpha
		p.Alpha = &alpha
	}
	if p.TopK == 0 {
		p.TopK = cfg.Retrieval.DefaultTopK
	}
	return nil
}

// run wires the pipeline from cfg, ingests or loads, answers one query and
// writes the JSON result to out.
func run(ctx context.Context, cfg *config.Config, p params, out io.Writer) error {
	if err := p.resolve(cfg); err != nil {
		return err
	}

	checker := health.NewChecker()
	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		m = metrics.New(reg)
		shutdown := metrics.StartServer(cfg.Metrics.Port, reg, checker)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(shutdownCtx)
		}()
	}

	index, closeIndex, err := vectorindex.Open(ctx, cfg, m)
	if err != nil {
		return fmt.Errorf("opening %s index: %w", cfg.Index.Backend, err)
	}
	defer closeIndex()
	if pinger, ok := index.(interface{ Ping(context.Context) error }); ok {
		checker.Register("index", health.PingCheck(pinger.Ping, false))
	}

	store, err := openStateStore(ctx, cfg, checker)
	if err != nil {
		return err
	}

	var kv embedder.KV
	if cfg.Embedder.CacheEnabled {
		client, err := pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, embedding cache disabled", "error", err)
		} else {
			defer client.Close()
			kv = client
			checker.Register("redis", health.PingCheck(client.Ping, true))
			slog.Info("embedding cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}
	emb, err := embedder.FromConfig(cfg, kv, m)
	if err != nil {
		return apperrors.Newf("cli", apperrors.ErrInvalidInput, "%v", err)
	}

	var collector *analytics.Collector
	if cfg.Analytics.Enabled {
		producer := kafka.NewProducer(cfg.Kafka)
		defer producer.Close()
		collector = analytics.NewCollector(producer, analytics.Options{BufferSize: cfg.Analytics.BufferSize})
		collector.Start(ctx)
		defer collector.Close()
	}

	opts, err := retriever.OptionsFromConfig(cfg)
	if err != nil {
		return err
	}
	r, err := retriever.New(retriever.Deps{
		Embedder:  emb,
		Index:     index,
		Store:     store,
		Analytics: collector,
		Metrics:   m,
	}, opts)
	if err != nil {
		return err
	}
	checker.Register("retriever", func(context.Context) health.ComponentHealth {
		if s := r.State(); s != retriever.StateServing {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: s.String()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})

	switch p.Mode {
	case modeFit:
		docs, err := corpus.ReadFile(p.CorpusPath)
		if err != nil {
			return err
		}
		slog.Info("corpus loaded", "path", p.CorpusPath, "docs", len(docs))
		if p.RefreshCache {
			cached, err := emb.Invalidate(ctx)
			if err != nil {
				return err
			}
			if !cached {
				slog.Warn("no embedding cache configured, nothing to refresh")
			}
		}
		if err := r.Ingest(ctx, docs); err != nil {
			return err
		}
	case modeLoad:
		if err := r.LoadState(ctx); err != nil {
			return err
		}
		if err := r.IndexExisting(ctx); err != nil {
			return err
		}
	}

	hits, err := r.Query(ctx, p.Query, *p.Alpha, p.TopK)
	if err != nil {
		return err
	}
	if hits == nil {
		hits = []vectorindex.Hit{}
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(output{Query: p.Query, Alpha: *p.Alpha, TopK: p.TopK, Hits: hits})
}

func openStateStore(ctx context.Context, cfg *config.Config, checker *health.Checker) (encoderstate.Store, error) {
	switch cfg.State.Store {
	case "none":
		return nil, nil
	case "minio":
		client, err := pkgminio.NewClient(ctx, cfg.MinIO)
		if err != nil {
			return nil, err
		}
		checker.Register("object-store", health.PingCheck(func(ctx context.Context) error {
			return pkgminio.Ping(ctx, client, cfg.MinIO.Bucket)
		}, false))
		return encoderstate.NewMinIOStore(client, cfg.MinIO.Bucket, cfg.MinIO.Prefix), nil
	default:
		return encoderstate.NewLocalStore(cfg.State.Dir), nil
	}
}
