package retriever

import (
	"time"

	"github.com/Adithya-Monish-Kumar-K/Hybrid-Search-Platform/internal/encoderstate"
	"github.com/Adithya-Monish-Kumar-K/Hybrid-Search-Platform/internal/lexical"
	"github.com/Adithya-Monish-Kumar-K/Hybrid-Search-Platform/internal/vectorindex"
	"github.com/Adithya-Monish-Kumar-K/Hybrid-Search-Platform/pkg/config"
)

type Options struct {
	IndexName        string
	Metric           vectorindex.Metric
	Encoder          lexical.Encoder
	EmbedConcurrency int
	IndexTimeout     time.Duration
	MaxTopK          int
	StateName        string
	Codec            encoderstate.Codec
}

// OptionsFromConfig derives retriever options from a validated config.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	metric, err := vectorindex.ParseMetric(cfg.Index.Metric)
	if err != nil {
		return Options{}, err
	}
	codec, err := encoderstate.ParseCodec(cfg.State.Compression)
	if err != nil {
		return Options{}, err
	}
	analyzer := lexical.NewAnalyzer(lexical.AnalyzerOptions{
		StopWords:       cfg.Encoder.StopWords,
		KeepStopWords:   cfg.Encoder.KeepStopWords,
		DisableStemming: cfg.Encoder.DisableStemming,
	})
	return Options{
		IndexName:        cfg.Index.Name,
		Metric:           metric,
		Encoder:          lexical.NewEncoder(cfg.Encoder.K1, cfg.Encoder.B).WithAnalyzer(analyzer),
		EmbedConcurrency: cfg.Retrieval.EmbedConcurrency,
		IndexTimeout:     cfg.Index.Timeout,
		MaxTopK:          cfg.Retrieval.MaxTopK,
		StateName:        cfg.State.Name,
		Codec:            codec,
	}, nil
}

func (o *Options) applyDefaults() {
	if o.IndexName == "" {
		o.IndexName = "hybrid-search"
	}
	if o.Metric == "" {
		o.Metric = vectorindex.MetricDotProduct
	}
	if o.Encoder.K1 <= 0 {
		o.Encoder = lexical.NewEncoder(lexical.DefaultK1, lexical.DefaultB).WithAnalyzer(o.Encoder.Analyzer)
	}
	if o.EmbedConcurrency <= 0 {
		o.EmbedConcurrency = 4
	}
	if o.MaxTopK <= 0 {
		o.MaxTopK = 100
	}
	if o.StateName == "" {
		o.StateName = "bm25_values.hsts"
	}
}
