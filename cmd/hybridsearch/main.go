// Command hybridsearch ingests a corpus (or reuses a previously ingested
// one), answers a single hybrid query and prints the ranked hits as JSON.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/Hybrid-Search-Platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Hybrid-Search-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Hybrid-Search-Platform/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to config file (defaults apply when empty)")
	corpusPath := flag.String("corpus", "", "corpus file: one document per line, or .jsonl with id/text")
	query := flag.String("query", "", "query text")
	alpha := flag.Float64("alpha", 0, "dense weight in [0,1]; sparse weight is 1-alpha (default retrieval.defaultAlpha)")
	topK := flag.Int("top-k", 0, "number of hits to return")
	mode := flag.String("mode", modeFit, "fit: ingest the corpus; load: reuse persisted state and index")
	refreshCache := flag.Bool("refresh-cache", false, "drop cached embeddings for the configured model before fitting")
	flag.Parse()

	var alphaOverride *float64
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "alpha" {
			alphaOverride = alpha
		}
	})

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(apperrors.ExitInput)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, cfg, params{
		Mode:         *mode,
		CorpusPath:   *corpusPath,
		Query:        *query,
		Alpha:        alphaOverride,
		TopK:         *topK,
		RefreshCache: *refreshCache,
	}, os.Stdout)
	stop()

	if err != nil {
		code := apperrors.ExitCode(err)
		slog.Error("hybridsearch failed", "error", err, "exit_code", code)
		os.Exit(code)
	}
}
