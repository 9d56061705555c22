package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Hybrid-Search-Platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Hybrid-Search-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Hybrid-Search-Platform/pkg/logger"
)

func init() {
	logger.Discard()
}

func testConfig(t *testing.T, backend string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Embedder.Dimension = 64
	cfg.Index.Backend = backend
	cfg.SQLite.Path = filepath.Join(dir, "index.db")
	cfg.State.Dir = filepath.Join(dir, "state")
	require.NoError(t, cfg.Validate())
	return cfg
}

func writeCorpus(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "docs.txt")
	body := "In 2019, I visited Hungary\nIn 2020, I visited Czech Republic\nIn 2021, I visited Georgia\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func decode(t *testing.T, buf *bytes.Buffer) output {
	t.Helper()
	var out output
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	return out
}

func ptr(f float64) *float64 { return &f }

func TestRunFitMode(t *testing.T) {
	cfg := testConfig(t, "memory")
	var buf bytes.Buffer
	err := run(context.Background(), cfg, params{
		CorpusPath: writeCorpus(t),
		Query:      "Which year did I visit Georgia?",
		TopK:       2,
	}, &buf)
	require.NoError(t, err)

	out := decode(t, &buf)
	assert.Equal(t, 0.5, out.Alpha)
	assert.Equal(t, 2, out.TopK)
	require.Len(t, out.Hits, 2)
	assert.Equal(t, "doc-2", out.Hits[0].ID)
	assert.Equal(t, "In 2021, I visited Georgia", out.Hits[0].Payload)
	assert.FileExists(t, filepath.Join(cfg.State.Dir, cfg.State.Name))
}

func TestRunFitModeRefreshWithoutCache(t *testing.T) {
	cfg := testConfig(t, "memory")
	var buf bytes.Buffer
	err := run(context.Background(), cfg, params{
		CorpusPath:   writeCorpus(t),
		Query:        "Hungary",
		Alpha:        ptr(0),
		TopK:         1,
		RefreshCache: true,
	}, &buf)
	require.NoError(t, err)
	assert.Equal(t, "doc-0", decode(t, &buf).Hits[0].ID)
}

func TestRunLoadModeReusesSQLiteIndex(t *testing.T) {
	cfg := testConfig(t, "sqlite")
	ctx := context.Background()

	var fitOut bytes.Buffer
	require.NoError(t, run(ctx, cfg, params{
		Mode:       modeFit,
		CorpusPath: writeCorpus(t),
		Query:      "Hungary",
		Alpha:      ptr(0.2),
		TopK:       3,
	}, &fitOut))

	var loadOut bytes.Buffer
	require.NoError(t, run(ctx, cfg, params{
		Mode:  modeLoad,
		Query: "Hungary",
		Alpha: ptr(0.2),
		TopK:  3,
	}, &loadOut))

	assert.Equal(t, decode(t, &fitOut), decode(t, &loadOut))
	assert.Equal(t, "doc-0", decode(t, &loadOut).Hits[0].ID)
}

func TestRunErrors(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		cfg  func(t *testing.T) *config.Config
		p    params
		code int
	}{
		{
			name: "missing query",
			cfg:  func(t *testing.T) *config.Config { return testConfig(t, "memory") },
			p:    params{CorpusPath: "docs.txt"},
			code: apperrors.ExitInput,
		},
		{
			name: "missing corpus in fit mode",
			cfg:  func(t *testing.T) *config.Config { return testConfig(t, "memory") },
			p:    params{Query: "q"},
			code: apperrors.ExitInput,
		},
		{
			name: "unknown mode",
			cfg:  func(t *testing.T) *config.Config { return testConfig(t, "memory") },
			p:    params{Mode: "train", Query: "q"},
			code: apperrors.ExitInput,
		},
		{
			name: "alpha out of range",
			cfg:  func(t *testing.T) *config.Config { return testConfig(t, "memory") },
			p:    params{CorpusPath: writeCorpus(t), Query: "q", Alpha: ptr(1.5)},
			code: apperrors.ExitInput,
		},
		{
			name: "refresh cache outside fit mode",
			cfg:  func(t *testing.T) *config.Config { return testConfig(t, "memory") },
			p:    params{Mode: modeLoad, Query: "q", RefreshCache: true},
			code: apperrors.ExitInput,
		},
		{
			name: "load without persisted state",
			cfg:  func(t *testing.T) *config.Config { return testConfig(t, "memory") },
			p:    params{Mode: modeLoad, Query: "q"},
			code: apperrors.ExitState,
		},
		{
			name: "corrupt persisted state",
			cfg: func(t *testing.T) *config.Config {
				cfg := testConfig(t, "memory")
				require.NoError(t, os.MkdirAll(cfg.State.Dir, 0o755))
				require.NoError(t, os.WriteFile(filepath.Join(cfg.State.Dir, cfg.State.Name), []byte("garbage"), 0o644))
				return cfg
			},
			p:    params{Mode: modeLoad, Query: "q"},
			code: apperrors.ExitState,
		},
		{
			name: "empty corpus",
			cfg:  func(t *testing.T) *config.Config { return testConfig(t, "memory") },
			p: params{
				CorpusPath: func() string {
					path := filepath.Join(t.TempDir(), "empty.txt")
					require.NoError(t, os.WriteFile(path, []byte("\n\n"), 0o644))
					return path
				}(),
				Query: "q",
			},
			code: apperrors.ExitInput,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			err := run(ctx, tt.cfg(t), tt.p, &buf)
			require.Error(t, err)
			assert.Equal(t, tt.code, apperrors.ExitCode(err))
			assert.Zero(t, buf.Len())
		})
	}
}
