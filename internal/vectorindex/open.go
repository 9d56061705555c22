package vectorindex

import (
	"context"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/Hybrid-Search-Platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Hybrid-Search-Platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Hybrid-Search-Platform/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/Hybrid-Search-Platform/pkg/sqlite"
)

// Open builds the backend named by cfg.Index.Backend. The returned close
// func releases any database handle.
func Open(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (Index, func() error, error) {
	switch cfg.Index.Backend {
	case "", "memory":
		return NewMemoryIndex(m), func() error { return nil }, nil
	case "postgres":
		client, err := postgres.New(cfg.Postgres)
		if err != nil {
			return nil, nil, err
		}
		idx, err := NewSQLIndex(ctx, client.DB, Postgres, m)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return idx, client.Close, nil
	case "sqlite":
		db, err := sqlite.Open(ctx, cfg.SQLite)
		if err != nil {
			return nil, nil, err
		}
		idx, err := NewSQLIndex(ctx, db, SQLite, m)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return idx, db.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown index backend %q", cfg.Index.Backend)
}
