package encoderstate

import (
	"context"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/Hybrid-Search-Platform/internal/lexical"
	apperrors "github.com/Adithya-Monish-Kumar-K/Hybrid-Search-Platform/pkg/errors"
)

// Save writes stats to store under name. Saves targeting the same name must
// be serialised by the caller; concurrent writers race on the final blob.
func Save(ctx context.Context, store Store, name string, stats *lexical.TermStatistics, codec Codec) error {
	data, err := Marshal(stats, codec)
	if err != nil {
		return apperrors.Newf("save", apperrors.ErrInternal, "%v", err)
	}
	if err := store.Put(ctx, name, data); err != nil {
		return err
	}
	slog.Default().With("component", "encoder-state").Info("term statistics saved",
		"name", name,
		"codec", codec.String(),
		"bytes", len(data),
		"docs", stats.DocCount(),
		"terms", stats.VocabularySize(),
	)
	return nil
}

// Load reads stats back from store. A missing blob yields ErrNotFound; any
// blob that does not decode to valid statistics yields ErrCorruptState.
func Load(ctx context.Context, store Store, name string) (*lexical.TermStatistics, error) {
	data, err := store.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	stats, err := Unmarshal(data)
	if err != nil {
		return nil, apperrors.Newf("load", apperrors.ErrCorruptState, "%s: %v", name, err)
	}
	return stats, nil
}
