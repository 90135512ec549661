package cache

import (
	"context"
	"time"

	"catatusaha/backend/internal/domain"
)

// SuggestionCache holds catalog suggestion results keyed by kind and
// normalized query, so repeated keystrokes across terminals skip the store.
type SuggestionCache interface {
	Get(ctx context.Context, key string) ([]domain.CatalogEntry, bool, error)
	Set(ctx context.Context, key string, entries []domain.CatalogEntry, ttl time.Duration) error
}

type NoopSuggestionCache struct{}

func (NoopSuggestionCache) Get(_ context.Context, _ string) ([]domain.CatalogEntry, bool, error) {
	return nil, false, nil
}

func (NoopSuggestionCache) Set(_ context.Context, _ string, _ []domain.CatalogEntry, _ time.Duration) error {
	return nil
}
