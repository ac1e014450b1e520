// Package embedding provides text embedding capabilities behind a single
// interface, with deterministic mock and remote provider implementations
// selected at configuration time.
package embedding

import (
	"context"
	"fmt"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/models"
)

// Embedder produces vector embeddings for text.
// Implementations must be safe for concurrent use and deterministic for
// identical input within one provider version.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

// NewEmbedder creates the embedder selected by cfg.Provider.
// Unknown providers are a configuration error.
func NewEmbedder(cfg *config.EmbeddingConfig) (Embedder, error) {
	var base Embedder
	switch cfg.Provider {
	case "mock":
		base = NewMockEmbedder(cfg.Dimensions)
	case "openai":
		e, err := NewOpenAIEmbedder(cfg)
		if err != nil {
			return nil, err
		}
		base = e
	default:
		return nil, fmt.Errorf("%w: unknown embedding provider %q", models.ErrConfiguration, cfg.Provider)
	}
	if cfg.CacheSize > 0 {
		return NewCachingEmbedder(base, cfg.CacheSize), nil
	}
	return base, nil
}
