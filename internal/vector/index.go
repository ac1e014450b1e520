// Package vector provides vector index implementations and a factory for creating them.
package vector

import (
	"context"
	"fmt"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/models"
)

// Payload is the chunk context stored alongside each vector so that search
// results can be turned into evidence without a storage round trip.
type Payload struct {
	DocumentID string `json:"document_id"`
	ChunkIndex int    `json:"chunk_index"`
	Text       string `json:"text"`
}

// Item is a vector to be stored with its payload. ID is the chunk ID.
type Item struct {
	ID      string
	Vector  []float32
	Payload Payload
}

// Result is a single vector search hit with its cosine similarity score.
type Result struct {
	ID      string
	Score   float64
	Payload Payload
}

// VectorIndex defines vector storage and cosine-similarity search.
// The dimension is fixed at construction; mismatched writes and queries are
// configuration errors, not per-query errors. Implementations must be safe
// for concurrent use.
type VectorIndex interface {
	Upsert(ctx context.Context, items []Item) error
	Search(ctx context.Context, query []float32, topK int) ([]Result, error)
	Delete(ctx context.Context, ids []string) error
	Count(ctx context.Context) (int, error)
	Close() error
}

// IndexType selects the vector index implementation.
type IndexType string

const (
	// IndexTypeMemory uses in-memory brute-force search. Good for small corpora and tests.
	IndexTypeMemory IndexType = "memory"
	// IndexTypeBolt persists vectors in a bbolt file with an in-memory search cache.
	IndexTypeBolt IndexType = "bolt"
	// IndexTypeQdrant uses a remote Qdrant collection over its REST API.
	IndexTypeQdrant IndexType = "qdrant"
)

// New creates the vector index selected by cfg.IndexType with the given
// dimension. Unknown types are a configuration error.
func New(cfg *config.RetrievalConfig, indexPath string, dimensions int) (VectorIndex, error) {
	switch IndexType(cfg.IndexType) {
	case IndexTypeMemory:
		return NewMemoryIndex(dimensions)
	case IndexTypeBolt:
		return NewBoltIndex(indexPath, dimensions)
	case IndexTypeQdrant:
		return NewQdrantIndex(QdrantConfig{
			URL:        cfg.QdrantURL,
			Collection: cfg.Collection,
		}, dimensions)
	default:
		return nil, fmt.Errorf("%w: unknown vector index type %q", models.ErrConfiguration, cfg.IndexType)
	}
}
