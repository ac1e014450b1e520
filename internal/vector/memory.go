package vector

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hyperjump/kotae/internal/models"
)

// MemoryIndex is an in-memory vector index using brute-force cosine search.
// Suitable for tests and small corpora.
type MemoryIndex struct {
	dimensions int
	entries    map[string]memoryEntry
	mu         sync.RWMutex
}

type memoryEntry struct {
	vector  []float32
	payload Payload
}

// NewMemoryIndex creates an in-memory vector index with the given dimension.
func NewMemoryIndex(dimensions int) (*MemoryIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("%w: dimensions must be positive", models.ErrConfiguration)
	}
	return &MemoryIndex{
		dimensions: dimensions,
		entries:    make(map[string]memoryEntry),
	}, nil
}

// Upsert adds or replaces vectors by ID.
func (m *MemoryIndex) Upsert(ctx context.Context, items []Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, item := range items {
		if len(item.Vector) != m.dimensions {
			return fmt.Errorf("%w: vector dimension mismatch: got %d, expected %d",
				models.ErrConfiguration, len(item.Vector), m.dimensions)
		}
		vec := make([]float32, m.dimensions)
		copy(vec, item.Vector)
		m.entries[item.ID] = memoryEntry{vector: vec, payload: item.Payload}
	}
	return nil
}

// Search returns the top-k entries by cosine similarity, highest first.
// Equal scores are ordered by ID for a stable result.
func (m *MemoryIndex) Search(ctx context.Context, query []float32, topK int) ([]Result, error) {
	if len(query) != m.dimensions {
		return nil, fmt.Errorf("%w: query dimension mismatch: got %d, expected %d",
			models.ErrConfiguration, len(query), m.dimensions)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if topK <= 0 || len(m.entries) == 0 {
		return nil, nil
	}
	results := make([]Result, 0, len(m.entries))
	for id, e := range m.entries {
		results = append(results, Result{
			ID:      id,
			Score:   CosineSimilarity(query, e.vector),
			Payload: e.payload,
		})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	if topK > len(results) {
		topK = len(results)
	}
	return results[:topK], nil
}

// Delete removes vectors by ID. Unknown IDs are ignored.
func (m *MemoryIndex) Delete(ctx context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.entries, id)
	}
	return nil
}

// Count returns the number of vectors in the index.
func (m *MemoryIndex) Count(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries), nil
}

// Close is a no-op for MemoryIndex.
func (m *MemoryIndex) Close() error {
	return nil
}
