package vector

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"go.etcd.io/bbolt"

	"github.com/hyperjump/kotae/internal/models"
)

var bucketVectors = []byte("vectors")

// BoltIndex persists vectors in a bbolt file. Search runs against an
// in-memory cache loaded at open time, so reads never touch disk.
type BoltIndex struct {
	db         *bbolt.DB
	dimensions int
	mu         sync.RWMutex
	entries    map[string]memoryEntry
}

type storedVector struct {
	Vector  []float32 `json:"v"`
	Payload Payload   `json:"p"`
}

// NewBoltIndex opens or creates a bbolt-backed index at path.
// Parent directories are created if they do not exist.
func NewBoltIndex(path string, dimensions int) (*BoltIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("%w: dimensions must be positive", models.ErrConfiguration)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create index directory: %w", err)
		}
	}
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open vector index: %w", err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketVectors)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create vectors bucket: %w", err)
	}

	idx := &BoltIndex{
		db:         db,
		dimensions: dimensions,
		entries:    make(map[string]memoryEntry),
	}
	if err := idx.load(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return idx, nil
}

// load reads all stored vectors into the in-memory cache. Entries whose
// dimension does not match the configured dimension are a fatal mismatch
// (the file belongs to a differently configured index).
func (b *BoltIndex) load() error {
	return b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketVectors)
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(k, v []byte) error {
			var stored storedVector
			if err := json.Unmarshal(v, &stored); err != nil {
				return nil // skip corrupted entries
			}
			if len(stored.Vector) != b.dimensions {
				return fmt.Errorf("%w: stored vector dimension %d, index configured for %d",
					models.ErrConfiguration, len(stored.Vector), b.dimensions)
			}
			b.entries[string(k)] = memoryEntry{vector: stored.Vector, payload: stored.Payload}
			return nil
		})
	})
}

// Upsert adds or replaces vectors, writing through to disk.
func (b *BoltIndex) Upsert(ctx context.Context, items []Item) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketVectors)
		for _, item := range items {
			if len(item.Vector) != b.dimensions {
				return fmt.Errorf("%w: vector dimension mismatch: got %d, expected %d",
					models.ErrConfiguration, len(item.Vector), b.dimensions)
			}
			data, err := json.Marshal(storedVector{Vector: item.Vector, Payload: item.Payload})
			if err != nil {
				return err
			}
			if err := bucket.Put([]byte(item.ID), data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, item := range items {
		vec := make([]float32, b.dimensions)
		copy(vec, item.Vector)
		b.entries[item.ID] = memoryEntry{vector: vec, payload: item.Payload}
	}
	return nil
}

// Search returns the top-k entries by cosine similarity, highest first.
func (b *BoltIndex) Search(ctx context.Context, query []float32, topK int) ([]Result, error) {
	if len(query) != b.dimensions {
		return nil, fmt.Errorf("%w: query dimension mismatch: got %d, expected %d",
			models.ErrConfiguration, len(query), b.dimensions)
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if topK <= 0 || len(b.entries) == 0 {
		return nil, nil
	}
	results := make([]Result, 0, len(b.entries))
	for id, e := range b.entries {
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

// Delete removes vectors by ID from disk and cache.
func (b *BoltIndex) Delete(ctx context.Context, ids []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketVectors)
		for _, id := range ids {
			if err := bucket.Delete([]byte(id)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, id := range ids {
		delete(b.entries, id)
	}
	return nil
}

// Count returns the number of vectors in the index.
func (b *BoltIndex) Count(ctx context.Context) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries), nil
}

// Close closes the underlying database.
func (b *BoltIndex) Close() error {
	return b.db.Close()
}
