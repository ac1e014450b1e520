package vector

import (
	"errors"
	"math"
	"testing"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/models"
)

func TestCosineSimilarity(t *testing.T) {
	if got := CosineSimilarity([]float32{1, 0}, []float32{1, 0}); math.Abs(got-1) > 1e-6 {
		t.Errorf("identical vectors = %v, want 1", got)
	}
	if got := CosineSimilarity([]float32{1, 0}, []float32{0, 1}); got != 0 {
		t.Errorf("orthogonal vectors = %v, want 0", got)
	}
	// Opposed vectors clamp to 0 rather than going negative.
	if got := CosineSimilarity([]float32{1, 0}, []float32{-1, 0}); got != 0 {
		t.Errorf("opposed vectors = %v, want 0", got)
	}
	if got := CosineSimilarity([]float32{1, 0}, []float32{1}); got != 0 {
		t.Errorf("mismatched lengths = %v, want 0", got)
	}
}

func TestNew_Factory(t *testing.T) {
	idx, err := New(&config.RetrievalConfig{IndexType: "memory"}, "", 4)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := idx.(*MemoryIndex); !ok {
		t.Errorf("expected MemoryIndex, got %T", idx)
	}

	_, err = New(&config.RetrievalConfig{IndexType: "hnsw"}, "", 4)
	if !errors.Is(err, models.ErrConfiguration) {
		t.Errorf("unknown index type should be a configuration error, got %v", err)
	}
}
