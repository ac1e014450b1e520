package embedding

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/models"
)

func TestMockEmbedder_Deterministic(t *testing.T) {
	e := NewMockEmbedder(16)
	ctx := context.Background()
	a, err := e.Embed(ctx, "grace period")
	if err != nil {
		t.Fatal(err)
	}
	b, err := e.Embed(ctx, "grace period")
	if err != nil {
		t.Fatal(err)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatal("same text should yield identical embeddings")
		}
	}
	c, err := e.Embed(ctx, "deductible")
	if err != nil {
		t.Fatal(err)
	}
	same := true
	for i := range a {
		if a[i] != c[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("different texts should yield different embeddings")
	}
}

func TestMockEmbedder_UnitNorm(t *testing.T) {
	e := NewMockEmbedder(32)
	emb, err := e.Embed(context.Background(), "some text")
	if err != nil {
		t.Fatal(err)
	}
	var sum float64
	for _, v := range emb {
		sum += float64(v * v)
	}
	if math.Abs(sum-1.0) > 1e-4 {
		t.Errorf("embedding should be unit length, got norm^2 = %v", sum)
	}
}

func TestMockEmbedder_DefaultDimensions(t *testing.T) {
	e := NewMockEmbedder(0)
	if e.Dimensions() != 384 {
		t.Errorf("default dimensions = %d, want 384", e.Dimensions())
	}
}

func TestCache_LRUEviction(t *testing.T) {
	c := NewCache(2)
	c.Set("a", []float32{1})
	c.Set("b", []float32{2})
	c.Set("c", []float32{3}) // evicts a
	if _, ok := c.Get("a"); ok {
		t.Error("oldest entry should have been evicted")
	}
	if _, ok := c.Get("b"); !ok {
		t.Error("b should still be cached")
	}
	if c.Len() != 2 {
		t.Errorf("cache len = %d, want 2", c.Len())
	}
}

type countingEmbedder struct {
	*MockEmbedder
	calls int
}

func (e *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.calls++
	return e.MockEmbedder.Embed(ctx, text)
}

func (e *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.calls += len(texts)
	return e.MockEmbedder.EmbedBatch(ctx, texts)
}

func TestCachingEmbedder(t *testing.T) {
	inner := &countingEmbedder{MockEmbedder: NewMockEmbedder(8)}
	e := NewCachingEmbedder(inner, 10)
	ctx := context.Background()

	if _, err := e.Embed(ctx, "q"); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Embed(ctx, "q"); err != nil {
		t.Fatal(err)
	}
	if inner.calls != 1 {
		t.Errorf("repeat embed should be served from cache, inner calls = %d", inner.calls)
	}

	// Batch with one cached and one new text only computes the miss.
	embs, err := e.EmbedBatch(ctx, []string{"q", "r"})
	if err != nil {
		t.Fatal(err)
	}
	if len(embs) != 2 || embs[0] == nil || embs[1] == nil {
		t.Fatalf("unexpected batch result: %v", embs)
	}
	if inner.calls != 2 {
		t.Errorf("inner calls = %d, want 2", inner.calls)
	}
}

func TestNewEmbedder(t *testing.T) {
	e, err := NewEmbedder(&config.EmbeddingConfig{Provider: "mock", Dimensions: 8, CacheSize: 4})
	if err != nil {
		t.Fatal(err)
	}
	if e.Dimensions() != 8 {
		t.Errorf("dimensions = %d", e.Dimensions())
	}

	_, err = NewEmbedder(&config.EmbeddingConfig{Provider: "nope"})
	if !errors.Is(err, models.ErrConfiguration) {
		t.Errorf("unknown provider should be a configuration error, got %v", err)
	}
}
