package retriever

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/vector"
)

// stubIndex returns canned results or a canned error.
type stubIndex struct {
	results []vector.Result
	err     error
}

func (s *stubIndex) Upsert(ctx context.Context, items []vector.Item) error { return nil }
func (s *stubIndex) Search(ctx context.Context, query []float32, topK int) ([]vector.Result, error) {
	return s.results, s.err
}
func (s *stubIndex) Delete(ctx context.Context, ids []string) error  { return nil }
func (s *stubIndex) Count(ctx context.Context) (int, error)          { return len(s.results), nil }
func (s *stubIndex) Close() error                                    { return nil }

func hit(id, docID string, chunkIndex int, score float64) vector.Result {
	return vector.Result{
		ID:    id,
		Score: score,
		Payload: vector.Payload{
			DocumentID: docID,
			ChunkIndex: chunkIndex,
			Text:       "text of " + id,
		},
	}
}

func TestRetrieve_SortedDescending(t *testing.T) {
	r := New(&stubIndex{results: []vector.Result{
		hit("a_0", "a", 0, 0.5),
		hit("a_1", "a", 1, 0.9),
		hit("b_0", "b", 0, 0.7),
	}})
	evidence, err := r.Retrieve(context.Background(), []float32{1}, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(evidence) != 3 {
		t.Fatalf("expected 3 items, got %d", len(evidence))
	}
	for i := 1; i < len(evidence); i++ {
		if evidence[i].Score > evidence[i-1].Score {
			t.Errorf("evidence not sorted by descending score at %d", i)
		}
	}
	if evidence[0].ChunkID != "a_1" {
		t.Errorf("top item = %s, want a_1", evidence[0].ChunkID)
	}
}

func TestRetrieve_TieBreak(t *testing.T) {
	// Equal scores: lower chunk index wins, then lower document ID.
	r := New(&stubIndex{results: []vector.Result{
		hit("z_2", "z", 2, 0.8),
		hit("a_2", "a", 2, 0.8),
		hit("z_1", "z", 1, 0.8),
	}})
	evidence, err := r.Retrieve(context.Background(), []float32{1}, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"z_1", "a_2", "z_2"}
	for i, id := range want {
		if evidence[i].ChunkID != id {
			t.Errorf("position %d = %s, want %s", i, evidence[i].ChunkID, id)
		}
	}
}

func TestRetrieve_MinScoreFilter(t *testing.T) {
	r := New(&stubIndex{results: []vector.Result{
		hit("a_0", "a", 0, 0.9),
		hit("a_1", "a", 1, 0.3),
	}})
	evidence, err := r.Retrieve(context.Background(), []float32{1}, 10, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	if len(evidence) != 1 || evidence[0].ChunkID != "a_0" {
		t.Errorf("expected only the strong hit, got %+v", evidence)
	}
}

func TestRetrieve_MinScoreAboveRange(t *testing.T) {
	// A floor above the valid score range yields an empty set, never an error.
	r := New(&stubIndex{results: []vector.Result{
		hit("a_0", "a", 0, 1.0),
	}})
	evidence, err := r.Retrieve(context.Background(), []float32{1}, 10, 1.1)
	if err != nil {
		t.Fatal(err)
	}
	if len(evidence) != 0 {
		t.Errorf("expected empty evidence, got %d items", len(evidence))
	}
}

func TestRetrieve_ScoreClamped(t *testing.T) {
	r := New(&stubIndex{results: []vector.Result{
		hit("a_0", "a", 0, 1.4),
	}})
	evidence, err := r.Retrieve(context.Background(), []float32{1}, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if evidence[0].Score != 1.0 {
		t.Errorf("score should be clamped to 1.0, got %v", evidence[0].Score)
	}
}

func TestRetrieve_IndexUnreachable(t *testing.T) {
	r := New(&stubIndex{err: fmt.Errorf("connection refused")})
	_, err := r.Retrieve(context.Background(), []float32{1}, 10, 0)
	if !errors.Is(err, models.ErrRetrievalUnavailable) {
		t.Errorf("index failure should map to ErrRetrievalUnavailable, got %v", err)
	}
}

func TestRetrieve_MalformedPayload(t *testing.T) {
	r := New(&stubIndex{results: []vector.Result{
		{ID: "a_0", Score: 0.9}, // missing document ID and text
	}})
	_, err := r.Retrieve(context.Background(), []float32{1}, 10, 0)
	if !errors.Is(err, models.ErrRetrievalUnavailable) {
		t.Errorf("malformed payload should map to ErrRetrievalUnavailable, got %v", err)
	}
}

func TestRetrieve_ConfigurationErrorPassesThrough(t *testing.T) {
	r := New(&stubIndex{err: fmt.Errorf("%w: dimension mismatch", models.ErrConfiguration)})
	_, err := r.Retrieve(context.Background(), []float32{1}, 10, 0)
	if !errors.Is(err, models.ErrConfiguration) {
		t.Errorf("configuration errors should pass through, got %v", err)
	}
	if errors.Is(err, models.ErrRetrievalUnavailable) {
		t.Error("configuration errors must not be downgraded to retrieval errors")
	}
}

func TestRetrieve_EmptyIsNotAnError(t *testing.T) {
	r := New(&stubIndex{})
	evidence, err := r.Retrieve(context.Background(), []float32{1}, 10, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	if len(evidence) != 0 {
		t.Errorf("expected empty evidence, got %d", len(evidence))
	}
}
