package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/hyperjump/kotae/internal/models"
)

func TestSQLiteStorage_CRUD(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	store, err := NewSQLiteStorage(path)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	ctx := context.Background()

	doc := &models.Document{
		ID:       "doc1",
		Title:    "Policy",
		Text:     "Section 1: Grace period is 30 days.",
		Metadata: map[string]interface{}{"source": "upload"},
	}
	if err := store.CreateDocument(ctx, doc); err != nil {
		t.Fatal(err)
	}
	if doc.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}

	got, err := store.GetDocument(ctx, "doc1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "Policy" || got.Text != doc.Text {
		t.Errorf("got %+v", got)
	}
	if got.Metadata["source"] != "upload" {
		t.Errorf("metadata lost: %+v", got.Metadata)
	}

	doc.Title = "Updated"
	if err := store.UpdateDocument(ctx, doc); err != nil {
		t.Fatal(err)
	}
	got, _ = store.GetDocument(ctx, "doc1")
	if got.Title != "Updated" {
		t.Errorf("expected Updated, got %s", got.Title)
	}

	list, err := store.ListDocuments(ctx, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Errorf("expected 1 doc, got %d", len(list))
	}

	if err := store.DeleteDocument(ctx, "doc1"); err != nil {
		t.Fatal(err)
	}
	_, err = store.GetDocument(ctx, "doc1")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestSQLiteStorage_UpdateMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	store, err := NewSQLiteStorage(path)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	err = store.UpdateDocument(context.Background(), &models.Document{ID: "ghost"})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteStorage_ReplaceChunks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chunks.db")
	store, err := NewSQLiteStorage(path)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	ctx := context.Background()

	doc := &models.Document{ID: "d1", Title: "T", Text: "alpha beta gamma"}
	if err := store.CreateDocument(ctx, doc); err != nil {
		t.Fatal(err)
	}

	first := []*models.Chunk{
		{ID: "d1_0", DocumentID: "d1", ChunkIndex: 0, StartOffset: 0, EndOffset: 10, Text: "alpha beta", TokenEstimate: 3},
		{ID: "d1_1", DocumentID: "d1", ChunkIndex: 1, StartOffset: 10, EndOffset: 16, Text: " gamma", TokenEstimate: 2},
	}
	if err := store.ReplaceChunks(ctx, "d1", first); err != nil {
		t.Fatal(err)
	}

	chunks, err := store.GetChunksByDocumentID(ctx, "d1")
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if chunks[0].ChunkIndex != 0 || chunks[1].ChunkIndex != 1 {
		t.Error("chunks not ordered by chunk_index")
	}
	if chunks[0].EndOffset != 10 || chunks[0].TokenEstimate != 3 {
		t.Errorf("offsets or token estimate lost: %+v", chunks[0])
	}

	// Replacing again must fully supersede the old set, not append to it.
	second := []*models.Chunk{
		{ID: "d1_0", DocumentID: "d1", ChunkIndex: 0, StartOffset: 0, EndOffset: 16, Text: "alpha beta gamma", TokenEstimate: 4},
	}
	if err := store.ReplaceChunks(ctx, "d1", second); err != nil {
		t.Fatal(err)
	}
	chunks, _ = store.GetChunksByDocumentID(ctx, "d1")
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk after replace, got %d", len(chunks))
	}

	got, err := store.GetChunk(ctx, "d1_0")
	if err != nil {
		t.Fatal(err)
	}
	if got.Text != "alpha beta gamma" {
		t.Errorf("unexpected chunk text: %q", got.Text)
	}
}

func TestSQLiteStorage_DeleteDocumentRemovesChunks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cascade.db")
	store, err := NewSQLiteStorage(path)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	ctx := context.Background()

	doc := &models.Document{ID: "d1", Text: "content"}
	if err := store.CreateDocument(ctx, doc); err != nil {
		t.Fatal(err)
	}
	chunks := []*models.Chunk{
		{ID: "d1_0", DocumentID: "d1", ChunkIndex: 0, EndOffset: 7, Text: "content", TokenEstimate: 1},
	}
	if err := store.ReplaceChunks(ctx, "d1", chunks); err != nil {
		t.Fatal(err)
	}

	if err := store.DeleteDocument(ctx, "d1"); err != nil {
		t.Fatal(err)
	}

	left, err := store.GetChunksByDocumentID(ctx, "d1")
	if err != nil {
		t.Fatal(err)
	}
	if len(left) != 0 {
		t.Errorf("expected no chunks after document delete, got %d", len(left))
	}

	n, err := store.CountChunks(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("CountChunks = %d, want 0", n)
	}
}

func TestSQLiteStorage_Counts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counts.db")
	store, err := NewSQLiteStorage(path)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		if err := store.CreateDocument(ctx, &models.Document{ID: id, Text: "t"}); err != nil {
			t.Fatal(err)
		}
	}

	n, err := store.CountDocuments(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("CountDocuments = %d, want 2", n)
	}
}
