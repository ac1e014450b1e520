// Package storage defines the persistence interface for documents and chunks.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/kotae/internal/models"
)

// ErrNotFound is returned when a document or chunk does not exist.
var ErrNotFound = errors.New("not found")

// Storage defines document and chunk persistence operations.
type Storage interface {
	// Document operations
	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	UpdateDocument(ctx context.Context, doc *models.Document) error
	DeleteDocument(ctx context.Context, id string) error
	ListDocuments(ctx context.Context, offset, limit int) ([]*models.Document, error)

	// Chunk operations
	GetChunk(ctx context.Context, id string) (*models.Chunk, error)
	GetChunksByDocumentID(ctx context.Context, docID string) ([]*models.Chunk, error)
	DeleteChunksByDocumentID(ctx context.Context, docID string) error

	// ReplaceChunks atomically swaps a document's chunk set: existing chunks
	// are deleted and the new ones inserted in a single transaction, so a
	// reprocess never leaves a document half-chunked.
	ReplaceChunks(ctx context.Context, docID string, chunks []*models.Chunk) error

	// Stats
	CountDocuments(ctx context.Context) (int64, error)
	CountChunks(ctx context.Context) (int64, error)

	Close() error
}
