// Package models defines core data structures for documents, chunks, queries, and answers.
package models

import "time"

// Document represents a stored document with its extracted text and metadata.
// Documents are immutable once ingested; reprocessing replaces them wholesale.
type Document struct {
	ID        string                 `json:"id" db:"id"`
	Title     string                 `json:"title" db:"title"`
	Text      string                 `json:"text" db:"text"`
	Metadata  map[string]interface{} `json:"metadata" db:"metadata"`
	CreatedAt time.Time              `json:"created_at" db:"created_at"`
	UpdatedAt time.Time              `json:"updated_at" db:"updated_at"`
}

// Chunk is a contiguous substring of a document's text, produced by the chunker.
// ChunkIndex is strictly increasing and contiguous per document; StartOffset and
// EndOffset locate the chunk text within the document.
type Chunk struct {
	ID            string    `json:"id" db:"id"`
	DocumentID    string    `json:"document_id" db:"document_id"`
	ChunkIndex    int       `json:"chunk_index" db:"chunk_index"`
	StartOffset   int       `json:"start_offset" db:"start_offset"`
	EndOffset     int       `json:"end_offset" db:"end_offset"`
	Text          string    `json:"text" db:"text"`
	TokenEstimate int       `json:"token_estimate" db:"token_estimate"`
	Embedding     []float32 `json:"-" db:"-"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// DocumentInput is the input for ingesting a document.
type DocumentInput struct {
	ID       string                 `json:"id,omitempty"`
	Title    string                 `json:"title,omitempty"`
	Text     string                 `json:"text"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}
