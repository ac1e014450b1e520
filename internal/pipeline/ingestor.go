// Package pipeline wires chunking, embedding, retrieval, prompting, completion
// and parsing into the two top-level flows: document ingestion and query
// answering.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/chunker"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/fileid"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vector"
)

// Ingestor brings documents into the corpus: chunk, embed, persist, index.
// A document is either fully ingested or not present at all; partial failures
// roll back both storage and the vector index.
type Ingestor struct {
	storage  storage.Storage
	embedder embedding.Embedder
	index    vector.VectorIndex
	chunker  *chunker.Chunker
	logger   *zap.Logger // optional; when set, logs debug events
}

// IngestorOption configures an Ingestor.
type IngestorOption func(*Ingestor)

// WithIngestLogger sets a logger for debug output (file ingested, document deleted, etc.).
func WithIngestLogger(l *zap.Logger) IngestorOption {
	return func(ing *Ingestor) { ing.logger = l }
}

// NewIngestor creates an ingestor with the given dependencies.
func NewIngestor(
	store storage.Storage,
	embedder embedding.Embedder,
	index vector.VectorIndex,
	ch *chunker.Chunker,
	opts ...IngestorOption,
) *Ingestor {
	ing := &Ingestor{
		storage:  store,
		embedder: embedder,
		index:    index,
		chunker:  ch,
	}
	for _, opt := range opts {
		opt(ing)
	}
	return ing
}

// IngestDocument ingests a document: chunk, embed, store, index vectors.
// Re-ingesting an existing ID replaces the previous chunk set and vectors, so
// the operation is idempotent. Chunking and embedding run before anything is
// written; a failure there leaves the previous version fully intact. Failures
// during the write phase restore the previous document and chunk set, so
// queries only ever see the old version or the new one. Returns the number of
// chunks produced.
func (ing *Ingestor) IngestDocument(ctx context.Context, input *models.DocumentInput) (int, error) {
	if input.ID == "" {
		input.ID = uuid.New().String()
	}
	doc := &models.Document{
		ID:       input.ID,
		Title:    input.Title,
		Text:     normalizeText(input.Text),
		Metadata: input.Metadata,
	}

	oldDoc, err := ing.storage.GetDocument(ctx, doc.ID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return 0, fmt.Errorf("failed to read existing document: %w", err)
	}
	var oldChunks []*models.Chunk
	if oldDoc != nil {
		oldChunks, err = ing.storage.GetChunksByDocumentID(ctx, doc.ID)
		if err != nil {
			return 0, fmt.Errorf("failed to read existing chunks: %w", err)
		}
	}

	// Stage phase: everything remote and fallible happens before any write.
	chunks := ing.chunker.Chunk(doc.ID, doc.Text)
	var embeddings [][]float32
	if len(chunks) > 0 {
		texts := make([]string, len(chunks))
		for i, ch := range chunks {
			texts[i] = ch.Text
		}
		embeddings, err = ing.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return 0, fmt.Errorf("failed to generate embeddings: %w", err)
		}
	}

	chunkPtrs := make([]*models.Chunk, len(chunks))
	items := make([]vector.Item, len(chunks))
	newIDs := make(map[string]struct{}, len(chunks))
	for i := range chunks {
		chunks[i].Embedding = embeddings[i]
		chunkPtrs[i] = &chunks[i]
		newIDs[chunks[i].ID] = struct{}{}
		items[i] = vector.Item{
			ID:     chunks[i].ID,
			Vector: embeddings[i],
			Payload: vector.Payload{
				DocumentID: chunks[i].DocumentID,
				ChunkIndex: chunks[i].ChunkIndex,
				Text:       chunks[i].Text,
			},
		}
	}
	// Overlapping chunk IDs are overwritten by the upsert; only old IDs
	// missing from the new set need an explicit delete.
	var staleIDs []string
	for _, ch := range oldChunks {
		if _, ok := newIDs[ch.ID]; !ok {
			staleIDs = append(staleIDs, ch.ID)
		}
	}

	// Write phase.
	if oldDoc != nil {
		if err := ing.storage.UpdateDocument(ctx, doc); err != nil {
			return 0, fmt.Errorf("failed to update document: %w", err)
		}
	} else if err := ing.storage.CreateDocument(ctx, doc); err != nil {
		return 0, fmt.Errorf("failed to store document: %w", err)
	}
	if err := ing.storage.ReplaceChunks(ctx, doc.ID, chunkPtrs); err != nil {
		ing.restore(ctx, doc.ID, oldDoc, oldChunks)
		return 0, fmt.Errorf("failed to store chunks: %w", err)
	}
	if len(staleIDs) > 0 {
		if err := ing.index.Delete(ctx, staleIDs); err != nil {
			ing.restore(ctx, doc.ID, oldDoc, oldChunks)
			return 0, fmt.Errorf("failed to drop stale vectors: %w", err)
		}
	}
	if len(items) > 0 {
		if err := ing.index.Upsert(ctx, items); err != nil {
			// An upsert can apply partially; clear whatever landed before
			// restoring the previous chunk set.
			if delErr := ing.index.Delete(ctx, itemIDs(items)); delErr != nil && ing.logger != nil {
				ing.logger.Warn("restore: vector delete failed", zap.String("doc_id", doc.ID), zap.Error(delErr))
			}
			ing.restore(ctx, doc.ID, oldDoc, oldChunks)
			return 0, fmt.Errorf("failed to index vectors: %w", err)
		}
	}

	if ing.logger != nil {
		ing.logger.Debug("document ingested",
			zap.String("doc_id", doc.ID),
			zap.Int("chunks", len(chunks)))
	}
	return len(chunks), nil
}

func itemIDs(items []vector.Item) []string {
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	return ids
}

// restore returns storage to its pre-ingest state after a failed write: a new
// document is removed entirely, an existing one gets its previous record and
// chunk set back. Restore errors are logged and dropped; the original failure
// is what callers need to see.
func (ing *Ingestor) restore(ctx context.Context, docID string, oldDoc *models.Document, oldChunks []*models.Chunk) {
	if oldDoc == nil {
		if err := ing.storage.DeleteDocument(ctx, docID); err != nil && ing.logger != nil {
			ing.logger.Warn("restore: document delete failed", zap.String("doc_id", docID), zap.Error(err))
		}
		return
	}
	if err := ing.storage.UpdateDocument(ctx, oldDoc); err != nil && ing.logger != nil {
		ing.logger.Warn("restore: document restore failed", zap.String("doc_id", docID), zap.Error(err))
	}
	if err := ing.storage.ReplaceChunks(ctx, docID, oldChunks); err != nil && ing.logger != nil {
		ing.logger.Warn("restore: chunk restore failed", zap.String("doc_id", docID), zap.Error(err))
	}
}

// chunkIDs returns the IDs of a document's stored chunks, or nil when the
// document does not exist.
func (ing *Ingestor) chunkIDs(ctx context.Context, docID string) ([]string, error) {
	if _, err := ing.storage.GetDocument(ctx, docID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	chunks, err := ing.storage.GetChunksByDocumentID(ctx, docID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(chunks))
	for i, ch := range chunks {
		ids[i] = ch.ID
	}
	return ids, nil
}

// ReprocessDocument re-chunks and re-embeds a stored document from its
// persisted text, replacing chunks and vectors atomically. Used after a
// chunking config change.
func (ing *Ingestor) ReprocessDocument(ctx context.Context, docID string) (int, error) {
	doc, err := ing.storage.GetDocument(ctx, docID)
	if err != nil {
		return 0, err
	}
	return ing.IngestDocument(ctx, &models.DocumentInput{
		ID:       doc.ID,
		Title:    doc.Title,
		Text:     doc.Text,
		Metadata: doc.Metadata,
	})
}

// DeleteDocument removes a document from the vector index and storage.
func (ing *Ingestor) DeleteDocument(ctx context.Context, docID string) error {
	if ing.logger != nil {
		ing.logger.Debug("deleting document", zap.String("doc_id", docID))
	}
	ids, err := ing.chunkIDs(ctx, docID)
	if err != nil {
		return fmt.Errorf("failed to get chunks: %w", err)
	}
	if ids == nil {
		return fmt.Errorf("document %s: %w", docID, storage.ErrNotFound)
	}
	if len(ids) > 0 {
		if err := ing.index.Delete(ctx, ids); err != nil {
			return fmt.Errorf("failed to delete vectors: %w", err)
		}
	}
	if err := ing.storage.DeleteDocument(ctx, docID); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

const (
	metaKeySourcePath  = "source_path"
	metaKeySourceMtime = "source_mtime"
	metaKeySourceSize  = "source_size"
)

// IngestFile reads a file from path and ingests it as plain text. The
// document ID is derived from the absolute path so re-ingesting updates the
// same document. If allowedExts is non-empty, the file's extension must be in
// the list (case-insensitive). Skips the file when it is already ingested
// with the same mtime and size.
func (ing *Ingestor) IngestFile(ctx context.Context, path string, allowedExts []string) (int, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return 0, fmt.Errorf("absolute path: %w", err)
	}
	ext := strings.ToLower(filepath.Ext(absPath))
	if len(allowedExts) > 0 && !extensionAllowed(ext, allowedExts) {
		return 0, fmt.Errorf("extension %q not in allowed list", ext)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return 0, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return 0, fmt.Errorf("not a regular file: %s", absPath)
	}
	docID := fileid.FileDocID(absPath)
	if ing.fileUnchanged(ctx, absPath, docID, info) {
		if ing.logger != nil {
			ing.logger.Debug("skipping unchanged file", zap.String("path", absPath))
		}
		return 0, nil
	}
	content, err := os.ReadFile(absPath)
	if err != nil {
		return 0, fmt.Errorf("read file: %w", err)
	}
	return ing.IngestDocument(ctx, &models.DocumentInput{
		ID:    docID,
		Title: filepath.Base(absPath),
		Text:  string(content),
		Metadata: map[string]interface{}{
			metaKeySourcePath:  absPath,
			metaKeySourceMtime: strconv.FormatInt(info.ModTime().UnixNano(), 10),
			metaKeySourceSize:  strconv.FormatInt(info.Size(), 10),
		},
	})
}

// fileUnchanged reports whether the file is already ingested with the same
// mtime and size.
func (ing *Ingestor) fileUnchanged(ctx context.Context, absPath, docID string, info os.FileInfo) bool {
	doc, err := ing.storage.GetDocument(ctx, docID)
	if err != nil || doc.Metadata == nil {
		return false
	}
	if doc.Metadata[metaKeySourcePath] != absPath {
		return false
	}
	// Values are stored as strings to avoid JSON float64 precision loss (UnixNano exceeds 53 bits).
	return metadataInt64(doc.Metadata, metaKeySourceMtime) == info.ModTime().UnixNano() &&
		metadataInt64(doc.Metadata, metaKeySourceSize) == info.Size()
}

func metadataInt64(m map[string]interface{}, key string) int64 {
	v, ok := m[key]
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case string:
		x, _ := strconv.ParseInt(n, 10, 64)
		return x
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}

// IngestDirectory walks dir recursively and ingests each regular file whose
// extension is in allowedExts (if non-empty; otherwise all files). onFile, if
// non-nil, is called after each file is processed, for progress reporting.
// Returns the number of files ingested and the first error encountered.
func (ing *Ingestor) IngestDirectory(ctx context.Context, dir string, allowedExts []string, onFile func(path string)) (n int, err error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return 0, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return 0, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("not a directory: %s", absDir)
	}
	err = filepath.WalkDir(absDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if len(allowedExts) > 0 && !extensionAllowed(ext, allowedExts) {
			return nil
		}
		// Resolve symlinks so we only ingest regular files
		finfo, statErr := os.Stat(path)
		if statErr != nil {
			return nil
		}
		if !finfo.Mode().IsRegular() {
			return nil
		}
		if _, ingestErr := ing.IngestFile(ctx, path, allowedExts); ingestErr != nil {
			return ingestErr
		}
		if onFile != nil {
			onFile(path)
		}
		n++
		return nil
	})
	return n, err
}

func extensionAllowed(ext string, allowed []string) bool {
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}

// normalizeText canonicalizes line endings and trims surrounding whitespace.
// It deliberately preserves interior newlines so chunk boundaries and offsets
// survive a round trip through storage.
func normalizeText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.TrimSpace(text)
}
