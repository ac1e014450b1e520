package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/hyperjump/kotae/internal/models"
)

// QdrantConfig holds connection settings for a Qdrant collection.
type QdrantConfig struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

// QdrantIndex is a minimal REST client to Qdrant. It assumes cosine distance
// and creates the collection if missing. Chunk IDs are carried in point
// payloads; point IDs are derived UUIDs since Qdrant does not accept
// arbitrary string IDs.
type QdrantIndex struct {
	cfg        QdrantConfig
	dimensions int
	client     *http.Client
}

// NewQdrantIndex creates the collection (cosine distance, fixed dimension)
// if it does not exist and returns a client bound to it.
func NewQdrantIndex(cfg QdrantConfig, dimensions int) (*QdrantIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("%w: dimensions must be positive", models.ErrConfiguration)
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: qdrant URL is required", models.ErrConfiguration)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	q := &QdrantIndex{
		cfg:        cfg,
		dimensions: dimensions,
		client:     &http.Client{Timeout: cfg.Timeout},
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimensions,
			"distance": "Cosine",
		},
	}
	// Qdrant returns 200 for an existing collection with the same schema.
	if err := q.do(context.Background(), http.MethodPut,
		fmt.Sprintf("%s/collections/%s", cfg.URL, cfg.Collection), body, nil); err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	return q, nil
}

// pointID maps a chunk ID onto a stable UUID accepted by Qdrant.
func pointID(chunkID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(chunkID)).String()
}

// Upsert writes points with their payloads, waiting for the write to apply.
func (q *QdrantIndex) Upsert(ctx context.Context, items []Item) error {
	if len(items) == 0 {
		return nil
	}
	points := make([]map[string]any, len(items))
	for i, item := range items {
		if len(item.Vector) != q.dimensions {
			return fmt.Errorf("%w: vector dimension mismatch: got %d, expected %d",
				models.ErrConfiguration, len(item.Vector), q.dimensions)
		}
		points[i] = map[string]any{
			"id":     pointID(item.ID),
			"vector": item.Vector,
			"payload": map[string]any{
				"chunk_id":    item.ID,
				"document_id": item.Payload.DocumentID,
				"chunk_index": item.Payload.ChunkIndex,
				"text":        item.Payload.Text,
			},
		}
	}
	body := map[string]any{"points": points}
	return q.do(ctx, http.MethodPut,
		fmt.Sprintf("%s/collections/%s/points?wait=true", q.cfg.URL, q.cfg.Collection), body, nil)
}

// Search returns the top-k points by cosine similarity.
func (q *QdrantIndex) Search(ctx context.Context, query []float32, topK int) ([]Result, error) {
	if len(query) != q.dimensions {
		return nil, fmt.Errorf("%w: query dimension mismatch: got %d, expected %d",
			models.ErrConfiguration, len(query), q.dimensions)
	}
	if topK <= 0 {
		return nil, nil
	}
	req := map[string]any{
		"vector":       query,
		"limit":        topK,
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := q.do(ctx, http.MethodPost,
		fmt.Sprintf("%s/collections/%s/points/search", q.cfg.URL, q.cfg.Collection), req, &resp); err != nil {
		return nil, err
	}
	results := make([]Result, 0, len(resp.Result))
	for _, r := range resp.Result {
		chunkID, _ := r.Payload["chunk_id"].(string)
		docID, _ := r.Payload["document_id"].(string)
		text, _ := r.Payload["text"].(string)
		idx, _ := r.Payload["chunk_index"].(float64)
		results = append(results, Result{
			ID:    chunkID,
			Score: r.Score,
			Payload: Payload{
				DocumentID: docID,
				ChunkIndex: int(idx),
				Text:       text,
			},
		})
	}
	return results, nil
}

// Delete removes points by chunk ID.
func (q *QdrantIndex) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	points := make([]string, len(ids))
	for i, id := range ids {
		points[i] = pointID(id)
	}
	body := map[string]any{"points": points}
	return q.do(ctx, http.MethodPost,
		fmt.Sprintf("%s/collections/%s/points/delete?wait=true", q.cfg.URL, q.cfg.Collection), body, nil)
}

// Count returns the number of points in the collection.
func (q *QdrantIndex) Count(ctx context.Context) (int, error) {
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	err := q.do(ctx, http.MethodPost,
		fmt.Sprintf("%s/collections/%s/points/count", q.cfg.URL, q.cfg.Collection),
		map[string]any{"exact": true}, &resp)
	if err != nil {
		return 0, err
	}
	return resp.Result.Count, nil
}

// Close is a no-op; the REST client holds no connection state.
func (q *QdrantIndex) Close() error {
	return nil
}

func (q *QdrantIndex) do(ctx context.Context, method, url string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if q.cfg.APIKey != "" {
		req.Header.Set("api-key", q.cfg.APIKey)
	}
	resp, err := q.client.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant request: %w", err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant error (status %d): %s", resp.StatusCode, string(respBody))
	}
	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
