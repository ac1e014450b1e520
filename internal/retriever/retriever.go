// Package retriever turns vector index hits into ranked evidence for a query.
package retriever

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/vector"
	"github.com/hyperjump/kotae/pkg/utils"
)

// Retriever queries the vector index and returns ranked evidence above a
// relevance floor. An empty result set is a valid outcome, not an error: it
// signals insufficient evidence downstream.
type Retriever struct {
	index  vector.VectorIndex
	logger *zap.Logger // optional; when set, logs debug events
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) Option {
	return func(r *Retriever) { r.logger = l }
}

// New creates a retriever over the given index.
func New(index vector.VectorIndex, opts ...Option) *Retriever {
	r := &Retriever{index: index}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Retrieve returns up to topK evidence items with score >= minScore, ordered
// by descending score. Equal scores order by lower chunk index, then by
// lexicographically lower document ID, so identical inputs always produce
// identical prompts. Index failures and malformed payloads surface as
// models.ErrRetrievalUnavailable; configuration errors pass through unchanged.
func (r *Retriever) Retrieve(ctx context.Context, queryVector []float32, topK int, minScore float64) ([]models.EvidenceItem, error) {
	results, err := r.index.Search(ctx, queryVector, topK)
	if err != nil {
		if errors.Is(err, models.ErrConfiguration) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", models.ErrRetrievalUnavailable, err)
	}

	evidence := make([]models.EvidenceItem, 0, len(results))
	for _, res := range results {
		if res.ID == "" || res.Payload.DocumentID == "" || res.Payload.Text == "" {
			return nil, fmt.Errorf("%w: malformed payload for hit %q", models.ErrRetrievalUnavailable, res.ID)
		}
		score := utils.Clamp01(res.Score)
		if score < minScore {
			continue
		}
		evidence = append(evidence, models.EvidenceItem{
			ChunkID:    res.ID,
			DocumentID: res.Payload.DocumentID,
			ChunkIndex: res.Payload.ChunkIndex,
			Text:       res.Payload.Text,
			Score:      score,
		})
	}

	sort.SliceStable(evidence, func(i, j int) bool {
		if evidence[i].Score != evidence[j].Score {
			return evidence[i].Score > evidence[j].Score
		}
		if evidence[i].ChunkIndex != evidence[j].ChunkIndex {
			return evidence[i].ChunkIndex < evidence[j].ChunkIndex
		}
		return evidence[i].DocumentID < evidence[j].DocumentID
	})

	if r.logger != nil {
		r.logger.Debug("retrieved evidence",
			zap.Int("hits", len(results)),
			zap.Int("above_floor", len(evidence)),
			zap.Float64("min_score", minScore))
	}
	return evidence, nil
}
