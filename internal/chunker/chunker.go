// Package chunker splits document text into overlapping, bounded-size chunks
// with position metadata for retrieval.
package chunker

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/pkg/utils"
)

// Config holds chunking settings, all in characters.
type Config struct {
	// MaxChunkChars is the window size.
	MaxChunkChars int
	// OverlapChars is how much consecutive chunks share. Must be < MaxChunkChars.
	OverlapChars int
	// MinChunkChars is the drop-or-merge floor: a trailing fragment shorter
	// than this is merged into the previous chunk instead of emitted standalone.
	MinChunkChars int
	// BoundaryLookback is how far back from a hard cut to look for a
	// sentence or paragraph boundary before falling back to the hard cut.
	BoundaryLookback int
}

// Validate checks the configuration eagerly. Overlap at or above the window
// size can never advance and is rejected as a configuration error.
func (c Config) Validate() error {
	if c.MaxChunkChars <= 0 {
		return fmt.Errorf("%w: max_chunk_chars must be positive, got %d", models.ErrConfiguration, c.MaxChunkChars)
	}
	if c.OverlapChars < 0 {
		return fmt.Errorf("%w: overlap_chars must not be negative, got %d", models.ErrConfiguration, c.OverlapChars)
	}
	if c.OverlapChars >= c.MaxChunkChars {
		return fmt.Errorf("%w: overlap_chars (%d) must be smaller than max_chunk_chars (%d)",
			models.ErrConfiguration, c.OverlapChars, c.MaxChunkChars)
	}
	if c.MinChunkChars < 0 {
		return fmt.Errorf("%w: min_chunk_chars must not be negative, got %d", models.ErrConfiguration, c.MinChunkChars)
	}
	return nil
}

// Chunker splits text into overlapping character-window chunks, preferring
// sentence and paragraph boundaries over hard cuts.
type Chunker struct {
	cfg Config
}

// New creates a chunker, validating the configuration eagerly.
func New(cfg Config) (*Chunker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.BoundaryLookback <= 0 {
		cfg.BoundaryLookback = cfg.MaxChunkChars / 8
	}
	return &Chunker{cfg: cfg}, nil
}

// boundary markers in preference order: paragraph break, sentence end, line break.
var boundaryMarkers = []string{"\n\n", ". ", "! ", "? ", "\n"}

// Chunk splits text into chunks for docID. Empty text yields zero chunks.
// Chunking is deterministic: identical text and config always produce the
// identical chunk sequence, and chunk IDs are derived from docID and index.
// Each chunk's [StartOffset, EndOffset) is an exact substring position, and
// consecutive chunks overlap, so the original text is reconstructable by
// concatenating each chunk's non-overlapping suffix.
func (c *Chunker) Chunk(docID, text string) []models.Chunk {
	if len(text) == 0 {
		return nil
	}

	var chunks []models.Chunk
	pos := 0
	for pos < len(text) {
		end := pos + c.cfg.MaxChunkChars
		if end >= len(text) {
			end = len(text)
		} else {
			end = c.adjustToBoundary(text, pos, end)
			end = alignCut(text, end, pos)
		}
		chunks = append(chunks, c.newChunk(docID, len(chunks), text, pos, end))
		if end >= len(text) {
			break
		}
		next := end - c.cfg.OverlapChars
		if next <= pos {
			next = pos + 1 // always advance
		}
		pos = alignCut(text, next, pos)
	}

	// A trailing fragment below the floor is merged into the previous chunk.
	if n := len(chunks); n >= 2 {
		last := chunks[n-1]
		if last.EndOffset-last.StartOffset < c.cfg.MinChunkChars {
			prev := &chunks[n-2]
			prev.EndOffset = last.EndOffset
			prev.Text = text[prev.StartOffset:prev.EndOffset]
			prev.TokenEstimate = utils.EstimateTokens(prev.Text)
			chunks = chunks[:n-1]
		}
	}
	return chunks
}

// alignCut moves a byte cut back to the nearest rune start so multi-byte
// runes never split across chunks. When backing up would stall at min, the
// cut moves forward to the next rune start instead.
func alignCut(text string, i, min int) int {
	for i > min && i < len(text) && !utf8.RuneStart(text[i]) {
		i--
	}
	if i <= min {
		i = min + 1
		for i < len(text) && !utf8.RuneStart(text[i]) {
			i++
		}
	}
	return i
}

// adjustToBoundary moves a hard cut at end back to the nearest boundary marker
// within the lookback window. Falls back to the hard cut when no boundary exists.
func (c *Chunker) adjustToBoundary(text string, start, end int) int {
	windowStart := end - c.cfg.BoundaryLookback
	if windowStart <= start {
		windowStart = start + 1
	}
	window := text[windowStart:end]
	for _, marker := range boundaryMarkers {
		if i := strings.LastIndex(window, marker); i >= 0 {
			cut := windowStart + i + len(marker)
			if cut > start {
				return cut
			}
		}
	}
	return end
}

func (c *Chunker) newChunk(docID string, index int, text string, start, end int) models.Chunk {
	body := text[start:end]
	return models.Chunk{
		ID:            fmt.Sprintf("%s_%d", docID, index),
		DocumentID:    docID,
		ChunkIndex:    index,
		StartOffset:   start,
		EndOffset:     end,
		Text:          body,
		TokenEstimate: utils.EstimateTokens(body),
	}
}
