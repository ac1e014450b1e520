package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for the query pipeline. Capability failures abort the
// current query only; ErrConfiguration is fatal for the whole process.
var (
	// ErrConfiguration indicates invalid configuration (dimension mismatch,
	// bad chunk settings). No query can be served until it is fixed.
	ErrConfiguration = errors.New("configuration error")

	// ErrEmbeddingUnavailable indicates the embedding provider failed or is unreachable.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrRetrievalUnavailable indicates the vector index failed or returned malformed payloads.
	ErrRetrievalUnavailable = errors.New("retrieval unavailable")

	// ErrCompletionUnavailable indicates the completion provider failed or is unreachable.
	ErrCompletionUnavailable = errors.New("completion service unavailable")

	// ErrCompletionRejected indicates the completion provider refused the prompt.
	ErrCompletionRejected = errors.New("completion rejected")

	// ErrParseFailure indicates no structured answer could be recovered from the completion.
	ErrParseFailure = errors.New("response parse failure")

	// ErrTimeout indicates the per-query wall-clock budget was exceeded.
	ErrTimeout = errors.New("query timeout")
)

// StageError is a typed pipeline failure carrying the stage it originated from.
// It wraps one of the sentinel errors above, so errors.Is sees through it.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// NewStageError wraps err with the stage it occurred in.
func NewStageError(stage string, err error) *StageError {
	return &StageError{Stage: stage, Err: err}
}

// ParseError is returned when no JSON-like structure can be recovered from a
// completion. It keeps the raw text for diagnostics; it is never silently
// converted into a fabricated answer.
type ParseError struct {
	RawText string
	Reason  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%v: %s", ErrParseFailure, e.Reason)
}

func (e *ParseError) Unwrap() error { return ErrParseFailure }
