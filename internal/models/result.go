package models

import "time"

// EvidenceItem is a chunk judged relevant to a query, with its similarity score
// rescaled into [0,1]. Produced per query; never persisted on its own.
type EvidenceItem struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	ChunkIndex int     `json:"chunk_index"`
	Text       string  `json:"text"`
	Score      float64 `json:"score"`
}

// SupportingClause is a document excerpt the completion cited for its answer.
type SupportingClause struct {
	Text            string  `json:"text"`
	DocumentID      string  `json:"document_id"`
	ConfidenceScore float64 `json:"confidence_score"`
}

// QueryResult is the final structured answer for one query. Immutable after
// construction; owned by the caller that issued the query.
type QueryResult struct {
	QueryID            string                   `json:"query_id"`
	Answer             string                   `json:"answer"`
	Confidence         Confidence               `json:"confidence"`
	SupportingEvidence []EvidenceItem           `json:"supporting_evidence"`
	SupportingClauses  []SupportingClause       `json:"supporting_clauses"`
	Explanation        string                   `json:"explanation"`
	// InsufficientEvidence marks a completed query for which no chunk cleared
	// the relevance floor. It is a valid outcome, not an error.
	InsufficientEvidence bool                     `json:"insufficient_evidence,omitempty"`
	StageTimings         map[string]time.Duration `json:"stage_timings"`
}
