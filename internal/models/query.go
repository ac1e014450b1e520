package models

import "fmt"

// Confidence is the coarse reliability tier attached to a generated answer.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Valid reports whether c is one of the three tiers.
func (c Confidence) Valid() bool {
	switch c {
	case ConfidenceLow, ConfidenceMedium, ConfidenceHigh:
		return true
	}
	return false
}

// ConfidenceFromScore derives a tier from a similarity score in [0,1].
func ConfidenceFromScore(score float64) Confidence {
	switch {
	case score >= 0.85:
		return ConfidenceHigh
	case score >= 0.6:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// QueryRequest is a natural-language question against the document corpus.
type QueryRequest struct {
	Query    string  `json:"query"`
	TopK     int     `json:"top_k,omitempty"`
	MinScore float64 `json:"min_score,omitempty"` // relevance floor; evidence below it is excluded
}

// Validate ensures the request has valid fields and sets defaults.
func (q *QueryRequest) Validate() error {
	if q.Query == "" {
		return fmt.Errorf("query cannot be empty")
	}
	if q.TopK <= 0 {
		q.TopK = 5
	}
	if q.TopK > 50 {
		q.TopK = 50
	}
	return nil
}
