package models

import (
	"errors"
	"testing"
)

func TestQueryRequest_Validate(t *testing.T) {
	q := &QueryRequest{Query: "What is the grace period?"}
	if err := q.Validate(); err != nil {
		t.Fatalf("valid query rejected: %v", err)
	}
	if q.TopK != 5 {
		t.Errorf("TopK default = %d, want 5", q.TopK)
	}

	empty := &QueryRequest{}
	if err := empty.Validate(); err == nil {
		t.Error("empty query should be rejected")
	}

	big := &QueryRequest{Query: "q", TopK: 500}
	if err := big.Validate(); err != nil {
		t.Fatal(err)
	}
	if big.TopK != 50 {
		t.Errorf("TopK clamp = %d, want 50", big.TopK)
	}
}

func TestConfidenceFromScore(t *testing.T) {
	tests := []struct {
		score float64
		want  Confidence
	}{
		{0.95, ConfidenceHigh},
		{0.85, ConfidenceHigh},
		{0.7, ConfidenceMedium},
		{0.6, ConfidenceMedium},
		{0.59, ConfidenceLow},
		{0, ConfidenceLow},
	}
	for _, tt := range tests {
		if got := ConfidenceFromScore(tt.score); got != tt.want {
			t.Errorf("ConfidenceFromScore(%v) = %s, want %s", tt.score, got, tt.want)
		}
	}
}

func TestConfidence_Valid(t *testing.T) {
	if !ConfidenceHigh.Valid() || !ConfidenceMedium.Valid() || !ConfidenceLow.Valid() {
		t.Error("tiers should be valid")
	}
	if Confidence("certain").Valid() {
		t.Error("unknown tier should be invalid")
	}
}

func TestStageError(t *testing.T) {
	err := NewStageError("retrieving", ErrRetrievalUnavailable)
	if !errors.Is(err, ErrRetrievalUnavailable) {
		t.Error("StageError should unwrap to sentinel")
	}
	if err.Stage != "retrieving" {
		t.Errorf("Stage = %s", err.Stage)
	}
}

func TestParseError(t *testing.T) {
	err := &ParseError{RawText: "I cannot answer this.", Reason: "no JSON object found"}
	if !errors.Is(err, ErrParseFailure) {
		t.Error("ParseError should unwrap to ErrParseFailure")
	}
	if err.RawText != "I cannot answer this." {
		t.Error("raw text should be preserved")
	}
}
