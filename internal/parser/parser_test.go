package parser

import (
	"errors"
	"strings"
	"testing"

	"github.com/hyperjump/kotae/internal/models"
)

func TestParse_CleanJSON(t *testing.T) {
	p := New()
	raw := `{"answer": "The deductible is $500.", "supporting_clauses": [{"text": "Section 2: Deductible is $500.", "document_id": "policy_1", "confidence_score": 0.91}], "explanation": "Stated directly in section 2.", "confidence": "high"}`

	result, err := p.Parse(raw, nil)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if result.Answer != "The deductible is $500." {
		t.Errorf("unexpected answer: %q", result.Answer)
	}
	if result.Confidence != models.ConfidenceHigh {
		t.Errorf("confidence = %q, want high", result.Confidence)
	}
	if len(result.SupportingClauses) != 1 {
		t.Fatalf("got %d clauses, want 1", len(result.SupportingClauses))
	}
	clause := result.SupportingClauses[0]
	if clause.DocumentID != "policy_1" || clause.ConfidenceScore != 0.91 {
		t.Errorf("unexpected clause: %+v", clause)
	}
	if result.Explanation != "Stated directly in section 2." {
		t.Errorf("unexpected explanation: %q", result.Explanation)
	}
}

func TestParse_JSONWrappedInProse(t *testing.T) {
	p := New()
	raw := `Here is the answer: {"answer": "30 days", "supporting_clauses": [], "explanation": "", "confidence": "high"}`

	result, err := p.Parse(raw, nil)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if result.Answer != "30 days" {
		t.Errorf("answer = %q, want %q", result.Answer, "30 days")
	}
	if result.Confidence != models.ConfidenceHigh {
		t.Errorf("confidence = %q, want high", result.Confidence)
	}
}

func TestParse_NoJSONIsParseFailure(t *testing.T) {
	p := New()
	raw := "I cannot answer this."

	_, err := p.Parse(raw, nil)
	if err == nil {
		t.Fatal("expected error for completion with no JSON")
	}
	if !errors.Is(err, models.ErrParseFailure) {
		t.Errorf("error %v does not match ErrParseFailure", err)
	}
	var parseErr *models.ParseError
	if !errors.As(err, &parseErr) {
		t.Fatal("expected *models.ParseError")
	}
	if parseErr.RawText != raw {
		t.Errorf("RawText = %q, want the original completion", parseErr.RawText)
	}
}

func TestParse_CodeFence(t *testing.T) {
	p := New()
	raw := "```json\n{\"answer\": \"Yes, knee surgery is covered.\", \"confidence\": \"medium\"}\n```"

	result, err := p.Parse(raw, nil)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if result.Answer != "Yes, knee surgery is covered." {
		t.Errorf("unexpected answer: %q", result.Answer)
	}
	if result.Confidence != models.ConfidenceMedium {
		t.Errorf("confidence = %q, want medium", result.Confidence)
	}
}

func TestParse_BracesInsideStrings(t *testing.T) {
	p := New()
	raw := `{"answer": "Use the form {claim-id} from the portal.", "confidence": "low"}`

	result, err := p.Parse(raw, nil)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if !strings.Contains(result.Answer, "{claim-id}") {
		t.Errorf("brace inside string mangled: %q", result.Answer)
	}
}

func TestParse_EscapedQuotesInsideStrings(t *testing.T) {
	p := New()
	raw := `{"answer": "The policy says \"30 days\" explicitly.", "confidence": "high"}`

	result, err := p.Parse(raw, nil)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if !strings.Contains(result.Answer, `"30 days"`) {
		t.Errorf("escaped quotes mangled: %q", result.Answer)
	}
}

func TestParse_StrayBraceBeforeObject(t *testing.T) {
	p := New()
	raw := `{oops} then the real payload {"answer": "covered", "confidence": "medium"}`

	result, err := p.Parse(raw, nil)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if result.Answer != "covered" {
		t.Errorf("answer = %q, want %q", result.Answer, "covered")
	}
}

func TestParse_MissingAnswerFallsBackToRaw(t *testing.T) {
	p := New()
	raw := `{"confidence": "high", "explanation": "see section 3"}`

	result, err := p.Parse(raw, nil)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if result.Answer != raw {
		t.Errorf("answer = %q, want the raw completion", result.Answer)
	}
	// A fallback answer is never trusted beyond low, whatever the payload
	// claimed.
	if result.Confidence != models.ConfidenceLow {
		t.Errorf("confidence = %q, want low", result.Confidence)
	}
}

func TestParse_InvalidConfidenceDerivedFromEvidence(t *testing.T) {
	p := New()
	evidence := []models.EvidenceItem{
		{ChunkID: "d_0", DocumentID: "d", Text: "x", Score: 0.9},
		{ChunkID: "d_1", DocumentID: "d", Text: "y", Score: 0.4},
	}

	tests := []struct {
		name string
		raw  string
		want models.Confidence
	}{
		{"missing", `{"answer": "a"}`, models.ConfidenceHigh},
		{"misspelled", `{"answer": "a", "confidence": "hihg"}`, models.ConfidenceHigh},
		{"numeric", `{"answer": "a", "confidence": 0.9}`, models.ConfidenceHigh},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := p.Parse(tt.raw, evidence)
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}
			if result.Confidence != tt.want {
				t.Errorf("confidence = %q, want %q", result.Confidence, tt.want)
			}
		})
	}
}

func TestParse_ConfidenceDerivationNoEvidence(t *testing.T) {
	p := New()
	result, err := p.Parse(`{"answer": "a"}`, nil)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if result.Confidence != models.ConfidenceLow {
		t.Errorf("confidence = %q, want low with no evidence", result.Confidence)
	}
}

func TestParse_MalformedClausesDroppedIndividually(t *testing.T) {
	p := New()
	raw := `{"answer": "a", "confidence": "medium", "supporting_clauses": [
		{"text": "valid clause", "document_id": "d1", "confidence_score": 0.8},
		"not an object",
		{"document_id": "missing-text"},
		{"text": "", "document_id": "empty-text"},
		{"text": "score out of range", "document_id": "d2", "confidence_score": 1.7},
		{"text": "no doc id", "confidence_score": 0.5}
	]}`

	result, err := p.Parse(raw, nil)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(result.SupportingClauses) != 3 {
		t.Fatalf("got %d clauses, want 3: %+v", len(result.SupportingClauses), result.SupportingClauses)
	}
	if result.SupportingClauses[0].Text != "valid clause" {
		t.Errorf("unexpected first clause: %+v", result.SupportingClauses[0])
	}
	if result.SupportingClauses[1].ConfidenceScore != 1.0 {
		t.Errorf("out-of-range score not clamped: %v", result.SupportingClauses[1].ConfidenceScore)
	}
	if result.SupportingClauses[2].DocumentID != "" {
		t.Errorf("missing document_id should default empty: %+v", result.SupportingClauses[2])
	}
}

func TestParse_ClausesWrongTypeIgnored(t *testing.T) {
	p := New()
	raw := `{"answer": "a", "confidence": "low", "supporting_clauses": "none"}`

	result, err := p.Parse(raw, nil)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(result.SupportingClauses) != 0 {
		t.Errorf("got %d clauses, want 0", len(result.SupportingClauses))
	}
}

func TestParse_TruncatedOuterObjectRecoversInner(t *testing.T) {
	p := New()
	raw := `{ "wrapper": broken {"answer": "inner", "confidence": "low"}`

	result, err := p.Parse(raw, nil)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if result.Answer != "inner" {
		t.Errorf("answer = %q, want %q", result.Answer, "inner")
	}
}
