// Package parser recovers a structured answer from raw completion text.
//
// Completions are treated as untyped payloads: models wrap JSON in prose or
// code fences, omit fields, and mistype values. The parser extracts the first
// balanced JSON object, then validates every field through an explicit
// schema-with-defaults step. Only the total absence of any JSON structure is
// a parse failure; everything else is repaired in place.
package parser

import (
	"encoding/json"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/pkg/utils"
)

// Parser validates raw completions into query results.
type Parser struct{}

// New creates a parser.
func New() *Parser {
	return &Parser{}
}

// Parse extracts the structured answer from raw. evidence is the ranked
// evidence the prompt was built from; it supplies the fallback confidence
// when the completion's own confidence field is missing or invalid.
//
// When no JSON object can be found at all, Parse returns a
// *models.ParseError carrying raw for diagnostics. It never fabricates an
// answer from nothing.
func (p *Parser) Parse(raw string, evidence []models.EvidenceItem) (*models.QueryResult, error) {
	obj, ok := extractJSONObject(raw)
	if !ok {
		return nil, &models.ParseError{RawText: raw, Reason: "no JSON object found in completion"}
	}

	result := &models.QueryResult{
		Answer:            parseAnswer(obj, raw),
		Confidence:        parseConfidence(obj, evidence),
		SupportingClauses: parseClauses(obj),
		Explanation:       parseExplanation(obj),
	}
	// A missing or empty answer falls back to the full raw text and is never
	// trusted beyond low confidence.
	if answer, present := obj["answer"].(string); !present || answer == "" {
		result.Confidence = models.ConfidenceLow
	}
	return result, nil
}

// extractJSONObject finds the first balanced JSON object substring in raw
// that decodes successfully. Balance tracking is string- and escape-aware so
// braces inside quoted values do not confuse it.
func extractJSONObject(raw string) (map[string]interface{}, bool) {
	for start := 0; start < len(raw); start++ {
		if raw[start] != '{' {
			continue
		}
		end, ok := findBalancedEnd(raw, start)
		if !ok {
			// Truncated object; an inner opener may still balance.
			continue
		}
		var obj map[string]interface{}
		if err := json.Unmarshal([]byte(raw[start:end+1]), &obj); err == nil {
			return obj, true
		}
		// Decoding failed (e.g. a stray brace in prose); try the next opener.
	}
	return nil, false
}

// findBalancedEnd returns the index of the '}' closing the object opened at
// start, skipping over string literals and escaped characters.
func findBalancedEnd(raw string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(raw); i++ {
		c := raw[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case !inString && c == '{':
			depth++
		case !inString && c == '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

func parseAnswer(obj map[string]interface{}, raw string) string {
	if answer, ok := obj["answer"].(string); ok && answer != "" {
		return answer
	}
	return raw
}

func parseConfidence(obj map[string]interface{}, evidence []models.EvidenceItem) models.Confidence {
	if s, ok := obj["confidence"].(string); ok {
		c := models.Confidence(s)
		if c.Valid() {
			return c
		}
	}
	return models.ConfidenceFromScore(maxScore(evidence))
}

// parseClauses validates supporting_clauses entry by entry. Malformed or
// missing entries are dropped individually; they never fail the whole parse.
func parseClauses(obj map[string]interface{}) []models.SupportingClause {
	items, ok := obj["supporting_clauses"].([]interface{})
	if !ok {
		return nil
	}
	clauses := make([]models.SupportingClause, 0, len(items))
	for _, item := range items {
		entry, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		text, ok := entry["text"].(string)
		if !ok || text == "" {
			continue
		}
		docID, _ := entry["document_id"].(string)
		score, _ := entry["confidence_score"].(float64)
		clauses = append(clauses, models.SupportingClause{
			Text:            text,
			DocumentID:      docID,
			ConfidenceScore: utils.Clamp01(score),
		})
	}
	return clauses
}

func parseExplanation(obj map[string]interface{}) string {
	if s, ok := obj["explanation"].(string); ok {
		return s
	}
	return ""
}

func maxScore(evidence []models.EvidenceItem) float64 {
	var max float64
	for _, ev := range evidence {
		if ev.Score > max {
			max = ev.Score
		}
	}
	return max
}
