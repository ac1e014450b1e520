// Package prompt assembles the instruction+context+question payload sent to
// the completion service.
package prompt

import (
	"fmt"
	"strings"

	"github.com/hyperjump/kotae/internal/models"
)

// header instructs the model on task and grounding rules.
const header = `You are an AI assistant that analyzes legal documents, insurance policies, and corporate policies with high accuracy and attention to detail.

CORE TASK:
Answer the user query using ONLY the document excerpts provided in the context.

USER QUERY:
%s

%s
INSTRUCTIONS:
1. Do NOT use any external knowledge beyond the context above
2. If the answer cannot be found in the context, state this clearly
3. Identify the specific excerpts that support your answer
4. Provide clear reasoning for your conclusions
5. Assess your confidence level in the answer (high/medium/low)

RESPONSE FORMAT:
Respond with a single JSON object with this structure:
{
    "answer": "Your clear and concise answer to the user's question",
    "supporting_clauses": [
        {
            "text": "Exact text from the document that supports your answer",
            "document_id": "The document ID from the context",
            "confidence_score": 0.85
        }
    ],
    "explanation": "How you arrived at this answer",
    "confidence": "high, medium, or low"
}

IMPORTANT: Respond ONLY with the JSON object. No markdown fences, no text outside the JSON.`

const noEvidenceContext = `[CONTEXT]
No supporting evidence was retrieved for this query. State clearly that no
supporting evidence was found in the document corpus, use "low" confidence,
and leave supporting_clauses empty.

`

// Builder assembles bounded prompts from ranked evidence.
type Builder struct {
	budgetChars int
}

// NewBuilder creates a builder whose assembled context is capped at
// budgetChars. Items never appear truncated: each is included whole or
// dropped, lowest-ranked first.
func NewBuilder(budgetChars int) *Builder {
	if budgetChars <= 0 {
		budgetChars = 8000
	}
	return &Builder{budgetChars: budgetChars}
}

// Build assembles the prompt for query over evidence, which must already be
// in retriever order (best first). With no evidence the prompt still goes
// out, instructing the model to report that nothing was found.
func (b *Builder) Build(query string, evidence []models.EvidenceItem) string {
	if len(evidence) == 0 {
		return fmt.Sprintf(header, query, noEvidenceContext)
	}

	var ctx strings.Builder
	ctx.WriteString("[CONTEXT]\n")
	used := ctx.Len()
	included := 0
	for i, ev := range evidence {
		section := fmt.Sprintf("Excerpt %d (document ID: %s, relevance %.3f):\n%s\n\n",
			i+1, ev.DocumentID, ev.Score, ev.Text)
		if used+len(section) > b.budgetChars && included > 0 {
			break
		}
		ctx.WriteString(section)
		used += len(section)
		included++
	}
	return fmt.Sprintf(header, query, ctx.String())
}
