// Package answer builds grounded prompts from fused retrieval results and
// turns language-model replies into structured, citation-checked answers.
package answer

import (
	"fmt"
	"strings"

	"github.com/AssetOverflow/BibleStudyAI/internal/search"
)

// systemPrompt constrains the model to the supplied passages. The numbered
// citation format is load-bearing: parseCitations depends on it.
const systemPrompt = `You are a biblical studies assistant. Answer the question using ONLY the numbered passages provided in the message.

Rules:
- Cite every claim with the passage number in square brackets, e.g. [1] or [2][3].
- Use only the passage numbers that appear in the provided list.
- Quote book, chapter, and verse when referring to scripture.
- If the passages do not contain enough information to answer, say so plainly instead of guessing.
- Do not draw on knowledge outside the provided passages.`

// insufficientEvidenceText is returned without consulting the model when
// retrieval produced nothing to ground an answer on.
const insufficientEvidenceText = "I could not find passages relevant to this question in the corpus, so I cannot give a grounded answer. Try rephrasing the question or asking about a specific book, person, or event."

// excerptLimit bounds citation excerpts to keep responses compact.
const excerptLimit = 240

// buildUserPrompt renders the evidence block and the question as the final
// user message. Passages are numbered 1..K in fused rank order.
func buildUserPrompt(query string, results []*search.FusedResult) string {
	var sb strings.Builder
	sb.WriteString("Passages:\n\n")
	for i, r := range results {
		fmt.Fprintf(&sb, "[%d] %s\n%s\n\n", i+1, r.Reference, r.Content)
	}
	sb.WriteString("Question: ")
	sb.WriteString(query)
	return sb.String()
}

// excerpt returns the leading portion of a passage for citation display,
// cut at a rune boundary.
func excerpt(content string) string {
	runes := []rune(content)
	if len(runes) <= excerptLimit {
		return content
	}
	return strings.TrimSpace(string(runes[:excerptLimit])) + "..."
}
