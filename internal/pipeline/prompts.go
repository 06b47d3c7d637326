package pipeline

import (
	"fmt"
	"strings"

	"github.com/ericlam1114/datasynthetix-api/internal/model"
)

const extractSystemPrompt = `You are a document clause extractor for compliance and policy documents.
Identify the distinct clauses, obligations and statements in the provided text and return them verbatim, one per line.
Do not rewrite, summarize or merge clauses. Do not add commentary.`

const classifySystemPrompt = `You are a clause classifier for organizational policy documents.
Classify the provided clauses by operational importance.
Respond with exactly one of the following labels and nothing else: Critical, Important, Standard.`

const duplicateSystemPrompt = `You are a synthetic data generator for organizational policy documents.
Rewrite the provided clauses as a single coherent variant that preserves the organization's language style, terminology and obligations while changing the wording.
Return only the rewritten text.`

func buildDuplicatePrompt(clauses []string, classification model.Classification) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Importance: %s\n\nClauses:\n", classification)
	for _, clause := range clauses {
		b.WriteString(clause)
		b.WriteString("\n")
	}
	return b.String()
}
