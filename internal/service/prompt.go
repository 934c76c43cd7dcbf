package service

import (
	"fmt"

	"github.com/cloo-solutions/ragent/internal/domain"
)

const (
	basePersona      = "You are a helpful AI assistant."
	groundedPersona  = basePersona + " Use the provided context to answer, and cite the sources you rely on by their result number and source name. If the context does not contain the answer, say so."
	contextOpenMark  = "--- CONTEXT ---"
	contextCloseMark = "--- END CONTEXT ---"
)

// Prompt is the system instruction and final user message for synthesis.
type Prompt struct {
	System string
	User   string
}

// BuildPrompt selects the synthesis prompt for an intent. Intents that carry
// tool evidence wrap it in context markers ahead of the question; the rest
// send the query as is.
func BuildPrompt(intent domain.Intent, evidence, query string) Prompt {
	if !intent.UsesEvidence() {
		return Prompt{System: basePersona, User: query}
	}

	return Prompt{
		System: groundedPersona,
		User:   fmt.Sprintf("%s\n%s\n%s\n\nQuestion: %s", contextOpenMark, evidence, contextCloseMark, query),
	}
}
