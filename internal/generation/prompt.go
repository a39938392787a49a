package generation

import (
	"strings"
)

// PromptInput is everything one attempt's prompt is built from. The previous
// attempt is an explicit field so an empty previous text is still
// distinguishable from the first attempt.
type PromptInput struct {
	SystemPrompt string
	Question     string
	Shape        string

	HasPrevious bool
	// Previous is the last candidate query, or the LLM error text when no
	// query was produced.
	Previous string
	// PreviousError is the execution diagnostic of the previous query, when
	// the data source reported one.
	PreviousError string
}

// BuildPrompt assembles, in order: system prompt, user query, shape
// constraints, the expected-query cue, and the previous failed attempt.
func BuildPrompt(in PromptInput) string {
	var b strings.Builder
	if s := strings.TrimSpace(in.SystemPrompt); s != "" {
		b.WriteString(s)
		b.WriteString("\n\n")
	}
	b.WriteString("### User Query\n")
	b.WriteString(strings.TrimSpace(in.Question))
	b.WriteString("\n\n### Shape Constraints\n")
	b.WriteString(strings.TrimSpace(in.Shape))
	b.WriteString("\n\n### Expected SPARQL Query\n")
	b.WriteString("Answer with a single ```sparql code block.\n")
	if in.HasPrevious {
		b.WriteString("\n### Previous attempt (failed)\n")
		b.WriteString(in.Previous)
		b.WriteString("\n")
		if in.PreviousError != "" {
			b.WriteString("Execution error: ")
			b.WriteString(in.PreviousError)
			b.WriteString("\n")
		}
		b.WriteString("The previous attempt did not return a valid result. Correct it and return only the fixed SPARQL query.\n")
	}
	return b.String()
}
