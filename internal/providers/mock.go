package providers

import (
	"context"
	"strings"
)

// Operation names passed through GenerateRequest.Operation.
const (
	OpGenerateSPARQL  = "generate_sparql"
	OpTranslate       = "translate"
	OpExtractEntities = "extract_entities"
)

// MockSPARQL is what the mock provider answers for query generation.
const MockSPARQL = "SELECT (COUNT(*) AS ?triples) WHERE { ?s ?p ?o }"

// MockProvider answers deterministically without network access.
type MockProvider struct{}

func NewMockProvider() *MockProvider { return &MockProvider{} }

func (m *MockProvider) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error) {
	_ = ctx
	info := ProviderInfo{Name: "mock", Model: "mock-llm-v1", Key: "mock"}
	var text string
	switch req.Operation {
	case OpTranslate:
		// the text to translate is the last line of the prompt
		lines := strings.Split(strings.TrimSpace(req.Prompt), "\n")
		text = strings.TrimSpace(lines[len(lines)-1])
	case OpExtractEntities:
		text = ""
	default:
		text = "```sparql\n" + MockSPARQL + "\n```"
	}
	return GenerateResponse{Text: text}, info, nil
}
