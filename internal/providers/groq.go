package providers

const defaultGroqModel = "llama-3.1-8b-instant"

// NewGroqProvider returns a provider for Groq's OpenAI-compatible API.
func NewGroqProvider(keyName, apiKey, model string) *OpenAIProvider {
	if model == "" {
		model = defaultGroqModel
	}
	u, _ := BaseURL("groq")
	return NewOpenAIProvider("groq", u, keyName, apiKey, model)
}
