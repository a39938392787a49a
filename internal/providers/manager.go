package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"text2sparql/internal/config"
	"text2sparql/internal/util"

	"go.uber.org/zap"
)

type NamedLLMProvider struct {
	Ref      ProviderRef
	Provider LLMProvider
}

// Manager holds the configured providers and fails over between them in
// preference order. It is itself an LLMProvider.
type Manager struct {
	llmProviders []NamedLLMProvider
	log          *zap.Logger
}

func NewManager(cfg config.Config, log *zap.Logger) (*Manager, error) {
	if log == nil {
		log = zap.NewNop()
	}
	m := &Manager{log: log}
	for _, ref := range ParseProviderList(cfg.LLMProviders) {
		p, err := buildProvider(ref, cfg)
		if err != nil {
			return nil, err
		}
		m.llmProviders = append(m.llmProviders, NamedLLMProvider{Ref: ref, Provider: p})
	}
	if len(m.llmProviders) == 0 {
		m.llmProviders = []NamedLLMProvider{{Ref: ProviderRef{Raw: "mock", Name: "mock"}, Provider: NewMockProvider()}}
	}
	return m, nil
}

// NewManagerWith wraps already-built providers, in order.
func NewManagerWith(log *zap.Logger, providers ...NamedLLMProvider) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{llmProviders: providers, log: log}
}

func (m *Manager) LLMCount() int {
	return len(m.llmProviders)
}

func (m *Manager) LLMProviderByIndex(i int) (LLMProvider, ProviderRef) {
	if len(m.llmProviders) == 0 {
		return NewMockProvider(), ProviderRef{Raw: "mock", Name: "mock"}
	}
	if i < 0 || i >= len(m.llmProviders) {
		i = 0
	}
	return m.llmProviders[i].Provider, m.llmProviders[i].Ref
}

func (m *Manager) PreferredLLMOrder() []int {
	return preferredOrder(len(m.llmProviders), func(i int) string { return strings.ToLower(m.llmProviders[i].Ref.Name) })
}

func preferredOrder(n int, nameAt func(i int) string) []int {
	if n <= 0 {
		return nil
	}
	out := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if nameAt(i) != "mock" {
			out = append(out, i)
		}
	}
	for i := 0; i < n; i++ {
		if nameAt(i) == "mock" {
			out = append(out, i)
		}
	}
	return out
}

func (m *Manager) FindLLMProviderByName(name string) (LLMProvider, ProviderRef, bool) {
	target := strings.ToLower(strings.TrimSpace(name))
	if target == "" {
		return nil, ProviderRef{}, false
	}
	for i := range m.llmProviders {
		if strings.ToLower(m.llmProviders[i].Ref.Name) == target {
			return m.llmProviders[i].Provider, m.llmProviders[i].Ref, true
		}
	}
	return nil, ProviderRef{}, false
}

// Generate tries each provider in preference order and returns the first
// success. A context-too-long error is not retried elsewhere since every
// provider receives the same prompt. When all fail the last error is returned
// wrapped in its util sentinel.
func (m *Manager) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error) {
	var (
		lastErr  error
		lastInfo ProviderInfo
	)
	for _, i := range m.PreferredLLMOrder() {
		if err := ctx.Err(); err != nil {
			return GenerateResponse{}, lastInfo, err
		}
		p, ref := m.LLMProviderByIndex(i)
		resp, info, err := p.Generate(ctx, req)
		if err == nil {
			return resp, info, nil
		}
		kind := ClassifyError(err)
		m.log.Warn("llm provider failed",
			zap.String("provider", ref.Raw),
			zap.String("operation", req.Operation),
			zap.String("error_type", string(kind)),
			zap.Error(err))
		lastErr, lastInfo = err, info
		if kind == ErrorContext || errors.Is(err, context.Canceled) {
			break
		}
	}
	if lastErr == nil {
		return GenerateResponse{}, lastInfo, errors.New("no llm providers configured")
	}
	return GenerateResponse{}, lastInfo, fmt.Errorf("%w: %w", ClassifyError(lastErr).Sentinel(), lastErr)
}

func buildProvider(ref ProviderRef, cfg config.Config) (LLMProvider, error) {
	name := strings.ToLower(ref.Name)
	switch name {
	case "mock":
		return NewMockProvider(), nil
	case "ollama":
		return NewOllamaProvider(ref.KeyAlias, cfg.LLMBaseURL), nil
	case "gemini":
		key := cfg.APIKey(ref.KeyAlias)
		if key == "" {
			return nil, fmt.Errorf("%w: no api key for provider %s", util.ErrConfiguration, ref.Raw)
		}
		return NewGeminiProvider(ref.KeyAlias, key, cfg.LLMModel), nil
	}
	baseURL, ok := BaseURL(name)
	if !ok {
		return nil, fmt.Errorf("%w: unsupported provider: %s", util.ErrConfiguration, ref.Name)
	}
	if cfg.LLMBaseURL != "" {
		baseURL = cfg.LLMBaseURL
	}
	key := cfg.APIKey(ref.KeyAlias)
	if key == "" {
		return nil, fmt.Errorf("%w: no api key for provider %s", util.ErrConfiguration, ref.Raw)
	}
	if name == "groq" {
		return NewGroqProvider(ref.KeyAlias, key, cfg.LLMModel), nil
	}
	return NewOpenAIProvider(name, baseURL, ref.KeyAlias, key, cfg.LLMModel), nil
}
