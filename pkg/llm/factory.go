package llm

import (
	"fmt"
	"strings"
)

// Provider identifies an LLM backend.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
)

// InferProvider guesses the provider from a model name.
func InferProvider(model string) (Provider, error) {
	switch {
	case strings.HasPrefix(model, "claude"):
		return ProviderAnthropic, nil
	case strings.HasPrefix(model, "gpt"), strings.HasPrefix(model, "o1"), strings.HasPrefix(model, "o3"):
		return ProviderOpenAI, nil
	default:
		return "", fmt.Errorf("cannot infer provider for model %q", model)
	}
}

// NewClient constructs a Client for the given provider.
func NewClient(provider Provider, apiKey, model string) (Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("missing API key for provider %s", provider)
	}
	switch provider {
	case ProviderAnthropic:
		return NewClaudeClient(apiKey, model), nil
	case ProviderOpenAI:
		return NewOpenAIClient(apiKey, model), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", provider)
	}
}
