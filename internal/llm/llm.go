// Package llm provides the text generation backends used to write SQL. A
// backend is chosen once from configuration; there is no fallback chain.
package llm

import (
	"context"
	"strings"

	"github.com/kyleking/sql-agent/internal/config"
	"github.com/kyleking/sql-agent/internal/errors"
)

// Generator turns a prompt into text
type Generator interface {
	Generate(ctx context.Context, prompt string, temperature float64) (string, error)
}

// SystemPromptGenerator is a Generator that accepts a dedicated system prompt
type SystemPromptGenerator interface {
	Generator
	GenerateWithSystem(ctx context.Context, system, user string, temperature float64) (string, error)
}

// Named is implemented by generators that report which backend they use
type Named interface {
	GetName() string
}

// Provider names
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
	ProviderBedrock   = "bedrock"
)

// Default models per provider
const (
	DefaultOpenAIModel    = "gpt-4"
	DefaultAnthropicModel = "claude-3-5-sonnet-20241022"
	DefaultOllamaModel    = "llama2"
	DefaultBedrockModel   = "amazon.nova-lite-v1:0"
)

const defaultMaxTokens = 2048

// New builds the generator selected by cfg.Provider
func New(ctx context.Context, cfg config.LLMConfig) (Generator, error) {
	timeout := config.Duration(cfg.Timeout, defaultTimeout)

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	switch strings.ToLower(cfg.Provider) {
	case ProviderOpenAI:
		return asGenerator(NewOpenAI(cfg.APIKey, modelOr(cfg.Model, DefaultOpenAIModel), cfg.BaseURL, maxTokens, timeout))
	case ProviderAnthropic:
		return asGenerator(NewAnthropic(cfg.APIKey, modelOr(cfg.Model, DefaultAnthropicModel), cfg.BaseURL, maxTokens, timeout))
	case ProviderOllama, "":
		return asGenerator(NewOllama(cfg.BaseURL, modelOr(cfg.Model, DefaultOllamaModel), maxTokens, timeout))
	case ProviderBedrock:
		return asGenerator(NewBedrock(ctx, cfg.Region, modelOr(cfg.Model, DefaultBedrockModel), cfg.BedrockAPI, maxTokens))
	default:
		return nil, errors.NewConfigError("unsupported LLM provider: "+cfg.Provider, "llm.provider")
	}
}

// Name reports the backend name of g, or "unknown"
func Name(g Generator) string {
	if n, ok := g.(Named); ok {
		return n.GetName()
	}

	return "unknown"
}

// asGenerator keeps a failed constructor from yielding a typed nil
func asGenerator[T Generator](g T, err error) (Generator, error) {
	if err != nil {
		return nil, err
	}

	return g, nil
}

func modelOr(model, fallback string) string {
	if strings.TrimSpace(model) == "" {
		return fallback
	}

	return strings.TrimSpace(model)
}
