package llm

import (
	"os"
	"strings"
)

// Provider identifies a model provider.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderCerebras  Provider = "cerebras"
	ProviderOllama    Provider = "ollama"
	ProviderOpenAI    Provider = "openai"
)

const cerebrasBaseURL = "https://api.cerebras.ai/v1"

// ParseModelString parses a model string into provider and model name.
//
// Supported formats:
//
//	"cerebras/gpt-oss-120b"    → (cerebras, "gpt-oss-120b")
//	"ollama/llama3.2"          → (ollama, "llama3.2")
//	"openai/gpt-4o"            → (openai, "gpt-4o")
//	"claude-sonnet-4-20250514" → (anthropic, "claude-sonnet-4-20250514")
//	"gpt-4o"                   → (openai, "gpt-4o")
func ParseModelString(model string) (Provider, string) {
	if i := strings.Index(model, "/"); i > 0 {
		prefix := strings.ToLower(model[:i])
		name := model[i+1:]
		switch prefix {
		case "cerebras":
			return ProviderCerebras, name
		case "ollama":
			return ProviderOllama, name
		case "openai":
			return ProviderOpenAI, name
		case "anthropic":
			return ProviderAnthropic, name
		}
	}

	// No prefix, infer from model name patterns
	lower := strings.ToLower(model)
	if strings.HasPrefix(lower, "claude") {
		return ProviderAnthropic, model
	}
	if strings.HasPrefix(lower, "gpt-") || strings.HasPrefix(lower, "o1") || strings.HasPrefix(lower, "o3") || strings.HasPrefix(lower, "o4") {
		return ProviderOpenAI, model
	}

	// Check env vars as a last resort
	if os.Getenv("CEREBRAS_API_KEY") != "" {
		return ProviderCerebras, model
	}
	if os.Getenv("OLLAMA_HOST") != "" {
		return ProviderOllama, model
	}
	if os.Getenv("OPENAI_API_KEY") != "" {
		return ProviderOpenAI, model
	}

	return ProviderAnthropic, model
}

// NewClientForModel creates the appropriate model client based on the model string.
//
// Environment variables used:
//
//	ANTHROPIC_API_KEY  Anthropic API key (read by the SDK automatically)
//	CEREBRAS_API_KEY   Cerebras API key
//	OPENAI_API_KEY     OpenAI API key
//	OPENAI_BASE_URL    custom OpenAI-compatible base URL
//	OLLAMA_HOST        Ollama server address (default http://localhost:11434)
func NewClientForModel(model string) (Client, string) {
	provider, modelName := ParseModelString(model)

	switch provider {
	case ProviderCerebras:
		return NewOpenAICompatibleClient(cerebrasBaseURL, os.Getenv("CEREBRAS_API_KEY")), modelName

	case ProviderOllama:
		host := os.Getenv("OLLAMA_HOST")
		return NewOllamaClient(host), modelName

	case ProviderOpenAI:
		apiKey := os.Getenv("OPENAI_API_KEY")
		baseURL := os.Getenv("OPENAI_BASE_URL")
		if baseURL != "" {
			return NewOpenAICompatibleClient(baseURL, apiKey), modelName
		}
		return NewOpenAIClient(apiKey), modelName

	default: // ProviderAnthropic
		return NewAnthropicClient(), modelName
	}
}
