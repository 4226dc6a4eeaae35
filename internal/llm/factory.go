package llm

import (
	"strings"

	"github.com/ppiankov/hopqa/internal/model"
	"github.com/rotisserie/eris"
)

// NewProvider creates a provider based on configuration
func NewProvider(config Config) (Provider, error) {
	provider := strings.ToLower(config.Provider)

	switch provider {
	case "openai":
		return NewOpenAIProvider(config)

	case "anthropic", "claude":
		return NewAnthropicProvider(config)

	case "ollama":
		return NewOllamaProvider(config)

	case "openai-compatible", "compat", "vllm":
		return NewCompatProvider(config)

	case "":
		return nil, eris.New("no oracle provider configured")

	default:
		return nil, eris.Errorf("unknown LLM provider: %s (supported: openai, anthropic, ollama, openai-compatible)", config.Provider)
	}
}

// ConfigFromModel converts model.LLMConfig to llm.Config
func ConfigFromModel(c model.LLMConfig) Config {
	return Config{
		Provider:   c.Provider,
		APIKey:     c.APIKey,
		BaseURL:    c.BaseURL,
		Timeout:    c.Timeout,
		HTTPProxy:  c.HTTPProxy,
		HTTPSProxy: c.HTTPSProxy,
		NoProxy:    c.NoProxy,
	}
}
