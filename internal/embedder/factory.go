package embedder

import (
	"fmt"
	"os"
	"strings"
)

// Config holds embedder configuration
type Config struct {
	Provider  string // jina, openai, ollama, local; empty auto-detects
	APIKey    string
	Model     string
	BaseURL   string
	Dimension int
	CacheSize int // zero disables the embedding cache
}

// New creates an embedder with explicit configuration
func New(cfg Config) (Embedder, error) {
	var cache *Cache
	if cfg.CacheSize > 0 {
		cache = NewCache(cfg.CacheSize)
	}

	provider := strings.ToLower(cfg.Provider)
	if provider == "" {
		provider = DetectProvider(cfg.APIKey)
	}

	switch provider {
	case ProviderJina:
		cfg.APIKey = orDefault(cfg.APIKey, os.Getenv("JINA_API_KEY"))
		return NewJinaProvider(cfg, cache)
	case ProviderOpenAI:
		cfg.APIKey = orDefault(cfg.APIKey, os.Getenv("OPENAI_API_KEY"))
		return NewOpenAIProvider(cfg, cache)
	case ProviderOllama:
		return NewOllamaProvider(cfg, cache)
	case ProviderLocal:
		return NewLocalProvider(cfg, cache)
	default:
		return nil, fmt.Errorf("%w: unknown provider %s", ErrUnknownProvider, cfg.Provider)
	}
}

// DetectProvider picks a provider from the environment when none is configured.
// Priority: JINA_API_KEY, then OPENAI_API_KEY (or an explicit key), else local.
func DetectProvider(apiKey string) string {
	if os.Getenv("JINA_API_KEY") != "" {
		return ProviderJina
	}
	if os.Getenv("OPENAI_API_KEY") != "" || apiKey != "" {
		return ProviderOpenAI
	}
	return ProviderLocal
}

// DefaultDimension returns the vector size a provider produces when none is configured
func DefaultDimension(provider string) int {
	switch strings.ToLower(provider) {
	case ProviderJina:
		return JinaDimension
	case ProviderOpenAI:
		return OpenAIDimension
	case ProviderOllama:
		return OllamaDimension
	default:
		return LocalDimension
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func orDefaultInt(n, def int) int {
	if n <= 0 {
		return def
	}
	return n
}
