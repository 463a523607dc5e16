package llm

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/vinayprograms/callguard/config"
	"github.com/vinayprograms/callguard/guard"
)

// NewProvider creates an unguarded provider client.
// If Provider is empty, it is inferred from the Model name.
func NewProvider(ctx context.Context, cfg Config) (Provider, error) {
	if cfg.Provider == "" && cfg.Model != "" {
		cfg.Provider = InferProviderFromModel(cfg.Model)
		if cfg.Provider == "" {
			return nil, fmt.Errorf("cannot determine provider for model %q; set provider explicitly", cfg.Model)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Provider {
	case "anthropic":
		return NewAnthropicProvider(cfg)
	case "openai":
		return NewOpenAIProvider(cfg)
	case "google":
		return NewGoogleProvider(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
}

// FromConfig builds the named [providers.<name>] client and wraps it with
// the guard it references.
func FromConfig(ctx context.Context, cfg *config.Config, reg *guard.Registry, name string) (*GuardedProvider, error) {
	pc, ok := cfg.Providers[name]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", name)
	}
	if pc.Guard == "" {
		return nil, fmt.Errorf("provider %q has no guard", name)
	}
	g, ok := reg.Get(pc.Guard)
	if !ok {
		return nil, fmt.Errorf("provider %q: unknown guard %q", name, pc.Guard)
	}

	kind := pc.Provider
	if kind == "" && isKnownProvider(name) {
		kind = name
	}
	if kind == "" {
		kind = InferProviderFromModel(pc.Model)
	}
	if kind == "" {
		return nil, fmt.Errorf("provider %q: cannot determine provider for model %q; set provider explicitly", name, pc.Model)
	}
	apiKey := cfg.APIKey(name)
	if apiKey == "" && pc.APIKeyEnv == "" {
		apiKey = os.Getenv(config.APIKeyEnvVar(kind))
	}

	maxTokens := pc.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}
	p, err := NewProvider(ctx, Config{
		Provider:  kind,
		Model:     pc.Model,
		APIKey:    apiKey,
		MaxTokens: maxTokens,
		BaseURL:   pc.BaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("provider %q: %w", name, err)
	}
	return NewGuarded(p, g, name), nil
}

const defaultMaxTokens = 4096

func isKnownProvider(name string) bool {
	switch name {
	case "anthropic", "openai", "google":
		return true
	}
	return false
}

// InferProviderFromModel returns the provider name based on model name patterns.
func InferProviderFromModel(model string) string {
	model = strings.ToLower(model)

	switch {
	case strings.HasPrefix(model, "claude"):
		return "anthropic"
	case strings.HasPrefix(model, "gpt-"),
		strings.HasPrefix(model, "o1"),
		strings.HasPrefix(model, "o3"),
		strings.HasPrefix(model, "chatgpt"):
		return "openai"
	case strings.HasPrefix(model, "gemini"),
		strings.HasPrefix(model, "gemma"):
		return "google"
	}
	return ""
}
