// Package config loads named rate limits, retry policies and guards from TOML.
//
//	log_level = "info"
//
//	[limits.github]
//	max_calls = 5000
//	period = "1h"
//	per_key = true
//
//	[retry.default]
//	max_attempts = 4
//	initial_delay = "500ms"
//	backoff_multiplier = 2.0
//	max_delay = "30s"
//
//	[guards.github]
//	limit = "github"
//	retry = "default"
//
//	[providers.anthropic]
//	guard = "github"
//	model = "claude-sonnet-4-20250514"
//	api_key_env = "ANTHROPIC_API_KEY"
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/vinayprograms/callguard/logging"
	"github.com/vinayprograms/callguard/ratelimit"
	"github.com/vinayprograms/callguard/retry"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Config is the top-level configuration file.
type Config struct {
	LogLevel  string                    `toml:"log_level"`
	Limits    map[string]LimitConfig    `toml:"limits"`
	Retry     map[string]RetryConfig    `toml:"retry"`
	Guards    map[string]GuardConfig    `toml:"guards"`
	Providers map[string]ProviderConfig `toml:"providers"`
}

// LimitConfig is one rolling-window quota.
type LimitConfig struct {
	MaxCalls int           `toml:"max_calls"`
	Period   time.Duration `toml:"period"`

	// PerKey gives every key its own window. Otherwise all keys share one.
	PerKey bool `toml:"per_key"`
}

// RetryConfig is one retry policy. Unset fields take the retry package defaults.
type RetryConfig struct {
	MaxAttempts       int           `toml:"max_attempts"`
	InitialDelay      time.Duration `toml:"initial_delay"`
	BackoffMultiplier float64       `toml:"backoff_multiplier"`
	MaxDelay          time.Duration `toml:"max_delay"`
}

// GuardConfig binds a limit to a retry policy.
type GuardConfig struct {
	Limit string `toml:"limit"`
	Retry string `toml:"retry"` // empty means the retry package defaults
}

// ProviderConfig configures an LLM provider client.
type ProviderConfig struct {
	// Provider is anthropic, openai or google. When empty it is the section
	// name if that is one of those, else inferred from Model.
	Provider  string `toml:"provider"`
	Guard     string `toml:"guard"`
	Model     string `toml:"model"`
	APIKeyEnv string `toml:"api_key_env"`
	BaseURL   string `toml:"base_url"`
	MaxTokens int    `toml:"max_tokens"`
}

// Load reads and validates a config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes and validates TOML config data.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("%w: unknown keys: %s", ErrInvalidConfig, strings.Join(keys, ", "))
	}

	for name, r := range cfg.Retry {
		if !md.IsDefined("retry", name, "max_attempts") {
			r.MaxAttempts = retry.DefaultMaxAttempts
		}
		if !md.IsDefined("retry", name, "initial_delay") {
			r.InitialDelay = retry.DefaultInitialDelay
		}
		if !md.IsDefined("retry", name, "backoff_multiplier") {
			r.BackoffMultiplier = retry.DefaultMultiplier
		}
		cfg.Retry[name] = r
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every section and every cross-reference.
func (c *Config) Validate() error {
	if c.LogLevel != "" {
		if _, err := logging.ParseLevel(c.LogLevel); err != nil {
			return fmt.Errorf("%w: log_level: %w", ErrInvalidConfig, err)
		}
	}
	for _, name := range sortedKeys(c.Limits) {
		l := c.Limits[name]
		if l.MaxCalls <= 0 {
			return fmt.Errorf("%w: limits.%s: %w", ErrInvalidConfig, name, ratelimit.ErrInvalidCapacity)
		}
		if l.Period <= 0 {
			return fmt.Errorf("%w: limits.%s: %w", ErrInvalidConfig, name, ratelimit.ErrInvalidWindow)
		}
	}
	for _, name := range sortedKeys(c.Retry) {
		if _, err := c.Policy(name); err != nil {
			return fmt.Errorf("%w: retry.%s: %w", ErrInvalidConfig, name, err)
		}
	}
	for _, name := range sortedKeys(c.Guards) {
		g := c.Guards[name]
		if g.Limit == "" {
			return fmt.Errorf("%w: guards.%s: limit is required", ErrInvalidConfig, name)
		}
		if _, ok := c.Limits[g.Limit]; !ok {
			return fmt.Errorf("%w: guards.%s: unknown limit %q", ErrInvalidConfig, name, g.Limit)
		}
		if g.Retry != "" {
			if _, ok := c.Retry[g.Retry]; !ok {
				return fmt.Errorf("%w: guards.%s: unknown retry policy %q", ErrInvalidConfig, name, g.Retry)
			}
		}
	}
	for _, name := range sortedKeys(c.Providers) {
		p := c.Providers[name]
		if p.Guard != "" {
			if _, ok := c.Guards[p.Guard]; !ok {
				return fmt.Errorf("%w: providers.%s: unknown guard %q", ErrInvalidConfig, name, p.Guard)
			}
		}
		switch p.Provider {
		case "", "anthropic", "openai", "google":
		default:
			return fmt.Errorf("%w: providers.%s: unsupported provider %q", ErrInvalidConfig, name, p.Provider)
		}
		if p.MaxTokens < 0 {
			return fmt.Errorf("%w: providers.%s: max_tokens must not be negative", ErrInvalidConfig, name)
		}
	}
	return nil
}

// Level returns the configured log level, INFO if unset.
func (c *Config) Level() logging.Level {
	level, err := logging.ParseLevel(c.LogLevel)
	if err != nil {
		return logging.LevelInfo
	}
	return level
}

// Limiter builds the limiter for a named limit. Each call returns a new
// limiter with an empty call log.
func (c *Config) Limiter(name string, opts ...ratelimit.Option) (ratelimit.RateLimiter, error) {
	l, ok := c.Limits[name]
	if !ok {
		return nil, fmt.Errorf("unknown limit %q", name)
	}
	opts = append([]ratelimit.Option{ratelimit.WithName(name)}, opts...)
	if l.PerKey {
		return ratelimit.NewKeyed(l.MaxCalls, l.Period, opts...)
	}
	single, err := ratelimit.New(l.MaxCalls, l.Period, opts...)
	if err != nil {
		return nil, err
	}
	return ratelimit.Global(single), nil
}

// Policy builds the named retry policy. An empty name yields the defaults.
func (c *Config) Policy(name string, opts ...retry.Option) (retry.Policy, error) {
	if name == "" {
		return retry.NewPolicy(opts...)
	}
	r, ok := c.Retry[name]
	if !ok {
		return retry.Policy{}, fmt.Errorf("unknown retry policy %q", name)
	}
	base := []retry.Option{
		retry.WithMaxAttempts(r.MaxAttempts),
		retry.WithInitialDelay(r.InitialDelay),
		retry.WithMultiplier(r.BackoffMultiplier),
		retry.WithMaxDelay(r.MaxDelay),
	}
	return retry.NewPolicy(append(base, opts...)...)
}

// GuardNames returns the configured guard names in sorted order.
func (c *Config) GuardNames() []string {
	return sortedKeys(c.Guards)
}

// APIKey resolves the API key for a provider section from its api_key_env
// variable, falling back to the conventional variable for its provider.
func (c *Config) APIKey(name string) string {
	p, ok := c.Providers[name]
	if ok && p.APIKeyEnv != "" {
		return os.Getenv(p.APIKeyEnv)
	}
	if ok && p.Provider != "" {
		name = p.Provider
	}
	return os.Getenv(APIKeyEnvVar(name))
}

// APIKeyEnvVar returns the conventional environment variable for a provider.
func APIKeyEnvVar(provider string) string {
	switch provider {
	case "anthropic":
		return "ANTHROPIC_API_KEY"
	case "openai":
		return "OPENAI_API_KEY"
	case "google":
		return "GOOGLE_API_KEY"
	default:
		return strings.ToUpper(strings.ReplaceAll(provider, "-", "_")) + "_API_KEY"
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
