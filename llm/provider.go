// Package llm provides LLM provider clients whose requests are paced and
// retried by a guard.Guard.
package llm

import (
	"context"
	"fmt"
	"sync"
)

// Message represents an LLM message.
type Message struct {
	Role    string `json:"role"` // user, assistant, system
	Content string `json:"content"`
}

// ChatRequest represents a chat request to the LLM.
type ChatRequest struct {
	Messages  []Message `json:"messages"`
	MaxTokens int       `json:"max_tokens,omitempty"`
}

// ChatResponse represents a chat response from the LLM.
type ChatResponse struct {
	Content      string `json:"content"`
	StopReason   string `json:"stop_reason"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
	Model        string `json:"model"`
}

// Provider is the interface for LLM providers.
type Provider interface {
	// Chat sends a chat request and returns the response. Failures are
	// classified callguard errors so retry policies can inspect them.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// Config holds configuration for a provider client.
type Config struct {
	Provider  string `json:"provider"` // anthropic, openai, google
	Model     string `json:"model"`
	APIKey    string `json:"api_key"`
	MaxTokens int    `json:"max_tokens"`
	BaseURL   string `json:"base_url"` // custom endpoint (proxies, gateways, tests)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Provider == "" {
		return fmt.Errorf("provider is required")
	}
	if c.Model == "" {
		return fmt.Errorf("model is required")
	}
	if c.APIKey == "" {
		return fmt.Errorf("api key is required")
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("max_tokens is required")
	}
	return nil
}

// --- Mock Provider for Testing ---

// MockProvider is a mock LLM provider for testing. It is safe for
// concurrent use.
type MockProvider struct {
	mu           sync.Mutex
	response     string
	stopReason   string
	inputTokens  int
	outputTokens int
	lastRequest  *ChatRequest
	err          error
	callCount    int

	// ChatFunc can be overridden for custom behavior
	ChatFunc func(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// NewMockProvider creates a new mock provider.
func NewMockProvider() *MockProvider {
	return &MockProvider{stopReason: "end_turn"}
}

// SetResponse sets the response content.
func (p *MockProvider) SetResponse(content string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.response = content
}

// SetTokenCounts sets the token counts.
func (p *MockProvider) SetTokenCounts(input, output int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inputTokens = input
	p.outputTokens = output
}

// SetError sets an error to return.
func (p *MockProvider) SetError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// LastRequest returns the last request.
func (p *MockProvider) LastRequest() *ChatRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastRequest
}

// CallCount returns the number of Chat calls made.
func (p *MockProvider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.callCount
}

// Chat implements the Provider interface.
func (p *MockProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	p.mu.Lock()
	p.callCount++
	p.lastRequest = &req
	fn := p.ChatFunc
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	return &ChatResponse{
		Content:      p.response,
		StopReason:   p.stopReason,
		InputTokens:  p.inputTokens,
		OutputTokens: p.outputTokens,
		Model:        "mock",
	}, nil
}
