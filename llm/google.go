package llm

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GoogleProvider implements the Provider interface using the Google Gemini SDK.
type GoogleProvider struct {
	client    *genai.Client
	modelName string
	maxTokens int
}

// NewGoogleProvider creates a new Google Gemini provider.
func NewGoogleProvider(ctx context.Context, cfg Config) (*GoogleProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api_key is required for google")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required for google")
	}
	if cfg.MaxTokens <= 0 {
		return nil, fmt.Errorf("max_tokens is required for google")
	}

	opts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithEndpoint(cfg.BaseURL))
	}
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create google client: %w", err)
	}

	return &GoogleProvider{
		client:    client,
		modelName: cfg.Model,
		maxTokens: cfg.MaxTokens,
	}, nil
}

// Close closes the underlying client.
func (p *GoogleProvider) Close() error {
	return p.client.Close()
}

// Chat implements the Provider interface. Each call builds its own model
// handle so concurrent calls do not share a system instruction.
func (p *GoogleProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	model := p.client.GenerativeModel(p.modelName)
	maxTokens := int32(p.maxTokens)
	if req.MaxTokens > 0 {
		maxTokens = int32(req.MaxTokens)
	}
	model.MaxOutputTokens = &maxTokens

	cs := model.StartChat()
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(m.Content)}}
		case "user":
			cs.History = append(cs.History, &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(m.Content)}})
		case "assistant":
			cs.History = append(cs.History, &genai.Content{Role: "model", Parts: []genai.Part{genai.Text(m.Content)}})
		}
	}

	// The last user turn is sent as the prompt rather than history.
	var prompt string
	if n := len(cs.History); n > 0 && cs.History[n-1].Role == "user" {
		if text, ok := cs.History[n-1].Parts[0].(genai.Text); ok {
			prompt = string(text)
		}
		cs.History = cs.History[:n-1]
	}

	resp, err := cs.SendMessage(ctx, genai.Text(prompt))
	if err != nil {
		return nil, classifyError("google", err)
	}

	result := &ChatResponse{Model: p.modelName}
	if len(resp.Candidates) > 0 {
		candidate := resp.Candidates[0]
		if candidate.FinishReason != 0 {
			result.StopReason = candidate.FinishReason.String()
		}
		if candidate.Content != nil {
			for _, part := range candidate.Content.Parts {
				if text, ok := part.(genai.Text); ok {
					result.Content += string(text)
				}
			}
		}
	}
	if resp.UsageMetadata != nil {
		result.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		result.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return result, nil
}
