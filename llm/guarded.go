package llm

import (
	"context"

	"github.com/vinayprograms/callguard/guard"
	"github.com/vinayprograms/callguard/telemetry"
)

// GuardedProvider sends every Chat through a guard, keyed by provider name.
// Rate-limit waits, retries and the final error all come from the guard.
type GuardedProvider struct {
	provider Provider
	guard    *guard.Guard
	name     string
	tracer   *telemetry.Tracer
}

// NewGuarded wraps p with g. name is the limiter key and span label.
func NewGuarded(p Provider, g *guard.Guard, name string) *GuardedProvider {
	return &GuardedProvider{
		provider: p,
		guard:    g,
		name:     name,
		tracer:   telemetry.GetTracer(),
	}
}

// Chat implements the Provider interface.
func (gp *GuardedProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	ctx, span := gp.tracer.StartLLMSpan(ctx, gp.name)

	resp, err := guard.Call(ctx, gp.guard, gp.name, func(ctx context.Context) (*ChatResponse, error) {
		return gp.provider.Chat(ctx, req)
	})

	opts := telemetry.LLMSpanOptions{Provider: gp.name}
	if resp != nil {
		opts.Model = resp.Model
		opts.TokensIn = resp.InputTokens
		opts.TokensOut = resp.OutputTokens
	}
	gp.tracer.EndLLMSpan(span, opts, err)

	return resp, err
}
