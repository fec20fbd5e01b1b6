package llm

import (
	"context"
	"fmt"

	"github.com/invoiceflow/invoiceflow/internal/config"
)

type gateway struct {
	providers       map[string]Provider
	defaultProvider string
}

func NewGateway(cfg config.LLMConfig) Gateway {
	g := &gateway{
		providers:       make(map[string]Provider),
		defaultProvider: cfg.DefaultProvider,
	}

	if cfg.OpenAIKey != "" {
		g.providers["openai"] = NewOpenAIProvider(cfg.OpenAIKey)
	}
	if cfg.AnthropicKey != "" {
		g.providers["anthropic"] = NewAnthropicProvider(cfg.AnthropicKey)
	}

	return g
}

func (g *gateway) Provider(name string) (Provider, error) {
	p, ok := g.providers[name]
	if !ok {
		return nil, fmt.Errorf("provider %q not configured", name)
	}
	return p, nil
}

func (g *gateway) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	name := req.Provider
	if name == "" {
		name = g.defaultProvider
	}

	p, err := g.Provider(name)
	if err != nil {
		return nil, err
	}
	return p.ChatCompletion(ctx, req)
}
