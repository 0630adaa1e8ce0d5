// Package llm exposes the language model as a plain query primitive.
package llm

import "context"

// Querier is the external classifier contract: prompt in, free text out.
// The returned text carries no guarantee of being valid JSON.
type Querier interface {
	Query(ctx context.Context, prompt string, temperature float32) (string, error)
}

// QuerierFunc adapts a function to Querier.
type QuerierFunc func(ctx context.Context, prompt string, temperature float32) (string, error)

func (f QuerierFunc) Query(ctx context.Context, prompt string, temperature float32) (string, error) {
	return f(ctx, prompt, temperature)
}

var _ Querier = (*GeminiQuerier)(nil)
