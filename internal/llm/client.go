// Package llm provides completion providers for the dev backend's /ask
// endpoint. The contract is single-shot: the typewriter effect is
// produced client-side from the complete reply, so providers expose no
// token streaming.
package llm

import (
	"context"
)

// Provider generates a complete reply for one user message under a
// system instruction.
type Provider interface {
	// Complete returns the full reply text.
	Complete(ctx context.Context, systemPrompt, message string) (string, error)

	// Name returns the provider name.
	Name() string
}

// Kind selects a provider implementation.
type Kind string

const (
	KindAnthropic Kind = "anthropic"
	KindOpenAI    Kind = "openai"
	KindCanned    Kind = "canned"
)

// New creates a provider. An empty API key falls back to the canned
// provider so the dev backend works offline.
func New(kind Kind, apiKey string) (Provider, error) {
	if apiKey == "" {
		return NewCannedProvider(), nil
	}
	switch kind {
	case KindOpenAI:
		return NewOpenAIProvider(apiKey)
	case KindAnthropic:
		return NewAnthropicProvider(apiKey)
	default:
		return NewAnthropicProvider(apiKey)
	}
}
