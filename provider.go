package memagent

import "context"

// Provider abstracts the LLM backend.
//
// Tool use is expressed in-band as tagged regions of the assistant text, so
// a provider needs no function-calling or streaming support.
type Provider interface {
	// Chat sends a request and returns the complete assistant text.
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
	// Name returns the provider name (e.g. "gemini", "openrouter").
	Name() string
}
