package openaicompat

// Option sets sampling fields on every chat request a Provider sends. Unset
// fields are omitted so the server's defaults apply.
type Option func(*ChatRequest)

func WithTemperature(t float64) Option {
	return func(r *ChatRequest) { r.Temperature = &t }
}

func WithTopP(p float64) Option {
	return func(r *ChatRequest) { r.TopP = &p }
}

// WithMaxTokens caps the completion length. Zero leaves it to the server.
func WithMaxTokens(n int) Option {
	return func(r *ChatRequest) { r.MaxTokens = n }
}

func WithFrequencyPenalty(p float64) Option {
	return func(r *ChatRequest) { r.FrequencyPenalty = &p }
}

func WithPresencePenalty(p float64) Option {
	return func(r *ChatRequest) { r.PresencePenalty = &p }
}

// WithStop ends generation at any of the given sequences. The sequence
// itself is not returned, so a closing protocol tag used as a stop sequence
// must be restored by the caller.
func WithStop(s ...string) Option {
	return func(r *ChatRequest) { r.Stop = s }
}

// WithSeed asks the server for reproducible sampling where it supports it.
func WithSeed(s int) Option {
	return func(r *ChatRequest) { r.Seed = &s }
}
