// Package resolve builds a memagent.Provider from provider-agnostic settings.
package resolve

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/nevindra/memagent"
	"github.com/nevindra/memagent/provider/gemini"
	"github.com/nevindra/memagent/provider/openaicompat"
)

// Config holds provider-agnostic configuration for creating a chat Provider.
type Config struct {
	Provider string // "gemini", "openai", "openrouter", "vllm", "lmstudio", "groq", "deepseek", "together", "mistral", "ollama"
	APIKey   string
	Model    string
	BaseURL  string // required for openai-compat; auto-filled for known providers

	// Timeout bounds one HTTP round trip. Zero means no transport timeout.
	Timeout time.Duration

	// Common cross-provider options (nil = use provider default).
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
	Thinking    *bool
	Seed        *int
	Stop        []string

	// OpenAI-compatible only.
	FrequencyPenalty *float64
	PresencePenalty  *float64

	Logger *slog.Logger
}

// Provider creates a memagent.Provider from a provider-agnostic Config.
func Provider(cfg Config) (memagent.Provider, error) {
	switch cfg.Provider {
	case "gemini":
		return geminiProvider(cfg), nil
	case "openai", "openrouter", "vllm", "lmstudio", "groq", "deepseek", "together", "mistral", "ollama":
		return openaiCompatProvider(cfg), nil
	default:
		return nil, fmt.Errorf("resolve: unknown provider %q", cfg.Provider)
	}
}

func httpClient(cfg Config) *http.Client {
	return &http.Client{Timeout: cfg.Timeout}
}

func geminiProvider(cfg Config) memagent.Provider {
	opts := []gemini.Option{gemini.WithHTTPClient(httpClient(cfg))}
	if cfg.BaseURL != "" {
		opts = append(opts, gemini.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Temperature != nil {
		opts = append(opts, gemini.WithTemperature(*cfg.Temperature))
	}
	if cfg.TopP != nil {
		opts = append(opts, gemini.WithTopP(*cfg.TopP))
	}
	if cfg.MaxTokens != nil {
		opts = append(opts, gemini.WithMaxOutputTokens(*cfg.MaxTokens))
	}
	if cfg.Thinking != nil {
		opts = append(opts, gemini.WithThinking(*cfg.Thinking))
	}
	if len(cfg.Stop) > 0 {
		opts = append(opts, gemini.WithStopSequences(cfg.Stop...))
	}
	if cfg.Seed != nil {
		opts = append(opts, gemini.WithSeed(*cfg.Seed))
	}
	if cfg.Logger != nil {
		opts = append(opts, gemini.WithLogger(cfg.Logger))
	}
	return gemini.New(cfg.APIKey, cfg.Model, opts...)
}

// requestOptions maps the sampling settings onto openaicompat request options.
func requestOptions(cfg Config) []openaicompat.Option {
	var opts []openaicompat.Option
	if cfg.Temperature != nil {
		opts = append(opts, openaicompat.WithTemperature(*cfg.Temperature))
	}
	if cfg.TopP != nil {
		opts = append(opts, openaicompat.WithTopP(*cfg.TopP))
	}
	if cfg.MaxTokens != nil {
		opts = append(opts, openaicompat.WithMaxTokens(*cfg.MaxTokens))
	}
	if cfg.FrequencyPenalty != nil {
		opts = append(opts, openaicompat.WithFrequencyPenalty(*cfg.FrequencyPenalty))
	}
	if cfg.PresencePenalty != nil {
		opts = append(opts, openaicompat.WithPresencePenalty(*cfg.PresencePenalty))
	}
	if len(cfg.Stop) > 0 {
		opts = append(opts, openaicompat.WithStop(cfg.Stop...))
	}
	if cfg.Seed != nil {
		opts = append(opts, openaicompat.WithSeed(*cfg.Seed))
	}
	return opts
}

func openaiCompatProvider(cfg Config) memagent.Provider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL(cfg.Provider)
	}
	provOpts := []openaicompat.ProviderOption{
		openaicompat.WithName(cfg.Provider),
		openaicompat.WithHTTPClient(httpClient(cfg)),
	}
	if cfg.Provider == "openrouter" {
		provOpts = append(provOpts, openaicompat.WithHeader("X-Title", "memagent"))
	}
	if cfg.Logger != nil {
		provOpts = append(provOpts, openaicompat.WithLogger(cfg.Logger))
	}

	if reqOpts := requestOptions(cfg); len(reqOpts) > 0 {
		provOpts = append(provOpts, openaicompat.WithOptions(reqOpts...))
	}
	return openaicompat.NewProvider(cfg.APIKey, cfg.Model, baseURL, provOpts...)
}

func defaultBaseURL(provider string) string {
	switch provider {
	case "openai":
		return "https://api.openai.com/v1"
	case "openrouter":
		return "https://openrouter.ai/api/v1"
	case "vllm":
		return "http://localhost:8000/v1"
	case "lmstudio":
		return "http://localhost:1234/v1"
	case "groq":
		return "https://api.groq.com/openai/v1"
	case "deepseek":
		return "https://api.deepseek.com/v1"
	case "together":
		return "https://api.together.xyz/v1"
	case "mistral":
		return "https://api.mistral.ai/v1"
	case "ollama":
		return "http://localhost:11434/v1"
	default:
		return ""
	}
}
