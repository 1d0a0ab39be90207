package memagent

import (
	"context"
	"log/slog"
	"time"

	"github.com/nevindra/memagent/code"
	"github.com/nevindra/memagent/memory"
)

// Defaults applied by New.
const (
	DefaultRoot           = "memory"
	DefaultModel          = "driaforall/mem-agent"
	DefaultMaxToolTurns   = 20
	DefaultSandboxTimeout = 20 * time.Second
	DefaultTranscriptDir  = "conversations"
)

// Option configures an Agent.
type Option func(*agentConfig)

type agentConfig struct {
	root             string
	model            string
	maxToolTurns     int
	sandboxTimeout   time.Duration
	limits           memory.Limits
	systemPrompt     string
	systemPromptPath string
	runner           code.Runner
	transcriptDir    string
	logger           *slog.Logger // never nil (nopLogger fallback)
	tracer           Tracer       // nil = no tracing
}

// WithRoot sets the memory root directory. It is created if missing and
// canonicalized once. Default: "memory" in the working directory.
func WithRoot(path string) Option {
	return func(c *agentConfig) { c.root = path }
}

// WithModel sets the model identifier sent with every request.
func WithModel(model string) Option {
	return func(c *agentConfig) { c.model = model }
}

// WithMaxToolTurns sets how many snippets may run within one user turn.
// Zero means the model gets no sandbox at all. Default: 20.
func WithMaxToolTurns(n int) Option {
	return func(c *agentConfig) { c.maxToolTurns = n }
}

// WithSandboxTimeout sets the wall-clock limit for one snippet. Default: 20s.
func WithSandboxTimeout(d time.Duration) Option {
	return func(c *agentConfig) { c.sandboxTimeout = d }
}

// WithLimits sets the per-file, per-directory and per-root size caps.
func WithLimits(l memory.Limits) Option {
	return func(c *agentConfig) { c.limits = l }
}

// WithSystemPrompt replaces the embedded system prompt.
func WithSystemPrompt(prompt string) Option {
	return func(c *agentConfig) { c.systemPrompt = prompt }
}

// WithSystemPromptPath loads the system prompt from a file at construction.
func WithSystemPromptPath(path string) Option {
	return func(c *agentConfig) { c.systemPromptPath = path }
}

// WithRunner sets the snippet runner. Default: an in-process
// code.StarlarkRunner using the sandbox timeout.
func WithRunner(r code.Runner) Option {
	return func(c *agentConfig) { c.runner = r }
}

// WithTranscriptDir sets where SaveConversation writes when called with an
// empty path. Default: "conversations" in the working directory.
func WithTranscriptDir(dir string) Option {
	return func(c *agentConfig) { c.transcriptDir = dir }
}

// WithLogger sets the structured logger for the agent, its memory root and
// its default runner.
func WithLogger(l *slog.Logger) Option {
	return func(c *agentConfig) { c.logger = l }
}

// WithTracer enables span creation for turns, LLM calls and snippets.
func WithTracer(t Tracer) Option {
	return func(c *agentConfig) { c.tracer = t }
}

// nopLogger is a logger that discards all output. Used when WithLogger is not set.
var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

func buildConfig(opts []Option) agentConfig {
	c := agentConfig{
		root:           DefaultRoot,
		model:          DefaultModel,
		maxToolTurns:   DefaultMaxToolTurns,
		sandboxTimeout: DefaultSandboxTimeout,
		limits:         memory.DefaultLimits(),
		transcriptDir:  DefaultTranscriptDir,
	}
	for _, opt := range opts {
		opt(&c)
	}
	if c.logger == nil {
		c.logger = nopLogger
	}
	if c.maxToolTurns < 0 {
		c.maxToolTurns = 0
	}
	if c.sandboxTimeout <= 0 {
		c.sandboxTimeout = DefaultSandboxTimeout
	}
	return c
}
