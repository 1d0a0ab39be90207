// Package app turns a config.Config into the shared pieces every memagent
// binary needs: the logger, the provider stack, the sandbox runner, the
// transcript store and, when enabled, OpenTelemetry instruments.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/nevindra/memagent"
	"github.com/nevindra/memagent/code"
	"github.com/nevindra/memagent/internal/config"
	"github.com/nevindra/memagent/internal/logging"
	"github.com/nevindra/memagent/memory"
	"github.com/nevindra/memagent/observer"
	"github.com/nevindra/memagent/provider/resolve"
	"github.com/nevindra/memagent/store/postgres"
	"github.com/nevindra/memagent/store/sqlite"
)

// DefaultTranscriptDB is the SQLite file used when the sqlite driver has no DSN.
const DefaultTranscriptDB = "transcripts.db"

// App holds the wired dependencies. Store is nil when no transcript driver
// is configured.
type App struct {
	Config   config.Config
	Logger   *slog.Logger
	Provider memagent.Provider
	Runner   code.Runner
	Store    memagent.TranscriptStore

	inst    *observer.Instruments
	closers []func(context.Context) error
}

// New wires everything cfg describes. Log output that is not sent to a file
// or the journal goes to stderr. On error every piece opened so far is
// closed.
func New(ctx context.Context, cfg config.Config, stderr io.Writer) (a *App, err error) {
	logger, closeLog, err := logging.New(logging.Options{
		Level:   cfg.Log.Level,
		File:    cfg.Log.File,
		Journal: cfg.Log.Journal,
		Stderr:  stderr,
	})
	if err != nil {
		return nil, err
	}
	a = &App{Config: cfg, Logger: logger}
	a.closers = append(a.closers, func(context.Context) error { return closeLog() })
	defer func() {
		if err != nil {
			a.Close(context.Background())
			a = nil
		}
	}()

	if cfg.Observer.Enabled {
		pricing := make(map[string]observer.ModelPricing, len(cfg.Observer.Pricing))
		for model, p := range cfg.Observer.Pricing {
			pricing[model] = observer.ModelPricing{InputPerMillion: p.Input, OutputPerMillion: p.Output}
		}
		inst, shutdown, err := observer.Init(ctx, pricing)
		if err != nil {
			return a, fmt.Errorf("observer: %w", err)
		}
		a.inst = inst
		a.closers = append(a.closers, shutdown)
		logger.Info("telemetry enabled")
	}

	if a.Provider, err = a.buildProvider(); err != nil {
		return a, err
	}
	if a.Runner, err = a.buildRunner(); err != nil {
		return a, err
	}
	if a.Store, err = a.openStore(ctx); err != nil {
		return a, err
	}
	return a, nil
}

// buildProvider stacks observer, rate limit and retry around the resolved
// provider. The observer sits innermost so every HTTP attempt is recorded.
func (a *App) buildProvider() (memagent.Provider, error) {
	llm := a.Config.LLM
	p, err := resolve.Provider(resolve.Config{
		Provider:    llm.Provider,
		APIKey:      llm.APIKey,
		Model:       llm.Model,
		BaseURL:     llm.BaseURL,
		Timeout:     a.Config.LLMTimeout(),
		Temperature: llm.Temperature,
		TopP:        llm.TopP,
		MaxTokens:   llm.MaxTokens,
		Seed:        llm.Seed,
		Stop:        llm.Stop,
		Logger:      a.Logger,

		FrequencyPenalty: llm.FrequencyPenalty,
		PresencePenalty:  llm.PresencePenalty,
	})
	if err != nil {
		return nil, err
	}
	if a.inst != nil {
		p = observer.WrapProvider(p, llm.Model, a.inst)
	}
	var limits []memagent.RateLimitOption
	if llm.RPM > 0 {
		limits = append(limits, memagent.RPM(llm.RPM))
	}
	if llm.TPM > 0 {
		limits = append(limits, memagent.TPM(llm.TPM))
	}
	if len(limits) > 0 {
		p = memagent.WithRateLimit(p, limits...)
	}
	p = memagent.WithRetry(p,
		memagent.RetryMaxAttempts(llm.MaxAttempts),
		memagent.RetryLogger(a.Logger),
	)
	a.Logger.Debug("provider ready", "provider", llm.Provider, "model", llm.Model)
	return p, nil
}

func (a *App) buildRunner() (code.Runner, error) {
	sb := a.Config.Sandbox
	opts := []code.Option{
		code.WithTimeout(a.Config.SandboxTimeout()),
		code.WithLogger(a.Logger),
	}
	if sb.MaxOutputBytes > 0 {
		opts = append(opts, code.WithMaxOutput(sb.MaxOutputBytes))
	}

	var r code.Runner
	switch sb.Runtime {
	case "", "starlark":
		r = code.NewStarlarkRunner(opts...)
	case "python":
		r = code.NewSubprocessRunner(sb.PythonBin, opts...)
	default:
		return nil, fmt.Errorf("unknown sandbox runtime %q (want starlark or python)", sb.Runtime)
	}
	if a.inst != nil {
		r = observer.WrapRunner(r, a.inst)
	}
	return r, nil
}

func (a *App) openStore(ctx context.Context) (memagent.TranscriptStore, error) {
	tc := a.Config.Transcripts
	var s memagent.TranscriptStore
	switch tc.Driver {
	case "":
		return nil, nil
	case "sqlite":
		dsn := tc.DSN
		if dsn == "" {
			dsn = DefaultTranscriptDB
		}
		s = sqlite.New(dsn, sqlite.WithLogger(a.Logger))
	case "postgres":
		if tc.DSN == "" {
			return nil, errors.New("transcripts: postgres driver needs a dsn")
		}
		ps, err := postgres.Connect(ctx, tc.DSN, postgres.WithLogger(a.Logger))
		if err != nil {
			return nil, fmt.Errorf("transcripts: %w", err)
		}
		s = ps
	default:
		return nil, fmt.Errorf("transcripts: unknown driver %q (want sqlite or postgres)", tc.Driver)
	}
	if err := s.Init(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("transcripts: %w", err)
	}
	a.closers = append(a.closers, func(context.Context) error { return s.Close() })
	return s, nil
}

// AgentOptions returns the options that carry cfg into memagent.New. extra
// options are applied last.
func (a *App) AgentOptions(extra ...memagent.Option) []memagent.Option {
	ac := a.Config.Agent
	opts := []memagent.Option{
		memagent.WithRoot(ac.Root),
		memagent.WithModel(a.Config.LLM.Model),
		memagent.WithMaxToolTurns(ac.MaxToolTurns),
		memagent.WithSandboxTimeout(a.Config.SandboxTimeout()),
		memagent.WithLimits(memory.Limits{
			MaxFileBytes: a.Config.Limits.MaxFileBytes,
			MaxDirBytes:  a.Config.Limits.MaxDirBytes,
			MaxRootBytes: a.Config.Limits.MaxRootBytes,
		}),
		memagent.WithRunner(a.Runner),
		memagent.WithLogger(a.Logger),
	}
	if ac.TranscriptDir != "" {
		opts = append(opts, memagent.WithTranscriptDir(ac.TranscriptDir))
	}
	if ac.SystemPromptPath != "" {
		opts = append(opts, memagent.WithSystemPromptPath(ac.SystemPromptPath))
	}
	if a.inst != nil {
		opts = append(opts, memagent.WithTracer(observer.NewTracer()))
	}
	return append(opts, extra...)
}

// NewAgent creates an agent over the configured root.
func (a *App) NewAgent(extra ...memagent.Option) (*memagent.Agent, error) {
	return memagent.New(a.Provider, a.AgentOptions(extra...)...)
}

// Chatter returns agent, instrumented when telemetry is enabled.
func (a *App) Chatter(agent *memagent.Agent) observer.Chatter {
	if a.inst == nil {
		return agent
	}
	return observer.WrapAgent(agent, a.inst)
}

// Close releases everything New opened, newest first.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i](ctx))
	}
	a.closers = nil
	return errors.Join(errs...)
}
