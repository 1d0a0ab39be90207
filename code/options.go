// Package code runs the Python-dialect snippets a memory agent writes.
//
// Two runners implement Runner: StarlarkRunner interprets snippets in-process
// with go.starlark.net, and SubprocessRunner executes them with a real Python
// interpreter whose primitive calls are bridged back into Go. Both bind the
// memory primitives of one memory.Session, capture print output and the
// snippet's top-level names, and stop at a wall-clock timeout.
package code

import (
	"log/slog"
	"time"
)

// Option configures a runner.
type Option func(*runnerConfig)

type runnerConfig struct {
	timeout     time.Duration
	maxOutput   int // cap on captured print output, bytes
	maxValueLen int // cap on one captured variable, JSON bytes
	logger      *slog.Logger

	// SubprocessRunner only.
	envVars map[string]string
}

func defaultConfig() runnerConfig {
	return runnerConfig{
		timeout:     20 * time.Second,
		maxOutput:   64 * 1024, // 64KB
		maxValueLen: 8 * 1024,
		logger:      nopLogger,
	}
}

// WithTimeout sets the wall-clock limit for one snippet. A Request.Timeout
// overrides it. Default: 20s.
func WithTimeout(d time.Duration) Option {
	return func(c *runnerConfig) { c.timeout = d }
}

// WithMaxOutput sets the maximum captured print output in bytes. Output
// beyond the limit is dropped and marked as truncated. Default: 64KB.
func WithMaxOutput(bytes int) Option {
	return func(c *runnerConfig) { c.maxOutput = bytes }
}

// WithMaxValueLen caps the JSON encoding of a single captured variable.
// Longer values are cut at the cap and marked truncated. Default: 8KB.
func WithMaxValueLen(bytes int) Option {
	return func(c *runnerConfig) { c.maxValueLen = bytes }
}

// WithLogger sets the structured logger for execution events.
func WithLogger(l *slog.Logger) Option {
	return func(c *runnerConfig) { c.logger = l }
}

// WithEnv adds environment variables to the Python subprocess. Ignored by
// StarlarkRunner.
func WithEnv(vars map[string]string) Option {
	return func(c *runnerConfig) { c.envVars = vars }
}

func buildConfig(opts []Option) runnerConfig {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = nopLogger
	}
	return cfg
}
