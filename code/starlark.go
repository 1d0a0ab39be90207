package code

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// fileOptions enables the Python features the dialect leaves off by
// default: while loops, top-level if/for, rebinding globals, recursion and
// the set builtin.
var fileOptions = &syntax.FileOptions{
	Set:             true,
	While:           true,
	TopLevelControl: true,
	GlobalReassign:  true,
	Recursion:       true,
}

// StarlarkRunner interprets snippets in-process. Snippets are written in the
// Python dialect implemented by go.starlark.net, with import statements for
// the provided modules rewritten into bindings first. The interpreter has no
// file, network or process access beyond the bound primitives.
type StarlarkRunner struct {
	cfg runnerConfig
}

var _ Runner = (*StarlarkRunner)(nil)

// NewStarlarkRunner creates a StarlarkRunner.
func NewStarlarkRunner(opts ...Option) *StarlarkRunner {
	return &StarlarkRunner{cfg: buildConfig(opts)}
}

// Run executes req.Code. Execution is stopped at the timeout or when ctx is
// done, whichever comes first.
func (r *StarlarkRunner) Run(ctx context.Context, req Request) (Result, error) {
	if req.Session == nil {
		return Result{}, errors.New("code runner: request has no session")
	}
	timeout := r.cfg.timeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}
	start := time.Now()

	src, err := rewriteImports(req.Code)
	if err != nil {
		return Result{
			Failure:  &Failure{Kind: KindException, Message: err.Error()},
			Duration: time.Since(start),
		}, nil
	}

	out := newOutputBuffer(r.cfg.maxOutput)
	thread := &starlark.Thread{
		Name:  "snippet",
		Print: func(_ *starlark.Thread, msg string) { out.add(msg + "\n") },
	}

	var timedOut atomic.Bool
	timer := time.AfterFunc(timeout, func() {
		timedOut.Store(true)
		thread.Cancel("time limit exceeded")
	})
	defer timer.Stop()
	stop := context.AfterFunc(ctx, func() { thread.Cancel(context.Cause(ctx).Error()) })
	defer stop()

	globals, err := starlark.ExecFileOptions(fileOptions, thread, "snippet.py", src, predeclared(req.Session))

	res := Result{
		Stdout:    out.String(),
		Truncated: out.Truncated(),
		Duration:  time.Since(start),
	}
	switch {
	case err == nil:
		res.Vars, res.Elided = captureGlobals(globals, r.cfg.maxValueLen)
	case timedOut.Load():
		res.Failure = timeoutFailure(timeout)
	case ctx.Err() != nil:
		return res, ctx.Err()
	default:
		res.Failure = classify(err)
	}

	l := r.cfg.logger.With("duration", res.Duration, "stdout_bytes", len(res.Stdout))
	if res.Failure != nil {
		l.Debug("snippet failed", "kind", res.Failure.Kind, "error", res.Failure.Message)
	} else {
		l.Debug("snippet completed", "vars", len(res.Vars), "elided", len(res.Elided))
	}
	return res, nil
}

func classify(err error) *Failure {
	var evalErr *starlark.EvalError
	if errors.As(err, &evalErr) {
		return failureFrom(err, evalErr.Msg, evalErr.Backtrace())
	}
	// Syntax and resolve errors: nothing ran.
	return &Failure{Kind: KindException, Message: "SyntaxError: " + err.Error()}
}
