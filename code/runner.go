package code

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/nevindra/memagent/memory"
)

// Runner executes one snippet against a memory session.
//
// A snippet that fails (timeout, uncaught exception, failing primitive) is
// reported through Result.Failure with a nil error. The error return is
// reserved for the runner itself being unable to run anything.
type Runner interface {
	Run(ctx context.Context, req Request) (Result, error)
}

// Request is the input to Runner.Run.
type Request struct {
	// Code is the snippet source.
	Code string
	// Session supplies the primitives. Its current directory is where the
	// snippet starts; go_to_dir moves only this session.
	Session *memory.Session
	// Timeout overrides the runner's default when positive.
	Timeout time.Duration
}

// Result is the outcome of one snippet.
type Result struct {
	// Vars are the snippet's top-level names whose values encode as JSON,
	// sorted by name.
	Vars []Var
	// Elided lists top-level names left out of Vars, with the reason.
	Elided []Elided
	// Stdout is the captured print output.
	Stdout string
	// Truncated reports that Stdout hit the output cap.
	Truncated bool
	// Failure is set when the snippet did not complete. Vars and Elided are
	// empty in that case; Stdout keeps what was printed before the failure.
	Failure *Failure
	// Duration is the wall-clock execution time.
	Duration time.Duration
}

// Var is one captured top-level name and its JSON-encoded value. A value
// whose encoding exceeds the runner's per-value cap is cut at the cap;
// Size keeps the full length.
type Var struct {
	Name      string
	JSON      string
	Size      int
	Truncated bool
}

// Elided is a top-level name that was not captured.
type Elided struct {
	Name   string
	Reason string
}

// Failure kinds produced by the runners themselves. A failing primitive
// reports its memory.Kind instead (scope_error, not_found, ...).
const (
	KindTimeout   = "timeout"
	KindException = "sandbox_exception"
)

// Failure is the error triple of a snippet that did not complete.
type Failure struct {
	Kind      string
	Message   string
	Traceback string
}

// failureFrom classifies err: a memory primitive error keeps its kind,
// anything else is a sandbox_exception.
func failureFrom(err error, message, traceback string) *Failure {
	var me *memory.Error
	if errors.As(err, &me) {
		return &Failure{Kind: string(me.Kind), Message: me.Error(), Traceback: traceback}
	}
	return &Failure{Kind: KindException, Message: message, Traceback: traceback}
}

func timeoutFailure(d time.Duration) *Failure {
	return &Failure{
		Kind:    KindTimeout,
		Message: "execution exceeded the " + d.String() + " time limit and was stopped",
	}
}

var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }
