package code

import (
	"bufio"
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.starlark.net/starlark"

	"github.com/nevindra/memagent/memory"
)

//go:embed prelude.py
var preludeSource string

// SubprocessRunner executes snippets with a real Python interpreter. The
// interpreter runs in isolated mode with a restricted builtin set and an
// import guard; memory primitives are proxies whose calls travel over a
// JSON-lines bridge on stdin/stdout and are served in Go against the
// request's session.
type SubprocessRunner struct {
	pythonBin string
	cfg       runnerConfig
}

var _ Runner = (*SubprocessRunner)(nil)

// NewSubprocessRunner creates a SubprocessRunner that executes snippets
// via the given Python binary (e.g., "python3").
func NewSubprocessRunner(pythonBin string, opts ...Option) *SubprocessRunner {
	return &SubprocessRunner{pythonBin: pythonBin, cfg: buildConfig(opts)}
}

// Run executes req.Code in a fresh interpreter process.
func (r *SubprocessRunner) Run(ctx context.Context, req Request) (Result, error) {
	if req.Session == nil {
		return Result{}, errors.New("code runner: request has no session")
	}
	timeout := r.cfg.timeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}
	start := time.Now()
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, r.pythonBin, "-I", "-u", "-c", preludeSource)
	cmd.Dir = req.Session.FS().Root()
	cmd.Env = r.buildEnv()
	cmd.WaitDelay = time.Second

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return Result{}, fmt.Errorf("code runner: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Result{}, fmt.Errorf("code runner: stdout pipe: %w", err)
	}
	stderr := newOutputBuffer(r.cfg.maxOutput)
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return Result{}, fmt.Errorf("code runner: start subprocess: %w", err)
	}
	writeJSON(stdin, map[string]string{"type": "exec", "code": req.Code})

	out := newOutputBuffer(r.cfg.maxOutput)
	b := &bridge{thread: &starlark.Thread{Name: "bridge"}, prims: primitives(req.Session)}
	var final *protocolMessage

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		var msg protocolMessage
		dec := json.NewDecoder(bytes.NewReader(scanner.Bytes()))
		dec.UseNumber()
		if err := dec.Decode(&msg); err != nil {
			continue // skip malformed lines
		}
		switch msg.Type {
		case "stdout":
			out.add(msg.Data)
		case "call":
			writeJSON(stdin, b.call(msg))
		case "done", "failed":
			m := msg
			final = &m
		}
	}
	stdin.Close()
	waitErr := cmd.Wait()

	res := Result{
		Stdout:    out.String(),
		Truncated: out.Truncated(),
		Duration:  time.Since(start),
	}
	switch {
	case ctx.Err() != nil:
		return res, ctx.Err()
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		res.Failure = timeoutFailure(timeout)
	case final == nil:
		msg := "interpreter exited without a result"
		if waitErr != nil {
			msg = fmt.Sprintf("interpreter exited: %v", waitErr)
		}
		res.Failure = &Failure{Kind: KindException, Message: msg, Traceback: strings.TrimSpace(stderr.String())}
	case final.Type == "failed":
		res.Failure = &Failure{Kind: final.Kind, Message: final.Message, Traceback: final.Traceback}
	default:
		for _, v := range final.Vars {
			res.Vars = append(res.Vars, newVar(v.Name, []byte(v.JSON), r.cfg.maxValueLen))
		}
		res.Elided = final.Elided
	}

	l := r.cfg.logger.With("duration", res.Duration, "stdout_bytes", len(res.Stdout))
	if res.Failure != nil {
		l.Debug("snippet failed", "kind", res.Failure.Kind, "error", res.Failure.Message)
	} else {
		l.Debug("snippet completed", "vars", len(res.Vars), "elided", len(res.Elided))
	}
	return res, nil
}

// buildEnv constructs a minimal environment for the interpreter.
func (r *SubprocessRunner) buildEnv() []string {
	env := []string{
		"PATH=" + os.Getenv("PATH"),
		"LANG=C.UTF-8",
		"PYTHONIOENCODING=utf-8",
	}
	for k, v := range r.cfg.envVars {
		env = append(env, k+"="+v)
	}
	return env
}

// --- Protocol types ---

type protocolMessage struct {
	Type      string         `json:"type"`
	Data      string         `json:"data,omitempty"`
	Name      string         `json:"name,omitempty"`
	Args      []any          `json:"args,omitempty"`
	Kwargs    map[string]any `json:"kwargs,omitempty"`
	Kind      string         `json:"kind,omitempty"`
	Message   string         `json:"message,omitempty"`
	Traceback string         `json:"traceback,omitempty"`
	Vars      []protocolVar  `json:"vars,omitempty"`
	Elided    []Elided       `json:"elided,omitempty"`
}

type protocolVar struct {
	Name string `json:"name"`
	JSON string `json:"json"`
}

type protocolReply struct {
	Type    string `json:"type"`
	Value   any    `json:"value,omitempty"`
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message,omitempty"`
}

// bridge serves primitive calls from the interpreter with the same builtins
// StarlarkRunner binds, so argument handling is identical in both runners.
type bridge struct {
	thread *starlark.Thread
	prims  starlark.StringDict
}

func (b *bridge) call(msg protocolMessage) protocolReply {
	fn, ok := b.prims[msg.Name]
	if !ok {
		return protocolReply{Type: "raise", Kind: KindException, Message: "unknown primitive " + msg.Name}
	}
	args := make(starlark.Tuple, len(msg.Args))
	for i, a := range msg.Args {
		v, err := fromJSON(a)
		if err != nil {
			return protocolReply{Type: "raise", Kind: KindException, Message: err.Error()}
		}
		args[i] = v
	}
	var kwargs []starlark.Tuple
	for k, a := range msg.Kwargs {
		v, err := fromJSON(a)
		if err != nil {
			return protocolReply{Type: "raise", Kind: KindException, Message: err.Error()}
		}
		kwargs = append(kwargs, starlark.Tuple{starlark.String(k), v})
	}

	ret, err := starlark.Call(b.thread, fn, args, kwargs)
	if err != nil {
		var me *memory.Error
		if errors.As(err, &me) {
			return protocolReply{Type: "raise", Kind: string(me.Kind), Message: me.Error()}
		}
		var evalErr *starlark.EvalError
		if errors.As(err, &evalErr) {
			return protocolReply{Type: "raise", Kind: KindException, Message: evalErr.Msg}
		}
		return protocolReply{Type: "raise", Kind: KindException, Message: err.Error()}
	}
	v, err := toJSON(ret, 0)
	if err != nil {
		return protocolReply{Type: "raise", Kind: KindException, Message: err.Error()}
	}
	return protocolReply{Type: "return", Value: v}
}

// writeJSON writes a JSON-encoded message to the writer, followed by a newline.
func writeJSON(w io.Writer, v any) {
	data, err := marshalJSON(v)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "%s\n", data)
}
