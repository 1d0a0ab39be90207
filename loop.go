package memagent

import (
	"context"
	"fmt"

	"github.com/nevindra/memagent/code"
)

// runTurn drives one user turn: LLM call, then either finish on a reply
// region or run the python region and feed its result back, until a reply
// appears or the tool-turn budget is spent. Caller holds a.mu.
func (a *Agent) runTurn(ctx context.Context, message string) Response {
	ctx, span := startSpan(ctx, a.cfg.tracer, "agent.turn",
		StringAttr("agent.id", a.id),
		IntAttr("agent.max_tool_turns", a.cfg.maxToolTurns))
	defer span.End()

	a.history = append(a.history, UserMessage(message))
	var resp Response

	for {
		text, err := a.callLLM(ctx, &resp)
		if err != nil {
			resp.Reply = agentErrorReply(err)
			resp.AgentError = gatewayErrorKind(err)
			a.history = append(a.history, AssistantMessage(resp.Reply))
			a.cfg.logger.Error("llm call failed", "id", a.id, "kind", resp.AgentError, "calls", resp.LLMCalls, "error", err)
			span.Error(err)
			break
		}
		a.history = append(a.history, AssistantMessage(text))

		turn := ParseTurn(text)
		resp.Thoughts, resp.Reply, resp.PythonBlock = turn.Thoughts, turn.Reply, turn.Python
		resp.Malformed = turn.Malformed()
		if len(turn.Unclosed) > 0 {
			a.cfg.logger.Warn("unclosed region in assistant message", "id", a.id, "tags", turn.Unclosed)
		}

		if turn.HasReply || turn.Python == "" {
			break
		}
		if resp.ToolTurns >= a.cfg.maxToolTurns {
			resp.BudgetExhausted = true
			a.cfg.logger.Warn("tool-turn budget exhausted", "id", a.id, "tool_turns", resp.ToolTurns)
			break
		}

		// A started snippet always runs to completion; its writes are
		// committed, so its result is recorded even when ctx ended meanwhile.
		// The next callLLM then reports the cancellation.
		result := a.runSnippet(ctx, turn.Python)
		resp.ToolTurns++
		a.history = append(a.history, UserMessage(FormatResult(result)))
	}

	span.SetAttr(
		IntAttr("agent.tool_turns", resp.ToolTurns),
		IntAttr("agent.llm_calls", resp.LLMCalls),
		BoolAttr("agent.malformed", resp.Malformed),
		BoolAttr("agent.budget_exhausted", resp.BudgetExhausted))
	a.cfg.logger.Debug("turn finished", "id", a.id, "tool_turns", resp.ToolTurns,
		"llm_calls", resp.LLMCalls, "flags", resp.Flags())
	return resp
}

// callLLM sends the full history and returns the assistant text.
func (a *Agent) callLLM(ctx context.Context, resp *Response) (string, error) {
	ctx, span := startSpan(ctx, a.cfg.tracer, "agent.llm_call",
		StringAttr("llm.provider", a.provider.Name()),
		StringAttr("llm.model", a.cfg.model),
		IntAttr("llm.messages", len(a.history)))
	defer span.End()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	resp.LLMCalls++
	out, err := a.provider.Chat(ctx, ChatRequest{
		Model:    a.cfg.model,
		Messages: append([]ChatMessage(nil), a.history...),
	})
	if err != nil {
		span.Error(err)
		return "", err
	}
	resp.Usage = resp.Usage.Add(out.Usage)
	span.SetAttr(IntAttr("llm.input_tokens", out.Usage.InputTokens), IntAttr("llm.output_tokens", out.Usage.OutputTokens))
	return out.Content, nil
}

// runSnippet executes src in a fresh session starting at the root. Failures
// are in-band. Cancellation of ctx does not reach the runner: the snippet is
// bounded by the sandbox timeout alone.
func (a *Agent) runSnippet(ctx context.Context, src string) code.Result {
	sess := a.fs.NewSession()
	ctx, span := startSpan(context.WithoutCancel(ctx), a.cfg.tracer, "agent.sandbox",
		StringAttr("sandbox.cwd", sess.CurrentDir()),
		IntAttr("sandbox.code_len", len(src)))
	defer span.End()

	if _, err := a.fs.Bootstrap(); err != nil {
		a.cfg.logger.Warn("bootstrap before snippet failed", "id", a.id, "error", err)
	}
	result, err := a.runner.Run(ctx, code.Request{Code: src, Session: sess, Timeout: a.cfg.sandboxTimeout})
	if err != nil {
		a.cfg.logger.Error("runner failed", "id", a.id, "error", err)
		span.Error(err)
		result = sandboxFailure(err)
	}
	if f := result.Failure; f != nil {
		span.SetAttr(StringAttr("sandbox.error_kind", f.Kind))
		a.cfg.logger.Debug("snippet failed", "id", a.id, "kind", f.Kind, "message", f.Message)
	} else {
		a.cfg.logger.Debug("snippet ran", "id", a.id, "vars", len(result.Vars), "duration", result.Duration)
	}
	return result
}

// sandboxFailure wraps a runner that could not run anything as a snippet
// failure so the model sees it.
func sandboxFailure(err error) code.Result {
	return code.Result{Failure: &code.Failure{Kind: code.KindException, Message: fmt.Sprintf("sandbox unavailable: %v", err)}}
}
