package mcptool

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/nevindra/memagent"
)

type stubAgent struct {
	resp     memagent.Response
	got      string
	saveErr  error
	savePath string
}

func (s *stubAgent) Chat(_ context.Context, msg string) memagent.Response {
	s.got = msg
	return s.resp
}

func (s *stubAgent) SaveConversation(path string) (string, error) {
	if s.saveErr != nil {
		return "", s.saveErr
	}
	if path == "" {
		path = "conversations/conversation-x.json"
	}
	s.savePath = path
	return path, nil
}

func call(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) != 1 {
		t.Fatalf("content = %d items", len(res.Content))
	}
	tc, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content is %T", res.Content[0])
	}
	return tc.Text
}

func TestMemoryToolReply(t *testing.T) {
	agent := &stubAgent{resp: memagent.Response{Reply: "Mittens is your cat.", Thoughts: "checked entities"}}
	res, err := NewMemoryTool(agent).Handle(context.Background(), call(map[string]any{"question": " who is Mittens? "}))
	if err != nil {
		t.Fatal(err)
	}
	if res.IsError {
		t.Fatal("unexpected error result")
	}
	if got := text(t, res); got != "Mittens is your cat." {
		t.Errorf("text = %q", got)
	}
	if agent.got != "who is Mittens?" {
		t.Errorf("agent got %q", agent.got)
	}
}

func TestMemoryToolThoughts(t *testing.T) {
	agent := &stubAgent{resp: memagent.Response{Reply: "ok", Thoughts: "checked entities"}}
	res, _ := NewMemoryTool(agent).Handle(context.Background(),
		call(map[string]any{"question": "q", "include_thoughts": true}))
	if got := text(t, res); got != "ok\n\n<think>\nchecked entities\n</think>" {
		t.Errorf("text = %q", got)
	}
}

func TestMemoryToolErrors(t *testing.T) {
	tests := []struct {
		name string
		resp memagent.Response
		want string
	}{
		{"agent error", memagent.Response{Reply: "agent_error: http_500: boom", AgentError: "http_500"}, "agent_error: http_500"},
		{"budget", memagent.Response{BudgetExhausted: true, ToolTurns: 20}, "budget_exhausted: no reply after 20 tool turns"},
		{"malformed", memagent.Response{Malformed: true}, "malformed_turn"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := NewMemoryTool(&stubAgent{resp: tt.resp}).Handle(context.Background(), call(map[string]any{"question": "q"}))
			if err != nil {
				t.Fatal(err)
			}
			if !res.IsError {
				t.Fatal("want error result")
			}
			if got := text(t, res); !strings.Contains(got, tt.want) {
				t.Errorf("text = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMemoryToolMissingQuestion(t *testing.T) {
	agent := &stubAgent{}
	res, _ := NewMemoryTool(agent).Handle(context.Background(), call(map[string]any{}))
	if !res.IsError {
		t.Fatal("want error result")
	}
	if agent.got != "" {
		t.Error("agent should not be called")
	}
}

func TestSaveTool(t *testing.T) {
	agent := &stubAgent{}
	res, _ := NewSaveTool(agent).Handle(context.Background(), call(map[string]any{"path": "/tmp/c.json"}))
	if got := text(t, res); got != "Conversation saved to /tmp/c.json" {
		t.Errorf("text = %q", got)
	}

	agent.saveErr = errors.New("disk full")
	res, _ = NewSaveTool(agent).Handle(context.Background(), call(map[string]any{}))
	if !res.IsError || !strings.Contains(text(t, res), "disk full") {
		t.Errorf("want error result, got %+v", res)
	}
}

func TestDefinitions(t *testing.T) {
	if NewMemoryTool(nil).Definition().Name != "use_memory_agent" {
		t.Error("memory tool name")
	}
	if NewSaveTool(nil).Definition().Name != "save_conversation" {
		t.Error("save tool name")
	}
}
