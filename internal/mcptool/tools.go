// Package mcptool exposes a memory agent as MCP tools.
//
// Each tool follows the same shape: a struct holding its dependencies,
// Definition() returning the mcp.Tool schema and Handle() serving a call.
package mcptool

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/nevindra/memagent"
)

// Chatter is the part of an agent the chat tool needs.
type Chatter interface {
	Chat(ctx context.Context, message string) memagent.Response
}

// Saver is the part of an agent the save tool needs.
type Saver interface {
	SaveConversation(path string) (string, error)
}

// MemoryTool handles use_memory_agent.
type MemoryTool struct {
	agent Chatter
}

// NewMemoryTool creates a MemoryTool.
func NewMemoryTool(agent Chatter) *MemoryTool {
	return &MemoryTool{agent: agent}
}

// Definition returns the MCP tool definition for use_memory_agent.
func (t *MemoryTool) Definition() mcp.Tool {
	return mcp.NewTool("use_memory_agent",
		mcp.WithDescription(
			"Ask the memory agent a question or tell it something to remember. The agent keeps a "+
				"persistent Markdown memory about the user and their world, and answers from it.",
		),
		mcp.WithString("question",
			mcp.Required(),
			mcp.Description("The message for the memory agent"),
		),
		mcp.WithBoolean("include_thoughts",
			mcp.Description("Append the agent's reasoning to the reply (default: false)"),
		),
	)
}

// Handle runs one chat turn. Turns without a reply become tool errors so the
// caller can tell them from an answer.
func (t *MemoryTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question := strings.TrimSpace(req.GetString("question", ""))
	if question == "" {
		return mcp.NewToolResultError("'question' is required"), nil
	}
	resp := t.agent.Chat(ctx, question)

	switch {
	case resp.AgentError != "":
		return mcp.NewToolResultError(resp.Reply), nil
	case resp.Reply == "" && resp.BudgetExhausted:
		return mcp.NewToolResultError(fmt.Sprintf("%s: no reply after %d tool turns", memagent.KindBudgetExhausted, resp.ToolTurns)), nil
	case resp.Reply == "" && resp.Malformed:
		return mcp.NewToolResultError(memagent.KindMalformedTurn + ": the agent produced no reply"), nil
	}

	text := resp.Reply
	if req.GetBool("include_thoughts", false) && resp.Thoughts != "" {
		text += "\n\n<think>\n" + resp.Thoughts + "\n</think>"
	}
	return mcp.NewToolResultText(text), nil
}

// SaveTool handles save_conversation.
type SaveTool struct {
	agent Saver
}

// NewSaveTool creates a SaveTool.
func NewSaveTool(agent Saver) *SaveTool {
	return &SaveTool{agent: agent}
}

// Definition returns the MCP tool definition for save_conversation.
func (t *SaveTool) Definition() mcp.Tool {
	return mcp.NewTool("save_conversation",
		mcp.WithDescription("Write the conversation so far to a JSON file and return its path."),
		mcp.WithString("path",
			mcp.Description("Output file (default: conversations/conversation-<id>.json)"),
		),
	)
}

// Handle saves the transcript.
func (t *SaveTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := t.agent.SaveConversation(req.GetString("path", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("save failed: %v", err)), nil
	}
	return mcp.NewToolResultText("Conversation saved to " + path), nil
}
