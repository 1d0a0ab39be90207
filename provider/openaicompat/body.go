package openaicompat

import "github.com/nevindra/memagent"

// BuildBody converts memagent ChatMessages and a model name into an
// OpenAI-format ChatRequest. Roles pass through unchanged; a "tool" message
// (exported transcripts only) is sent as "user", the role it had in the
// conversation. Options configure generation parameters.
func BuildBody(messages []memagent.ChatMessage, model string, opts ...Option) ChatRequest {
	msgs := make([]Message, 0, len(messages))
	for _, m := range messages {
		role := m.Role
		if role == memagent.RoleTool {
			role = memagent.RoleUser
		}
		msgs = append(msgs, Message{Role: role, Content: m.Content})
	}

	req := ChatRequest{
		Model:    model,
		Messages: msgs,
	}
	for _, opt := range opts {
		opt(&req)
	}
	return req
}
