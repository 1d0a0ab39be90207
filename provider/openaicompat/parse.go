package openaicompat

import "github.com/nevindra/memagent"

// ParseResponse converts an OpenAI-format ChatResponse to a memagent
// ChatResponse, taking content and usage from choices[0]. An in-body error
// object becomes an *memagent.ErrLLM.
func ParseResponse(name string, resp ChatResponse) (memagent.ChatResponse, error) {
	var out memagent.ChatResponse

	if resp.Error != nil {
		return out, &memagent.ErrLLM{Provider: name, Message: resp.Error.Message}
	}
	if resp.Usage != nil {
		out.Usage = memagent.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		}
	}
	if len(resp.Choices) == 0 {
		return out, nil
	}

	if msg := resp.Choices[0].Message; msg != nil {
		out.Content = msg.Content
		if out.Content == "" && msg.Refusal != "" {
			return out, &memagent.ErrLLM{Provider: name, Message: "refused: " + msg.Refusal}
		}
	}
	return out, nil
}
