package memagent

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// gatewayErrorKind names a gateway failure for the agent_error reply:
// http_<status>, llm, timeout, canceled, network or provider.
func gatewayErrorKind(err error) string {
	var httpErr *ErrHTTP
	var llmErr *ErrLLM
	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &httpErr):
		return fmt.Sprintf("http_%d", httpErr.Status)
	case errors.As(err, &llmErr):
		return "llm"
	case errors.As(err, &netErr):
		if netErr.Timeout() {
			return "timeout"
		}
		return "network"
	default:
		return "provider"
	}
}

// agentErrorReply renders a persistent gateway failure as the reply text
// "agent_error: <kind>: <message>". The message is kept to one line.
func agentErrorReply(err error) string {
	msg := strings.Join(strings.Fields(err.Error()), " ")
	if len(msg) > 500 {
		msg = msg[:500] + "..."
	}
	return fmt.Sprintf("%s: %s: %s", KindAgentError, gatewayErrorKind(err), msg)
}

// IsAgentError reports whether a reply is an agent_error reply.
func IsAgentError(reply string) bool {
	return strings.HasPrefix(reply, KindAgentError+":")
}
