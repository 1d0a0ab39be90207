package observer

import "go.opentelemetry.io/otel/attribute"

// Attribute keys for memory-agent spans and metrics.
var (
	AttrLLMModel    = attribute.Key("llm.model")
	AttrLLMProvider = attribute.Key("llm.provider")
	AttrLLMMessages = attribute.Key("llm.messages")

	AttrTokensInput  = attribute.Key("llm.tokens.input")
	AttrTokensOutput = attribute.Key("llm.tokens.output")
	AttrCostUSD      = attribute.Key("llm.cost_usd")

	AttrSandboxRunner    = attribute.Key("sandbox.runner")
	AttrSandboxStatus    = attribute.Key("sandbox.status")
	AttrSandboxVars      = attribute.Key("sandbox.vars")
	AttrSandboxStdoutLen = attribute.Key("sandbox.stdout_length")

	AttrAgentID        = attribute.Key("agent.id")
	AttrAgentStatus    = attribute.Key("agent.status")
	AttrAgentToolTurns = attribute.Key("agent.tool_turns")
	AttrAgentLLMCalls  = attribute.Key("agent.llm_calls")
)
