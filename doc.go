// Package memagent is a memory-augmented chat agent.
//
// An [Agent] answers each user message by talking to an LLM that reasons in
// <think> regions, inspects and edits a rooted directory of Markdown notes by
// writing short Python snippets in <python> regions, and finally answers in
// a <reply> region. Snippets run in a sandbox (package code) whose only
// capabilities are the filesystem primitives of package memory, confined to
// the agent's root.
//
// # Quick Start
//
//	provider := openaicompat.NewProvider(apiKey, "qwen/qwen3-8b", "https://openrouter.ai/api/v1")
//
//	agent, err := memagent.New(memagent.WithRetry(provider),
//		memagent.WithRoot("./memory"),
//		memagent.WithMaxToolTurns(20),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	resp := agent.Chat(ctx, "Remember that my cat is named Mittens.")
//	fmt.Println(resp.Reply)
//
//	_ = agent.SaveConversation("")
//
// # Core Interfaces
//
//   - [Provider]: the LLM backend, message list in and assistant text out
//   - [code.Runner]: executes one snippet against a memory session
//   - [Tracer]: optional span creation (see package observer)
//   - [TranscriptStore]: optional archive for saved conversations
//
// # Protocol
//
// The system prompt (see [DefaultSystemPrompt]) teaches the model the three
// tagged regions. [ParseTurn] extracts them from an assistant message and
// [FormatResult] renders a snippet's outcome as the <result> block fed back
// to the model as the next user message.
package memagent
