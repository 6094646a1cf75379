// Package llm provides a provider-neutral abstraction layer for Large Language Model (LLM) APIs.
//
// The agent talks to models only through the Client interface defined here, so the
// Anthropic, OpenAI and Ollama adapters in the sub-packages are interchangeable.
//
// # Core Concepts
//
//  1. Messages: Message carries a role and content blocks (text, image, tool use, tool result).
//
//  2. Structured output: a Request may list ToolSpecs and force one of them through
//     ToolChoice. Adapters return the forced call as a ToolUseBlock, which is how
//     the agent obtains schema-shaped replies from every provider.
//
//  3. Middleware: Middleware and WrapWithMiddleware add cross-cutting concerns such
//     as logging without touching the adapters. WithRetry adds backoff retries.
//
//  4. Errors: Error classifies failures (rate limit, timeout, invalid request...)
//     and marks which ones are worth retrying.
//
// Usage Example
//
//	base, _ := anthropic.NewAnthropicClient(key, "claude-haiku-4-5", logger)
//	client := llm.WithRetry(
//	    llm.WrapWithMiddleware(base, llm.NewLoggingMiddleware(logger)),
//	    llm.DefaultRetryPolicy(),
//	    logger,
//	)
//	resp, err := client.Synchronous(ctx, &llm.Request{
//	    System:     prompt,
//	    Messages:   []llm.Message{llm.NewTextMessage(llm.RoleUser, memory)},
//	    Tools:      []llm.ToolSpec{replySpec},
//	    ToolChoice: replySpec.Name,
//	})
//
// # Extension Points
//
// To add a new LLM provider:
//  1. Implement the Client interface
//  2. Honour Request.ToolChoice, natively or through structured output
//  3. Translate provider errors into *Error values
package llm
