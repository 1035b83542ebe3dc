// Package agent runs the per-utterance conversation loop: one language-model
// call to decide on a tool, an optional synchronous tool execution, and a
// second call to phrase the result. Every failure path still produces a
// spoken reply.
package agent

import (
	"context"

	openai "github.com/sashabaranov/go-openai"
)

// ChatCompleter is the slice of the OpenAI client the orchestrator needs.
// *openai.Client satisfies it; tests script it.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}
