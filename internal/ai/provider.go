package ai

import "context"

// LLMProvider sends a prompt to an LLM and returns the raw text response.
// maxTokens bounds the length of the answer.
type LLMProvider interface {
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
}
