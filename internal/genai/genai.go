// Package genai wraps the chat-completion and embedding endpoints of an
// OpenAI-compatible provider behind small interfaces the pipeline and the
// context memory consume.
package genai

import "context"

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// ChatRequest carries per-call sampling parameters. Model falls back to the
// client default when empty; Temperature, TopP, and MaxTokens are applied as
// given, so callers set all three explicitly.
type ChatRequest struct {
	Model       string
	Messages    []Message
	Temperature float64
	TopP        float64
	MaxTokens   int
}

type ChatClient interface {
	Complete(ctx context.Context, req ChatRequest) (string, error)
}

type EmbeddingClient interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
