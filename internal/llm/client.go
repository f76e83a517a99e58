package llm

import "context"

const (
	ChatRoleSystem    = "system"
	ChatRoleUser      = "user"
	ChatRoleAssistant = "assistant"
)

// ChatMessage is one turn handed to the model.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest describes a chat completion call.
type CompletionRequest struct {
	Model       string
	System      string
	Messages    []ChatMessage
	MaxTokens   int
	Temperature float32
}

// Client is the language model surface the engine depends on: free-text
// chat completion plus audio transcription.
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
	Transcribe(ctx context.Context, audio []byte, language string) (string, error)
}
