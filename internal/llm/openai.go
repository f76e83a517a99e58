package llm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/atendeai/booking-engine/pkg/logging"
)

// ErrNotConfigured indicates missing LLM credentials. Callers translate it
// into a request-scoped configuration error; it must never crash the process.
var ErrNotConfigured = errors.New("llm: api key not configured")

// OpenAIClient implements Client against an OpenAI-compatible API.
type OpenAIClient struct {
	api          *openai.Client
	defaultModel string
	timeout      time.Duration
	logger       *logging.Logger
}

// NewOpenAIClient builds a client. Returns ErrNotConfigured when the key is
// missing so the caller can degrade instead of crashing.
func NewOpenAIClient(apiKey, defaultModel string, timeout time.Duration, logger *logging.Logger) (*OpenAIClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrNotConfigured
	}
	if logger == nil {
		logger = logging.Default()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &OpenAIClient{
		api:          openai.NewClient(apiKey),
		defaultModel: defaultModel,
		timeout:      timeout,
		logger:       logger,
	}, nil
}

// Complete runs a chat completion and returns the trimmed reply text.
func (c *OpenAIClient) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = c.defaultModel
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if strings.TrimSpace(req.System) != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, msg := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.api.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("llm: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("llm: empty completion response")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Transcribe converts audio bytes to text. An empty transcript is returned
// as an error so callers fall back to asking for a typed message.
func (c *OpenAIClient) Transcribe(ctx context.Context, audio []byte, language string) (string, error) {
	if len(audio) == 0 {
		return "", errors.New("llm: empty audio payload")
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.api.CreateTranscription(callCtx, openai.AudioRequest{
		Model:    openai.Whisper1,
		Reader:   bytes.NewReader(audio),
		FilePath: "inbound.ogg",
		Language: language,
	})
	if err != nil {
		return "", fmt.Errorf("llm: transcription: %w", err)
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", errors.New("llm: transcription returned no text")
	}
	return text, nil
}
