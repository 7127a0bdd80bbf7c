package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/voice-notes-ai/backend/internal/models"
)

const (
	DefaultModel     = openai.GPT4oMini
	DefaultMaxTokens = 150
)

var (
	// ErrNoTranscription is returned when there is no transcript to ground the chat on.
	ErrNoTranscription = errors.New("llm: transcription must not be empty")
	// ErrNoChoices is returned when the completion carries no choices.
	ErrNoChoices = errors.New("llm: no choices in response")
)

// SystemPrompt returns the instruction that grounds the conversation on transcription.
func SystemPrompt(transcription string) string {
	return fmt.Sprintf(`You are an AI assistant. Your task is to answer questions and have a conversation based on the following transcription: "%s"`, transcription)
}

// Config configures the chat completion client.
type Config struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// Client answers chat turns about a transcript through a chat completion API.
type Client struct {
	api       *openai.Client
	model     string
	maxTokens int
}

// NewClient creates a chat client. An empty BaseURL uses the OpenAI default.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("llm: api key must not be empty")
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	oc.HTTPClient = &http.Client{Timeout: timeout}

	c := &Client{
		api:       openai.NewClientWithConfig(oc),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
	}
	if c.model == "" {
		c.model = DefaultModel
	}
	if c.maxTokens <= 0 {
		c.maxTokens = DefaultMaxTokens
	}
	return c, nil
}

// BuildMessages prepends the system prompt to history.
func BuildMessages(history []models.ChatTurn, transcription string) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: SystemPrompt(transcription),
	})
	for _, turn := range history {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: turn.Role, Content: turn.Content})
	}
	return msgs
}

// Reply sends the transcript-grounded conversation and returns the first choice's content.
func (c *Client) Reply(ctx context.Context, history []models.ChatTurn, transcription string) (string, error) {
	if strings.TrimSpace(transcription) == "" {
		return "", ErrNoTranscription
	}
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     c.model,
		Messages:  BuildMessages(history, transcription),
		MaxTokens: c.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("llm: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoices
	}
	return resp.Choices[0].Message.Content, nil
}
