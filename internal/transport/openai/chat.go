package openai

import (
	"context"
	"errors"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kailas-cloud/vecrag/internal/domain"
)

// ChatModel answers single-turn prompts: rewrites, HyDE passages, relevance
// judgements and final answers.
type ChatModel struct {
	endpoint
	temperature float32
}

// NewChatModel creates a chat provider.
func NewChatModel(cfg *Config) *ChatModel {
	return &ChatModel{
		endpoint:    newEndpoint(cfg, "chat", domain.ErrChatProviderError),
		temperature: cfg.Temperature,
	}
}

// Complete implements domain.ChatModel. The prompt is sent as one user
// message and the reply is returned trimmed.
func (c *ChatModel) Complete(ctx context.Context, prompt string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: c.temperature,
		User:        c.user,
		Messages:    []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, Content: prompt}},
	}

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", c.fail(failureReason(err), err)
	}
	if len(resp.Choices) == 0 {
		return "", c.fail("empty_response", errors.New("no choices returned"))
	}

	c.succeed(start, map[string]int{
		"prompt":     resp.Usage.PromptTokens,
		"completion": resp.Usage.CompletionTokens,
	})
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
