package vecrag

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/vecrag/internal/domain"
)

// Embedder converts text to vectors. Required: it backs dense retrieval
// and dedicated scoring.
//
// An Embedder may also implement HealthCheck(context.Context) error, in
// which case Client.Health reports on it.
type Embedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
}

// EmbeddingResult is one vector with its token usage.
type EmbeddingResult struct {
	Embedding    []float32
	PromptTokens int
	TotalTokens  int
}

// ChatModel completes a prompt. Optional. Without it answers are extractive,
// judge scoring falls back to keywords, and queries are never rewritten.
type ChatModel interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

type embedderAdapter struct {
	inner Embedder
}

func (a *embedderAdapter) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	r, err := a.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", err)
	}
	return domain.EmbeddingResult(r), nil
}

func (a *embedderAdapter) HealthCheck(ctx context.Context) error {
	return probe(ctx, a.inner)
}

type chatAdapter struct {
	inner ChatModel
}

func (a *chatAdapter) Complete(ctx context.Context, prompt string) (string, error) {
	out, err := a.inner.Complete(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("complete: %w", err)
	}
	return out, nil
}

func (a *chatAdapter) HealthCheck(ctx context.Context) error {
	return probe(ctx, a.inner)
}

// probe calls HealthCheck when v has one; providers without it count as healthy.
func probe(ctx context.Context, v any) error {
	hc, ok := v.(domain.HealthChecker)
	if !ok {
		return nil
	}
	if err := hc.HealthCheck(ctx); err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	return nil
}
