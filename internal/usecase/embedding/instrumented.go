package embedding

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/vecrag/internal/domain"
	"github.com/kailas-cloud/vecrag/internal/logger"
)

// InstrumentedEmbedder wraps Embedder with request usage accounting and logging.
// Transport metrics (requests, duration, tokens) are recorded in transport/openai.
type InstrumentedEmbedder struct {
	inner  domain.Embedder
	model  string
	logger *zap.Logger
}

// NewInstrumentedEmbedder wraps an embedder with usage accounting and observability.
func NewInstrumentedEmbedder(inner domain.Embedder, model string, log *zap.Logger) *InstrumentedEmbedder {
	return &InstrumentedEmbedder{inner: inner, model: model, logger: log}
}

// Embed delegates to the inner embedder and records usage on the request context.
func (p *InstrumentedEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	log := logger.FromContextOr(ctx, p.logger)
	start := time.Now()

	result, err := p.inner.Embed(ctx, text)

	duration := time.Since(start)

	if err != nil {
		log.Error("Embedding request failed",
			zap.String("model", p.model),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", err)
	}

	domain.UsageFromContext(ctx).AddEmbedding(result.TotalTokens)

	log.Debug("Embedding request completed",
		zap.String("model", p.model),
		zap.Duration("duration", duration),
		zap.Int("dimensions", len(result.Embedding)),
		zap.Int("total_tokens", result.TotalTokens),
	)

	return result, nil
}

// HealthCheck delegates to the inner embedder when it supports health checks.
func (p *InstrumentedEmbedder) HealthCheck(ctx context.Context) error {
	if hc, ok := p.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}

// InstrumentedChat wraps ChatModel with request usage accounting and logging.
type InstrumentedChat struct {
	inner  domain.ChatModel
	model  string
	logger *zap.Logger
}

// NewInstrumentedChat wraps a chat model with usage accounting and observability.
func NewInstrumentedChat(inner domain.ChatModel, model string, log *zap.Logger) *InstrumentedChat {
	return &InstrumentedChat{inner: inner, model: model, logger: log}
}

// Complete delegates to the inner chat model and counts the call on the request context.
func (c *InstrumentedChat) Complete(ctx context.Context, prompt string) (string, error) {
	log := logger.FromContextOr(ctx, c.logger)
	start := time.Now()

	out, err := c.inner.Complete(ctx, prompt)

	duration := time.Since(start)
	domain.UsageFromContext(ctx).AddChatCall()

	if err != nil {
		log.Warn("Chat request failed",
			zap.String("model", c.model),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return "", fmt.Errorf("complete: %w", err)
	}

	log.Debug("Chat request completed",
		zap.String("model", c.model),
		zap.Duration("duration", duration),
		zap.Int("prompt_chars", len(prompt)),
		zap.Int("response_chars", len(out)),
	)
	return out, nil
}

// HealthCheck delegates to the inner chat model when it supports health checks.
func (c *InstrumentedChat) HealthCheck(ctx context.Context) error {
	if hc, ok := c.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}
