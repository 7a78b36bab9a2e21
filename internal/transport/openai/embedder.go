package openai

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/vecrag/internal/domain"
)

// Embedder embeds query text for corpus retrieval.
type Embedder struct {
	endpoint
	dimensions int
}

// NewEmbedder creates an embedder. A positive Dimensions is requested from
// the provider and enforced on every response, since the corpus index has a
// fixed vector width.
func NewEmbedder(cfg *Config) *Embedder {
	return &Embedder{
		endpoint:   newEndpoint(cfg, "embedding", domain.ErrEmbeddingProviderError),
		dimensions: cfg.Dimensions,
	}
}

// Embed implements domain.Embedder.
func (e *Embedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	req := openai.EmbeddingRequest{
		Input:          []string{text},
		Model:          openai.EmbeddingModel(e.model),
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
		User:           e.user,
		Dimensions:     e.dimensions,
	}

	start := time.Now()
	resp, err := e.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return domain.EmbeddingResult{}, e.fail(failureReason(err), err)
	}
	if len(resp.Data) == 0 {
		return domain.EmbeddingResult{}, e.fail("empty_response", fmt.Errorf("no embedding returned"))
	}
	vec := resp.Data[0].Embedding
	if e.dimensions > 0 && len(vec) != e.dimensions {
		return domain.EmbeddingResult{}, e.fail("dimension_mismatch",
			fmt.Errorf("got %d dimensions, index expects %d", len(vec), e.dimensions))
	}

	e.succeed(start, map[string]int{"prompt": resp.Usage.PromptTokens, "total": resp.Usage.TotalTokens})
	e.logger.Debug("Embedded text", zap.Int("chars", len(text)), zap.Int("tokens", resp.Usage.TotalTokens))

	return domain.EmbeddingResult{
		Embedding:    vec,
		PromptTokens: resp.Usage.PromptTokens,
		TotalTokens:  resp.Usage.TotalTokens,
	}, nil
}
