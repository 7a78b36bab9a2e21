package domain

import (
	"context"
	"fmt"
	"strings"
)

// WithQueryInstruction prefixes every embedded text with instruction, as
// asymmetric embedding models expect for queries. A blank instruction
// returns inner unchanged.
func WithQueryInstruction(inner Embedder, instruction string) Embedder {
	if strings.TrimSpace(instruction) == "" {
		return inner
	}
	return &instructed{inner: inner, prefix: instruction}
}

type instructed struct {
	inner  Embedder
	prefix string
}

func (e *instructed) Embed(ctx context.Context, text string) (EmbeddingResult, error) {
	res, err := e.inner.Embed(ctx, e.prefix+text)
	if err != nil {
		return EmbeddingResult{}, fmt.Errorf("embed with query instruction: %w", err)
	}
	return res, nil
}

func (e *instructed) HealthCheck(ctx context.Context) error {
	hc, ok := e.inner.(HealthChecker)
	if !ok {
		return nil
	}
	return hc.HealthCheck(ctx)
}
