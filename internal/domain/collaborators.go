package domain

import "context"

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
}

// EmbeddingResult is a vector plus the tokens spent producing it.
// Cached results report zero tokens.
type EmbeddingResult struct {
	Embedding    []float32
	PromptTokens int
	TotalTokens  int
}

// ChatModel completes a single prompt. Query rewriting, relevance judging,
// hypothetical answers and final answers all go through it.
type ChatModel interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Retriever runs dense search over the corpus.
type Retriever interface {
	Search(ctx context.Context, query string, filters SearchFilters, k int) ([]Document, error)
}

// KeywordRetriever runs lexical search. Used when dense retrieval fails.
type KeywordRetriever interface {
	KeywordSearch(ctx context.Context, query string, filters SearchFilters, k int) ([]Document, error)
}

type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}
