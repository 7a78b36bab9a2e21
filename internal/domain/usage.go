package domain

import (
	"context"
	"sync"
)

type usageKey struct{}

// Usage collects model token consumption for a single logical request.
// Scoring fans out across workers, so writes are serialized.
type Usage struct {
	mu              sync.Mutex
	embeddingTokens int
	chatCalls       int
	embedCalls      int
}

// NewContextWithUsage returns a context with an embedded usage collector.
func NewContextWithUsage(ctx context.Context) (context.Context, *Usage) {
	u := &Usage{}
	return context.WithValue(ctx, usageKey{}, u), u
}

// UsageFromContext extracts the usage collector from context. Returns nil if not set.
func UsageFromContext(ctx context.Context) *Usage {
	u, _ := ctx.Value(usageKey{}).(*Usage)
	return u
}

// AddEmbedding records one embedding call and its tokens.
func (u *Usage) AddEmbedding(tokens int) {
	if u == nil {
		return
	}
	u.mu.Lock()
	u.embeddingTokens += tokens
	u.embedCalls++
	u.mu.Unlock()
}

// AddChatCall records one chat completion.
func (u *Usage) AddChatCall() {
	if u == nil {
		return
	}
	u.mu.Lock()
	u.chatCalls++
	u.mu.Unlock()
}

// Snapshot returns embedding tokens, embedding calls and chat calls.
func (u *Usage) Snapshot() (embeddingTokens, embedCalls, chatCalls int) {
	if u == nil {
		return 0, 0, 0
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.embeddingTokens, u.embedCalls, u.chatCalls
}
