package rerank

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/vecrag/internal/domain"
)

var errUpstream = errors.New("upstream down")

// mockEmbedder returns a fixed vector per text. Unknown texts fail.
type mockEmbedder struct {
	vectors map[string][]float32
	err     error
	calls   atomic.Int32
}

func (m *mockEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	m.calls.Add(1)
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	v, ok := m.vectors[text]
	if !ok {
		return domain.EmbeddingResult{}, errUpstream
	}
	return domain.EmbeddingResult{Embedding: v, TotalTokens: 1}, nil
}

// mockChat answers every prompt with the same response.
type mockChat struct {
	resp  string
	err   error
	calls atomic.Int32
}

func (m *mockChat) Complete(_ context.Context, _ string) (string, error) {
	m.calls.Add(1)
	return m.resp, m.err
}

// blockingChat blocks until release is closed or the context ends.
type blockingChat struct {
	release chan struct{}
	once    sync.Once
}

func newBlockingChat() *blockingChat { return &blockingChat{release: make(chan struct{})} }

func (b *blockingChat) Complete(ctx context.Context, _ string) (string, error) {
	select {
	case <-b.release:
		return "0.9", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (b *blockingChat) Release() { b.once.Do(func() { close(b.release) }) }

func newTestScorer(t *testing.T, cfg Config, emb domain.Embedder, chat domain.ChatModel) *Scorer {
	t.Helper()
	if cfg.BatchTimeout == 0 {
		cfg.BatchTimeout = 2 * time.Second
	}
	s, err := New(cfg, emb, chat, zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func doc(id, content string) domain.Document {
	return domain.Document{ID: id, Content: content, Metadata: map[string]string{domain.MetaDepartment: "hr"}}
}
