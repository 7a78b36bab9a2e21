package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/vecrag/internal/domain"
	"github.com/kailas-cloud/vecrag/internal/domain/grade"
	"github.com/kailas-cloud/vecrag/internal/domain/route"
	"github.com/kailas-cloud/vecrag/internal/domain/trace"
	gradeuc "github.com/kailas-cloud/vecrag/internal/usecase/grade"
	"github.com/kailas-cloud/vecrag/internal/usecase/rerank"
	routeuc "github.com/kailas-cloud/vecrag/internal/usecase/route"
	tracing "github.com/kailas-cloud/vecrag/internal/usecase/trace"
)

type fixedRouter struct {
	strategy route.Strategy
}

func (f fixedRouter) Route(string) route.Decision {
	return route.Decision{Strategy: f.strategy, Confidence: 0.9, Rationale: "fixed"}
}

type searchCall struct {
	query     string
	partition *int
	k         int
}

// mockRetriever returns docs, or byPartition[p] when a partition filter is set.
type mockRetriever struct {
	mu          sync.Mutex
	docs        []domain.Document
	byPartition map[int][]domain.Document
	err         error
	calls       []searchCall
}

func (m *mockRetriever) Search(_ context.Context, query string, f domain.SearchFilters, k int) ([]domain.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, searchCall{query: query, partition: f.Partition, k: k})
	if m.err != nil {
		return nil, m.err
	}
	if f.Partition != nil && m.byPartition != nil {
		return m.byPartition[*f.Partition], nil
	}
	return m.docs, nil
}

func (m *mockRetriever) Calls() []searchCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]searchCall(nil), m.calls...)
}

type mockKeyword struct {
	docs  []domain.Document
	err   error
	calls int
}

func (m *mockKeyword) KeywordSearch(_ context.Context, _ string, _ domain.SearchFilters, _ int) ([]domain.Document, error) {
	m.calls++
	return m.docs, m.err
}

// scriptedChat answers by prompt kind. Missing entries fail.
type scriptedChat struct {
	mu      sync.Mutex
	direct  string
	hyde    string
	rewrite string
	answer  string
	judge   string
	fail    map[string]error
	prompts []string
}

func (c *scriptedChat) Complete(_ context.Context, prompt string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prompts = append(c.prompts, prompt)

	kind := promptKind(prompt)
	if err := c.fail[kind]; err != nil {
		return "", err
	}
	switch kind {
	case "direct":
		return c.direct, nil
	case "hyde":
		return c.hyde, nil
	case "rewrite":
		return c.rewrite, nil
	case "judge":
		return c.judge, nil
	default:
		return c.answer, nil
	}
}

func promptKind(p string) string {
	switch {
	case strings.HasPrefix(p, "You are a helpful"):
		return "direct"
	case strings.HasPrefix(p, "Write a short passage"):
		return "hyde"
	case strings.HasPrefix(p, "The search query below"):
		return "rewrite"
	case strings.HasPrefix(p, "Rate how relevant"):
		return "judge"
	default:
		return "answer"
	}
}

func defaultChat() *scriptedChat {
	return &scriptedChat{
		direct:  "Hi! How can I help?",
		hyde:    "Hypothetical passage about the topic.",
		rewrite: "rewritten query",
		answer:  "Generated answer [1]",
	}
}

// stubScorer returns a fixed batch and error.
type stubScorer struct {
	score float64
	err   error
}

func (s stubScorer) ScoreBatch(_ context.Context, _, _ string, docs []domain.Document) (rerank.Batch, error) {
	out := make([]domain.ScoredDocument, len(docs))
	for i, d := range docs {
		out[i] = domain.ScoredDocument{Document: d, Score: s.score}
	}
	b := rerank.Batch{Docs: out, Mode: rerank.ModeKeyword}
	var capErr *domain.CapacityError
	if s.err != nil && errors.As(s.err, &capErr) {
		b.Rejected = capErr.Rejected
	}
	return b, s.err
}

type fixture struct {
	retriever *mockRetriever
	keyword   *mockKeyword
	chat      *scriptedChat
	traces    *tracing.Collector
	router    Router
	scorer    Scorer
}

func newFixture() *fixture {
	return &fixture{
		retriever: &mockRetriever{},
		keyword:   &mockKeyword{},
		chat:      defaultChat(),
		traces:    tracing.New(tracing.Config{Enabled: true, CacheSize: 100, TTL: time.Hour}, nil),
		router:    routeuc.New(routeuc.Options{HyDEEnabled: true}),
	}
}

func defaultConfig() Config {
	return Config{
		MaxIterations:             3,
		ConfidenceThreshold:       0.8,
		TopK:                      8,
		FallbackConsumesIteration: true,
		GenerationTimeout:         time.Second,
	}
}

func (f *fixture) build(t *testing.T, cfg Config) *Orchestrator {
	t.Helper()
	scorer := f.scorer
	if scorer == nil {
		s, err := rerank.New(rerank.Config{Mode: "keyword"}, nil, nil, zap.NewNop())
		if err != nil {
			t.Fatalf("rerank.New: %v", err)
		}
		t.Cleanup(s.Close)
		scorer = s
	}
	grader, err := gradeuc.New(nil, grade.DefaultThresholds(), nil)
	if err != nil {
		t.Fatalf("grade.New: %v", err)
	}
	o, err := New(cfg, Deps{
		Router:    f.router,
		Retriever: f.retriever,
		Keyword:   f.keyword,
		Scorer:    scorer,
		Grader:    grader,
		Chat:      f.chat,
		Traces:    f.traces,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return o
}

func doc(id, content string) domain.Document {
	return domain.Document{ID: id, Content: content, Metadata: map[string]string{domain.MetaDepartment: "hr"}}
}

func countSteps(tr *trace.Trace, typ trace.StepType) int {
	n := 0
	for _, s := range tr.Steps {
		if s.Type == typ {
			n++
		}
	}
	return n
}

func countNames(names []string, typ trace.StepType) int {
	n := 0
	for _, s := range names {
		if s == string(typ) {
			n++
		}
	}
	return n
}

// slowChat blocks until the context ends.
type slowChat struct{}

func (slowChat) Complete(ctx context.Context, _ string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func mustGrader(t *testing.T) Grader {
	t.Helper()
	g, err := gradeuc.New(nil, grade.DefaultThresholds(), nil)
	if err != nil {
		t.Fatal(err)
	}
	return g
}
