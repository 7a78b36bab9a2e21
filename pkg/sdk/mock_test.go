package vecrag

import (
	"context"

	"go.uber.org/zap"

	"github.com/kailas-cloud/vecrag/internal/domain"
	"github.com/kailas-cloud/vecrag/internal/domain/answer"
	"github.com/kailas-cloud/vecrag/internal/domain/trace"
	healthuc "github.com/kailas-cloud/vecrag/internal/usecase/health"
	"github.com/kailas-cloud/vecrag/internal/usecase/orchestrator"
	"github.com/kailas-cloud/vecrag/internal/usecase/partition"
)

type mockEmbedder struct {
	fn func(ctx context.Context, text string) (EmbeddingResult, error)
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) (EmbeddingResult, error) {
	return m.fn(ctx, text)
}

type mockChat struct {
	fn     func(ctx context.Context, prompt string) (string, error)
	health error
}

func (m *mockChat) Complete(ctx context.Context, prompt string) (string, error) {
	return m.fn(ctx, prompt)
}

func (m *mockChat) HealthCheck(context.Context) error { return m.health }

type mockPipeline struct {
	executeFn func(ctx context.Context, req orchestrator.Request) (answer.Result, *trace.Trace, error)
}

func (m *mockPipeline) Execute(ctx context.Context, req orchestrator.Request) (answer.Result, *trace.Trace, error) {
	return m.executeFn(ctx, req)
}

type mockTraces map[string]*trace.Trace

func (m mockTraces) Get(id string) (*trace.Trace, bool) {
	t, ok := m[id]
	return t, ok
}

type mockTagger struct {
	err error
}

func (m *mockTagger) TagPartition(context.Context, string, int) error { return m.err }

type mockHealth struct {
	report healthuc.Report
}

func (m *mockHealth) Check(context.Context) healthuc.Report { return m.report }

// --- helpers ---

func testClient(p pipeline, traces traceStore, parts partitioner, tagger partition.Tagger) *Client {
	return &Client{
		pipeline:   p,
		traces:     traces,
		partitions: parts,
		tagger:     tagger,
	}
}

func mustAssigner(count int) *partition.Assigner {
	a, err := partition.New(count, partition.AlgorithmSHA256, zap.NewNop())
	if err != nil {
		panic(err)
	}
	return a
}

var _ domain.HealthChecker = (*mockChat)(nil)
